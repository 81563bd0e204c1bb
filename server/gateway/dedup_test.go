package gateway

import (
	"testing"
	"time"
)

func TestDedupWithinWindow(t *testing.T) {
	cache := NewDedupCache(time.Minute)

	if cache.Duplicate("msg-1") {
		t.Fatal("first sighting reported as duplicate")
	}
	if !cache.Duplicate("msg-1") {
		t.Fatal("second sighting not reported as duplicate")
	}
	if cache.Duplicate("msg-2") {
		t.Fatal("unrelated identifier reported as duplicate")
	}
	if cache.Len() != 2 {
		t.Fatalf("expected 2 retained identifiers, got %v", cache.Len())
	}
}

func TestDedupExpiry(t *testing.T) {
	cache := NewDedupCache(20 * time.Millisecond)

	if cache.Duplicate("msg-1") {
		t.Fatal("first sighting reported as duplicate")
	}
	time.Sleep(30 * time.Millisecond)
	if cache.Duplicate("msg-1") {
		t.Fatal("identifier still deduplicated after the window")
	}
}

func TestDedupEmptyIdentifier(t *testing.T) {
	cache := NewDedupCache(time.Minute)
	if cache.Duplicate("") || cache.Duplicate("") {
		t.Fatal("empty identifiers must never be deduplicated")
	}
	if cache.Len() != 0 {
		t.Fatalf("empty identifier retained: %v", cache.Len())
	}
}
