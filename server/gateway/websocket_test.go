package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
)

func dialTestClient(t *testing.T, server *httptest.Server) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	return conn
}

// drain keeps the client read pump running so server-side writes never block.
func drain(conn *ws.Conn, count *int64) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		atomic.AddInt64(count, 1)
	}
}

func TestBroadcastConcurrentWriters(t *testing.T) {
	hub := NewWebsocketHub(nil)
	server := httptest.NewServer(http.HandlerFunc(hub.Connect))
	defer server.Close()

	conn := dialTestClient(t, server)
	defer conn.Close()
	var received int64
	go drain(conn, &received)

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	// The UDP receive loop and every client read loop may broadcast at the
	// same time; the hub must serialize the per-connection writes.
	const writers, rounds = 16, 200
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				hub.Broadcast(&MeshMessage{Msg: "tick", MsgID: "w"})
			}
		}()
	}
	wg.Wait()

	if hub.Count() != 1 {
		t.Fatalf("client dropped under concurrent broadcast: %v", hub.Count())
	}
	deadline = time.Now().Add(5 * time.Second)
	for atomic.LoadInt64(&received) < writers*rounds {
		if time.Now().After(deadline) {
			t.Fatalf("received %v of %v broadcast messages",
				atomic.LoadInt64(&received), writers*rounds)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSubmissionRacingBroadcast(t *testing.T) {
	// Submissions echo back through Broadcast from the client's own read
	// loop while another goroutine floods deliveries.
	submitted := make(chan string, 64)
	var hub *WebsocketHub
	hub = NewWebsocketHub(func(dst, msg string) {
		hub.Broadcast(&MeshMessage{Dst: dst, Msg: msg})
		submitted <- msg
	})
	server := httptest.NewServer(http.HandlerFunc(hub.Connect))
	defer server.Close()

	conn := dialTestClient(t, server)
	defer conn.Close()
	var received int64
	go drain(conn, &received)

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				hub.Broadcast(&MeshMessage{Msg: "inbound"})
			}
		}
	}()

	for i := 0; i < 50; i++ {
		if err := conn.WriteMessage(ws.TextMessage, []byte(`{"dst":"all","msg":"hello"}`)); err != nil {
			t.Fatalf("submission write failed: %v", err)
		}
	}
	for i := 0; i < 50; i++ {
		select {
		case <-submitted:
		case <-time.After(2 * time.Second):
			t.Fatalf("submission %v never surfaced", i)
		}
	}
	close(stop)
	wg.Wait()

	if hub.Count() != 1 {
		t.Fatalf("client dropped during the race: %v", hub.Count())
	}
}
