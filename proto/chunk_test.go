package proto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
)

func frameChunk(msgID uint32, seq, total, data, msgLen int, kind byte, payload []byte) []byte {
	b64 := base64.StdEncoding.EncodeToString(payload)
	return []byte(fmt.Sprintf("%s%08X%04X%04X%04X%04X%c%s", MAGIC_CHUNK, msgID, seq, total, data, msgLen, kind, b64))
}

func TestChunkEnvelopeRoundtrip(t *testing.T) {
	env := &ChunkEnvelope{
		MsgID:   0xDEADBEEF,
		Seq:     2,
		Total:   6,
		Data:    5,
		MsgLen:  47,
		Kind:    KIND_DATA,
		Payload: []byte("0123456789"),
	}
	buf := make([]byte, env.Len())
	if err := env.Marshal(buf); err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if len(buf) > CHANNEL_CEILING {
		t.Fatalf("framed chunk of %v bytes exceeds ceiling", len(buf))
	}
	if !SafeBytes(buf) {
		t.Fatalf("framed chunk carries transport-unsafe bytes: %q", buf)
	}

	parsed := &ChunkEnvelope{}
	if err := parsed.Unmarshal(buf); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if parsed.MsgID != env.MsgID || parsed.Seq != env.Seq || parsed.Total != env.Total ||
		parsed.Data != env.Data || parsed.MsgLen != env.MsgLen || parsed.Kind != env.Kind {
		t.Fatalf("header mismatch: %+v != %+v", parsed, env)
	}
	if !bytes.Equal(parsed.Payload, env.Payload) {
		t.Fatalf("payload mismatch: %q != %q", parsed.Payload, env.Payload)
	}
}

func TestChunkEnvelopeBinaryPayloadStaysSafe(t *testing.T) {
	payload := make([]byte, 10)
	for i := range payload {
		payload[i] = byte(i * 29)
	}
	env := &ChunkEnvelope{
		MsgID:   1,
		Seq:     5,
		Total:   6,
		Data:    5,
		MsgLen:  47,
		Kind:    KIND_REDUNDANCY,
		Payload: payload,
	}
	buf := make([]byte, env.Len())
	if err := env.Marshal(buf); err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !SafeBytes(buf) {
		t.Fatalf("parity chunk not printable-safe: %q", buf)
	}
}

func TestChunkEnvelopeCeiling(t *testing.T) {
	max := MaxPayloadFor(CHANNEL_CEILING)
	env := &ChunkEnvelope{
		MsgID:   7,
		Seq:     0,
		Total:   2,
		Data:    1,
		MsgLen:  uint16(max),
		Kind:    KIND_DATA,
		Payload: bytes.Repeat([]byte{'x'}, max),
	}
	if env.Len() > CHANNEL_CEILING {
		t.Fatalf("max payload of %v frames to %v bytes, over the ceiling", max, env.Len())
	}

	env.Payload = bytes.Repeat([]byte{'x'}, max+3)
	buf := make([]byte, env.Len())
	if err := env.Marshal(buf); !errors.Is(err, ErrChunkTooLarge) {
		t.Fatalf("expected ErrChunkTooLarge, got %v", err)
	}
}

func TestChunkEnvelopeMalformed(t *testing.T) {
	payload := []byte("0123456789")
	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "empty", raw: []byte{}},
		{name: "truncated header", raw: []byte("MF00000001")},
		{name: "wrong magic", raw: frameChunk(1, 0, 6, 5, 47, KIND_DATA, payload)[2:]},
		{name: "sequence beyond total", raw: frameChunk(1, 7, 5, 5, 47, KIND_DATA, payload)},
		{name: "zero data count", raw: frameChunk(1, 0, 6, 0, 47, KIND_DATA, payload)},
		{name: "data count beyond total", raw: frameChunk(1, 0, 5, 6, 47, KIND_DATA, payload)},
		{name: "unknown kind", raw: frameChunk(1, 0, 6, 5, 47, 'X', payload)},
		{name: "parity flag on data index", raw: frameChunk(1, 0, 6, 5, 47, KIND_REDUNDANCY, payload)},
		{name: "data flag on parity index", raw: frameChunk(1, 5, 6, 5, 47, KIND_DATA, payload)},
		{name: "declared length too long", raw: frameChunk(1, 0, 6, 5, 100, KIND_DATA, payload)},
		{name: "declared length too short", raw: frameChunk(1, 0, 6, 5, 12, KIND_DATA, payload)},
		{name: "zero declared length", raw: frameChunk(1, 0, 6, 5, 0, KIND_DATA, payload)},
		{name: "broken base64", raw: append(frameChunk(1, 0, 6, 5, 47, KIND_DATA, payload)[:CHUNK_HEADER_LEN], []byte("????????")...)},
		{name: "odd payload length", raw: append(frameChunk(1, 0, 6, 5, 47, KIND_DATA, payload), 'A')},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := &ChunkEnvelope{}
			if err := env.Unmarshal(tc.raw); !errors.Is(err, ErrMalformedChunk) {
				t.Fatalf("expected ErrMalformedChunk, got %v", err)
			}
		})
	}
}

func TestChunkEnvelopeRejectsUnsafeBytes(t *testing.T) {
	raw := frameChunk(1, 0, 6, 5, 47, KIND_DATA, []byte("0123456789"))
	raw[CHUNK_HEADER_LEN] = 0x07
	env := &ChunkEnvelope{}
	if err := env.Unmarshal(raw); !errors.Is(err, ErrMalformedChunk) {
		t.Fatalf("expected ErrMalformedChunk for control byte, got %v", err)
	}
}

func TestMagic(t *testing.T) {
	if m := Magic(frameChunk(1, 0, 6, 5, 47, KIND_DATA, []byte("0123456789"))); m != MAGIC_CHUNK {
		t.Fatalf("expected chunk magic, got %q", m)
	}
	if m := Magic([]byte(`{"msg":"hi"}`)); m != "" {
		t.Fatalf("expected no magic for legacy JSON, got %q", m)
	}
	if m := Magic([]byte("M")); m != "" {
		t.Fatalf("expected no magic for short datagram, got %q", m)
	}
}

func TestRequestEnvelopeRoundtrip(t *testing.T) {
	req := &RequestEnvelope{
		MsgID:   0xCAFEBABE,
		Mode:    REQUEST_CHUNKS,
		Indices: []uint16{1, 4, 5},
	}
	buf := make([]byte, req.Len())
	if err := req.Marshal(buf); err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if Magic(buf) != MAGIC_REQUEST {
		t.Fatalf("request magic lost: %q", buf)
	}

	parsed := &RequestEnvelope{}
	if err := parsed.Unmarshal(buf); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if parsed.MsgID != req.MsgID || parsed.Mode != req.Mode {
		t.Fatalf("header mismatch: %+v != %+v", parsed, req)
	}
	if len(parsed.Indices) != 3 || parsed.Indices[0] != 1 || parsed.Indices[1] != 4 || parsed.Indices[2] != 5 {
		t.Fatalf("indices mismatch: %v", parsed.Indices)
	}

	block := &RequestEnvelope{MsgID: 9, Mode: REQUEST_BLOCK}
	buf = make([]byte, block.Len())
	if err := block.Marshal(buf); err != nil {
		t.Fatalf("block marshal failed: %v", err)
	}
	parsed = &RequestEnvelope{}
	if err := parsed.Unmarshal(buf); err != nil {
		t.Fatalf("block unmarshal failed: %v", err)
	}
	if parsed.Mode != REQUEST_BLOCK || len(parsed.Indices) != 0 {
		t.Fatalf("block request mismatch: %+v", parsed)
	}
}

func TestRequestEnvelopeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "too short", raw: []byte("MR0000")},
		{name: "unknown mode", raw: []byte("MR00000001Z")},
		{name: "chunk mode without indices", raw: []byte("MR00000001C")},
		{name: "block mode with trailer", raw: []byte("MR00000001B0001")},
		{name: "ragged index list", raw: []byte("MR00000001C001")},
		{name: "non-hex index", raw: []byte("MR00000001C00ZZ")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := &RequestEnvelope{}
			if err := req.Unmarshal(tc.raw); !errors.Is(err, ErrMalformedRequest) {
				t.Fatalf("expected ErrMalformedRequest, got %v", err)
			}
		})
	}
}
