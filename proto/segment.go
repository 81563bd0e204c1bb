package proto

import (
	"errors"
)

var (
	ErrUnsafeText      = errors.New("Message contains transport-unsafe bytes.")
	ErrEmptyMessage    = errors.New("Message is empty.")
	ErrBadChunkPayload = errors.New("Chunk payload size out of range.")
)

// Segment splits message bytes into chunks of at most maxPayload bytes.
// Chunk i always reconstructs to byte offset i*maxPayload; only the last
// chunk may be shorter. Messages carrying bytes outside the transport-safe
// set are rejected outright, no sanitization is attempted here.
func Segment(raw []byte, maxPayload int) ([][]byte, error) {
	if maxPayload <= 0 || maxPayload > MaxPayloadFor(CHANNEL_CEILING) {
		return nil, ErrBadChunkPayload
	}
	if len(raw) == 0 {
		return nil, ErrEmptyMessage
	}
	if !SafeBytes(raw) {
		return nil, ErrUnsafeText
	}

	count := (len(raw) + maxPayload - 1) / maxPayload
	chunks := make([][]byte, 0, count)
	for off := 0; off < len(raw); off += maxPayload {
		end := off + maxPayload
		if end > len(raw) {
			end = len(raw)
		}
		chunk := make([]byte, end-off)
		copy(chunk, raw[off:end])
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
