package proto

import (
	"encoding/base64"
	"errors"
	"strconv"
)

var (
	ErrNilBuf         = errors.New("Nil buffer.")
	ErrBufferTooShort = errors.New("Buffer is too short.")
	ErrMalformedChunk = errors.New("Malformed chunk envelope.")
	ErrChunkTooLarge  = errors.New("Framed chunk exceeds channel ceiling.")
)

const (
	// Hard payload ceiling of the underlying mesh channel.
	CHANNEL_CEILING = 149

	MAGIC_CHUNK   = "MF"
	MAGIC_REQUEST = "MR"

	KIND_DATA       = byte('D')
	KIND_REDUNDANCY = byte('R')

	CHUNK_HEADER_LEN = 27
)

// Magic returns the envelope magic of a datagram, or "" when it carries none.
func Magic(raw []byte) string {
	if len(raw) < 2 {
		return ""
	}
	switch m := string(raw[:2]); m {
	case MAGIC_CHUNK, MAGIC_REQUEST:
		return m
	}
	return ""
}

// MaxPayloadFor returns the largest raw chunk payload whose framed envelope
// still fits the given channel ceiling.
func MaxPayloadFor(ceiling int) int {
	room := ceiling - CHUNK_HEADER_LEN
	if room < 4 {
		return 0
	}
	return room / 4 * 3
}

/////////////////////////////////////////////////////////
// ChunkEnvelope :
// +-------+--------+-------+-------+-------+--------+------+----...----+
// | Magic | MsgID  |  Seq  | Total | Data  | MsgLen | Kind |  Payload  |
// | "MF"  | 8 hex  | 4 hex | 4 hex | 4 hex | 4 hex  | D/R  |  base64   |
// +-------+--------+-------+-------+-------+--------+------+----...----+
//
// Total is the coded block size n, Data the original chunk count k. MsgLen
// travels in every envelope so a reconstructed padded tail shard can be
// trimmed without sender state. All header fields are uppercase hex; the
// whole envelope is printable-safe.
/////////////////////////////////////////////////////////
type ChunkEnvelope struct {
	MsgID   uint32
	Seq     uint16
	Total   uint16
	Data    uint16
	MsgLen  uint16
	Kind    byte
	Payload []byte
}

func (c *ChunkEnvelope) Len() int {
	return CHUNK_HEADER_LEN + base64.StdEncoding.EncodedLen(len(c.Payload))
}

func (c *ChunkEnvelope) Marshal(buf []byte) error {
	if buf == nil {
		return ErrNilBuf
	}
	if c.Len() > len(buf) {
		return ErrBufferTooShort
	}
	if c.Len() > CHANNEL_CEILING {
		return ErrChunkTooLarge
	}
	copy(buf[0:2], MAGIC_CHUNK)
	putHex(buf[2:10], uint64(c.MsgID))
	putHex(buf[10:14], uint64(c.Seq))
	putHex(buf[14:18], uint64(c.Total))
	putHex(buf[18:22], uint64(c.Data))
	putHex(buf[22:26], uint64(c.MsgLen))
	buf[26] = c.Kind
	base64.StdEncoding.Encode(buf[CHUNK_HEADER_LEN:], c.Payload)
	return nil
}

// Unmarshal parses and validates a whole datagram. Any structural violation
// yields ErrMalformedChunk; a toxic envelope must be dropped, never let near
// reassembly state.
func (c *ChunkEnvelope) Unmarshal(raw []byte) error {
	if len(raw) < CHUNK_HEADER_LEN+4 || len(raw) > CHANNEL_CEILING {
		return ErrMalformedChunk
	}
	if string(raw[0:2]) != MAGIC_CHUNK {
		return ErrMalformedChunk
	}
	if !SafeBytes(raw) {
		return ErrMalformedChunk
	}

	msgID, err := parseHex(raw[2:10])
	if err != nil {
		return ErrMalformedChunk
	}
	seq, err := parseHex(raw[10:14])
	if err != nil {
		return ErrMalformedChunk
	}
	total, err := parseHex(raw[14:18])
	if err != nil {
		return ErrMalformedChunk
	}
	data, err := parseHex(raw[18:22])
	if err != nil {
		return ErrMalformedChunk
	}
	msgLen, err := parseHex(raw[22:26])
	if err != nil {
		return ErrMalformedChunk
	}
	kind := raw[26]

	if seq >= total {
		return ErrMalformedChunk
	}
	if data == 0 || data > total {
		return ErrMalformedChunk
	}
	switch kind {
	case KIND_DATA:
		if seq >= data {
			return ErrMalformedChunk
		}
	case KIND_REDUNDANCY:
		if seq < data {
			return ErrMalformedChunk
		}
	default:
		return ErrMalformedChunk
	}

	payload := make([]byte, base64.StdEncoding.DecodedLen(len(raw)-CHUNK_HEADER_LEN))
	decoded, err := base64.StdEncoding.Decode(payload, raw[CHUNK_HEADER_LEN:])
	if err != nil || decoded == 0 {
		return ErrMalformedChunk
	}
	payload = payload[:decoded]

	// The declared message length must actually need Data chunks of this
	// shard size, no more and no fewer.
	if msgLen == 0 || msgLen > data*uint64(decoded) || msgLen <= (data-1)*uint64(decoded) {
		return ErrMalformedChunk
	}

	c.MsgID = uint32(msgID)
	c.Seq = uint16(seq)
	c.Total = uint16(total)
	c.Data = uint16(data)
	c.MsgLen = uint16(msgLen)
	c.Kind = kind
	c.Payload = payload
	return nil
}

const hexDigits = "0123456789ABCDEF"

func putHex(buf []byte, v uint64) {
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = hexDigits[v&0xF]
		v >>= 4
	}
}

func parseHex(raw []byte) (uint64, error) {
	return strconv.ParseUint(string(raw), 16, 32)
}
