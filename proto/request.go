package proto

import (
	"errors"
)

var (
	ErrMalformedRequest = errors.New("Malformed retransmission request.")
	ErrTooManyIndices   = errors.New("Too many chunk indices for one request.")
)

const (
	REQUEST_CHUNKS = byte('C')
	REQUEST_BLOCK  = byte('B')

	REQUEST_HEADER_LEN = 11

	// Keeps the framed request itself under the channel ceiling.
	MAX_REQUEST_INDICES = 32
)

/////////////////////////////////////////////////////////
// RequestEnvelope :
// +-------+--------+------+------------...------------+
// | Magic | MsgID  | Mode |         Indices           |
// | "MR"  | 8 hex  | C/B  |  4 hex each (mode C only) |
// +-------+--------+------+------------...------------+
//
// Mode C asks the sender to repeat the named chunk indices, mode B the whole
// coded block.
/////////////////////////////////////////////////////////
type RequestEnvelope struct {
	MsgID   uint32
	Mode    byte
	Indices []uint16
}

func (r *RequestEnvelope) Len() int {
	return REQUEST_HEADER_LEN + 4*len(r.Indices)
}

func (r *RequestEnvelope) Marshal(buf []byte) error {
	if buf == nil {
		return ErrNilBuf
	}
	if r.Len() > len(buf) {
		return ErrBufferTooShort
	}
	if len(r.Indices) > MAX_REQUEST_INDICES {
		return ErrTooManyIndices
	}
	copy(buf[0:2], MAGIC_REQUEST)
	putHex(buf[2:10], uint64(r.MsgID))
	buf[10] = r.Mode
	for i, index := range r.Indices {
		putHex(buf[REQUEST_HEADER_LEN+4*i:REQUEST_HEADER_LEN+4*i+4], uint64(index))
	}
	return nil
}

func (r *RequestEnvelope) Unmarshal(raw []byte) error {
	if len(raw) < REQUEST_HEADER_LEN || len(raw) > CHANNEL_CEILING {
		return ErrMalformedRequest
	}
	if string(raw[0:2]) != MAGIC_REQUEST {
		return ErrMalformedRequest
	}
	if !SafeBytes(raw) {
		return ErrMalformedRequest
	}
	msgID, err := parseHex(raw[2:10])
	if err != nil {
		return ErrMalformedRequest
	}
	mode := raw[10]
	rest := raw[REQUEST_HEADER_LEN:]

	switch mode {
	case REQUEST_BLOCK:
		if len(rest) != 0 {
			return ErrMalformedRequest
		}
	case REQUEST_CHUNKS:
		if len(rest) == 0 || len(rest)%4 != 0 || len(rest)/4 > MAX_REQUEST_INDICES {
			return ErrMalformedRequest
		}
	default:
		return ErrMalformedRequest
	}

	indices := make([]uint16, 0, len(rest)/4)
	for off := 0; off < len(rest); off += 4 {
		index, ierr := parseHex(rest[off : off+4])
		if ierr != nil {
			return ErrMalformedRequest
		}
		indices = append(indices, uint16(index))
	}

	r.MsgID = uint32(msgID)
	r.Mode = mode
	r.Indices = indices
	return nil
}
