package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	guuid "github.com/satori/go.uuid"

	"github.com/mcadvchat/meshtp/fec"
	"github.com/mcadvchat/meshtp/proto"
)

var (
	ErrMessageTooLong  = errors.New("Message is too long for one coded block.")
	ErrUnknownMessage  = errors.New("No retained frames for requested message.")
	ErrBadSenderOption = errors.New("Invalid sender option.")
)

type SenderOptions struct {
	// Raw payload bytes per chunk before framing.
	MaxChunkPayload int

	// Byte budget of one transmission, framing included.
	ChannelCeiling int

	// Coded chunks per original chunk, n/k.
	RedundancyRatio float64

	// How long framed chunks stay retained to answer retransmission
	// requests.
	RetainSent time.Duration
}

func (o *SenderOptions) SetDefault() {
	if o.MaxChunkPayload <= 0 {
		o.MaxChunkPayload = 10
	}
	if o.ChannelCeiling <= 0 {
		o.ChannelCeiling = proto.CHANNEL_CEILING
	}
	if o.RedundancyRatio <= 0 {
		o.RedundancyRatio = fec.DEFAULT_REDUNDANCY_RATIO
	}
	if o.RetainSent <= 0 {
		o.RetainSent = 2 * time.Minute
	}
}

func (o *SenderOptions) Validate() error {
	if o.ChannelCeiling > proto.CHANNEL_CEILING || proto.MaxPayloadFor(o.ChannelCeiling) <= 0 {
		return fmt.Errorf("%w: channel ceiling %v", ErrBadSenderOption, o.ChannelCeiling)
	}
	if o.MaxChunkPayload <= 0 || o.MaxChunkPayload > proto.MaxPayloadFor(o.ChannelCeiling) {
		return fmt.Errorf("%w: chunk payload %v does not fit ceiling %v", ErrBadSenderOption, o.MaxChunkPayload, o.ChannelCeiling)
	}
	if o.RedundancyRatio <= 1.0 {
		return fmt.Errorf("%w: redundancy ratio %v", ErrBadSenderOption, o.RedundancyRatio)
	}
	return nil
}

type SenderStats struct {
	Messages     uint64
	Frames       uint64
	SendFailures uint64
	Resends      uint64
}

type sentMessage struct {
	frames [][]byte
	sentAt time.Time
}

// Sender runs the outbound pipeline: segment, FEC-encode, frame, transmit.
// Recently framed chunks are retained so a retransmission request can be
// answered without re-encoding.
type Sender struct {
	adapter Adapter
	opts    SenderOptions
	encoder *fec.Encoder

	lock sync.Mutex
	sent map[uint32]*sentMessage

	messages     uint64
	frames       uint64
	sendFailures uint64
	resends      uint64
}

func NewSender(adapter Adapter, opts SenderOptions) (*Sender, error) {
	opts.SetDefault()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	encoder, err := fec.NewEncoder(opts.RedundancyRatio)
	if err != nil {
		return nil, err
	}
	return &Sender{
		adapter: adapter,
		opts:    opts,
		encoder: encoder,
		sent:    make(map[uint32]*sentMessage),
	}, nil
}

// NewMessageID derives a 32-bit wire identifier from a fresh UUIDv4.
func NewMessageID() uint32 {
	u := guuid.NewV4()
	return binary.BigEndian.Uint32(u[0:4])
}

// Send fragments one message and transmits every coded chunk once,
// best-effort. Input validation errors are returned as-is; transmission
// failures are aggregated since the channel gives no delivery guarantee
// anyway.
func (s *Sender) Send(id uint32, raw []byte) error {
	if len(raw) > 0xFFFF {
		return ErrMessageTooLong
	}
	chunks, err := proto.Segment(raw, s.opts.MaxChunkPayload)
	if err != nil {
		return err
	}
	shards, err := s.encoder.Encode(chunks)
	if err != nil {
		return err
	}

	k, n := len(chunks), len(shards)
	frames := make([][]byte, n)
	for i, shard := range shards {
		kind := proto.KIND_DATA
		if i >= k {
			kind = proto.KIND_REDUNDANCY
		}
		env := &proto.ChunkEnvelope{
			MsgID:   id,
			Seq:     uint16(i),
			Total:   uint16(n),
			Data:    uint16(k),
			MsgLen:  uint16(len(raw)),
			Kind:    kind,
			Payload: shard,
		}
		if env.Len() > s.opts.ChannelCeiling {
			return proto.ErrChunkTooLarge
		}
		buf := make([]byte, env.Len())
		if err = env.Marshal(buf); err != nil {
			return err
		}
		frames[i] = buf
	}

	s.remember(id, frames)
	atomic.AddUint64(&s.messages, 1)

	var sendErr error
	for _, frame := range frames {
		if err = s.adapter.Send(frame); err != nil {
			atomic.AddUint64(&s.sendFailures, 1)
			sendErr = err
			continue
		}
		atomic.AddUint64(&s.frames, 1)
	}
	if sendErr != nil {
		return fmt.Errorf("best-effort transmission incomplete: %w", sendErr)
	}
	return nil
}

// HandleRequest answers an inbound retransmission request by repeating the
// retained frames it names.
func (s *Sender) HandleRequest(raw []byte) error {
	req := &proto.RequestEnvelope{}
	if err := req.Unmarshal(raw); err != nil {
		return err
	}

	s.lock.Lock()
	sm, ok := s.sent[req.MsgID]
	if ok && time.Since(sm.sentAt) > s.opts.RetainSent {
		delete(s.sent, req.MsgID)
		ok = false
	}
	var frames [][]byte
	if ok {
		switch req.Mode {
		case proto.REQUEST_BLOCK:
			frames = sm.frames
		case proto.REQUEST_CHUNKS:
			for _, index := range req.Indices {
				if int(index) < len(sm.frames) {
					frames = append(frames, sm.frames[index])
				}
			}
		}
	}
	s.lock.Unlock()

	if !ok {
		return ErrUnknownMessage
	}
	var sendErr error
	for _, frame := range frames {
		if err := s.adapter.Send(frame); err != nil {
			atomic.AddUint64(&s.sendFailures, 1)
			sendErr = err
			continue
		}
		atomic.AddUint64(&s.resends, 1)
	}
	if sendErr != nil {
		return fmt.Errorf("best-effort retransmission incomplete: %w", sendErr)
	}
	return nil
}

// Forget drops retained frames for a message, e.g. when the user deletes a
// draft mid-flight.
func (s *Sender) Forget(id uint32) {
	s.lock.Lock()
	delete(s.sent, id)
	s.lock.Unlock()
}

func (s *Sender) Stats() SenderStats {
	return SenderStats{
		Messages:     atomic.LoadUint64(&s.messages),
		Frames:       atomic.LoadUint64(&s.frames),
		SendFailures: atomic.LoadUint64(&s.sendFailures),
		Resends:      atomic.LoadUint64(&s.resends),
	}
}

func (s *Sender) remember(id uint32, frames [][]byte) {
	now := time.Now()
	s.lock.Lock()
	for old, sm := range s.sent {
		if now.Sub(sm.sentAt) > s.opts.RetainSent {
			delete(s.sent, old)
		}
	}
	s.sent[id] = &sentMessage{frames: frames, sentAt: now}
	s.lock.Unlock()
}
