package transport

import (
	"errors"
	"sync/atomic"

	"github.com/mcadvchat/meshtp/log"
	"github.com/mcadvchat/meshtp/proto"
)

// Retransmission granularity. Whether requests name individual chunk
// indices or the whole coded block is deployment policy, not protocol.
const (
	RETRANSMIT_CHUNKS = "chunk"
	RETRANSMIT_BLOCK  = "block"
)

var ErrBadRetransmitMode = errors.New("Unknown retransmission mode.")

// Retransmitter is the optional policy layered on top of the reassembly
// buffer: it observes gap events and asks the sender for the missing pieces
// through the same adapter. The buffer stays transport-agnostic.
type Retransmitter struct {
	adapter  Adapter
	mode     string
	requests uint64
}

func NewRetransmitter(adapter Adapter, mode string) (*Retransmitter, error) {
	switch mode {
	case RETRANSMIT_CHUNKS, RETRANSMIT_BLOCK:
	case "":
		mode = RETRANSMIT_CHUNKS
	default:
		return nil, ErrBadRetransmitMode
	}
	return &Retransmitter{adapter: adapter, mode: mode}, nil
}

// OnGap matches the Receiver gap callback signature.
func (rt *Retransmitter) OnGap(gap *Gap) {
	var requests []*proto.RequestEnvelope

	if rt.mode == RETRANSMIT_BLOCK || len(gap.Missing) == 0 {
		requests = append(requests, &proto.RequestEnvelope{
			MsgID: gap.ID,
			Mode:  proto.REQUEST_BLOCK,
		})
	} else {
		for off := 0; off < len(gap.Missing); off += proto.MAX_REQUEST_INDICES {
			end := off + proto.MAX_REQUEST_INDICES
			if end > len(gap.Missing) {
				end = len(gap.Missing)
			}
			requests = append(requests, &proto.RequestEnvelope{
				MsgID:   gap.ID,
				Mode:    proto.REQUEST_CHUNKS,
				Indices: gap.Missing[off:end],
			})
		}
	}

	for _, req := range requests {
		buf := make([]byte, req.Len())
		if err := req.Marshal(buf); err != nil {
			log.Errorf("Retransmission request marshal failure: %v", err)
			return
		}
		if err := rt.adapter.Send(buf); err != nil {
			log.Warnf("Retransmission request send failure: %v", err)
			return
		}
		atomic.AddUint64(&rt.requests, 1)
	}
}

// Requests reports how many request envelopes have been transmitted.
func (rt *Retransmitter) Requests() uint64 {
	return atomic.LoadUint64(&rt.requests)
}
