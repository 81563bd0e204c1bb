package transport

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcadvchat/meshtp/fec"
	"github.com/mcadvchat/meshtp/log"
	"github.com/mcadvchat/meshtp/proto"
)

// ErrAbandoned marks a message whose reassembly was given up on for good; a
// block that met its threshold but does not decode is poisoned and can never
// complete.
var ErrAbandoned = errors.New("Message reassembly abandoned.")

const (
	ENTRY_OPEN = uint8(iota)
	ENTRY_COLLECTING
	ENTRY_DECODABLE
	ENTRY_COMPLETE
	ENTRY_ABANDONED
)

// DeliveredMessage is a fully reconstructed inbound message.
type DeliveredMessage struct {
	ID        uint32
	Raw       []byte
	FirstSeen time.Time
}

// Gap names the chunk indices still missing for an in-flight message. Gap
// events are what an optional retransmission policy observes; the buffer
// itself never issues requests.
type Gap struct {
	ID      uint32
	Total   uint16
	Data    uint16
	Missing []uint16
}

type ReceiverOptions struct {
	// Inactivity timeout before an entry is given up on.
	ReassemblyTimeout time.Duration

	// Hard ceiling on total entry lifetime, grace periods included.
	HardTimeout time.Duration

	// Period of the eviction sweep.
	SweepPeriod time.Duration

	// Cap on concurrently open entries. The oldest entry is evicted
	// silently under pressure.
	MaxOpenEntries int
}

func (o *ReceiverOptions) SetDefault() {
	if o.ReassemblyTimeout <= 0 {
		o.ReassemblyTimeout = 30 * time.Second
	}
	if o.HardTimeout <= 0 {
		o.HardTimeout = 5 * time.Minute
	}
	if o.SweepPeriod <= 0 {
		o.SweepPeriod = time.Second
	}
	if o.MaxOpenEntries <= 0 {
		o.MaxOpenEntries = 256
	}
}

type ReceiverStats struct {
	OpenEntries int
	Delivered   uint64
	Abandoned   uint64
	Duplicates  uint64
	Malformed   uint64
}

type entry struct {
	lock         sync.Mutex
	id           uint32
	state        uint8
	shards       [][]byte
	received     uint16
	total        uint16
	data         uint16
	msgLen       uint16
	shardSize    int
	firstSeen    time.Time
	lastActivity time.Time
	gapAsked     bool
}

// missingLocked must be called with the entry lock held.
func (e *entry) missingLocked() []uint16 {
	missing := make([]uint16, 0, int(e.total)-int(e.received))
	for i, shard := range e.shards {
		if shard == nil {
			missing = append(missing, uint16(i))
		}
	}
	return missing
}

// Receiver is the reassembly buffer: one independently locked entry per
// in-flight message identifier, so chunk arrival for one message never
// blocks ingestion for another.
type Receiver struct {
	lock    sync.RWMutex
	entries map[uint32]*entry

	opts      ReceiverOptions
	onMessage func(*DeliveredMessage)
	onGap     func(*Gap)

	delivered  uint64
	abandoned  uint64
	duplicates uint64
	malformed  uint64

	stop     chan struct{}
	stopOnce sync.Once
}

func NewReceiver(opts ReceiverOptions, onMessage func(*DeliveredMessage), onGap func(*Gap)) *Receiver {
	opts.SetDefault()
	return &Receiver{
		entries:   make(map[uint32]*entry),
		opts:      opts,
		onMessage: onMessage,
		onGap:     onGap,
		stop:      make(chan struct{}),
	}
}

// Ingest accepts one raw datagram from the channel. Malformed envelopes are
// dropped here and reported back for optional logging; they never reach
// entry state. Duplicate and out-of-order delivery are idempotent.
func (r *Receiver) Ingest(raw []byte) error {
	env := &proto.ChunkEnvelope{}
	if err := env.Unmarshal(raw); err != nil {
		atomic.AddUint64(&r.malformed, 1)
		return err
	}

	e := r.entryFor(env)

	e.lock.Lock()
	if e.state == ENTRY_COMPLETE || e.state == ENTRY_ABANDONED {
		// Straggler for a finished message.
		atomic.AddUint64(&r.duplicates, 1)
		e.lock.Unlock()
		return nil
	}
	if e.total != env.Total || e.data != env.Data || e.msgLen != env.MsgLen || e.shardSize != len(env.Payload) {
		// Envelope contradicts what the first chunk declared.
		atomic.AddUint64(&r.malformed, 1)
		e.lock.Unlock()
		return proto.ErrMalformedChunk
	}
	if e.shards[env.Seq] != nil {
		atomic.AddUint64(&r.duplicates, 1)
		e.lock.Unlock()
		return nil
	}

	e.shards[env.Seq] = env.Payload
	e.received++
	e.lastActivity = time.Now()
	if e.state == ENTRY_OPEN {
		e.state = ENTRY_COLLECTING
	}

	var delivered *DeliveredMessage
	if e.received >= e.data {
		e.state = ENTRY_DECODABLE
		reconstructed, err := fec.Decode(e.shards, int(e.data), int(e.msgLen))
		if err != nil {
			// Threshold met but the block does not decode; the block is
			// poisoned and will never complete.
			e.state = ENTRY_ABANDONED
			e.shards = nil
			e.lock.Unlock()
			r.remove(e)
			atomic.AddUint64(&r.abandoned, 1)
			return fmt.Errorf("%w: block %08X undecodable: %v", ErrAbandoned, e.id, err)
		}
		e.state = ENTRY_COMPLETE
		e.shards = nil
		delivered = &DeliveredMessage{ID: e.id, Raw: reconstructed, FirstSeen: e.firstSeen}
	}
	e.lock.Unlock()

	if delivered != nil {
		atomic.AddUint64(&r.delivered, 1)
		if r.onMessage != nil {
			r.onMessage(delivered)
		}
	}
	return nil
}

// entryFor returns the live entry for the envelope, allocating one on first
// sight of the message identifier. Under entry pressure the oldest entry is
// evicted first; pressure eviction emits no gap event.
func (r *Receiver) entryFor(env *proto.ChunkEnvelope) *entry {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, ok := r.entries[env.MsgID]
	if ok {
		return e
	}

	if len(r.entries) >= r.opts.MaxOpenEntries {
		var oldest *entry
		for _, candidate := range r.entries {
			if oldest == nil || candidate.firstSeen.Before(oldest.firstSeen) {
				oldest = candidate
			}
		}
		if oldest != nil {
			oldest.lock.Lock()
			if oldest.state != ENTRY_COMPLETE {
				atomic.AddUint64(&r.abandoned, 1)
			}
			oldest.state = ENTRY_ABANDONED
			oldest.shards = nil
			oldest.lock.Unlock()
			delete(r.entries, oldest.id)
			log.Infof2("Entry pressure: evicted message %08X", oldest.id)
		}
	}

	now := time.Now()
	e = &entry{
		id:           env.MsgID,
		state:        ENTRY_OPEN,
		shards:       make([][]byte, env.Total),
		total:        env.Total,
		data:         env.Data,
		msgLen:       env.MsgLen,
		shardSize:    len(env.Payload),
		firstSeen:    now,
		lastActivity: now,
	}
	r.entries[env.MsgID] = e
	return e
}

// remove deletes an entry from the map if it is still the registered one.
func (r *Receiver) remove(e *entry) {
	r.lock.Lock()
	if current, ok := r.entries[e.id]; ok && current == e {
		delete(r.entries, e.id)
	}
	r.lock.Unlock()
}

// Missing reports the chunk indices not yet received for a message, nil if
// the identifier is unknown.
func (r *Receiver) Missing(id uint32) []uint16 {
	r.lock.RLock()
	e, ok := r.entries[id]
	r.lock.RUnlock()
	if !ok {
		return nil
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.state == ENTRY_COMPLETE || e.state == ENTRY_ABANDONED {
		return []uint16{}
	}
	return e.missingLocked()
}

// Cancel drops an in-flight message without emitting any event. Other
// entries are unaffected.
func (r *Receiver) Cancel(id uint32) bool {
	r.lock.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.lock.Unlock()
	if !ok {
		return false
	}
	e.lock.Lock()
	e.state = ENTRY_ABANDONED
	e.shards = nil
	e.lock.Unlock()
	return true
}

func (r *Receiver) Stats() ReceiverStats {
	r.lock.RLock()
	open := len(r.entries)
	r.lock.RUnlock()
	return ReceiverStats{
		OpenEntries: open,
		Delivered:   atomic.LoadUint64(&r.delivered),
		Abandoned:   atomic.LoadUint64(&r.abandoned),
		Duplicates:  atomic.LoadUint64(&r.duplicates),
		Malformed:   atomic.LoadUint64(&r.malformed),
	}
}

// GoSweep starts the periodic eviction sweep.
func (r *Receiver) GoSweep() {
	go func() {
		ticker := time.NewTicker(r.opts.SweepPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sweep(time.Now())
			case <-r.stop:
				return
			}
		}
	}()
}

func (r *Receiver) Close() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
}

// sweep drives the timer half of the entry state machine. An idle
// incomplete entry gets one gap event and one grace period when a gap
// observer is registered; the next expiry, or the hard lifetime ceiling,
// abandons it for good.
func (r *Receiver) sweep(now time.Time) {
	r.lock.RLock()
	snapshot := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, e)
	}
	r.lock.RUnlock()

	var gaps []*Gap
	var drop []*entry
	for _, e := range snapshot {
		e.lock.Lock()
		idle := now.Sub(e.lastActivity) > r.opts.ReassemblyTimeout
		hard := now.Sub(e.firstSeen) > r.opts.HardTimeout

		switch e.state {
		case ENTRY_COMPLETE, ENTRY_ABANDONED:
			if idle {
				drop = append(drop, e)
			}
		default:
			if hard || (idle && (e.gapAsked || r.onGap == nil)) {
				e.state = ENTRY_ABANDONED
				e.shards = nil
				drop = append(drop, e)
				atomic.AddUint64(&r.abandoned, 1)
				log.Infof1("Message %08X abandoned after timeout.", e.id)
			} else if idle {
				e.gapAsked = true
				e.lastActivity = now
				gaps = append(gaps, &Gap{
					ID:      e.id,
					Total:   e.total,
					Data:    e.data,
					Missing: e.missingLocked(),
				})
			}
		}
		e.lock.Unlock()
	}

	if len(drop) > 0 {
		r.lock.Lock()
		for _, e := range drop {
			if current, ok := r.entries[e.id]; ok && current == e {
				delete(r.entries, e.id)
			}
		}
		r.lock.Unlock()
	}
	for _, gap := range gaps {
		r.onGap(gap)
	}
}
