package transport

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mcadvchat/meshtp/proto"
)

// lossyChannel delivers every frame straight into a receiver callback unless
// its transmission index is listed in drops. Drops apply only once.
type lossyChannel struct {
	lock    sync.Mutex
	drops   map[int]bool
	calls   int
	deliver func([]byte)
}

func (c *lossyChannel) Send(raw []byte) error {
	c.lock.Lock()
	index := c.calls
	c.calls++
	drop := c.drops[index]
	if drop {
		delete(c.drops, index)
	}
	deliver := c.deliver
	c.lock.Unlock()

	if drop {
		return nil
	}
	frame := make([]byte, len(raw))
	copy(frame, raw)
	deliver(frame)
	return nil
}

func TestEndToEndWithinParity(t *testing.T) {
	delivered := make(chan *DeliveredMessage, 1)
	receiver := NewReceiver(ReceiverOptions{}, func(dm *DeliveredMessage) { delivered <- dm }, nil)

	channel := &lossyChannel{
		drops: map[int]bool{3: true},
		deliver: func(frame []byte) {
			if err := receiver.Ingest(frame); err != nil {
				t.Errorf("ingest failed: %v", err)
			}
		},
	}
	sender, err := NewSender(channel, SenderOptions{})
	if err != nil {
		t.Fatalf("sender setup failed: %v", err)
	}

	id := NewMessageID()
	if err = sender.Send(id, testMessage); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case dm := <-delivered:
		if dm.ID != id || !bytes.Equal(dm.Raw, testMessage) {
			t.Fatalf("delivered %08X %q, want %08X %q", dm.ID, dm.Raw, id, testMessage)
		}
	default:
		t.Fatal("message not delivered despite loss within parity")
	}
}

func runRetransmitScenario(t *testing.T, mode string) {
	t.Helper()
	delivered := make(chan *DeliveredMessage, 1)

	var receiver *Receiver
	channel := &lossyChannel{
		// Frames 1 and 4 of the first pass never arrive, two losses
		// against one parity chunk.
		drops: map[int]bool{1: true, 4: true},
		deliver: func(frame []byte) {
			if err := receiver.Ingest(frame); err != nil {
				t.Errorf("ingest failed: %v", err)
			}
		},
	}
	sender, err := NewSender(channel, SenderOptions{})
	if err != nil {
		t.Fatalf("sender setup failed: %v", err)
	}

	// The request path loops straight back to the sender, standing in for
	// the reverse direction of the radio channel.
	retransmitter, err := NewRetransmitter(AdapterFunc(func(raw []byte) error {
		return sender.HandleRequest(raw)
	}), mode)
	if err != nil {
		t.Fatalf("retransmitter setup failed: %v", err)
	}

	receiver = NewReceiver(ReceiverOptions{
		ReassemblyTimeout: 30 * time.Millisecond,
		HardTimeout:       10 * time.Second,
		SweepPeriod:       10 * time.Millisecond,
	}, func(dm *DeliveredMessage) { delivered <- dm }, retransmitter.OnGap)
	receiver.GoSweep()
	defer receiver.Close()

	id := NewMessageID()
	if err = sender.Send(id, testMessage); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case dm := <-delivered:
		if !bytes.Equal(dm.Raw, testMessage) {
			t.Fatalf("recovered message differs: %q", dm.Raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("message never recovered in %v mode", mode)
	}

	if retransmitter.Requests() == 0 {
		t.Fatal("recovery happened without any retransmission request")
	}
	if stats := sender.Stats(); stats.Resends == 0 {
		t.Fatalf("sender repeated nothing: %+v", stats)
	}
}

func TestRetransmitRecoversChunks(t *testing.T) {
	runRetransmitScenario(t, RETRANSMIT_CHUNKS)
}

func TestRetransmitRecoversBlock(t *testing.T) {
	runRetransmitScenario(t, RETRANSMIT_BLOCK)
}

func TestHandleRequestUnknownMessage(t *testing.T) {
	sender, err := NewSender(AdapterFunc(func([]byte) error { return nil }), SenderOptions{})
	if err != nil {
		t.Fatalf("sender setup failed: %v", err)
	}
	req := &proto.RequestEnvelope{MsgID: 42, Mode: proto.REQUEST_BLOCK}
	buf := make([]byte, req.Len())
	if err = req.Marshal(buf); err != nil {
		t.Fatalf("request marshal failed: %v", err)
	}
	if err = sender.HandleRequest(buf); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestForgetDropsRetainedFrames(t *testing.T) {
	sender, err := NewSender(AdapterFunc(func([]byte) error { return nil }), SenderOptions{})
	if err != nil {
		t.Fatalf("sender setup failed: %v", err)
	}
	if err = sender.Send(21, testMessage); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	sender.Forget(21)

	req := &proto.RequestEnvelope{MsgID: 21, Mode: proto.REQUEST_BLOCK}
	buf := make([]byte, req.Len())
	if err = req.Marshal(buf); err != nil {
		t.Fatalf("request marshal failed: %v", err)
	}
	if err = sender.HandleRequest(buf); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage after Forget, got %v", err)
	}
}

func TestSendRejectsUnsafeText(t *testing.T) {
	sender, err := NewSender(AdapterFunc(func([]byte) error { return nil }), SenderOptions{})
	if err != nil {
		t.Fatalf("sender setup failed: %v", err)
	}
	if err = sender.Send(1, []byte("gr\xc3\xbc\xc3\x9fe")); !errors.Is(err, proto.ErrUnsafeText) {
		t.Fatalf("expected ErrUnsafeText, got %v", err)
	}
	if stats := sender.Stats(); stats.Messages != 0 || stats.Frames != 0 {
		t.Fatalf("rejected message left traces: %+v", stats)
	}
}

func TestSenderOptionValidation(t *testing.T) {
	adapter := AdapterFunc(func([]byte) error { return nil })
	tests := []struct {
		name string
		opts SenderOptions
	}{
		{name: "ceiling above channel limit", opts: SenderOptions{ChannelCeiling: proto.CHANNEL_CEILING + 1}},
		{name: "payload over ceiling", opts: SenderOptions{MaxChunkPayload: proto.MaxPayloadFor(proto.CHANNEL_CEILING) + 3}},
		{name: "ratio below one", opts: SenderOptions{RedundancyRatio: 0.8}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSender(adapter, tc.opts); !errors.Is(err, ErrBadSenderOption) {
				t.Fatalf("expected ErrBadSenderOption, got %v", err)
			}
		})
	}
}
