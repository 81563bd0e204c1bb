package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	guuid "github.com/satori/go.uuid"

	"github.com/mcadvchat/meshtp/log"
	"github.com/mcadvchat/meshtp/proto"
	"github.com/mcadvchat/meshtp/transport"
)

// Gateway glues the fragmentation transport to the mesh node on one side
// and the browser clients on the other.
type Gateway struct {
	Options       *GatewayOptions
	UDP           *UDPTransport
	Hub           *WebsocketHub
	Receiver      *transport.Receiver
	Sender        *transport.Sender
	Retransmitter *transport.Retransmitter
	Dedup         *DedupCache

	legacyMessages uint64
}

func NewGateway(options *GatewayOptions) (*Gateway, error) {
	g := &Gateway{
		Options: options,
		Dedup:   NewDedupCache(DEFAULT_DEDUP_WINDOW),
	}

	udp, err := NewUDPTransport(options.UDPListenPort.Value, options.TargetEndpoint.AuthorityString())
	if err != nil {
		return nil, err
	}
	g.UDP = udp

	g.Sender, err = transport.NewSender(udp, transport.SenderOptions{
		MaxChunkPayload: int(options.MaxChunkPayload.Value),
		ChannelCeiling:  int(options.ChannelCeiling.Value),
		RedundancyRatio: options.RedundancyRatio.Value,
	})
	if err != nil {
		udp.Close()
		return nil, err
	}

	g.Retransmitter, err = transport.NewRetransmitter(udp, options.RetransmitMode.Value)
	if err != nil {
		udp.Close()
		return nil, err
	}

	g.Receiver = transport.NewReceiver(transport.ReceiverOptions{
		ReassemblyTimeout: time.Duration(options.ReassemblyTimeout.Value) * time.Second,
		HardTimeout:       time.Duration(options.HardTimeout.Value) * time.Second,
		SweepPeriod:       time.Duration(options.SweepPeriodMs.Value) * time.Millisecond,
		MaxOpenEntries:    int(options.MaxOpenEntries.Value),
	}, g.deliver, g.Retransmitter.OnGap)

	g.Hub = NewWebsocketHub(g.submit)
	return g, nil
}

// onDatagram classifies one inbound datagram from the node: a chunk
// envelope, a retransmission request, or legacy JSON traffic.
func (g *Gateway) onDatagram(raw []byte) {
	switch proto.Magic(raw) {
	case proto.MAGIC_CHUNK:
		if err := g.Receiver.Ingest(raw); err != nil {
			log.Infof2("Dropped inbound chunk: %v", err)
		}
	case proto.MAGIC_REQUEST:
		if err := g.Sender.HandleRequest(raw); err != nil {
			log.Infof2("Dropped retransmission request: %v", err)
		}
	default:
		g.onLegacyDatagram(raw)
	}
}

// onLegacyDatagram keeps the original proxy behavior for unfragmented node
// traffic: strip toxic bytes, decode defensively, stamp, deduplicate and
// fan out.
func (g *Gateway) onLegacyDatagram(raw []byte) {
	text := SanitizeText(raw)
	message := &MeshMessage{}
	if err := json.Unmarshal([]byte(text), message); err != nil || message.Msg == "" {
		log.Infof2("No msg object found in legacy datagram.")
		return
	}
	if g.Dedup.Duplicate(message.MsgID) {
		log.Infof2("Duplicate legacy message %v suppressed.", message.MsgID)
		return
	}
	message.Timestamp = time.Now().UnixNano() / int64(time.Millisecond)
	atomic.AddUint64(&g.legacyMessages, 1)
	g.Hub.Broadcast(message)
}

// deliver broadcasts one reassembled message to the browser clients.
func (g *Gateway) deliver(dm *transport.DeliveredMessage) {
	message := &MeshMessage{}
	if err := json.Unmarshal(dm.Raw, message); err != nil || message.Msg == "" {
		// Fragmented payloads are not required to be JSON.
		message = &MeshMessage{Msg: string(dm.Raw)}
	}
	if message.MsgID == "" {
		message.MsgID = fmt.Sprintf("%08X", dm.ID)
	}
	if g.Dedup.Duplicate(message.MsgID) {
		return
	}
	message.Timestamp = time.Now().UnixNano() / int64(time.Millisecond)
	log.Infof1("Delivered message %v from %v.", message.MsgID, message.Src)
	g.Hub.Broadcast(message)
}

// submit puts one browser-side message on the air through the
// fragmentation pipeline and echoes it back to the clients.
func (g *Gateway) submit(dst, msg string) {
	message := &MeshMessage{
		Src:       g.Options.Callsign.Value,
		SrcType:   "gateway",
		Dst:       dst,
		Msg:       msg,
		MsgID:     newMsgIDString(),
		Timestamp: time.Now().UnixNano() / int64(time.Millisecond),
	}
	raw, err := json.Marshal(message)
	if err != nil {
		log.Errorf("Submission marshal failure: %v", err)
		return
	}
	if err = g.Sender.Send(transport.NewMessageID(), raw); err != nil {
		log.Warnf("Submission not transmitted: %v", err)
		return
	}
	g.Dedup.Duplicate(message.MsgID)
	g.Hub.Broadcast(message)
}

func (g *Gateway) LegacyCount() uint64 {
	return atomic.LoadUint64(&g.legacyMessages)
}

func newMsgIDString() string {
	u := guuid.NewV4()
	return u.String()
}

func LogConfigure(options *GatewayOptions) {
	log.Infof0("-config=%v", options.ExternalConfig.String())
	log.Infof0("-log-level=%v", options.LogLevel.String())
	log.Infof0("-endpoint=%v", options.APIEndpoint.String())
	log.Infof0("-udp-listen=%v", options.UDPListenPort.String())
	log.Infof0("-target=%v", options.TargetEndpoint.String())
	log.Infof0("-callsign=%v", options.Callsign.String())
	log.Infof0("-chunk-payload=%v", options.MaxChunkPayload.String())
	log.Infof0("-channel-ceiling=%v", options.ChannelCeiling.String())
	log.Infof0("-redundancy-ratio=%v", options.RedundancyRatio.String())
	log.Infof0("-reassembly-timeout=%v", options.ReassemblyTimeout.String())
	log.Infof0("-retransmit-mode=%v", options.RetransmitMode.String())
}

func Main() {
	fmt.Println("Fragmentation/FEC gateway for mesh radio chat.")
	options, err := configureParse()
	if options == nil {
		log.Fatalf("%v", err.Error())
		return
	}

	log.Infof0("Mesh gateway start.")
	LogConfigure(options)

	log.Infof0("Log Level is %v.", options.LogLevel.Value)
	log.SetGlobalLogLevel(options.LogLevel.Value)

	gateway, err := NewGateway(options)
	if err != nil {
		log.Fatalf("Gateway initialization failure: %v", err.Error())
		return
	}

	gateway.Receiver.GoSweep()
	gateway.UDP.GoListen(gateway.onDatagram)

	log.Infof0("API and websocket serve at %v.", options.APIEndpoint.AuthorityString())
	api_server := &http.Server{
		Addr: options.APIEndpoint.AuthorityString(),
		Handler: log.TagLogHandler(gateway.newRouter(), map[string]interface{}{
			"entity": "http-api",
		}),
	}
	go func() {
		if serr := api_server.ListenAndServe(); serr != nil && serr != http.ErrServerClosed {
			log.Fatalf("Failed to serve API: %s", serr.Error())
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Infof0("Mesh gateway shutting down.")
	api_server.Close()
	gateway.Receiver.Close()
	gateway.UDP.Close()
}
