package gateway

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/mcadvchat/meshtp/log"
)

// UDPTransport bridges the gateway to the mesh node firmware: datagrams out
// to the node's UDP port, datagrams in on a local listen port. It satisfies
// transport.Adapter on the send side.
type UDPTransport struct {
	listen *net.UDPConn
	target *net.UDPAddr

	running int32
}

func NewUDPTransport(listenPort uint, target string) (*UDPTransport, error) {
	targetAddr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("resolve mesh node endpoint: %w", err)
	}
	listen, err := net.ListenUDP("udp", &net.UDPAddr{Port: int(listenPort)})
	if err != nil {
		return nil, fmt.Errorf("bind udp listen port: %w", err)
	}
	return &UDPTransport{
		listen: listen,
		target: targetAddr,
	}, nil
}

// Send transmits one datagram to the mesh node, best-effort.
func (u *UDPTransport) Send(raw []byte) error {
	_, err := u.listen.WriteToUDP(raw, u.target)
	return err
}

// GoListen starts the receive loop. Every inbound datagram is handed to the
// callback as-is; classification happens at the gateway.
func (u *UDPTransport) GoListen(onDatagram func(raw []byte)) {
	if !atomic.CompareAndSwapInt32(&u.running, 0, 1) {
		log.Warn("UDP listener already running.")
		return
	}
	go func() {
		buf := make([]byte, 2048)
		for atomic.LoadInt32(&u.running) == 1 {
			size, _, err := u.listen.ReadFromUDP(buf)
			if err != nil {
				if atomic.LoadInt32(&u.running) == 1 {
					log.Errorf("UDP receive failure: %v", err)
				}
				return
			}
			raw := make([]byte, size)
			copy(raw, buf[:size])
			onDatagram(raw)
		}
	}()
}

func (u *UDPTransport) Close() {
	if atomic.CompareAndSwapInt32(&u.running, 1, 0) || atomic.LoadInt32(&u.running) == 0 {
		u.listen.Close()
	}
}
