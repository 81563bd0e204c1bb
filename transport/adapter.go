// Package transport implements the fragmentation/FEC message transport:
// outbound messages are segmented, FEC-expanded and framed into chunks small
// enough for the mesh channel; inbound chunks are collected per message
// until the coded block reaches its reconstruction threshold.
package transport

// Adapter is the only primitive the surrounding system must provide: a
// single best-effort transmission of one framed chunk, no acknowledgment,
// ordering or retry guarantee. Inbound delivery happens by handing received
// datagrams to Receiver.Ingest.
type Adapter interface {
	Send(raw []byte) error
}

// AdapterFunc adapts a plain function to the Adapter interface.
type AdapterFunc func(raw []byte) error

func (f AdapterFunc) Send(raw []byte) error {
	return f(raw)
}
