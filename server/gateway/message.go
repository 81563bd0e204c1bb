package gateway

// MeshMessage is the JSON shape shared with the browser clients and the
// legacy node firmware: callsign source/destination, text payload, a
// deduplication identifier and a millisecond receive timestamp.
type MeshMessage struct {
	Src       string `json:"src,omitempty"`
	SrcType   string `json:"src_type,omitempty"`
	Dst       string `json:"dst,omitempty"`
	Msg       string `json:"msg"`
	MsgID     string `json:"msg_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}
