package proto

// The mesh firmware mangles frames carrying control characters or raw 8-bit
// values, so every byte handed to the channel must stay inside the printable
// ASCII window. Binary content (FEC parity) is base64-armored by the framer.
const (
	SAFE_BYTE_MIN = byte(0x20)
	SAFE_BYTE_MAX = byte(0x7E)
)

// SafeByte reports whether a single byte may cross the channel untouched.
func SafeByte(b byte) bool {
	return b >= SAFE_BYTE_MIN && b <= SAFE_BYTE_MAX
}

// SafeBytes reports whether every byte of raw may cross the channel.
func SafeBytes(raw []byte) bool {
	for _, b := range raw {
		if !SafeByte(b) {
			return false
		}
	}
	return true
}
