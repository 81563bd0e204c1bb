package gateway

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Extra letters the node firmware is known to render besides printable
// ASCII.
const umlautWhitelist = "äöüÄÖÜßäàáâãåāéèêëėîïíīìôòóõōûùúūÀÁÂÃÅĀÉÈÊËĖÎÏÍĪÌÔÒÓÕŌÜÛÙÚŪśšŚŠÿçćčñń⁰"

// allowedRune decides whether a rune from the legacy JSON path may be kept.
// Mirrors the allow-list the node firmware tolerates: printable ASCII, a
// fixed set of European letters, emoji and common symbols/punctuation.
// Control characters, surrogates, noncharacters and private-use planes are
// dropped.
func allowedRune(r rune) bool {
	if strings.ContainsRune(umlautWhitelist, r) {
		return true
	}
	if r >= 0x20 && r <= 0x7E {
		return true
	}
	// Emoji variation selector, needed for full-color rendering.
	if r == 0xFE0F {
		return true
	}
	if r >= 0xD800 && r <= 0xDFFF {
		return false
	}
	if r&0xFFFF == 0xFFFE || r&0xFFFF == 0xFFFF {
		return false
	}
	if (r >= 0xE000 && r <= 0xF8FF) || (r >= 0xF0000 && r <= 0xFFFFD) || (r >= 0x100000 && r <= 0x10FFFD) {
		return false
	}
	return unicode.Is(unicode.S, r) || unicode.Is(unicode.P, r)
}

// SanitizeText strips invalid UTF-8 and disallowed runes from a toxic byte
// stream. Non-conformant input is filtered, never repaired beyond dropping
// the offending runes.
func SanitizeText(raw []byte) string {
	var sb strings.Builder
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		raw = raw[size:]
		if r == utf8.RuneError && size == 1 {
			continue
		}
		if allowedRune(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
