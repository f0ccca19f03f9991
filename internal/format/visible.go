// Package format renders inbound ICB chat traffic and server command output
// into timestamped, escape-safe terminal lines (spec §4.D, §4.E).
package format

import "fmt"

// VisibleEncode escapes control and non-printable bytes in src so the
// result is always safe to write directly to a terminal, preserving a
// literal backslash as a visible character rather than treating it as an
// escape introducer. Sizing allocates 4x len(src) as an upper bound, since
// the worst case ("\xNN") quadruples a single byte.
func VisibleEncode(src []byte) []byte {
	out := make([]byte, 0, len(src)*4)
	for _, b := range src {
		switch {
		case b == '\\':
			out = append(out, '\\', '\\')
		case b >= 0x20 && b < 0x7f:
			out = append(out, b)
		case b == '\n' || b == '\t':
			out = append(out, b)
		default:
			out = append(out, []byte(fmt.Sprintf("\\x%02x", b))...)
		}
	}
	return out
}
