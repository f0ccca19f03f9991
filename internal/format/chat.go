package format

import (
	"bytes"
	"time"
)

type delims struct{ pre, post string }

// chatDelims maps each chat-like inbound message type to the delimiter
// pair bracketing its author (spec §4.D table).
var chatDelims = map[byte]delims{
	'b': {" <", "> "},
	'c': {" *", "* "},
	'd': {" [=", "=] "},
	'e': {" !", "! "},
	'k': {" !", "! "},
	'f': {" {", "} "},
}

// IsChatType reports whether t is one of the chat-like inbound types that
// Chat can render.
func IsChatType(t byte) bool {
	_, ok := chatDelims[t]
	return ok
}

// Chat renders one inbound chat-like message as
// "[HH:MM:SS]" + pre + author + post + text + "\n", with author and text
// escape-encoded via VisibleEncode. now is the local wall-clock time to
// stamp the line with.
func Chat(now time.Time, msgType byte, author, text []byte) []byte {
	d, ok := chatDelims[msgType]
	if !ok {
		return Unsupported(msgType)
	}
	var b bytes.Buffer
	b.WriteByte('[')
	b.WriteString(now.Format("15:04:05"))
	b.WriteByte(']')
	b.WriteString(d.pre)
	b.Write(VisibleEncode(author))
	b.WriteString(d.post)
	b.Write(VisibleEncode(text))
	b.WriteByte('\n')
	return b.Bytes()
}

// Unsupported renders the spec §7-tier-1 fallback line for an inbound
// message of a type this client does not otherwise handle.
func Unsupported(msgType byte) []byte {
	return []byte("unsupported message of type '" + string(rune(msgType)) + "'\n")
}
