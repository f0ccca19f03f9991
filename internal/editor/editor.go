// Package editor bridges stdin key delivery and the terminal line-editing
// library (spec §4.I). The library itself — completed-line production,
// prompt redraw, one-character-at-a-time input — is an external
// collaborator; this package owns exactly the save/clear/restore dance
// required so asynchronous stdout writes never corrupt the in-progress
// input line.
package editor

import (
	"bytes"
	"strings"

	prompt "github.com/c-bata/go-prompt"
)

// Bridge owns one go-prompt Buffer and a console parser, which Close tears
// down. Raw stdin bytes are decoded into Key values by prompt.GetKey.
type Bridge struct {
	buf    *prompt.Buffer
	parser prompt.ConsoleParser
	label  string

	pending []byte // raw bytes accumulated since the last complete key
}

// snapshot is the saved visible-line state restored after a stdout drain.
// Invariant (spec §4.I): at most one snapshot is outstanding at a time.
type snapshot struct {
	text   string
	cursor int
	saved  bool
}

// NewBridge constructs a Bridge over stdin using go-prompt's standard
// posix console parser.
func NewBridge(promptLabel string) *Bridge {
	return &Bridge{
		buf:    prompt.NewBuffer(),
		parser: prompt.NewStandardInputParser(),
		label:  promptLabel,
	}
}

// Close tears down the underlying console parser.
func (b *Bridge) Close() error { return b.parser.TearDown() }

// Result is what FeedByte returns once it recognizes a complete action.
type Result struct {
	Line      string // a completed input line, valid when Submitted
	Submitted bool
	WantInfo  bool // Ctrl-T was pressed (spec §4.M, §6 Signals)
}

// FeedByte delivers one raw byte read from stdin to the editor. The event
// loop calls this once per readable stdin byte (spec §4.H): "if stdin
// readable, deliver one char to the editor."
func (b *Bridge) FeedByte(c byte) Result {
	b.pending = append(b.pending, c)
	key := prompt.GetKey(b.pending)
	if key == prompt.NotDefined && len(b.pending) < 4 {
		// Might be the prefix of a multi-byte escape sequence; wait for
		// more bytes before giving up and treating it as literal input.
		return Result{}
	}
	b.pending = b.pending[:0]

	switch key {
	case prompt.Enter, prompt.ControlJ, prompt.ControlM:
		line := b.buf.Text()
		b.buf = prompt.NewBuffer()
		return Result{Line: line, Submitted: true}
	case prompt.ControlT:
		return Result{WantInfo: true}
	case prompt.Backspace, prompt.ControlH:
		b.buf.DeleteBeforeCursor(1)
	case prompt.Left, prompt.ControlB:
		b.buf.CursorLeft(1)
	case prompt.Right, prompt.ControlF:
		b.buf.CursorRight(1)
	case prompt.ControlU:
		b.buf.SetText("")
	default:
		if r := keyRune(c); r != 0 {
			b.buf.InsertText(string(r), false, true)
		}
	}
	return Result{}
}

func keyRune(c byte) rune {
	if c >= 0x20 && c < 0x7f {
		return rune(c)
	}
	return 0
}

// Snapshot records the buffer's current text around an asynchronous stdout
// write. Its cursor field holds the length of that text in runes; the
// buffer's actual cursor position is not recorded.
func (b *Bridge) Snapshot() snapshot {
	return snapshot{text: b.buf.Text(), cursor: len([]rune(b.buf.Text())), saved: true}
}

// Blank clears the visible line: carriage-return, overwrite the prompt
// label and the buffer's current text with spaces, carriage-return again.
func (b *Bridge) Blank(write func([]byte)) {
	width := len(b.label) + len(b.buf.Text()) + 1
	var out bytes.Buffer
	out.WriteByte('\r')
	out.WriteString(strings.Repeat(" ", width))
	out.WriteByte('\r')
	write(out.Bytes())
}

// Restore redraws the prompt and the buffer's current text if s was saved.
// The text and cursor held in s are not used, and the terminal cursor is
// left at the end of the redrawn line. Restoration never races a
// concurrent edit (there is none — the event loop is single-threaded).
func (b *Bridge) Restore(s snapshot, write func([]byte)) {
	if !s.saved {
		return
	}
	var out bytes.Buffer
	out.WriteString(b.label)
	out.WriteString(b.buf.Text())
	write(out.Bytes())
}
