// Package dispatch routes the sub-typed body of an inbound ICB command
// result ('i'-type message) to its dedicated renderer (spec §4.E).
package dispatch

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	"code.hybscloud.com/oicb/internal/format"
)

// ErrUnsupportedSubType is fatal per spec §4.E: "Any other sub-type is
// fatal".
var ErrUnsupportedSubType = errors.New("dispatch: unsupported output type")

const fieldSep = 0x01

// Dispatcher renders command-result sub-messages. lastHasNL is shared
// mutable state across co/ec handling: one flag serves whichever command's
// output is being rendered. The session does not stop a second command
// from being sent before the first one's 'ec' arrives; the flag then
// reflects the most recent 'co' line, whichever command produced it.
type Dispatcher struct {
	lastHasNL bool
	room      string
}

// NewDispatcher returns a Dispatcher that renders 'wg' rows relative to
// currentRoom (the marker column is '*' for the row matching it).
func NewDispatcher(currentRoom string) *Dispatcher {
	return &Dispatcher{room: currentRoom}
}

// SetRoom updates the room used to mark the current group in 'wg' rows.
func (d *Dispatcher) SetRoom(room string) { d.room = room }

// Handle renders one 'i'-type payload. lines are ready to enqueue to
// stdout in order; endOfCommand reports whether this sub-message ('ec')
// ends the in-flight command, which the caller uses to drive the
// CommandSent -> Chat phase transition.
func (d *Dispatcher) Handle(payload []byte) (lines [][]byte, endOfCommand bool, err error) {
	parts := bytes.SplitN(payload, []byte{fieldSep}, 2)
	subType := string(parts[0])
	var body []byte
	if len(parts) > 1 {
		body = parts[1]
	}

	switch subType {
	case "co":
		d.lastHasNL = len(body) > 0 && body[len(body)-1] == '\n'
		line := append(format.VisibleEncode(trimNL(body)), '\n')
		return [][]byte{line}, false, nil
	case "ec":
		if !d.lastHasNL {
			return [][]byte{[]byte("\n")}, true, nil
		}
		return nil, true, nil
	case "wl":
		line, werr := d.renderUserListRow(body)
		if werr != nil {
			return nil, false, nil // malformed row: skipped, no warning is logged
		}
		return [][]byte{line}, false, nil
	case "wg":
		line, werr := d.renderGroupRow(body)
		if werr != nil {
			return nil, false, nil
		}
		return [][]byte{line}, false, nil
	case "wh", "gh", "ch", "c":
		return nil, false, nil
	default:
		return nil, false, ErrUnsupportedSubType
	}
}

func trimNL(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\n' {
		return b[:len(b)-1]
	}
	return b
}

// renderUserListRow renders one 'wl' row: moderator-flag, nick,
// idle-seconds, reserved-zero, signon-epoch, ident, source-address.
// Missing trailing fields are tolerated (spec §4.E).
func (d *Dispatcher) renderUserListRow(body []byte) ([]byte, error) {
	f := bytes.Split(body, []byte{fieldSep})
	get := func(i int) string {
		if i < len(f) {
			return string(f[i])
		}
		return ""
	}

	marker := byte(' ')
	if get(0) == "*" {
		marker = '*'
	}
	nick := get(1)
	idle := get(2)
	signon := get(4)
	ident := get(5)
	// The original client mistakenly re-scans ident (rather than the
	// source-address field itself) for a stray field separator; this
	// implementation scans the field it actually belongs to (spec §9,
	// Open Question).
	src := get(6)

	ctime := ""
	if secs, perr := strconv.ParseInt(signon, 10, 64); perr == nil {
		ctime = time.Unix(secs, 0).Local().Format("Mon Jan  2 15:04:05 2006")
	}

	var b bytes.Buffer
	b.WriteByte(marker)
	fmt.Fprintf(&b, " %s %ss %s %s %s\n", nick, idle, ctime, ident, src)
	return b.Bytes(), nil
}

// renderGroupRow renders one 'wg' row: name, topic, optional msg-id. name
// is padded to >= 30 visible columns; the marker is '*' when name equals
// the current room.
func (d *Dispatcher) renderGroupRow(body []byte) ([]byte, error) {
	f := bytes.Split(body, []byte{fieldSep})
	if len(f) < 1 {
		return nil, errors.New("dispatch: malformed group row")
	}
	name := string(f[0])
	topic := ""
	if len(f) > 1 {
		topic = string(f[1])
	}

	marker := byte(' ')
	if name == d.room {
		marker = '*'
	}

	padded := name
	for len(padded) < 30 {
		padded += " "
	}

	var b bytes.Buffer
	b.WriteByte(marker)
	fmt.Fprintf(&b, " %s%s\n", padded, topic)
	return b.Bytes(), nil
}
