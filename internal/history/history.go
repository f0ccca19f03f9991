// Package history implements the per-(server,room/peer) append-only chat
// transcript (spec §4.C). Entries are opened lazily, written
// non-blockingly through the same Queue/Task machinery as the socket and
// stdout streams, and pruned once idle.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"code.hybscloud.com/oicb/internal/icb"
)

// Kind distinguishes a room transcript from a private one.
type Kind byte

const (
	KindRoom    Kind = 'r'
	KindPrivate Kind = 'c'
)

// entry is one lazily-opened log file and its pending task queue.
type entry struct {
	path         string
	f            *os.File
	queue        icb.Queue
	lastActivity time.Time
	permaError   bool
}

// Writer owns the registry of history entries for one server. It is a
// no-op when Disabled, matching the -H CLI flag (spec §6).
type Writer struct {
	Disabled bool

	root    string // $HOME/.oicb/logs/<server>
	entries map[string]*entry
	now     func() time.Time
}

// NewWriter returns a Writer rooted at $HOME/.oicb/logs/<server>.
func NewWriter(home, server string, disabled bool) *Writer {
	return &Writer{
		Disabled: disabled,
		root:     filepath.Join(home, ".oicb", "logs", server),
		entries:  make(map[string]*entry),
		now:      time.Now,
	}
}

// Append enqueues one formatted transcript line for (kind, who). A room
// entry's file is named after the current room, a private entry's after
// who; the line itself always records who. A no-op when Disabled.
func (w *Writer) Append(kind Kind, room, who, text string) error {
	if w.Disabled {
		return nil
	}
	name := who
	if kind == KindRoom {
		name = room
	}
	prefix := "private-"
	if kind == KindRoom {
		prefix = "room-"
	}
	path := filepath.Join(w.root, prefix+name+".log")

	e, ok := w.entries[path]
	if !ok {
		e = &entry{path: path}
		w.entries[path] = e
	}
	if e.permaError {
		return nil
	}

	ts := w.now().Local().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("%s %s: %s\n", ts, who, text)
	e.queue.Enqueue([]byte(line), nil)
	return nil
}

// ensureOpen lazily opens the file (and creates parent directories) on
// first use. A failure latches permaError and drops the pending queue —
// it is never retried.
func (e *entry) ensureOpen() error {
	if e.f != nil || e.permaError {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(e.path), 0o777); err != nil {
		e.permaError = true
		e.queue.Drop()
		return err
	}
	f, err := os.OpenFile(e.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY|syscall.O_NONBLOCK, 0o666)
	if err != nil {
		e.permaError = true
		e.queue.Drop()
		return err
	}
	e.f = f
	return nil
}

// drainEntry drives one non-blocking write pass for e. A successful drain
// bumps lastActivity; on failure the entry latches permaError and its
// queue is dropped silently (spec §4.C, §7 tier 1).
//
// History files are regular files, not pipes or sockets: POSIX write(2)
// on a regular file does not return EAGAIN, so unlike stdout and the
// socket there is nothing to gain by gating this call on poll
// writability. The non-blocking open flag is kept for defense in depth
// (and fidelity to spec §4.A "all target fds are set non-blocking"), but
// the event loop simply attempts a drain every iteration.
func drainEntry(e *entry, now time.Time) {
	if e.permaError || e.queue.Empty() {
		return
	}
	if err := e.ensureOpen(); err != nil {
		return
	}
	if err := e.queue.Drain(e.f); err != nil {
		e.permaError = true
		e.queue.Drop()
		_ = e.f.Close()
		e.f = nil
		return
	}
	e.lastActivity = now
}

// Prune closes and forgets any entry whose queue is empty and whose last
// activity predates now — the idle-pruning rule (spec §4.C, §8).
func (w *Writer) Prune(now time.Time) {
	for path, e := range w.entries {
		if !e.queue.Empty() {
			continue
		}
		if e.lastActivity.IsZero() || !e.lastActivity.Before(now) {
			continue
		}
		if e.f != nil {
			_ = e.f.Close()
		}
		delete(w.entries, path)
	}
}

// DrainAll drives every entry with pending output, then prunes idle
// entries. Called once per event-loop iteration.
func (w *Writer) DrainAll() {
	if w.Disabled {
		return
	}
	now := w.now()
	for _, e := range w.entries {
		drainEntry(e, now)
	}
	w.Prune(now)
}

// PendingCount returns the number of entries with queued-but-unwritten
// tasks, for the status renderer (spec §4.M).
func (w *Writer) PendingCount() int {
	n := 0
	for _, e := range w.entries {
		if !e.queue.Empty() {
			n++
		}
	}
	return n
}
