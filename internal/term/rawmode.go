// Package term puts the controlling terminal into raw/cbreak mode for the
// duration of the session and restores it on every exit path (spec §4.L).
package term

import (
	"os"

	"golang.org/x/term"
)

// Controller owns the saved termios state needed to restore the terminal.
type Controller struct {
	fd       int
	oldState *term.State
}

// Enable switches fd (normally os.Stdin.Fd()) to raw mode if it's a
// terminal. If it isn't (e.g. stdin redirected from a file in tests), it
// is a no-op and Restore will also be a no-op.
func Enable(fd uintptr) (*Controller, error) {
	c := &Controller{fd: int(fd)}
	if !term.IsTerminal(c.fd) {
		return c, nil
	}
	st, err := term.MakeRaw(c.fd)
	if err != nil {
		return nil, err
	}
	c.oldState = st
	return c, nil
}

// Restore puts the terminal back the way Enable found it. Safe to call
// more than once and safe to call when Enable was a no-op.
func (c *Controller) Restore() {
	if c == nil || c.oldState == nil {
		return
	}
	_ = term.Restore(c.fd, c.oldState)
	c.oldState = nil
}

// StdinIsTerminal reports whether os.Stdin is attached to a terminal.
func StdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
