// Package status renders the one-line SIGINFO/Ctrl-T summary (spec §4.M).
package status

import (
	"fmt"
	"time"
)

// Info is the snapshot of loop state the renderer needs.
type Info struct {
	Started          time.Time
	Room             string
	Nick             string
	PingsOutstanding int
	StdoutPending    int
	SocketPending    int
	HistoryPending   int
}

// Render produces the single status line, terminated by a newline, ready
// to enqueue through the same editor-save/restore bracketing as any other
// stdout output (spec §4.M).
func Render(now time.Time, i Info) []byte {
	up := now.Sub(i.Started).Truncate(time.Second)
	return []byte(fmt.Sprintf(
		"-- %s in %s, up %s, %d ping(s) outstanding, queues: stdout=%d socket=%d history=%d --\n",
		i.Nick, i.Room, up, i.PingsOutstanding, i.StdoutPending, i.SocketPending, i.HistoryPending,
	))
}
