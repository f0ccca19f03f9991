package icb

import (
	"io"
	"syscall"
)

// Task is one pending output buffer. BytesDone tracks how much of Bytes has
// already been written; 0 <= BytesDone <= len(Bytes). When they're equal the
// task is complete. Done, if set, runs exactly once after the task's last
// byte is written.
type Task struct {
	Bytes     []byte
	BytesDone int
	Done      func()
}

func (t *Task) complete() bool { return t.BytesDone >= len(t.Bytes) }

// Queue is a FIFO of pending Tasks for one output stream (stdout, the
// socket, or a single history file). Only the head task may be partially
// written; tasks complete and are freed strictly in enqueue order.
type Queue struct {
	tasks []*Task
}

// Enqueue appends a new task. done may be nil.
func (q *Queue) Enqueue(b []byte, done func()) {
	if len(b) == 0 && done == nil {
		return
	}
	q.tasks = append(q.tasks, &Task{Bytes: b, Done: done})
}

// Empty reports whether the queue has no pending tasks — used by the event
// loop to decide whether a stream's fd belongs in the writable pollset.
func (q *Queue) Empty() bool { return len(q.tasks) == 0 }

// Len reports the number of pending tasks, for status reporting.
func (q *Queue) Len() int { return len(q.tasks) }

// Drain writes from the head task's unwritten suffix to fd, task after
// task, until the queue is empty, a write would block or comes up short,
// or a hard error occurs. It never blocks: fd must already be non-blocking.
//
// On EAGAIN/EWOULDBLOCK it returns (nil) having made whatever partial
// progress it could — the caller should requeue its readiness interest and
// retry on the next loop iteration. Any other write error is returned
// unchanged so callers can apply their own fatal/non-fatal policy (sockets
// and stdout are fatal on write failure; history files latch a permanent
// error instead, per spec §4.A/§4.C).
func (q *Queue) Drain(w io.Writer) error {
	for len(q.tasks) > 0 {
		t := q.tasks[0]
		n, err := w.Write(t.Bytes[t.BytesDone:])
		if n > 0 {
			t.BytesDone += n
		}
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				return nil
			}
			return err
		}
		if !t.complete() {
			// Short write with no error: treat like would-block and retry
			// next iteration rather than spin.
			return nil
		}
		q.tasks = q.tasks[1:]
		if t.Done != nil {
			t.Done()
		}
	}
	return nil
}

// Drop discards all pending tasks without running their callbacks. Used
// when a stream latches a permanent error (history files) or the loop is
// shutting down (spec §5: pending stdout/history tasks may be dropped on
// want_exit).
func (q *Queue) Drop() {
	q.tasks = nil
}
