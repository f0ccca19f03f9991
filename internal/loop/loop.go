// Package loop implements the single-threaded, readiness-driven event
// loop that ties every other component together (spec §4.H, §5).
package loop

import (
	"errors"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"

	"code.hybscloud.com/oicb/internal/config"
	"code.hybscloud.com/oicb/internal/dispatch"
	"code.hybscloud.com/oicb/internal/editor"
	"code.hybscloud.com/oicb/internal/format"
	"code.hybscloud.com/oicb/internal/history"
	"code.hybscloud.com/oicb/internal/icb"
	"code.hybscloud.com/oicb/internal/session"
	"code.hybscloud.com/oicb/internal/status"
)

// fdReadWriter adapts a bare non-blocking fd to io.Writer/io.Reader so it
// composes with icb.Queue.Drain without pulling in net.Conn's buffering.
type fdReadWriter struct{ fd int }

func (f fdReadWriter) Write(p []byte) (int, error) { return unix.Write(f.fd, p) }
func (f fdReadWriter) Read(p []byte) (int, error)  { return unix.Read(f.fd, p) }

// Loop owns every queue, buffer, and registry in the client (spec §3
// "Ownership"). No concurrent mutators exist; want_exit/want_info are the
// only asynchronous inputs, and they're read at the top of every
// iteration.
type Loop struct {
	cfg    config.Config
	log    hclog.Logger
	start  time.Time

	sockFd int
	sock   fdReadWriter

	sess      *session.Session
	keepAlive session.KeepAlive
	decoder   *icb.Decoder
	dispatch  *dispatch.Dispatcher
	history   *history.Writer

	stdoutQ icb.Queue
	socketQ icb.Queue

	bridge *editor.Bridge

	wantExit int32
	wantInfo int32
}

// New constructs a Loop ready to Run once the socket fd is connected and
// non-blocking. sockFd is the raw, already-non-blocking socket descriptor
// (spec §1: dialing is an external collaborator; Bootstrap owns it).
func New(cfg config.Config, log hclog.Logger, sockFd int, bridge *editor.Bridge, hw *history.Writer) *Loop {
	room := cfg.Room
	return &Loop{
		cfg:      cfg,
		log:      log,
		start:    time.Now(),
		sockFd:   sockFd,
		sock:     fdReadWriter{fd: sockFd},
		sess:     session.NewSession(cfg.Nick, cfg.Host, room),
		keepAlive: session.KeepAlive{NetTimeout: time.Duration(cfg.NetTimeoutSecs) * time.Second},
		decoder:  icb.NewDecoder(),
		dispatch: dispatch.NewDispatcher(room),
		history:  hw,
		bridge:   bridge,
	}
}

// RequestExit and RequestInfo are called from the signal-handling
// goroutine installed by Bootstrap; they only ever store an atomic flag,
// matching spec §5's "signal handlers may only set volatile flags".
func (l *Loop) RequestExit()  { atomic.StoreInt32(&l.wantExit, 1) }
func (l *Loop) RequestInfo()  { atomic.StoreInt32(&l.wantInfo, 1) }

var errFatal = errors.New("loop: fatal")

// fatal logs err with the failing component's label as a structured error
// record (spec §7) and returns err unchanged.
func (l *Loop) fatal(component string, err error) error {
	l.log.Error("fatal", "component", component, "err", err)
	return err
}

// Run drives the loop until a fatal error, a clean shutdown ('g' message,
// or want_exit), or a keep-alive timeout. Its return value is nil only on
// the clean-shutdown path (spec §6 exit code 0).
func (l *Loop) Run() error {
	for {
		if atomic.LoadInt32(&l.wantExit) != 0 {
			return nil
		}
		if atomic.LoadInt32(&l.wantInfo) != 0 {
			atomic.StoreInt32(&l.wantInfo, 0)
			l.renderStatus()
		}

		if err := l.socketQ.Drain(l.sock); err != nil {
			return l.fatal("socket", err)
		}

		if err := l.tickKeepAlive(); err != nil {
			if errors.Is(err, session.ErrServerTimedOut) {
				l.log.Warn(err.Error())
				return err
			}
			return l.fatal("keepalive", err)
		}

		timeoutMillis := -1
		if l.cfg.NetTimeoutSecs > 0 {
			timeoutMillis = l.cfg.NetTimeoutSecs * 100
		}

		fds := l.buildPollset()
		n, err := unix.Poll(fds, timeoutMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return l.fatal("poll", err)
		}
		if n == 0 {
			l.history.DrainAll()
			continue
		}

		if err := l.handleReadiness(fds); err != nil {
			return l.fatal("dispatch", err)
		}

		l.history.DrainAll()
	}
}

const (
	stdinIdx = iota
	stdoutIdx
	socketIdx
	numFds
)

func (l *Loop) buildPollset() []unix.PollFd {
	fds := make([]unix.PollFd, numFds)
	fds[stdinIdx] = unix.PollFd{Fd: int32(os.Stdin.Fd()), Events: unix.POLLIN}
	fds[stdoutIdx] = unix.PollFd{Fd: int32(os.Stdout.Fd())}
	if !l.stdoutQ.Empty() {
		fds[stdoutIdx].Events |= unix.POLLOUT
	}
	fds[socketIdx] = unix.PollFd{Fd: int32(l.sockFd), Events: unix.POLLIN}
	if !l.socketQ.Empty() || l.sess.Phase == session.Connecting {
		fds[socketIdx].Events |= unix.POLLOUT
	}
	return fds
}

func readinessError(fd unix.PollFd) bool {
	return fd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0
}

func (l *Loop) handleReadiness(fds []unix.PollFd) error {
	if readinessError(fds[stdinIdx]) {
		return errors.New("stdin readiness error")
	}
	if readinessError(fds[stdoutIdx]) {
		return errors.New("stdout readiness error")
	}
	if readinessError(fds[socketIdx]) {
		return errors.New("socket readiness error")
	}

	if l.sess.Phase == session.Connecting && fds[socketIdx].Revents&unix.POLLOUT != 0 {
		l.sess.OnSocketWritable()
	}

	if fds[stdoutIdx].Revents&unix.POLLOUT != 0 {
		if err := l.stdoutQ.Drain(fdReadWriter{fd: int(os.Stdout.Fd())}); err != nil {
			return err
		}
	}

	if fds[stdinIdx].Revents&unix.POLLIN != 0 {
		var b [1]byte
		n, err := unix.Read(int(os.Stdin.Fd()), b[:])
		if err == nil && n == 1 {
			l.handleKey(b[0])
		}
	}

	if fds[socketIdx].Revents&unix.POLLIN != 0 {
		if err := l.readSocket(); err != nil {
			return err
		}
	}

	return nil
}

func (l *Loop) readSocket() error {
	var buf [4096]byte
	n, err := unix.Read(l.sockFd, buf[:])
	if err != nil {
		if err == unix.EAGAIN {
			return nil
		}
		return err
	}
	if n == 0 {
		return errors.New("socket: peer closed connection")
	}
	l.sess.Touch(time.Now())
	if err := l.decoder.Feed(buf[:n]); err != nil {
		return err
	}
	for {
		msg, ok, derr := l.decoder.Next()
		if derr != nil {
			return derr
		}
		if !ok {
			return nil
		}
		if err := l.dispatchInbound(msg); err != nil {
			return err
		}
	}
}

func (l *Loop) handleKey(c byte) {
	snap := l.bridge.Snapshot()
	res := l.bridge.FeedByte(c)
	if res.WantInfo {
		l.RequestInfo()
		return
	}
	if !res.Submitted {
		return
	}

	l.bridge.Blank(func(b []byte) { l.enqueueStdout(b) })
	l.submitLine(res.Line)
	_ = snap // snapshot is only needed around stdout writes triggered by
	         // inbound traffic (see enqueueFormatted); a submitted line's
	         // own echo is handled by the editor library itself.
}

func (l *Loop) submitLine(line string) {
	if len(line) == 0 {
		return
	}
	if line[0] != '/' {
		l.sendChat(line)
		return
	}

	l.sess.OnCommandIssued()
	name, rest, ok := splitCommand(line[1:])

	if name == "m" {
		nick, msg, _ := splitCommand(rest)
		l.sendPrivate(nick, msg)
		_ = l.history.Append(history.KindPrivate, l.sess.Room, "me", nick+"\x01"+msg)
		return
	}
	l.sendCommand(name, rest, ok)
}

// splitCommand splits on the first space only: "bob hi there" becomes
// ("bob", "hi there", true). Used both to split "/name args" and, for the
// "m" sub-command, to further split its args into "nick message".
func splitCommand(cmd string) (name, rest string, ok bool) {
	for i := 0; i < len(cmd); i++ {
		if cmd[i] == ' ' {
			return cmd[:i], cmd[i+1:], true
		}
	}
	return cmd, "", cmd != ""
}

func (l *Loop) sendChat(text string) {
	l.enqueueOutbound('b', []byte(text))
}

// sendCommand turns "name args..." into the ICB command payload
// "name\x01args..." — only the separator between the command name and
// its argument string is a field separator; spaces within args are left
// alone (spec §4.F: "a line beginning with / becomes an h-type message
// (command\x01args…)").
func (l *Loop) sendCommand(name, rest string, hasRest bool) {
	payload := []byte(name)
	if hasRest {
		payload = append(payload, icb.FieldSep)
		payload = append(payload, rest...)
	}
	l.enqueueOutbound('h', payload)
}

// sendPrivate builds the "m\x01nick\x01message" payload the wire format
// requires for a private message, splitting the command's own args on
// their first space (spec §8 scenario 5: "/m bob hi" -> "m\x01bob\x01hi").
func (l *Loop) sendPrivate(nick, msg string) {
	payload := []byte("m")
	payload = append(payload, icb.FieldSep)
	payload = append(payload, nick...)
	payload = append(payload, icb.FieldSep)
	payload = append(payload, msg...)
	l.enqueueOutbound('h', payload)
}

func (l *Loop) enqueueOutbound(msgType byte, payload []byte) {
	var packets [][]byte
	var err error
	if l.sess.HasFeature(session.FeatureExtended) {
		packets, err = icb.EncodeExtended(msgType, payload)
	} else {
		packets, err = icb.EncodeLegacy(l.sess.Nick, msgType, payload)
	}
	if err != nil {
		l.log.Warn("encode outbound failed", "type", string(msgType), "err", err)
		return
	}
	for _, p := range packets {
		l.socketQ.Enqueue(p, nil)
	}
}

func (l *Loop) enqueueStdout(b []byte) {
	l.stdoutQ.Enqueue(b, nil)
}

// enqueueFormatted brackets a formatted-output enqueue with the
// line-editor save/blank/restore dance (spec §4.I).
func (l *Loop) enqueueFormatted(b []byte) {
	snap := l.bridge.Snapshot()
	l.bridge.Blank(func(bb []byte) { l.enqueueStdout(bb) })
	l.enqueueStdout(b)
	l.bridge.Restore(snap, func(bb []byte) { l.enqueueStdout(bb) })
}

func (l *Loop) dispatchInbound(msg icb.Message) error {
	if !l.sess.Permitted(msg.Type) {
		return session.ErrUnexpectedMessage
	}

	switch msg.Type {
	case 'j':
		f := msg.Fields()
		if len(f) < 1 {
			return errors.New("icb: missing protocol_version field")
		}
		if err := l.sess.OnGreeting(string(f[0])); err != nil {
			return err
		}
		l.enqueueOutbound('a', l.sess.LoginPacket())
		return nil
	case 'a':
		l.sess.OnLoginAck()
		return nil
	case 'g':
		l.RequestExit()
		return nil
	case 'l':
		l.enqueueOutbound('m', msg.Payload)
		return nil
	case 'e':
		if string(msg.Payload) == "Undefined message type 108" {
			l.sess.ClearPingFeature()
			return nil
		}
		l.enqueueFormatted(format.Chat(time.Now(), 'e', []byte(""), msg.Payload))
		return nil
	case 'i':
		lines, end, err := l.dispatch.Handle(msg.Payload)
		if err != nil {
			return err
		}
		for _, ln := range lines {
			l.enqueueFormatted(ln)
		}
		if end {
			l.sess.OnCommandEnd()
		}
		return nil
	case 'b', 'c', 'd', 'f', 'k':
		l.sess.OnChatArrival()
		f := msg.Fields()
		var author, text []byte
		if len(f) >= 1 {
			author = f[0]
		}
		if len(f) >= 2 {
			text = f[1]
		} else if msg.Type != 'k' {
			// A beep ('k') carries only the beeper's nickname; every
			// other chat-like type requires an author/text pair.
			return errors.New("icb: chat message missing author/text field")
		}
		l.enqueueFormatted(format.Chat(time.Now(), msg.Type, author, text))
		kind := history.KindRoom
		who := string(author)
		if msg.Type == 'c' {
			kind = history.KindPrivate
		}
		_ = l.history.Append(kind, l.sess.Room, who, string(text))
		return nil
	default:
		l.enqueueFormatted(format.Unsupported(msg.Type))
		return nil
	}
}

func (l *Loop) tickKeepAlive() error {
	action, err := l.keepAlive.Tick(l.sess, time.Now())
	if err != nil {
		return err
	}
	switch action {
	case session.ActionSendPing:
		l.enqueueOutbound('l', []byte{0})
	case session.ActionSendNoop:
		l.enqueueOutbound('n', []byte{0})
	}
	return nil
}

func (l *Loop) renderStatus() {
	info := status.Info{
		Started:          l.start,
		Room:             l.sess.Room,
		Nick:             l.sess.Nick,
		PingsOutstanding: l.sess.PingsOutstanding,
		StdoutPending:    l.stdoutQ.Len(),
		SocketPending:    l.socketQ.Len(),
		HistoryPending:   l.history.PendingCount(),
	}
	l.enqueueFormatted(status.Render(time.Now(), info))
}

var _ io.Writer = fdReadWriter{}
