// Command oicb is a terminal client for the ICB chat protocol (spec §1).
// Bootstrap responsibilities (spec §4.J): parse configuration, dial the
// server and hand the event loop a raw non-blocking socket, put the
// terminal into raw mode, install signal handlers that only ever flip an
// atomic flag, run the loop, and restore the terminal on every exit path.
package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"code.hybscloud.com/oicb/internal/config"
	"code.hybscloud.com/oicb/internal/editor"
	"code.hybscloud.com/oicb/internal/history"
	"code.hybscloud.com/oicb/internal/logging"
	"code.hybscloud.com/oicb/internal/loop"
	"code.hybscloud.com/oicb/internal/term"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code (spec §6): 0 clean shutdown, 1 usage
// or local-resource error, 2 network/protocol error.
func run() int {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, config.ErrUsage) {
			return 1
		}
		fmt.Fprintln(os.Stderr, "oicb:", err)
		return 1
	}

	log := logging.New(cfg.DebugLevel)

	rawTerm, err := term.Enable(os.Stdin.Fd())
	if err != nil {
		log.Error("fatal", "component", "terminal", "err", err)
		return 1
	}
	defer rawTerm.Restore()

	sockFd, err := dial(cfg.Host, cfg.Port)
	if err != nil {
		log.Error("fatal", "component", "dial", "err", err)
		return 2
	}
	defer unix.Close(sockFd)

	bridge := editor.NewBridge(cfg.Nick + "> ")
	defer bridge.Close()

	hw := history.NewWriter(cfg.Home, cfg.Host, cfg.HistoryDisabled)

	l := loop.New(cfg, log, sockFd, bridge, hw)

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, infoSignal)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				if sig == infoSignal {
					l.RequestInfo()
				} else {
					l.RequestExit()
				}
			case <-done:
				return
			}
		}
	}()

	if err := l.Run(); err != nil {
		log.Error("fatal", "component", "loop", "err", err)
		return 2
	}
	return 0
}

// dial connects to host:port and returns a raw, non-blocking socket
// descriptor the event loop owns directly — the multiplexer in package
// loop polls and reads/writes the fd itself rather than through net.Conn's
// buffering (spec §4.A: "all target fds are set non-blocking").
func dial(host string, port int) (int, error) {
	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return -1, err
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return -1, errors.New("dial: unexpected connection type")
	}

	f, err := tcpConn.File()
	conn.Close()
	if err != nil {
		return -1, err
	}
	fd := int(f.Fd())

	// File() hands back a duplicated, blocking descriptor; detach it from
	// f (whose finalizer would otherwise close it) and switch it to
	// non-blocking for the event loop's own unix.Read/unix.Write calls.
	newFd, err := unix.Dup(fd)
	f.Close()
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(newFd, true); err != nil {
		unix.Close(newFd)
		return -1, err
	}
	return newFd, nil
}
