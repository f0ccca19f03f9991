// Package config parses oicb's CLI surface (spec §6) into an immutable
// Config value consumed by the rest of the client.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// DefaultPort is the ICB server port used when none is given on the
// command line.
const DefaultPort = 7326

// DefaultNetTimeout is net_timeout in seconds when -t is not given.
const DefaultNetTimeout = 30

// Config is the immutable result of parsing argv (spec §3 "[ADD] Config").
type Config struct {
	Nick            string
	Host            string
	Port            int
	Room            string
	NetTimeoutSecs  int
	DebugLevel      int
	HistoryDisabled bool
	Home            string
}

// ErrUsage signals a usage error (spec §6: exit code 1).
var ErrUsage = errors.New("config: usage")

// Parse parses argv (excluding the program name) into a Config. HOME is
// read from the environment per spec §6; Parse returns an error (not
// ErrUsage) if it is unset.
func Parse(argv []string) (Config, error) {
	fs := pflag.NewFlagSet("oicb", pflag.ContinueOnError)
	debug := fs.CountP("debug", "d", "increase debug verbosity")
	noHistory := fs.BoolP("no-history", "H", false, "disable history logging")
	timeout := fs.IntP("timeout", "t", DefaultNetTimeout, "net_timeout seconds (0 disables)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: oicb [-dH] [-t secs] [nick@]host[:port] room\n")
	}
	if err := fs.Parse(argv); err != nil {
		return Config{}, ErrUsage
	}

	rest := fs.Args()
	if len(rest) != 2 {
		fs.Usage()
		return Config{}, ErrUsage
	}

	nick, host, port, err := parseTarget(rest[0])
	if err != nil {
		return Config{}, err
	}
	if nick == "" {
		nick = defaultNick()
	}

	home := os.Getenv("HOME")
	if home == "" {
		return Config{}, errors.New("config: HOME is required")
	}

	return Config{
		Nick:            nick,
		Host:            host,
		Port:            port,
		Room:            rest[1],
		NetTimeoutSecs:  *timeout,
		DebugLevel:      *debug,
		HistoryDisabled: *noHistory,
		Home:            home,
	}, nil
}

// parseTarget parses "[nick@]host[:port]". IPv6-literal addresses with an
// explicit port are an explicit known limitation (spec §1 Non-goals) and
// are not handled here.
func parseTarget(s string) (nick, host string, port int, err error) {
	if at := strings.IndexByte(s, '@'); at >= 0 {
		nick = s[:at]
		s = s[at+1:]
	}
	port = DefaultPort
	if c := strings.LastIndexByte(s, ':'); c >= 0 {
		host = s[:c]
		p, perr := strconv.Atoi(s[c+1:])
		if perr != nil {
			return "", "", 0, fmt.Errorf("%w: bad port %q", ErrUsage, s[c+1:])
		}
		port = p
		return nick, host, port, nil
	}
	host = s
	if host == "" {
		return "", "", 0, ErrUsage
	}
	return nick, host, port, nil
}

func defaultNick() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if n := os.Getenv("USER"); n != "" {
		return n
	}
	return "guest"
}
