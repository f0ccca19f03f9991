package session

import (
	"errors"
	"time"
)

// MaxPings is the number of outstanding pings tolerated before the
// keep-alive controller gives up on the peer (spec §4.G).
const MaxPings = 3

// ErrServerTimedOut is the terminal condition of the keep-alive
// controller (spec §4.G, §7): "Server timed out, exiting".
var ErrServerTimedOut = errors.New("Server timed out, exiting")

// KeepAlive drives the periodic probe / timeout logic of spec §4.G. It
// holds only the configured timeout — all mutable state (pings
// outstanding, last inbound time) lives on the Session it's invoked with,
// since the controller itself is stateless between ticks.
type KeepAlive struct {
	// NetTimeout is the configured net_timeout as a duration; 0 disables
	// the controller entirely.
	NetTimeout time.Duration
}

// Action is what the event loop should do as a result of one Tick.
type Action int

const (
	ActionNone Action = iota
	ActionSendPing
	ActionSendNoop
)

// Tick evaluates the keep-alive rules against now and the session's last
// inbound time. A returned error is always ErrServerTimedOut and is fatal.
func (k *KeepAlive) Tick(s *Session, now time.Time) (Action, error) {
	if k.NetTimeout <= 0 {
		return ActionNone, nil
	}

	if s.LastInbound.IsZero() {
		s.LastInbound = now
	}

	threshold := k.NetTimeout * time.Duration(s.PingsOutstanding+1)
	if now.Sub(s.LastInbound) < threshold {
		return ActionNone, nil
	}

	// The send rule is evaluated before the terminate rule: at exactly
	// net_timeout*MaxPings elapsed, the MaxPings'th probe is still due and
	// must go out before the controller gives up (spec §4.G, §8 scenario 4).
	if s.PingsOutstanding >= MaxPings {
		return ActionNone, ErrServerTimedOut
	}

	if s.HasFeature(FeaturePing) {
		s.PingsOutstanding++
		return ActionSendPing, nil
	}
	// No ping support: send a no-op and immediately refresh, since 'n' has
	// no response to wait for (spec §4.G).
	s.LastInbound = now
	return ActionSendNoop, nil
}
