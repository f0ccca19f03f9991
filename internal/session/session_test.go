package session

import (
	"testing"
	"time"
)

func TestHandshakeHappyPath(t *testing.T) {
	s := NewSession("alice", "irc.example", "lobby")
	if s.Phase != Connecting {
		t.Fatalf("initial phase = %v, want Connecting", s.Phase)
	}

	s.OnSocketWritable()
	if s.Phase != Connected {
		t.Fatalf("phase after socket writable = %v, want Connected", s.Phase)
	}
	if !s.Permitted('j') {
		t.Fatalf("'j' must be permitted in Connected")
	}
	if s.Permitted('b') {
		t.Fatalf("'b' must not be permitted in Connected")
	}

	if err := s.OnGreeting("1"); err != nil {
		t.Fatalf("OnGreeting: %v", err)
	}
	if s.Phase != LoginSent {
		t.Fatalf("phase after greeting = %v, want LoginSent", s.Phase)
	}

	s.OnLoginAck()
	if s.Phase != Chat {
		t.Fatalf("phase after login ack = %v, want Chat", s.Phase)
	}
	if !s.Permitted('b') {
		t.Fatalf("'b' must be permitted in Chat")
	}
}

func TestOnGreetingRejectsUnsupportedVersion(t *testing.T) {
	s := NewSession("alice", "irc.example", "lobby")
	s.OnSocketWritable()
	if err := s.OnGreeting("2"); err != ErrUnsupportedVersion {
		t.Fatalf("err = %v, want ErrUnsupportedVersion", err)
	}
}

func TestCommandPhaseTransitions(t *testing.T) {
	s := NewSession("alice", "irc.example", "lobby")
	s.OnSocketWritable()
	_ = s.OnGreeting("1")
	s.OnLoginAck()

	s.OnCommandIssued()
	if s.Phase != CommandSent {
		t.Fatalf("phase = %v, want CommandSent", s.Phase)
	}
	if !s.Permitted('i') {
		t.Fatalf("'i' must be permitted in CommandSent")
	}

	// A chat message arriving mid-command reverts to Chat (spec §4.F table).
	s.OnChatArrival()
	if s.Phase != Chat {
		t.Fatalf("phase after chat arrival = %v, want Chat", s.Phase)
	}

	s.OnCommandIssued()
	s.OnCommandEnd()
	if s.Phase != Chat {
		t.Fatalf("phase after command end = %v, want Chat", s.Phase)
	}
}

func TestClearPingFeature(t *testing.T) {
	s := NewSession("alice", "irc.example", "lobby")
	if !s.HasFeature(FeaturePing) {
		t.Fatalf("FeaturePing should be assumed supported initially")
	}
	s.ClearPingFeature()
	if s.HasFeature(FeaturePing) {
		t.Fatalf("FeaturePing should be cleared")
	}
}

func TestKeepAliveDisabledWhenTimeoutIsZero(t *testing.T) {
	s := NewSession("alice", "irc.example", "lobby")
	k := KeepAlive{NetTimeout: 0}
	action, err := k.Tick(s, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if action != ActionNone {
		t.Fatalf("action = %v, want ActionNone", action)
	}
}

func TestKeepAliveSendsPingThenTimesOut(t *testing.T) {
	s := NewSession("alice", "irc.example", "lobby")
	k := KeepAlive{NetTimeout: 5 * time.Second}
	start := time.Now()
	s.LastInbound = start

	// One probe per net_timeout interval, up to MaxPings.
	for i := 1; i <= MaxPings; i++ {
		action, err := k.Tick(s, start.Add(time.Duration(i)*5*time.Second+time.Second))
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if action != ActionSendPing {
			t.Fatalf("tick %d: action = %v, want ActionSendPing", i, action)
		}
		if s.PingsOutstanding != i {
			t.Fatalf("tick %d: PingsOutstanding = %d, want %d", i, s.PingsOutstanding, i)
		}
	}

	// Once MaxPings probes are outstanding and still no reply, the
	// controller gives up.
	_, err := k.Tick(s, start.Add(time.Duration(MaxPings+1)*5*time.Second+time.Second))
	if err != ErrServerTimedOut {
		t.Fatalf("err = %v, want ErrServerTimedOut", err)
	}
}

func TestKeepAliveSendsFinalPingAtExactBoundary(t *testing.T) {
	// At exactly net_timeout*MaxPings elapsed, the MaxPings'th probe is
	// still due and must be sent before the controller terminates.
	s := NewSession("alice", "irc.example", "lobby")
	k := KeepAlive{NetTimeout: 5 * time.Second}
	start := time.Now()
	s.LastInbound = start
	s.PingsOutstanding = MaxPings - 1

	action, err := k.Tick(s, start.Add(time.Duration(MaxPings)*5*time.Second))
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if action != ActionSendPing {
		t.Fatalf("action = %v, want ActionSendPing at the exact boundary", action)
	}
	if s.PingsOutstanding != MaxPings {
		t.Fatalf("PingsOutstanding = %d, want %d", s.PingsOutstanding, MaxPings)
	}
}

func TestKeepAliveNoopWhenPingUnsupported(t *testing.T) {
	s := NewSession("alice", "irc.example", "lobby")
	s.ClearPingFeature()
	k := KeepAlive{NetTimeout: 10 * time.Second}
	start := time.Now()
	s.LastInbound = start

	action, err := k.Tick(s, start.Add(11*time.Second))
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if action != ActionSendNoop {
		t.Fatalf("action = %v, want ActionSendNoop", action)
	}
	if s.LastInbound.Before(start.Add(11 * time.Second)) {
		t.Fatalf("LastInbound should be refreshed on a no-op tick")
	}
}

func TestTouchResetsKeepAliveState(t *testing.T) {
	s := NewSession("alice", "irc.example", "lobby")
	s.PingsOutstanding = 2
	now := time.Now()
	s.Touch(now)
	if s.PingsOutstanding != 0 {
		t.Fatalf("PingsOutstanding = %d, want 0 after Touch", s.PingsOutstanding)
	}
	if !s.LastInbound.Equal(now) {
		t.Fatalf("LastInbound not updated by Touch")
	}
}
