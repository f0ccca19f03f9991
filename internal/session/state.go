// Package session implements the ICB connection state machine (spec §4.F)
// and the keep-alive controller (spec §4.G). Both operate on a single
// Session value owned exclusively by the event loop.
package session

import (
	"errors"
	"time"
)

// Phase is the connection's position in the protocol handshake/operation
// sequence.
type Phase int

const (
	Connecting Phase = iota
	Connected
	LoginSent
	Chat
	CommandSent
)

func (p Phase) String() string {
	switch p {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case LoginSent:
		return "LoginSent"
	case Chat:
		return "Chat"
	case CommandSent:
		return "CommandSent"
	default:
		return "Unknown"
	}
}

// Feature is a bit in the peer's advertised feature set.
type Feature uint8

const (
	FeaturePing Feature = 1 << iota
	FeatureExtended
)

// ErrUnexpectedMessage is fatal per spec §4.F: "Any message arriving in the
// wrong phase is fatal."
var ErrUnexpectedMessage = errors.New("session: unexpected message for current phase")

// ErrUnsupportedVersion is fatal per spec §4.F: only protocol version "1"
// is accepted.
var ErrUnsupportedVersion = errors.New("session: unsupported protocol version")

var chatPermitted = map[byte]bool{
	'b': true, 'c': true, 'd': true, 'e': true, 'f': true,
	'g': true, 'i': true, 'k': true, 'l': true, 'm': true, 'n': true,
}

var commandSentPermitted = map[byte]bool{
	'b': true, 'c': true, 'd': true, 'f': true, 'e': true, 'i': true,
}

// Session holds the protocol phase and the fields the state machine and
// keep-alive controller need (spec §3 "Session State").
type Session struct {
	Nick     string
	Hostname string
	Room     string

	Phase    Phase
	Features Feature

	LastInbound     time.Time
	PingsOutstanding int
}

// NewSession starts in Connecting with Ping assumed supported, Extended
// clear (spec §3).
func NewSession(nick, hostname, room string) *Session {
	return &Session{
		Nick:     nick,
		Hostname: hostname,
		Room:     room,
		Phase:    Connecting,
		Features: FeaturePing,
	}
}

// Permitted reports whether an inbound message of type t is allowed in the
// current phase (spec §4.F table).
func (s *Session) Permitted(t byte) bool {
	switch s.Phase {
	case Connecting:
		return false
	case Connected:
		return t == 'j'
	case LoginSent:
		return t == 'a'
	case Chat:
		return chatPermitted[t]
	case CommandSent:
		return commandSentPermitted[t] || t == 'i'
	default:
		return false
	}
}

// OnSocketWritable transitions Connecting -> Connected once the socket is
// ready for I/O.
func (s *Session) OnSocketWritable() {
	if s.Phase == Connecting {
		s.Phase = Connected
	}
}

// LoginPacket returns the payload for the 'a' login message sent in
// response to the server's 'j' greeting (spec §4.F, scenario 2).
func (s *Session) LoginPacket() []byte {
	const sep = 0x01
	b := make([]byte, 0, len(s.Nick)*2+len(s.Room)+16)
	b = append(b, s.Nick...)
	b = append(b, sep)
	b = append(b, s.Nick...)
	b = append(b, sep)
	b = append(b, s.Room...)
	b = append(b, sep)
	b = append(b, "login"...)
	b = append(b, sep)
	return b
}

// OnGreeting validates an inbound 'j' message (protocol_version,
// host_id, server_id) and transitions Connected -> LoginSent.
func (s *Session) OnGreeting(version string) error {
	if version != "1" {
		return ErrUnsupportedVersion
	}
	s.Phase = LoginSent
	return nil
}

// OnLoginAck transitions LoginSent -> Chat on the server's 'a'
// acknowledgement.
func (s *Session) OnLoginAck() {
	s.Phase = Chat
}

// OnCommandIssued transitions Chat -> CommandSent when the user issues a
// server command (any '/'-prefixed input line, spec §4.F).
func (s *Session) OnCommandIssued() {
	if s.Phase == Chat {
		s.Phase = CommandSent
	}
}

// OnCommandEnd transitions CommandSent -> Chat on the 'ec' sub-message
// that terminates a command's output.
func (s *Session) OnCommandEnd() {
	s.Phase = Chat
}

// OnChatArrival reverts CommandSent -> Chat for a 'b'/'c'/'d'/'f' message
// arriving while a command is outstanding — they are treated as ordinary
// Chat arrivals (spec §4.F table).
func (s *Session) OnChatArrival() {
	if s.Phase == CommandSent {
		s.Phase = Chat
	}
}

// ClearPingFeature clears FeaturePing on the server error
// "Undefined message type 108" (spec §4.F, §8 scenario 6).
func (s *Session) ClearPingFeature() {
	s.Features &^= FeaturePing
}

// HasFeature reports whether f is set.
func (s *Session) HasFeature(f Feature) bool { return s.Features&f != 0 }

// Touch resets the keep-alive state on any inbound byte.
func (s *Session) Touch(now time.Time) {
	s.PingsOutstanding = 0
	s.LastInbound = now
}
