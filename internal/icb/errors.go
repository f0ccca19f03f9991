// Package icb implements the ICB (Internet CB) wire protocol: packet framing,
// defragmentation of the extended multi-packet continuation scheme, and the
// logical-message data model shared by the rest of the client.
package icb

import "errors"

var (
	// ErrFragmentTypeMismatch is returned when the fragments making up one
	// logical message do not all carry the same type byte.
	ErrFragmentTypeMismatch = errors.New("icb: message types messed up")

	// ErrMessageTooLarge is returned when a logical message would exceed the
	// decoder's 1 MiB buffer ceiling.
	ErrMessageTooLarge = errors.New("icb: inbound message exceeds buffer ceiling")

	// ErrInvalidArgument reports a zero type byte, which the codec cannot
	// encode.
	ErrInvalidArgument = errors.New("icb: invalid argument")

	// ErrPacketTooLong reports that a single fragment would exceed the
	// 255-byte wire length limit after accounting for required headroom.
	ErrPacketTooLong = errors.New("icb: fragment exceeds 255-byte wire limit")
)
