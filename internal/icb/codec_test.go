package icb

import (
	"bytes"
	"testing"
)

func feedAll(t *testing.T, d *Decoder, packets [][]byte) []Message {
	t.Helper()
	var out []Message
	for _, p := range packets {
		if err := d.Feed(p); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
	for {
		msg, ok, err := d.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}

func TestLegacyRoundTrip(t *testing.T) {
	payload := []byte("hello room")
	packets, err := EncodeLegacy("alice", 'b', payload)
	if err != nil {
		t.Fatalf("EncodeLegacy: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(packets))
	}

	d := NewDecoder()
	msgs := feedAll(t, d, packets)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Type != 'b' {
		t.Fatalf("type = %q, want 'b'", msgs[0].Type)
	}
	if !bytes.Equal(msgs[0].Payload, payload) {
		t.Fatalf("payload = %q, want %q", msgs[0].Payload, payload)
	}
}

func TestLegacyOversizedSplitsIntoMultipleMessages(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 600)
	packets, err := EncodeLegacy("bob", 'b', payload)
	if err != nil {
		t.Fatalf("EncodeLegacy: %v", err)
	}
	if len(packets) < 2 {
		t.Fatalf("expected multiple independent packets for oversized payload, got %d", len(packets))
	}

	d := NewDecoder()
	msgs := feedAll(t, d, packets)
	if len(msgs) != len(packets) {
		t.Fatalf("expected one logical message per legacy packet, got %d messages for %d packets", len(msgs), len(packets))
	}
	var rebuilt []byte
	for _, m := range msgs {
		rebuilt = append(rebuilt, m.Payload...)
	}
	if !bytes.Equal(rebuilt, payload) {
		t.Fatalf("concatenated payloads do not reconstruct the original")
	}
}

func TestLegacyPrivateMessageAddresseePrefix(t *testing.T) {
	// "/m bob hi" submits a command payload of "m\x01bob\x01hi" (spec §8
	// scenario 5); the legacy fragmenter must replay the "m\x01bob\x01"
	// prefix across every fragment.
	payload := []byte("m\x01bob\x01hi")
	packets, err := EncodeLegacy("alice", 'h', payload)
	if err != nil {
		t.Fatalf("EncodeLegacy: %v", err)
	}
	d := NewDecoder()
	msgs := feedAll(t, d, packets)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !bytes.Equal(msgs[0].Payload, payload) {
		t.Fatalf("payload = %q, want %q", msgs[0].Payload, payload)
	}
}

func TestExtendedRoundTripSmall(t *testing.T) {
	payload := []byte("short chat line")
	packets, err := EncodeExtended('b', payload)
	if err != nil {
		t.Fatalf("EncodeExtended: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet for a short payload, got %d", len(packets))
	}

	d := NewDecoder()
	msgs := feedAll(t, d, packets)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 reassembled message, got %d", len(msgs))
	}
	if !bytes.Equal(msgs[0].Payload, payload) {
		t.Fatalf("payload = %q, want %q", msgs[0].Payload, payload)
	}
}

func TestExtendedRoundTripAcrossSizes(t *testing.T) {
	sizes := []int{0, 1, 253, 254, 255, 507, 508, 509, 2540, 10000}
	for _, n := range sizes {
		payload := bytes.Repeat([]byte("x"), n)
		packets, err := EncodeExtended('b', payload)
		if err != nil {
			t.Fatalf("size %d: EncodeExtended: %v", n, err)
		}

		d := NewDecoder()
		msgs := feedAll(t, d, packets)
		if len(msgs) != 1 {
			t.Fatalf("size %d: expected 1 reassembled message, got %d", n, len(msgs))
		}
		if !bytes.Equal(msgs[0].Payload, payload) {
			t.Fatalf("size %d: payload mismatch (got %d bytes, want %d)", n, len(msgs[0].Payload), len(payload))
		}
		if msgs[0].Type != 'b' {
			t.Fatalf("size %d: type = %q, want 'b'", n, msgs[0].Type)
		}
	}
}

func TestExtendedIncrementalFeed(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), 1000)
	packets, err := EncodeExtended('b', payload)
	if err != nil {
		t.Fatalf("EncodeExtended: %v", err)
	}
	var wire []byte
	for _, p := range packets {
		wire = append(wire, p...)
	}

	d := NewDecoder()
	var msgs []Message
	// Feed one byte at a time to exercise the decoder's partial-fragment
	// buffering.
	for i := 0; i < len(wire); i++ {
		if err := d.Feed(wire[i : i+1]); err != nil {
			t.Fatalf("Feed: %v", err)
		}
		for {
			msg, ok, derr := d.Next()
			if derr != nil {
				t.Fatalf("Next: %v", derr)
			}
			if !ok {
				break
			}
			msgs = append(msgs, msg)
		}
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message after incremental feed, got %d", len(msgs))
	}
	if !bytes.Equal(msgs[0].Payload, payload) {
		t.Fatalf("payload mismatch after incremental feed")
	}
}

func TestDecoderFragmentTypeMismatchIsFatal(t *testing.T) {
	packets, err := EncodeExtended('b', bytes.Repeat([]byte("z"), 600))
	if err != nil {
		t.Fatalf("EncodeExtended: %v", err)
	}
	// Corrupt the type byte of the second fragment.
	packets[1][1] = 'c'

	d := NewDecoder()
	for _, p := range packets {
		if err := d.Feed(p); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
	_, _, err = d.Next()
	if err != ErrFragmentTypeMismatch {
		t.Fatalf("err = %v, want ErrFragmentTypeMismatch", err)
	}
}

func TestDecoderOversizedMessageIsFatal(t *testing.T) {
	d := NewDecoder()
	chunk := make([]byte, continuationLen)
	chunk[0] = 0
	chunk[1] = 'b'
	for i := 2; i < len(chunk); i++ {
		chunk[i] = 'x'
	}
	var err error
	for i := 0; i < (maxBufSize/continuationLen)+2; i++ {
		if err = d.Feed(chunk); err != nil {
			break
		}
	}
	if err != ErrMessageTooLarge {
		t.Fatalf("err = %v, want ErrMessageTooLarge", err)
	}
}

func TestMessageFields(t *testing.T) {
	m := Message{Type: 'i', Payload: []byte("co\x01hello world\x01extra")}
	f := m.Fields()
	if len(f) != 3 {
		t.Fatalf("len(Fields()) = %d, want 3", len(f))
	}
	if string(f[0]) != "co" || string(f[1]) != "hello world" || string(f[2]) != "extra" {
		t.Fatalf("fields = %q", f)
	}
	if string(m.Field(1)) != "hello world" {
		t.Fatalf("Field(1) = %q", m.Field(1))
	}
	if m.Field(5) != nil {
		t.Fatalf("Field(5) = %q, want nil", m.Field(5))
	}
}

func TestQueueDrainFullWriteRunsCallback(t *testing.T) {
	var q Queue
	done := false
	q.Enqueue([]byte("hello"), func() { done = true })
	if q.Empty() {
		t.Fatalf("queue should not be empty after Enqueue")
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}

	var buf bytes.Buffer
	if err := q.Drain(&buf); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if !done {
		t.Fatalf("completion callback did not run")
	}
	if !q.Empty() {
		t.Fatalf("queue should be empty after a full drain")
	}
	if buf.String() != "hello" {
		t.Fatalf("drained = %q, want %q", buf.String(), "hello")
	}
}
