package icb

// Wire framing (see spec §3, §4.B):
//
//	[length: u8][type: byte][data: length-1 bytes]
//
// A length of 0 marks a continuation fragment of the extended scheme: it
// always occupies a fixed 256 bytes on the wire (the 2-byte [0][type]
// header plus 254 data bytes). A nonzero length marks the terminal
// fragment of a logical message and occupies 1+length bytes total.
const (
	initialBufSize  = 1024
	maxBufSize      = 1 << 20 // 1 MiB ceiling on one logical message
	continuationLen = 256     // header(2) + 254 data bytes
	continuationData = 254
)

// Decoder reassembles a stream of wire fragments into complete logical
// messages. It owns a single growable buffer (doubled on demand, capped at
// maxBufSize) and is not safe for concurrent use — the event loop is its
// only caller.
type Decoder struct {
	buf    []byte
	filled int // valid bytes in buf, starting at 0
	cursor int // bytes already consumed by completed Next() calls
}

// NewDecoder returns a Decoder with an empty 1 KiB buffer.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, initialBufSize)}
}

// Feed appends newly read bytes to the tail of the rolling buffer, growing
// it by doubling when there is no room. It never blocks and never retains p.
func (d *Decoder) Feed(p []byte) error {
	d.compact()
	for d.filled+len(p) > len(d.buf) {
		if len(d.buf) >= maxBufSize {
			return ErrMessageTooLarge
		}
		grown := len(d.buf) * 2
		if grown > maxBufSize {
			grown = maxBufSize
		}
		nb := make([]byte, grown)
		copy(nb, d.buf[:d.filled])
		d.buf = nb
	}
	copy(d.buf[d.filled:], p)
	d.filled += len(p)
	return nil
}

// compact slides consumed bytes out of the buffer so Feed's growth decision
// is based only on bytes still awaiting a complete message.
func (d *Decoder) compact() {
	if d.cursor == 0 {
		return
	}
	n := copy(d.buf, d.buf[d.cursor:d.filled])
	d.filled = n
	d.cursor = 0
}

type fragment struct {
	dataStart, dataEnd int // offsets into d.buf
}

// Next attempts to decode one complete logical message starting at the
// current cursor. ok is false when not enough bytes have arrived yet — the
// caller should Feed more and retry. err is non-nil only for a fatal framing
// violation (mismatched fragment types), per spec §4.B "Codec errors are
// fatal"; an oversized message is reported by Feed as ErrMessageTooLarge.
func (d *Decoder) Next() (msg Message, ok bool, err error) {
	avail := d.filled - d.cursor
	off := 0
	var msgType byte
	sawType := false
	var frags []fragment

	for {
		if off+2 > avail {
			return Message{}, false, nil
		}
		length := int(d.buf[d.cursor+off])
		t := d.buf[d.cursor+off+1]
		if !sawType {
			msgType = t
			sawType = true
		} else if t != msgType {
			return Message{}, false, ErrFragmentTypeMismatch
		}

		if length == 0 {
			if off+continuationLen > avail {
				return Message{}, false, nil
			}
			frags = append(frags, fragment{
				dataStart: d.cursor + off + 2,
				dataEnd:   d.cursor + off + continuationLen,
			})
			off += continuationLen
			continue
		}

		total := 1 + length // length byte + (type + data)
		if off+total > avail {
			return Message{}, false, nil
		}
		frags = append(frags, fragment{
			dataStart: d.cursor + off + 2,
			dataEnd:   d.cursor + off + total,
		})
		off += total
		break
	}

	n := 0
	for _, f := range frags {
		n += f.dataEnd - f.dataStart
	}
	payload := make([]byte, n, n+1)
	w := 0
	for _, f := range frags {
		w += copy(payload[w:], d.buf[f.dataStart:f.dataEnd])
	}
	if len(payload) == 0 || payload[len(payload)-1] != 0x00 {
		payload = append(payload, 0x00)
	}

	d.cursor += off
	return Message{Type: msgType, Payload: payload[:len(payload)-1]}, true, nil
}
