package icb

import "bytes"

// maxWirePacket is the largest value a length byte can hold (255), giving a
// largest single wire packet of 1+255 = 256 bytes.
const maxWirePacket = 255

// breakBytes are the characters preferred as a legacy chunk boundary. They
// are all treated alike: chunkBreak takes the rightmost one of any kind.
var breakBytes = []byte(" \t.,;:!?")

// EncodeLegacy fragments one logical (type, payload) message for the legacy,
// non-extended wire scheme. Each returned chunk is an independent, complete
// wire packet — legacy framing has no continuation concept, so an
// oversized message becomes several independent logical messages on the
// wire (spec §4.B).
//
// nick is the sender's own nickname; headroom is reserved so the server may
// prepend it to the packet without overflowing the 255-byte fragment limit.
func EncodeLegacy(nick string, msgType byte, payload []byte) ([][]byte, error) {
	if msgType == 0 {
		return nil, ErrInvalidArgument
	}

	limit := 253 - len(nick)

	var prefix []byte
	if msgType == 'h' && bytes.HasPrefix(payload, []byte("m\x01")) {
		addressee := addresseeField(payload)
		prefix = payload[:len(addressee)]
		payload = payload[len(addressee):]
		limit -= len(prefix)
	}
	if limit <= 0 {
		return nil, ErrPacketTooLong
	}

	preferBreak := msgType == 'b' || msgType == 'h'

	var packets [][]byte
	for len(payload) > 0 || len(packets) == 0 {
		chunkLen := len(payload)
		if chunkLen > limit {
			chunkLen = limit
			if preferBreak {
				chunkLen = chunkBreak(payload, limit)
			}
		}
		chunk := payload[:chunkLen]
		payload = payload[chunkLen:]

		data := make([]byte, 0, len(prefix)+len(chunk)+1)
		data = append(data, prefix...)
		data = append(data, chunk...)
		data = append(data, 0x00)

		lengthByte := len(data) + 1 // length counts the type byte plus data
		if lengthByte > maxWirePacket {
			return nil, ErrPacketTooLong
		}
		wire := make([]byte, 0, 2+len(data))
		wire = append(wire, byte(lengthByte), msgType)
		wire = append(wire, data...)
		packets = append(packets, wire)
	}
	return packets, nil
}

// addresseeField returns the ICB "m\x01<nick>\x01" common prefix replayed
// at the start of every fragment of a private-message command, bounded by
// NicknameMax+3 bytes ("m", two field separators, and the nick).
func addresseeField(payload []byte) []byte {
	limit := NicknameMax + 3
	if limit > len(payload) {
		limit = len(payload)
	}
	if limit <= 2 {
		return payload[:limit]
	}
	if idx := bytes.IndexByte(payload[2:limit], FieldSep); idx >= 0 {
		return payload[:2+idx+1]
	}
	return payload[:limit]
}

// chunkBreak picks a split point at or before limit, preferring the last
// whitespace/punctuation byte found scanning right-to-left from limit.
func chunkBreak(payload []byte, limit int) int {
	if limit >= len(payload) {
		return len(payload)
	}
	for i := limit; i > 0; i-- {
		if bytes.IndexByte(breakBytes, payload[i-1]) >= 0 {
			return i
		}
	}
	return limit
}

// EncodeExtended fragments one logical (type, payload) message under the
// extended continuation scheme. payload must NOT include the trailing NUL;
// EncodeExtended appends it. All but the last returned packet carry a
// zero length byte (continuation) with exactly 254 data bytes; the last
// carries the true remaining length.
func EncodeExtended(msgType byte, payload []byte) ([][]byte, error) {
	if msgType == 0 {
		return nil, ErrInvalidArgument
	}
	full := make([]byte, len(payload)+1)
	copy(full, payload)
	full[len(full)-1] = 0x00

	n := len(full)
	count := (n + continuationData - 1) / continuationData
	if count == 0 {
		count = 1
	}

	packets := make([][]byte, 0, count)
	off := 0
	for i := 0; i < count; i++ {
		last := i == count-1
		if !last {
			wire := make([]byte, 2+continuationData)
			wire[0] = 0
			wire[1] = msgType
			copy(wire[2:], full[off:off+continuationData])
			packets = append(packets, wire)
			off += continuationData
			continue
		}
		remaining := n - off
		lengthByte := remaining + 1 // +1 covers the type byte convention
		wire := make([]byte, 1+lengthByte)
		wire[0] = byte(lengthByte)
		wire[1] = msgType
		copy(wire[2:], full[off:])
		packets = append(packets, wire)
	}
	return packets, nil
}
