// Package udpcoder implements the draft-ietf-core-coap-09 wire codec: the
// fixed 4-byte header, delta-encoded options with Fencepost bridging, and
// raw payload. Grounded on the teacher's udp/coder.Coder, generalized to
// the pre-RFC7252 layout (no token-length header nibble, no 0xff payload
// marker, Fencepost insertion instead of the 4-bit extended-option-number
// scheme RFC7252 uses).
package udpcoder

import (
	"encoding/binary"

	"github.com/mbedcoap/core/message"
	"github.com/mbedcoap/core/message/codes"
)

// Coder is the draft-09 header/options/payload codec. It carries no
// state between calls; every encode/decode starts from an explicit,
// locally-scoped cursor rather than file-scoped statics.
type Coder struct{}

// DefaultCoder is the stateless Coder instance most callers use.
var DefaultCoder = Coder{}

// Size computes the exact number of bytes Encode would write for m,
// without allocating or writing anything. Grounded on spec.md §4.1 step 1.
func (Coder) Size(m message.Message) (int, error) {
	if err := checkResetShape(m); err != nil {
		return -1, err
	}
	if len(m.Token) > message.MaxTokenSize {
		return -1, message.ErrInvalidTokenLen
	}
	seq, err := buildWireSequence(&m)
	if err != nil {
		return -1, err
	}
	optLen, err := writeOptions(seq, nil)
	if err != nil {
		return -1, err
	}
	size := message.HeaderLength + optLen + len(m.Payload)
	return size, nil
}

// Encode writes m's wire representation into buf, returning the number of
// bytes written. buf must be at least Size(m) bytes; Encode never grows
// or reallocates it. Grounded on spec.md §4.1's five-step encode
// algorithm.
func (Coder) Encode(m message.Message, buf []byte) (int, error) {
	if err := checkResetShape(m); err != nil {
		return -1, err
	}
	if len(m.Token) > message.MaxTokenSize {
		return -1, message.ErrInvalidTokenLen
	}
	seq, err := buildWireSequence(&m)
	if err != nil {
		return -1, err
	}
	optLen, err := writeOptions(seq, nil)
	if err != nil {
		return -1, err
	}
	size := message.HeaderLength + optLen + len(m.Payload)
	if len(buf) < size {
		return size, message.ErrShortPacket
	}

	buf[0] = byte(message.Version<<6) | byte(m.Type)<<4 | byte(len(seq))
	buf[1] = byte(m.Code)
	binary.BigEndian.PutUint16(buf[2:4], m.MessageID)

	written, err := writeOptions(seq, buf[message.HeaderLength:])
	if err != nil {
		return -1, err
	}
	copy(buf[message.HeaderLength+written:], m.Payload)
	return size, nil
}

// checkResetShape enforces spec.md §4.1 step 2: a Reset message with any
// option or payload is rejected outright, independent of the broader
// validity checks in package validity.
func checkResetShape(m message.Message) error {
	if m.Type != message.Reset {
		return nil
	}
	if !m.Options.IsEmpty() || len(m.Payload) > 0 {
		return message.ErrInvalidHeader
	}
	return nil
}

// buildWireSequence flattens m's structured options in canonical order,
// splices in the Token option (number 11) at its canonical position
// since draft-09 carries Token as an option rather than a header field,
// and inserts Fencepost options wherever a consecutive gap exceeds 14.
// The options-count check (>15 options) happens here, once, covering
// both real options and Fenceposts.
func buildWireSequence(m *message.Message) ([]message.Instance, error) {
	withToken := spliceToken(m.Options.Flatten(), m.Token)
	seq := make([]message.Instance, 0, len(withToken)+1)
	previous := message.OptionID(0)
	for _, inst := range withToken {
		for inst.ID-previous > 14 {
			fencepostAt := ((previous / 14) + 1) * 14
			seq = append(seq, message.Instance{ID: message.Fencepost})
			previous = fencepostAt
		}
		seq = append(seq, inst)
		previous = inst.ID
	}
	if len(seq) > 15 {
		return nil, message.ErrTooManyOptions
	}
	return seq, nil
}

// spliceToken inserts the Token option into base (already in canonical,
// ascending order with no Token entry) at the position Token's option
// number (11) belongs.
func spliceToken(base []message.Instance, token message.Token) []message.Instance {
	if len(token) == 0 {
		return base
	}
	out := make([]message.Instance, 0, len(base)+1)
	inserted := false
	for _, inst := range base {
		if !inserted && inst.ID > message.TokenOption {
			out = append(out, message.Instance{ID: message.TokenOption, Value: token})
			inserted = true
		}
		out = append(out, inst)
	}
	if !inserted {
		out = append(out, message.Instance{ID: message.TokenOption, Value: token})
	}
	return out
}

// writeOptions encodes seq's option bytes into buf in order, returning the
// number of bytes written (or that would be written, when buf is nil).
// Grounded on spec.md §4.1 step 3 and the length-nibble rule in §3.
func writeOptions(seq []message.Instance, buf []byte) (int, error) {
	previous := message.OptionID(0)
	pos := 0
	for _, inst := range seq {
		delta := int(inst.ID - previous)
		length := len(inst.Value)
		if length > 270 {
			return -1, message.ErrOptionTooLong
		}
		lenNibble := length
		extra := 0
		if length >= 15 {
			lenNibble = 15
			extra = 1
		}
		need := 1 + extra + length
		if buf != nil {
			if pos+need > len(buf) {
				return -1, message.ErrShortPacket
			}
			buf[pos] = byte(delta<<4) | byte(lenNibble)
			pos++
			if extra == 1 {
				buf[pos] = byte(length - 15)
				pos++
			}
			copy(buf[pos:], inst.Value)
			pos += length
		} else {
			pos += need
		}
		previous = inst.ID
	}
	return pos, nil
}

// Decode parses data into m, returning the number of bytes consumed
// (always len(data), since any unconsumed byte after the last option is
// payload, not an error). Grounded on spec.md §4.1's decode algorithm.
func (Coder) Decode(data []byte, m *message.Message) (int, error) {
	size := len(data)
	if size < message.HeaderLength {
		return -1, message.ErrShortPacket
	}

	if data[0]>>6 != message.Version {
		return -1, message.ErrBadVersion
	}
	typ := message.Type((data[0] >> 4) & 0x3)
	optCount := int(data[0] & 0xf)
	code := codes.Code(data[1])
	messageID := binary.BigEndian.Uint16(data[2:4])
	data = data[message.HeaderLength:]

	if typ == message.Reset && optCount != 0 {
		return -1, message.ErrInvalidHeader
	}

	var opts message.Options
	var token message.Token
	previous := message.OptionID(0)
	for i := 0; i < optCount; i++ {
		if len(data) < 1 {
			return -1, message.ErrShortPacket
		}
		delta := message.OptionID(data[0] >> 4)
		lenNibble := int(data[0] & 0x0f)
		data = data[1:]

		if delta == 0 && i > 0 && !message.Repeatable(previous) {
			return -1, message.ErrOptionOutOfOrder
		}

		id := previous + delta

		length := lenNibble
		if lenNibble == 15 {
			if len(data) < 1 {
				return -1, message.ErrShortPacket
			}
			length = 15 + int(data[0])
			data = data[1:]
		}
		if len(data) < length {
			return -1, message.ErrBadOptionLength
		}
		value := data[:length]
		data = data[length:]

		switch id {
		case message.Fencepost:
			// discarded after updating previous below.
		case message.TokenOption:
			token = append(message.Token{}, value...)
		default:
			opts.Append(id, append([]byte{}, value...))
		}
		previous = id
	}

	m.Type = typ
	m.Code = code
	m.MessageID = messageID
	m.Token = token
	m.Options = opts
	if len(data) == 0 {
		data = nil
	}
	m.Payload = data

	return size, nil
}
