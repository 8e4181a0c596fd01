package message

import (
	"fmt"

	"github.com/mbedcoap/core/message/codes"
)

// MaxTokenSize is the largest Token the wire format can carry (spec.md §3).
const MaxTokenSize = 8

// HeaderLength is the fixed size of the CoAP draft-09 header (spec.md §4.1).
const HeaderLength = 4

// Version is the only protocol version this engine understands.
const Version = 1

// Message is a logical CoAP message, independent of its wire encoding.
// Field names and shapes follow spec.md §3 directly.
type Message struct {
	Type      Type
	Code      codes.Code
	MessageID uint16
	Token     Token
	Options   Options
	Payload   []byte
}

func (r *Message) String() string {
	if r == nil {
		return "nil"
	}
	buf := fmt.Sprintf("%v %v id=%#04x token=%v", r.Type, r.Code, r.MessageID, r.Token)
	if path, ok := r.Options.PathString(); ok {
		buf = fmt.Sprintf("%s path=%q", buf, path)
	}
	if len(r.Payload) > 0 {
		buf = fmt.Sprintf("%s payloadLen=%d", buf, len(r.Payload))
	}
	return buf
}

// IsEmpty reports whether r carries no options and no payload, the shape
// required of Reset messages (spec.md §4.1 step 2, §4.2).
func (r *Message) IsEmpty() bool {
	return r.Options.IsEmpty() && len(r.Payload) == 0
}
