// Package validity implements the pure, stateless well-formedness check a
// decoded Message must pass before the engine acts on it. It never
// mutates its input and never does I/O; grounded on the same "pure
// function over a Message" shape the teacher's message package itself
// favors for codec helpers, generalized here into its own package since
// it is applied at a different point in the pipeline than decoding.
package validity

import (
	"github.com/mbedcoap/core/message"
	"github.com/mbedcoap/core/message/codes"
)

// Check returns nil when m satisfies every structural rule this engine
// enforces, or one of message's typed errors otherwise. The protocol
// version is not re-checked here: udpcoder.Decode already rejects any
// wire version other than 1 before a Message value can exist at all.
func Check(m *message.Message) error {
	if !message.ValidateType(m.Type) {
		return message.ErrInvalidHeader
	}
	if !codes.Defined(m.Code) {
		return message.ErrBadCode
	}
	if len(m.Token) > message.MaxTokenSize {
		return message.ErrInvalidTokenLen
	}
	if len(m.Options.ContentType) > 2 {
		return message.ErrOptionTooLong
	}
	if len(m.Options.ProxyURI) > 270 {
		return message.ErrOptionTooLong
	}
	if len(m.Options.UriHost) > 270 {
		return message.ErrOptionTooLong
	}
	for _, seg := range m.Options.LocationPath {
		if len(seg) > 270 {
			return message.ErrOptionTooLong
		}
	}
	if len(m.Options.LocationQuery) > 270 {
		return message.ErrOptionTooLong
	}
	if len(m.Options.UriPort) > 2 {
		return message.ErrOptionTooLong
	}
	if len(m.Options.MaxAge) > 4 {
		return message.ErrOptionTooLong
	}
	if len(m.Options.Observe) > 2 {
		return message.ErrOptionTooLong
	}
	if len(m.Options.Block1) > 3 {
		return message.ErrOptionTooLong
	}
	if len(m.Options.Block2) > 3 {
		return message.ErrOptionTooLong
	}
	// Reset is always fully empty. Acknowledgement carries no piggybacked
	// response in this engine (responses travel as their own Confirmable
	// or NonConfirmable message), but a block-transfer continuation ack
	// may still carry Block1/Block2 to request the next block, per
	// spec.md §4.5 step 3 — so an Ack is allowed options iff they are
	// exactly {Block1, Block2} and it never carries a payload.
	if m.Type == message.Reset {
		if !m.Options.IsEmpty() || len(m.Payload) > 0 {
			return message.ErrInvalidHeader
		}
	}
	if m.Type == message.Acknowledgement {
		if len(m.Payload) > 0 || !ackOptionsAreBlockOnly(&m.Options) {
			return message.ErrInvalidHeader
		}
	}
	if m.Code.IsRequest() {
		if m.Options.LocationPath != nil || m.Options.LocationQuery != nil || m.Options.MaxAge != nil {
			return message.ErrBadOptionLength
		}
	}
	return nil
}

func ackOptionsAreBlockOnly(o *message.Options) bool {
	without := *o
	without.Block1 = nil
	without.Block2 = nil
	return without.IsEmpty()
}
