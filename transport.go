package coap

// Transport is the host-provided outbound datagram sink, spec.md §6's
// `transmit(peer_address, packet_bytes, length)`. Implementations must
// not block for long; the engine itself never blocks and expects the
// same of its collaborators (spec.md §5).
type Transport interface {
	Transmit(peer string, packet []byte) error
}

// TransportFunc adapts a plain function to a Transport.
type TransportFunc func(peer string, packet []byte) error

func (f TransportFunc) Transmit(peer string, packet []byte) error { return f(peer, packet) }
