// Package coap is the protocol engine: the stateful machinery wiring the
// header/options codec, the validity checker, the retransmission and
// duplicate stores, and the blockwise fragmentation engine into the three
// entry points a host drives from one execution context — Send,
// HandleRX, and Tick. Grounded on the teacher's top-level client/server
// wiring, generalized from a goroutine-per-connection transport to the
// single-threaded, host-driven model spec.md §5 requires.
package coap

import (
	"time"

	"github.com/mbedcoap/core/alloc"
	"github.com/mbedcoap/core/blockwise"
	"github.com/mbedcoap/core/dedup"
	"github.com/mbedcoap/core/message"
	"github.com/mbedcoap/core/message/codes"
	"github.com/mbedcoap/core/message/udpcoder"
	"github.com/mbedcoap/core/retransmit"
	"github.com/mbedcoap/core/validity"
)

// ApplicationEvent is what HandleRX hands to the upper-layer resource
// dispatcher (out of scope per spec.md §1; this is the contract at its
// boundary).
type ApplicationEvent struct {
	// Message and Peer are set when a message is ready for delivery: a
	// fresh request/response, or a blockwise transfer that just completed.
	Message *message.Message
	Peer    string

	// Timeout is never set by HandleRX; a Confirmable message this engine
	// sent that was never acknowledged is reported in Tick's
	// TickResult.TimedOut instead.
	Timeout *retransmit.Timeout
}

// TickResult summarizes the work Tick performed, for a host that wants to
// log or meter it; every side effect (resends, timeouts) has already
// happened or been queued by the time Tick returns.
type TickResult struct {
	Resent   int
	TimedOut []retransmit.Timeout
}

// Engine is the protocol engine described in spec.md §1. It owns no
// goroutines and acquires no locks; the host must call Send, HandleRX,
// and Tick from a single execution context (spec.md §5).
type Engine struct {
	cfg       Config
	transport Transport

	retransmit *retransmit.Store
	dedup      *dedup.Store
	bwSend     *blockwise.Sender
	bwRecv     *blockwise.Receiver
	allocator  alloc.Allocator
}

// NewEngine constructs an Engine that writes outbound packets through
// transport, configured by opts over DefaultConfig.
func NewEngine(transport Transport, opts ...Option) *Engine {
	cfg := DefaultConfig()
	for _, o := range opts {
		o.apply(&cfg)
	}

	allocator := cfg.Allocator
	if allocator == nil {
		allocator = alloc.NewPoolAllocator(0, 64)
	}

	e := &Engine{
		cfg:        cfg,
		transport:  transport,
		retransmit: retransmit.NewStore(cfg.RetransmitCapacity, cfg.RandSeed),
		dedup:      dedup.NewStore(cfg.DedupCapacity),
		allocator:  allocator,
	}
	e.retransmit.AckTimeout = cfg.AckTimeout
	e.retransmit.AckRandomFactor = cfg.AckRandomFactor
	e.retransmit.MaxRetransmit = cfg.MaxRetransmit

	if cfg.MaxBlockwisePayloadSize > 0 {
		e.bwSend = blockwise.NewSender(cfg.BlockwiseIdleMaxGrace)
		e.bwRecv = blockwise.NewReceiver(cfg.MaxIncomingBlockMessageSize, cfg.BlockwiseIdleMinGrace, cfg.BlockwiseIdleMaxGrace)
	}
	return e
}

// Encode is the pure header/options/payload codec, with no engine state
// change, per spec.md §6.
func (e *Engine) Encode(m message.Message) ([]byte, error) {
	size, err := udpcoder.DefaultCoder.Size(m)
	if err != nil {
		return nil, err
	}
	buf, err := e.allocator.Alloc(size)
	if err != nil {
		return nil, err
	}
	n, err := udpcoder.DefaultCoder.Encode(m, buf)
	if err != nil {
		e.allocator.Free(buf)
		return nil, err
	}
	return buf[:n], nil
}

// Decode is the pure counterpart to Encode.
func (e *Engine) Decode(data []byte) (message.Message, error) {
	var m message.Message
	_, err := udpcoder.DefaultCoder.Decode(data, &m)
	return m, err
}

func (e *Engine) blockSizeLimit() int {
	if e.cfg.MaxBlockwisePayloadSize <= 0 {
		return 0
	}
	return e.cfg.MaxBlockwisePayloadSize
}

func szxForLimit(limit int) blockwise.SZX {
	szx := blockwise.SZX16
	for s := blockwise.SZX1024; s >= blockwise.SZX16; s-- {
		if s.Size() <= limit {
			szx = s
			break
		}
	}
	return szx
}

// Send encodes m, transmits it to peer, registers it for retransmission
// if Confirmable, and seeds a blockwise transfer instead of a single
// oversize packet when m.Payload exceeds the configured block threshold.
// Grounded on spec.md §6's "encode + transmit + (if Confirmable) register
// + (if oversize) seed blockwise".
func (e *Engine) Send(m message.Message, peer string, now time.Time) error {
	limit := e.blockSizeLimit()
	if e.bwSend != nil && limit > 0 && len(m.Payload) > limit {
		return e.sendBlockwise(m, peer, limit, now)
	}
	return e.sendWhole(m, peer, now)
}

func (e *Engine) sendWhole(m message.Message, peer string, now time.Time) error {
	packet, err := e.Encode(m)
	if err != nil {
		return err
	}
	if err := e.transport.Transmit(peer, packet); err != nil {
		return err
	}
	if m.Type == message.Confirmable {
		return e.retransmit.Register(peer, m.MessageID, packet, now)
	}
	return nil
}

func (e *Engine) sendBlockwise(m message.Message, peer string, limit int, now time.Time) error {
	if len(m.Token) == 0 {
		tok, err := message.GetToken()
		if err != nil {
			return err
		}
		m.Token = tok
	}
	szx := szxForLimit(limit)
	if err := e.bwSend.Begin(peer, m.Token, m.Payload, szx, now); err != nil {
		return err
	}
	block, ok, err := e.bwSend.Block(peer, m.Token, 0, now)
	if err != nil || !ok {
		e.bwSend.Done(peer, m.Token)
		if err != nil {
			return err
		}
		return message.Error("failed to start blockwise transfer")
	}
	head := m
	head.Payload = block.Payload
	if block.ETag != nil {
		head.Options.ETag = [][]byte{block.ETag}
	}
	if m.Code.IsRequest() {
		head.Options.Block1 = block.Option
	} else {
		head.Options.Block2 = block.Option
	}
	return e.sendWhole(head, peer, now)
}

// HandleRX decodes data, drops it if malformed or a duplicate, cancels a
// matching retransmission on ACK/RST, advances a blockwise transfer on a
// continuation ack, and otherwise returns the event the upper layer
// should act on. A nil, nil return means the packet was consumed with no
// further action required (duplicate, bare ack, or an in-progress
// blockwise fragment).
func (e *Engine) HandleRX(data []byte, peer string, now time.Time) (*ApplicationEvent, error) {
	m, err := e.Decode(data)
	if err != nil {
		e.cfg.ErrorFunc(err)
		return nil, err
	}
	if err := validity.Check(&m); err != nil {
		e.cfg.ErrorFunc(err)
		return nil, err
	}

	if e.dedup.CheckAndRecord(peer, m.MessageID, now) == dedup.Duplicate {
		return nil, nil
	}

	switch m.Type {
	case message.Acknowledgement, message.Reset:
		e.retransmit.OnAckOrReset(peer, m.MessageID)
		if m.Type == message.Acknowledgement && (m.Options.HasBlock1() || m.Options.HasBlock2()) {
			return nil, e.continueBlockwiseSend(m, peer, now)
		}
		return nil, nil
	}

	if e.bwRecv != nil && (m.Options.HasBlock1() || m.Options.HasBlock2()) {
		return e.handleBlockwiseFragment(m, peer, now)
	}

	return &ApplicationEvent{Message: &m, Peer: peer}, nil
}

func (e *Engine) continueBlockwiseSend(ack message.Message, peer string, now time.Time) error {
	if e.bwSend == nil {
		return nil
	}
	opt := ack.Options.Block1
	isRequest := true
	if opt == nil {
		opt = ack.Options.Block2
		isRequest = false
	}
	_, ackedBlock, _, err := blockwise.DecodeBlockOption(opt)
	if err != nil {
		return err
	}
	block, ok, err := e.bwSend.Block(peer, ack.Token, ackedBlock+1, now)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	next := message.Message{
		Type:      message.Confirmable,
		Code:      codes.Empty,
		MessageID: message.GetMID(),
		Token:     ack.Token,
		Payload:   block.Payload,
	}
	if block.ETag != nil {
		next.Options.ETag = [][]byte{block.ETag}
	}
	if isRequest {
		next.Options.Block1 = block.Option
	} else {
		next.Options.Block2 = block.Option
	}
	if !block.More {
		defer e.bwSend.Done(peer, ack.Token)
	}
	return e.sendWhole(next, peer, now)
}

func (e *Engine) handleBlockwiseFragment(m message.Message, peer string, now time.Time) (*ApplicationEvent, error) {
	opt := m.Options.Block1
	isRequest := true
	if opt == nil {
		opt = m.Options.Block2
		isRequest = false
	}
	szx, blockNum, more, err := blockwise.DecodeBlockOption(opt)
	if err != nil {
		return nil, err
	}
	var etag []byte
	if len(m.Options.ETag) > 0 {
		etag = m.Options.ETag[0]
	}
	completed, payload, err := e.bwRecv.Put(peer, m.Token, blockNum, more, szx, m.Payload, etag, now)
	if err != nil {
		e.cfg.ErrorFunc(err)
		return nil, err
	}
	if !completed {
		if more && m.Type == message.Confirmable {
			if sendErr := e.sendContinuationAck(m, peer, isRequest, blockNum, szx, now); sendErr != nil {
				return nil, sendErr
			}
		}
		return nil, nil
	}
	final := m
	final.Payload = payload
	return &ApplicationEvent{Message: &final, Peer: peer}, nil
}

func (e *Engine) sendContinuationAck(m message.Message, peer string, isRequest bool, blockNum uint32, szx blockwise.SZX, now time.Time) error {
	opt, err := blockwise.EncodeBlockOption(szx, blockNum, false)
	if err != nil {
		return err
	}
	ack := message.Message{
		Type:      message.Acknowledgement,
		Code:      codes.Empty,
		MessageID: m.MessageID,
		Token:     m.Token,
	}
	if isRequest {
		ack.Options.Block1 = opt
	} else {
		ack.Options.Block2 = opt
	}
	return e.sendWhole(ack, peer, now)
}

// Tick fires every retransmission due by now, reaps expired duplicate and
// blockwise-assembly records, and reports what happened. Grounded on
// spec.md §6's "fire due retransmissions, reap dedup records, age
// blockwise states".
func (e *Engine) Tick(now time.Time) TickResult {
	var result TickResult
	resends, timeouts := e.retransmit.Tick(now)
	if e.cfg.EnableResendings {
		for _, r := range resends {
			if err := e.transport.Transmit(r.Peer, r.Packet); err != nil {
				e.cfg.ErrorFunc(err)
			}
		}
		result.Resent = len(resends)
	}
	result.TimedOut = timeouts
	e.dedup.Reap(now)
	if e.bwSend != nil {
		e.bwSend.CheckExpirations(now)
	}
	if e.bwRecv != nil {
		e.bwRecv.CheckExpirations(now)
	}
	return result
}
