package coap_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coap "github.com/mbedcoap/core"
	"github.com/mbedcoap/core/message"
	"github.com/mbedcoap/core/message/codes"
	"github.com/mbedcoap/core/message/udpcoder"
)

func TestSendRegistersRetransmissionAndAckCancelsIt(t *testing.T) {
	var sent [][]byte
	transport := coap.TransportFunc(func(peer string, packet []byte) error {
		sent = append(sent, packet)
		return nil
	})
	e := coap.NewEngine(transport, coap.WithRandSeed(1))
	now := time.Now()

	m := message.Message{Type: message.Confirmable, Code: codes.GET, MessageID: 10}
	require.NoError(t, e.Send(m, "peerA", now))
	require.Len(t, sent, 1)

	result := e.Tick(now.Add(time.Hour))
	assert.Equal(t, 1, result.Resent)
	assert.Empty(t, result.TimedOut)

	ack := message.Message{Type: message.Acknowledgement, Code: codes.Empty, MessageID: 10}
	buf := make([]byte, 4)
	n, err := udpcoder.DefaultCoder.Encode(ack, buf)
	require.NoError(t, err)

	event, err := e.HandleRX(buf[:n], "peerA", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, event)

	result = e.Tick(now.Add(2 * time.Hour))
	assert.Zero(t, result.Resent)
	assert.Empty(t, result.TimedOut)
}

func TestSendTimesOutWithoutAck(t *testing.T) {
	transport := coap.TransportFunc(func(string, []byte) error { return nil })
	e := coap.NewEngine(transport,
		coap.WithRandSeed(1),
		coap.WithAckTimeout(time.Millisecond),
		coap.WithAckRandomFactor(1),
		coap.WithMaxRetransmit(1))
	now := time.Now()

	m := message.Message{Type: message.Confirmable, Code: codes.GET, MessageID: 11}
	require.NoError(t, e.Send(m, "peerA", now))

	result := e.Tick(now.Add(time.Millisecond))
	require.Empty(t, result.TimedOut)

	result = e.Tick(now.Add(10 * time.Millisecond))
	require.Len(t, result.TimedOut, 1)
	assert.Equal(t, uint16(11), result.TimedOut[0].MessageID)
}

func TestHandleRXDropsDuplicate(t *testing.T) {
	transport := coap.TransportFunc(func(string, []byte) error { return nil })
	e := coap.NewEngine(transport, coap.WithRandSeed(1))
	now := time.Now()

	m := message.Message{Type: message.NonConfirmable, Code: codes.GET, MessageID: 21}
	m.Options.SetPathString("temp")
	buf := make([]byte, 32)
	n, err := udpcoder.DefaultCoder.Encode(m, buf)
	require.NoError(t, err)
	packet := buf[:n]

	event, err := e.HandleRX(packet, "peerA", now)
	require.NoError(t, err)
	require.NotNil(t, event)

	event, err = e.HandleRX(packet, "peerA", now)
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestHandleRXRejectsMalformedReset(t *testing.T) {
	transport := coap.TransportFunc(func(string, []byte) error { return nil })
	e := coap.NewEngine(transport, coap.WithRandSeed(1))

	// The encoder refuses to build a Reset that carries options, so encode
	// a NonConfirmable and rewrite the header's type bits to Reset.
	m := message.Message{Type: message.NonConfirmable, Code: codes.GET, MessageID: 31}
	m.Options.SetPathString("temp")
	buf := make([]byte, 32)
	n, err := udpcoder.DefaultCoder.Encode(m, buf)
	require.NoError(t, err)
	buf[0] = buf[0]&^0x30 | byte(message.Reset)<<4

	event, err := e.HandleRX(buf[:n], "peerA", time.Now())
	assert.ErrorIs(t, err, message.ErrInvalidHeader)
	assert.Nil(t, event)
}

// TestBlockwiseRoundTrip drives a full upload through two Engines wired
// back to back by an in-memory Transport: the client's Send fragments an
// oversized payload into Block1 blocks, the server's HandleRX assembles
// them and acknowledges each one to request the next, and the client's
// own HandleRX answers that continuation ack by emitting the next block
// — all synchronously within the initial Send call, the same way two
// real peers would converge one datagram exchange at a time.
func TestBlockwiseRoundTrip(t *testing.T) {
	const blockLimit = 16
	payload := make([]byte, 50)
	for i := range payload {
		payload[i] = byte(i)
	}

	var clientEngine, serverEngine *coap.Engine
	var finalEvent *coap.ApplicationEvent
	now := time.Now()

	clientTransport := coap.TransportFunc(func(peer string, packet []byte) error {
		event, err := serverEngine.HandleRX(packet, peer, now)
		if err != nil {
			return err
		}
		if event != nil {
			finalEvent = event
		}
		return nil
	})
	serverTransport := coap.TransportFunc(func(peer string, packet []byte) error {
		_, err := clientEngine.HandleRX(packet, peer, now)
		return err
	})

	clientEngine = coap.NewEngine(clientTransport, coap.WithBlockwise(blockLimit, 0), coap.WithRandSeed(1))
	serverEngine = coap.NewEngine(serverTransport, coap.WithBlockwise(blockLimit, 1024), coap.WithRandSeed(2))

	m := message.Message{
		Type:      message.Confirmable,
		Code:      codes.POST,
		MessageID: message.GetMID(),
		Payload:   payload,
	}
	m.Options.SetPathString("big")

	require.NoError(t, clientEngine.Send(m, "peer", now))

	require.NotNil(t, finalEvent)
	assert.Equal(t, payload, finalEvent.Message.Payload)
	assert.Equal(t, "peer", finalEvent.Peer)
}

func TestDecodeBadVersionRejected(t *testing.T) {
	transport := coap.TransportFunc(func(string, []byte) error { return nil })
	e := coap.NewEngine(transport)

	_, err := e.Decode([]byte{0x81, 0x01, 0x00, 0x01})
	assert.ErrorIs(t, err, message.ErrBadVersion)
}
