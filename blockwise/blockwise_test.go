package blockwise_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbedcoap/core/blockwise"
	"github.com/mbedcoap/core/message"
)

func TestEncodeDecodeBlockOptionRoundTrip(t *testing.T) {
	opt, err := blockwise.EncodeBlockOption(blockwise.SZX16, 3, true)
	require.NoError(t, err)
	szx, num, more, err := blockwise.DecodeBlockOption(opt)
	require.NoError(t, err)
	assert.Equal(t, blockwise.SZX16, szx)
	assert.Equal(t, uint32(3), num)
	assert.True(t, more)
}

func TestUploadSplitsIntoFourBlocks(t *testing.T) {
	payload := make([]byte, 50)
	for i := range payload {
		payload[i] = byte(i)
	}
	s := blockwise.NewSender(time.Minute)
	token := message.Token{1, 2, 3}
	now := time.Now()
	require.NoError(t, s.Begin("peerA", token, payload, blockwise.SZX16, now))

	var got []byte
	var more bool
	for n := uint32(0); ; n++ {
		block, ok, err := s.Block("peerA", token, n, now)
		require.NoError(t, err)
		require.True(t, ok)
		got = append(got, block.Payload...)
		more = block.More
		if !more {
			break
		}
	}
	assert.Equal(t, payload, got)
}

func TestReceiverReassemblesInOrder(t *testing.T) {
	r := blockwise.NewReceiver(0, time.Second, 10*time.Second)
	token := message.Token{9}
	now := time.Now()

	completed, _, err := r.Put("peerA", token, 0, true, blockwise.SZX16, []byte("0123456789abcdef"), nil, now)
	require.NoError(t, err)
	assert.False(t, completed)

	completed, payload, err := r.Put("peerA", token, 1, false, blockwise.SZX16, []byte("xy"), nil, now)
	require.NoError(t, err)
	require.True(t, completed)
	assert.Equal(t, "0123456789abcdefxy", string(payload))
}

func TestReceiverDiscardsOutOfOrderSilently(t *testing.T) {
	r := blockwise.NewReceiver(0, time.Second, 10*time.Second)
	token := message.Token{9}
	now := time.Now()
	completed, payload, err := r.Put("peerA", token, 1, true, blockwise.SZX16, []byte("x"), nil, now)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Nil(t, payload)
}

func TestReceiverEnforcesMaxAssemblySize(t *testing.T) {
	r := blockwise.NewReceiver(10, time.Second, 10*time.Second)
	token := message.Token{9}
	now := time.Now()
	_, _, err := r.Put("peerA", token, 0, true, blockwise.SZX16, make([]byte, 20), nil, now)
	assert.ErrorIs(t, err, message.ErrBlockwiseTooLarge)
}

// TestSenderTagsEveryBlockWithSameETag mirrors the teacher's own blockwise
// package, which rejects a transfer whose cached and freshly-received
// messages disagree on ETag: every block this Sender hands out for one
// transfer must carry the same ETag, computed once over the whole payload.
func TestSenderTagsEveryBlockWithSameETag(t *testing.T) {
	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i)
	}
	s := blockwise.NewSender(time.Minute)
	token := message.Token{4}
	now := time.Now()
	require.NoError(t, s.Begin("peerA", token, payload, blockwise.SZX16, now))

	first, ok, err := s.Block("peerA", token, 0, now)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, first.ETag)

	second, ok, err := s.Block("peerA", token, 1, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ETag, second.ETag)
}

func TestReceiverRejectsETagChangeMidTransfer(t *testing.T) {
	r := blockwise.NewReceiver(0, time.Second, 10*time.Second)
	token := message.Token{9}
	now := time.Now()

	completed, _, err := r.Put("peerA", token, 0, true, blockwise.SZX16, []byte("abcd"), []byte("etag-v1"), now)
	require.NoError(t, err)
	assert.False(t, completed)

	_, _, err = r.Put("peerA", token, 1, false, blockwise.SZX16, []byte("xy"), []byte("etag-v2"), now)
	assert.ErrorIs(t, err, message.ErrETagMismatch)
}
