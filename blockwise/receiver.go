package blockwise

import (
	"bytes"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mbedcoap/core/message"
	"github.com/mbedcoap/core/pkg/cache"
)

type recvTransfer struct {
	buf          []byte
	nextBlockNum uint32
	szx          SZX
	backoff      *backoff.ExponentialBackOff
	deadline     time.Time
	etag         []byte
}

// Receiver reassembles an oversized incoming payload from successive
// Block1/Block2 fragments, enforcing MaxAssemblySize and strict in-order
// delivery per spec.md §4.5 step 3. Each received block extends the
// transfer's deadline by a backoff-grown grace period, so a transfer that
// has made steady progress tolerates a longer gap before a stalled peer
// is abandoned than a transfer that just started.
type Receiver struct {
	MaxAssemblySize int
	MinGrace        time.Duration
	MaxGrace        time.Duration

	transfers *cache.Cache[string, *recvTransfer]
}

// NewReceiver constructs a Receiver bounding reassembled payloads to
// maxAssemblySize bytes, per MAX_INCOMING_BLOCK_MESSAGE_SIZE.
func NewReceiver(maxAssemblySize int, minGrace, maxGrace time.Duration) *Receiver {
	return &Receiver{
		MaxAssemblySize: maxAssemblySize,
		MinGrace:        minGrace,
		MaxGrace:        maxGrace,
		transfers:       cache.NewCache[string, *recvTransfer](),
	}
}

func (r *Receiver) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.MinGrace
	b.MaxInterval = r.MaxGrace
	b.Multiplier = 1.5
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Put feeds one received block into the assembly for (peer, token). etag
// is the block's ETag option value, or nil if it carried none. completed
// is true once the final block has arrived in order, at which point
// payload holds the full reassembled body and the transfer state is
// discarded. A block that doesn't match next_expected is discarded
// silently (err is nil) per spec.md §4.5 step 2: the peer is expected to
// retransmit, not be told it erred. A block whose ETag disagrees with the
// one the transfer started with means the resource changed mid-transfer,
// the same inconsistency the teacher's own blockwise package rejects.
func (r *Receiver) Put(peer string, token message.Token, blockNum uint32, more bool, szx SZX, data, etag []byte, now time.Time) (completed bool, payload []byte, err error) {
	key := transferKey(peer, token)
	el, ok := r.transfers.Load(key, now)

	var t *recvTransfer
	if !ok {
		if blockNum != 0 {
			return false, nil, nil
		}
		b := r.newBackoff()
		t = &recvTransfer{szx: szx, backoff: b, deadline: now.Add(b.NextBackOff()), etag: etag}
	} else {
		t = el.Data()
		if blockNum != t.nextBlockNum {
			return false, nil, nil
		}
		if len(etag) > 0 && len(t.etag) > 0 && !bytes.Equal(etag, t.etag) {
			r.transfers.Delete(key)
			return false, nil, message.ErrETagMismatch
		}
	}

	if r.MaxAssemblySize > 0 && len(t.buf)+len(data) > r.MaxAssemblySize {
		r.transfers.Delete(key)
		return false, nil, message.ErrBlockwiseTooLarge
	}
	t.buf = append(t.buf, data...)
	t.nextBlockNum++
	t.szx = szx
	t.deadline = now.Add(t.backoff.NextBackOff())

	if !more {
		r.transfers.Delete(key)
		return true, t.buf, nil
	}
	r.transfers.Store(key, cache.NewElement(t, t.deadline, nil))
	return false, nil, nil
}

// Abandon discards any in-progress assembly for (peer, token).
func (r *Receiver) Abandon(peer string, token message.Token) {
	r.transfers.Delete(transferKey(peer, token))
}

// CheckExpirations reaps assemblies whose deadline has passed without a
// new block arriving.
func (r *Receiver) CheckExpirations(now time.Time) {
	r.transfers.CheckExpirations(now)
}
