package blockwise

import (
	"io"
	"time"

	"github.com/dsnet/golib/memfile"
	"golang.org/x/sync/semaphore"

	"github.com/mbedcoap/core/message"
	"github.com/mbedcoap/core/pkg/cache"
)

// Block is one fragment ready to go out on the wire: the option value for
// Block1 (request) or Block2 (response), and the slice of payload it
// carries.
type Block struct {
	Option  []byte
	Payload []byte
	More    bool
	ETag    []byte
}

type sendTransfer struct {
	payload *memfile.File
	size    int64
	szx     SZX
	guard   *semaphore.Weighted
	etag    []byte
}

// Sender hands out successive blocks of an oversized outgoing payload,
// one token at a time. It is not safe for concurrent use, matching the
// engine's single-threaded contract (spec.md §5). Begin rejects a second
// transfer for a (peer, token) that already has one outstanding; the
// per-transfer semaphore makes an overlapping Block call for the same
// (peer, token) fail rather than serialize goroutines.
type Sender struct {
	IdleTimeout time.Duration

	transfers *cache.Cache[string, *sendTransfer]
}

// NewSender constructs a Sender whose idle transfers are reaped after
// idleTimeout of inactivity.
func NewSender(idleTimeout time.Duration) *Sender {
	return &Sender{
		IdleTimeout: idleTimeout,
		transfers:   cache.NewCache[string, *sendTransfer](),
	}
}

func transferKey(peer string, token message.Token) string {
	return peer + "|" + token.String()
}

// Begin starts a new blockwise send for (peer, token), splitting payload
// into szx-sized blocks. It fails if a transfer for the same (peer,
// token) is already outstanding. Every block handed out for this transfer
// carries the same ETag, computed once over the whole payload, so the
// receiving end can detect the resource changing mid-transfer.
func (s *Sender) Begin(peer string, token message.Token, payload []byte, szx SZX, now time.Time) error {
	key := transferKey(peer, token)
	f := memfile.New(append([]byte{}, payload...))
	size, err := SeekToSize(f)
	if err != nil {
		return err
	}
	t := &sendTransfer{
		payload: f,
		size:    size,
		szx:     szx,
		guard:   semaphore.NewWeighted(1),
		etag:    message.CalcETag(payload),
	}
	_, loaded := s.transfers.LoadOrStore(key, cache.NewElement(t, now.Add(s.IdleTimeout), nil), now)
	if loaded {
		return message.Error("blockwise send already in progress for token")
	}
	return nil
}

// Block returns the block starting at blockNum for (peer, token), per
// spec.md §4.5 step 3: the peer's acknowledgement requests the next block
// to emit, and the sender seeks to it rather than assuming strict order.
func (s *Sender) Block(peer string, token message.Token, blockNum uint32, now time.Time) (Block, bool, error) {
	key := transferKey(peer, token)
	el, ok := s.transfers.Load(key, now)
	if !ok {
		return Block{}, false, nil
	}
	t := el.Data()
	if !t.guard.TryAcquire(1) {
		return Block{}, false, message.Error("blockwise transfer busy")
	}
	defer t.guard.Release(1)

	offset := int64(blockNum) * int64(t.szx.Size())
	if offset > t.size {
		return Block{}, false, message.Error("block number exceeds payload")
	}
	if _, err := t.payload.Seek(offset, io.SeekStart); err != nil {
		return Block{}, false, err
	}
	buf := make([]byte, t.szx.Size())
	n, err := t.payload.Read(buf)
	if err != nil && err != io.EOF {
		return Block{}, false, err
	}
	buf = buf[:n]
	more := offset+int64(n) < t.size

	opt, err := EncodeBlockOption(t.szx, blockNum, more)
	if err != nil {
		return Block{}, false, err
	}
	s.transfers.Store(key, cache.NewElement(t, now.Add(s.IdleTimeout), nil))
	return Block{Option: opt, Payload: buf, More: more, ETag: t.etag}, true, nil
}

// Done ends a transfer, e.g. once the final block has been acknowledged
// or the peer aborts it.
func (s *Sender) Done(peer string, token message.Token) {
	s.transfers.Delete(transferKey(peer, token))
}

// CheckExpirations reaps idle transfers, per spec.md §5's tick-driven
// aging model.
func (s *Sender) CheckExpirations(now time.Time) {
	s.transfers.CheckExpirations(now)
}
