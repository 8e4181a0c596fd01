// Package retransmit implements the Confirmable-message retransmission
// store described in spec.md §4.3: register a sent packet, cancel it on a
// matching ACK/RST, and let tick drive the exact-doubling exponential
// backoff schedule until either acknowledgement or exhaustion. Grounded
// on the teacher's keepalive package for the tick-driven timer shape and
// on pkg/cache for storage, both generalized from a single-peer
// keepalive probe to a per-(peer, message ID) table.
package retransmit

import (
	"time"

	"github.com/mbedcoap/core/message"
	"github.com/mbedcoap/core/pkg/cache"
	"github.com/mbedcoap/core/pkg/rand"
)

// Defaults per spec.md §4.3.
const (
	DefaultAckTimeout      = 2 * time.Second
	DefaultAckRandomFactor = 1.5
	DefaultMaxRetransmit   = 4
)

// Key identifies one outstanding Confirmable message.
type Key struct {
	Peer      string
	MessageID uint16
}

// Resend is one packet tick asks the host to re-transmit.
type Resend struct {
	Peer   string
	Packet []byte
}

// Timeout reports that a Confirmable message exhausted MAX_RETRANSMIT
// without being acknowledged.
type Timeout struct {
	Peer      string
	MessageID uint16
}

type entry struct {
	key             Key
	packet          []byte
	nextSendAt      time.Time
	attemptsLeft    int
	delay           time.Duration
	registrationSeq uint64
}

// Store holds one Confirmable message per registered (peer, message ID)
// pair until it is acknowledged, reset, or exhausted. It is not safe for
// concurrent use, matching the engine's single-threaded contract
// (spec.md §5).
type Store struct {
	AckTimeout      time.Duration
	AckRandomFactor float64
	MaxRetransmit   int
	Capacity        int

	cache *cache.Cache[Key, *entry]
	rng   *rand.Rand
	seq   uint64
}

// NewStore constructs a Store with the spec.md §4.3 defaults. capacity<=0
// means unbounded.
func NewStore(capacity int, seed int64) *Store {
	return &Store{
		AckTimeout:      DefaultAckTimeout,
		AckRandomFactor: DefaultAckRandomFactor,
		MaxRetransmit:   DefaultMaxRetransmit,
		Capacity:        capacity,
		cache:           cache.NewCache[Key, *entry](),
		rng:             rand.NewRand(seed),
	}
}

// Register allocates a retransmission entry for packet sent to peer under
// messageID, with next_send_at chosen uniformly in
// [AckTimeout, AckTimeout*AckRandomFactor], per spec.md §4.3.
func (s *Store) Register(peer string, messageID uint16, packet []byte, now time.Time) error {
	if s.Capacity > 0 && s.cache.Len() >= s.Capacity {
		return message.ErrFull
	}
	key := Key{Peer: peer, MessageID: messageID}
	initialDelay := s.initialDelay()
	s.seq++
	e := &entry{
		key:             key,
		packet:          packet,
		nextSendAt:      now.Add(initialDelay),
		attemptsLeft:    s.MaxRetransmit,
		delay:           initialDelay,
		registrationSeq: s.seq,
	}
	s.cache.Store(key, cache.NewElement(e, time.Time{}, nil))
	return nil
}

func (s *Store) initialDelay() time.Duration {
	span := float64(s.AckTimeout) * (s.AckRandomFactor - 1)
	jitter := time.Duration(s.rng.Float64() * span)
	return s.AckTimeout + jitter
}

// OnAckOrReset removes the entry matching (peer, messageID), if any.
// matched reports whether an entry was found.
func (s *Store) OnAckOrReset(peer string, messageID uint16) (matched bool) {
	return s.cache.Delete(Key{Peer: peer, MessageID: messageID})
}

// Tick walks every entry whose next_send_at has elapsed: entries with
// attempts remaining are returned for re-send with their delay doubled
// and attempts decremented; entries at zero attempts are reported as
// timed out and removed. Tie-breaks among equally-due entries follow
// registration order, per spec.md §4.3.
func (s *Store) Tick(now time.Time) (resends []Resend, timeouts []Timeout) {
	var due []*entry
	s.cache.Range(func(_ Key, el *cache.Element[*entry]) bool {
		e := el.Data()
		if !now.Before(e.nextSendAt) {
			due = append(due, e)
		}
		return true
	})
	sortBySeq(due)

	for _, e := range due {
		if e.attemptsLeft <= 0 {
			timeouts = append(timeouts, Timeout{Peer: e.key.Peer, MessageID: e.key.MessageID})
			s.cache.Delete(e.key)
			continue
		}
		resends = append(resends, Resend{Peer: e.key.Peer, Packet: e.packet})
		e.attemptsLeft--
		e.nextSendAt = now.Add(e.delay)
		e.delay *= 2
		s.cache.Store(e.key, cache.NewElement(e, time.Time{}, nil))
	}
	return resends, timeouts
}

// Len reports the number of outstanding entries.
func (s *Store) Len() int { return s.cache.Len() }

func sortBySeq(entries []*entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].registrationSeq < entries[j-1].registrationSeq; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
