// Package dedup implements the duplicate-reception suppression store
// described in spec.md §4.4: a record keyed by (peer, message ID) that
// ages out after DEDUP_WINDOW and evicts the oldest record, FIFO, when
// the store is full. Grounded on pkg/cache for the TTL mechanics, the
// same cache the retransmit store uses.
package dedup

import (
	"time"

	"github.com/mbedcoap/core/pkg/cache"
)

// DefaultWindow is DEDUP_WINDOW's default per spec.md §4.4.
const DefaultWindow = 60 * time.Second

// Key identifies one received message for deduplication purposes.
// Message type and token are deliberately excluded, per spec.md §4.4.
type Key struct {
	Peer      string
	MessageID uint16
}

type record struct {
	key       Key
	firstSeen time.Time
}

// orderEntry is one append to Store.order: the key it names and the
// first_seen timestamp its record carried at the time of the append. A
// key that expires and is later re-recorded gets a fresh record with a
// later first_seen, leaving its older orderEntry stale — evictOldest
// uses firstSeen to tell a stale entry from the one that still names the
// live record, rather than trusting position in order alone.
type orderEntry struct {
	key       Key
	firstSeen time.Time
}

// Store suppresses duplicate receptions. Not safe for concurrent use,
// matching the engine's single-threaded contract (spec.md §5).
type Store struct {
	Window   time.Duration
	Capacity int

	cache *cache.Cache[Key, *record]
	order []orderEntry
}

// NewStore constructs a Store with the spec.md §4.4 default window.
// capacity<=0 means unbounded.
func NewStore(capacity int) *Store {
	return &Store{
		Window:   DefaultWindow,
		Capacity: capacity,
		cache:    cache.NewCache[Key, *record](),
	}
}

// Fresh and Duplicate are the two outcomes of CheckAndRecord.
type Result bool

const (
	Fresh     Result = true
	Duplicate Result = false
)

// CheckAndRecord returns Duplicate if (peer, messageID) was already seen
// within Window, otherwise records it and returns Fresh. When recording a
// Fresh entry would exceed Capacity, the oldest record is evicted first.
func (s *Store) CheckAndRecord(peer string, messageID uint16, now time.Time) Result {
	key := Key{Peer: peer, MessageID: messageID}
	if _, ok := s.cache.Load(key, now); ok {
		return Duplicate
	}
	if s.Capacity > 0 && s.cache.Len() >= s.Capacity {
		s.evictOldest(now)
	}
	validUntil := now.Add(s.Window)
	s.cache.Store(key, cache.NewElement(&record{key: key, firstSeen: now}, validUntil, nil))
	s.order = append(s.order, orderEntry{key: key, firstSeen: now})
	return Fresh
}

// evictOldest deletes the record with the smallest first_seen still live
// in the cache. A key that expired and was later re-recorded leaves a
// stale entry at the front of order pointing at a first_seen that no
// longer matches the record currently stored for that key; such entries
// are dropped without deleting anything, so a freshly-reinserted record
// is never mistaken for the one order actually meant to name.
func (s *Store) evictOldest(now time.Time) {
	for len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		el, ok := s.cache.Load(oldest.key, now)
		if !ok || el.Data().firstSeen != oldest.firstSeen {
			continue
		}
		s.cache.Delete(oldest.key)
		return
	}
}

// Reap removes every record older than Window, per spec.md §4.4.
func (s *Store) Reap(now time.Time) {
	s.cache.CheckExpirations(now)
}

// Len reports the number of live records.
func (s *Store) Len() int { return s.cache.Len() }
