// Package rand provides the jitter source used by the engine: backoff
// jitter for retransmission scheduling and message-ID generation.
//
// Not safe for concurrent use. The engine that owns a Rand is itself
// single-threaded per the protocol engine's concurrency contract (see
// the root package), so this does not pay for a lock the teacher's
// original guarded-by-mutex version needed for its multi-goroutine client.
package rand

import "math/rand"

type Rand struct {
	src *rand.Rand
}

func NewRand(seed int64) *Rand {
	return &Rand{src: rand.New(rand.NewSource(seed))}
}

func (l *Rand) Int63() int64 {
	return l.src.Int63()
}

func (l *Rand) Uint32() uint32 {
	return l.src.Uint32()
}

// Float64 returns a pseudo-random number in [0.0, 1.0).
func (l *Rand) Float64() float64 {
	return l.src.Float64()
}
