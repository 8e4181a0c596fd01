package message

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"
	"time"

	pkgRand "github.com/mbedcoap/core/pkg/rand"
)

var weakRng = pkgRand.NewRand(time.Now().UnixNano())

var msgID = uint32(randMID())

// GetMID generates the next message ID for a host that doesn't want to
// track its own counter. Hosts talking to more than one peer still need
// per-peer uniqueness of (peer, mid) for dedup/retransmission purposes;
// this process-wide counter is enough for that as long as it never repeats
// within the dedup/retransmission window, which a monotonically increasing
// uint16 counter guarantees short of 65536 in-flight messages.
func GetMID() uint16 {
	return uint16(atomic.AddUint32(&msgID, 1))
}

func randMID() uint16 {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// fallback to a cryptographically insecure pseudo-random generator
		return uint16(weakRng.Uint32() >> 16)
	}
	return uint16(binary.BigEndian.Uint32(b))
}
