package coap

import (
	"time"

	"github.com/alecthomas/units"

	"github.com/mbedcoap/core/alloc"
	"github.com/mbedcoap/core/retransmit"
)

// ErrorFunc receives errors the engine cannot otherwise report through a
// call's own return value, e.g. a malformed packet dropped mid-tick. This
// is the engine's entire logging surface, per spec.md §6 treating
// logging as a host-provided collaborator rather than an engine concern.
type ErrorFunc = func(error)

// Config holds every tunable spec.md §6 lists under "compile-time
// configuration", expressed as ordinary runtime fields since this engine
// has no preprocessor. Zero-value fields are filled in by DefaultConfig.
type Config struct {
	AckTimeout      time.Duration
	AckRandomFactor float64
	MaxRetransmit   int
	EnableResendings bool
	RetransmitCapacity int

	DedupWindow   time.Duration
	DedupCapacity int

	MaxBlockwisePayloadSize     int
	MaxIncomingBlockMessageSize int
	BlockwiseIdleMinGrace       time.Duration
	BlockwiseIdleMaxGrace       time.Duration

	Allocator alloc.Allocator
	ErrorFunc ErrorFunc

	RandSeed int64
}

// DefaultConfig returns the spec.md §4.3/§4.4 defaults with blockwise
// disabled (MaxBlockwisePayloadSize == 0, matching "if unset, blockwise
// code is omitted").
func DefaultConfig() Config {
	return Config{
		AckTimeout:         retransmit.DefaultAckTimeout,
		AckRandomFactor:    retransmit.DefaultAckRandomFactor,
		MaxRetransmit:      retransmit.DefaultMaxRetransmit,
		EnableResendings:   true,
		RetransmitCapacity: 0,

		DedupWindow:   60 * time.Second,
		DedupCapacity: 0,

		MaxBlockwisePayloadSize:     0,
		MaxIncomingBlockMessageSize: 0,
		BlockwiseIdleMinGrace:       5 * time.Second,
		BlockwiseIdleMaxGrace:       2 * time.Minute,

		ErrorFunc: func(error) {},
		RandSeed:  time.Now().UnixNano(),
	}
}

// Option configures a Config. Grounded on the teacher's keepalive.Option
// pattern, generalized from a single WithConfig escape hatch to one
// setter per tunable.
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

// WithAckTimeout sets ACK_TIMEOUT (spec.md §4.3 default 2s).
func WithAckTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.AckTimeout = d })
}

// WithAckRandomFactor sets ACK_RANDOM_FACTOR (spec.md §4.3 default 1.5).
func WithAckRandomFactor(f float64) Option {
	return optionFunc(func(c *Config) { c.AckRandomFactor = f })
}

// WithMaxRetransmit sets MAX_RETRANSMIT (spec.md §4.3 default 4).
func WithMaxRetransmit(n int) Option {
	return optionFunc(func(c *Config) { c.MaxRetransmit = n })
}

// WithResendingsDisabled turns off the ENABLE_RESENDINGS feature flag:
// Confirmable messages are still tracked for ACK matching and can still
// time out, but Tick never re-transmits them.
func WithResendingsDisabled() Option {
	return optionFunc(func(c *Config) { c.EnableResendings = false })
}

// WithRetransmitCapacity bounds the retransmission store; Send returns
// ErrFull once it is reached. 0 means unbounded.
func WithRetransmitCapacity(n int) Option {
	return optionFunc(func(c *Config) { c.RetransmitCapacity = n })
}

// WithDedupWindow sets DEDUP_WINDOW (spec.md §4.4 default 60s).
func WithDedupWindow(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.DedupWindow = d })
}

// WithDedupCapacity bounds the duplicate store; beyond it the oldest
// record is evicted FIFO. 0 means unbounded.
func WithDedupCapacity(n int) Option {
	return optionFunc(func(c *Config) { c.DedupCapacity = n })
}

// WithBlockwise enables Block1/Block2 fragmentation: a payload longer than
// maxOutgoing bytes is sent in blocks of the largest size (16..1024) not
// above maxOutgoing, and incoming assembly is bounded to maxIncoming total
// bytes (MAX_INCOMING_BLOCK_MESSAGE_SIZE; 0 means unbounded). Leaving this
// option off entirely matches "if unset, blockwise code is omitted."
func WithBlockwise(maxOutgoing, maxIncoming int) Option {
	return optionFunc(func(c *Config) {
		c.MaxBlockwisePayloadSize = maxOutgoing
		c.MaxIncomingBlockMessageSize = maxIncoming
	})
}

// WithBlockwiseIdleGrace sets the backoff-grown idle window a stalled
// blockwise assembly is allowed before Tick abandons it; see
// blockwise.Receiver.
func WithBlockwiseIdleGrace(min, max time.Duration) Option {
	return optionFunc(func(c *Config) {
		c.BlockwiseIdleMinGrace = min
		c.BlockwiseIdleMaxGrace = max
	})
}

// WithAllocator installs a, replacing the engine's default
// alloc.PoolAllocator, per spec.md §5's shared allocator hook policy.
func WithAllocator(a alloc.Allocator) Option {
	return optionFunc(func(c *Config) { c.Allocator = a })
}

// WithErrorFunc installs the engine's sole logging/observability hook.
func WithErrorFunc(f ErrorFunc) Option {
	return optionFunc(func(c *Config) {
		if f != nil {
			c.ErrorFunc = f
		}
	})
}

// WithRandSeed pins the jitter source's seed, for reproducible tests.
func WithRandSeed(seed int64) Option {
	return optionFunc(func(c *Config) { c.RandSeed = seed })
}

// ParseSize parses a human-readable byte size ("64KiB", "1MB", "512")
// using the same unit grammar the teacher's go.mod already depends on,
// for configuration surfaces (CLI flags, env vars) that want to accept
// MaxBlockwisePayloadSize or MaxIncomingBlockMessageSize in that form
// rather than a bare integer.
func ParseSize(s string) (int, error) {
	v, err := units.ParseBase2Bytes(s)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}
