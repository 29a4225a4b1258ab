package connection

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff constants for gateway reconnection.
const (
	// InitialBackoff is the delay before the first reconnection attempt.
	InitialBackoff = 1 * time.Second

	// MaxBackoff caps the reconnection delay.
	MaxBackoff = 30 * time.Second
)

// Delay returns the reconnection delay for the given attempt number using the
// default policy: min(1s * 2^attempt, 30s). Negative attempts are treated as 0.
func Delay(attempt int) time.Duration {
	return DelayWithConfig(BackoffConfig{}, attempt)
}

// DelayWithConfig returns min(cfg.Initial * 2^attempt, cfg.Max).
// Zero fields in cfg fall back to the package defaults. Jitter is not applied.
func DelayWithConfig(cfg BackoffConfig, attempt int) time.Duration {
	cfg = cfg.withDefaults()
	if attempt < 0 {
		attempt = 0
	}

	d := cfg.Initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cfg.Max {
			return cfg.Max
		}
	}
	if d > cfg.Max {
		return cfg.Max
	}
	return d
}

// BackoffConfig allows customizing backoff parameters.
type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`

	// Jitter is the maximum random extra delay as a fraction of the base
	// delay. Zero disables jitter.
	Jitter float64 `yaml:"jitter"`
}

func (cfg BackoffConfig) withDefaults() BackoffConfig {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return cfg
}

// Backoff tracks the attempt counter across failed connection attempts.
// It is safe for concurrent use.
type Backoff struct {
	mu sync.Mutex

	cfg      BackoffConfig
	attempts int

	// Random source for jitter
	rng *rand.Rand
}

// NewBackoff creates a backoff tracker with the default policy.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{})
}

// NewBackoffWithConfig creates a backoff tracker with custom settings.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	return &Backoff{
		cfg: cfg.withDefaults(),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay for the current attempt and advances the counter.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.addJitter(DelayWithConfig(b.cfg, b.attempts))
	b.attempts++
	return delay
}

// Peek returns the delay the next call to Next would use, without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return DelayWithConfig(b.cfg, b.attempts)
}

// Reset resets the attempt counter.
// Call this after a successful handshake, not after a transport open.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// addJitter adds random jitter to a delay.
func (b *Backoff) addJitter(d time.Duration) time.Duration {
	if b.cfg.Jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.cfg.Jitter*b.rng.Float64())
}

// BackoffSequence returns the default delays from the first attempt up to
// and including the first capped value.
func BackoffSequence() []time.Duration {
	return []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // max
	}
}
