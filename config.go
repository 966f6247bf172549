package floodsub

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// defaultCacheTTL is the duplicate-suppression cache's default
	// validity window.
	defaultCacheTTL = 120 * time.Second

	// defaultCacheSize bounds the duplicate-suppression cache so a burst
	// of unique messages cannot grow it unboundedly before entries age
	// out.
	defaultCacheSize = 4096

	// defaultSendBuffer is the per-peer outbound RPC queue depth.
	defaultSendBuffer = 32

	// protocolID is the substrate protocol identifier this engine
	// registers and dials.
	protocolID = "/multicast/0.0.1"
)

// Config holds the engine's tunables. Build one with DefaultConfig and
// apply Options.
type Config struct {
	cacheTTL   time.Duration
	cacheSize  int
	sendBuffer int
	clock      clock.Clock
	logger     *slog.Logger
	protocolID string
}

// Option mutates a Config at construction time.
type Option func(*Config)

// DefaultConfig returns the configuration New uses when no options are
// supplied.
func DefaultConfig() Config {
	return Config{
		cacheTTL:   defaultCacheTTL,
		cacheSize:  defaultCacheSize,
		sendBuffer: defaultSendBuffer,
		clock:      clock.New(),
		logger:     defaultLogger(),
		protocolID: protocolID,
	}
}

// WithCacheTTL overrides the duplicate-suppression cache's validity
// window.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Config) { c.cacheTTL = d }
}

// WithCacheSize bounds the number of live entries the duplicate-
// suppression cache retains.
func WithCacheSize(n int) Option {
	return func(c *Config) { c.cacheSize = n }
}

// WithSendBuffer sets the per-peer outbound RPC queue depth.
func WithSendBuffer(n int) Option {
	return func(c *Config) { c.sendBuffer = n }
}

// WithClock injects the clock the duplicate-suppression cache uses to
// stamp and expire entries; tests use this to make eviction deterministic.
func WithClock(c clock.Clock) Option {
	return func(cfg *Config) { cfg.clock = c }
}

// WithLogger installs a structured logger. Internal log points attach
// peer and topic attributes.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l == nil {
			c.logger = defaultLogger()
			return
		}
		c.logger = l
	}
}

// WithProtocolID overrides the substrate protocol identifier. Intended
// for tests that need to run two independent engines in the same process
// against fake Host implementations without colliding.
func WithProtocolID(id string) Option {
	return func(c *Config) { c.protocolID = id }
}
