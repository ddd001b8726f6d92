package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines per-device session limits.
type Config struct {
	// HandshakeTimeout bounds connecting -> connected; zero disables the bound.
	HandshakeTimeout time.Duration
	// MaxHandshakeChecks bounds the number of gate checks that see no new
	// handshake input; zero disables the bound.
	MaxHandshakeChecks int
	// RequestRetry is the minimum gap before an unanswered handshake request
	// is sent again.
	RequestRetry time.Duration
	PingInterval time.Duration
	PingTimeout  time.Duration
	Backoff      BackoffConfig
}

// DefaultConfig returns the stock session limits.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:   15 * time.Second,
		MaxHandshakeChecks: 64,
		RequestRetry:       time.Second,
		PingInterval:       2 * time.Second,
		PingTimeout:        6 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.HandshakeTimeout < 0 {
		c.HandshakeTimeout = 0
	}
	if c.MaxHandshakeChecks < 0 {
		c.MaxHandshakeChecks = 0
	}
	if c.RequestRetry <= 0 {
		c.RequestRetry = def.RequestRetry
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = def.PingTimeout
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
