package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/daqlink/internal/protocol/frame"
)

var ErrInvalidConfig = errors.New("session: invalid config")

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport reliability defaults.
type Config struct {
	ConnectTimeout time.Duration
	// AcceptWindow bounds one listener accept attempt before the loop re-checks for stop.
	AcceptWindow     time.Duration
	FrameReadTimeout time.Duration
	WriteTimeout     time.Duration
	// HeartbeatInterval is the send-idle time after which a no-op is queued.
	HeartbeatInterval time.Duration
	// SessionDeadAfter is the receive-idle time after which the peer is presumed gone.
	SessionDeadAfter time.Duration
	PollInterval     time.Duration
	Limits           frame.Limits
	Backoff          BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    5 * time.Second,
		AcceptWindow:      10 * time.Second,
		FrameReadTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		SessionDeadAfter:  15 * time.Second,
		PollInterval:      100 * time.Millisecond,
		Limits:            frame.DefaultLimits(),
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.AcceptWindow <= 0 {
		c.AcceptWindow = d.AcceptWindow
	}
	if c.FrameReadTimeout <= 0 {
		c.FrameReadTimeout = d.FrameReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.SessionDeadAfter <= 0 {
		c.SessionDeadAfter = d.SessionDeadAfter
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Limits.MaxFrameBytes == 0 {
		c.Limits = d.Limits
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}

func (c Config) Validate() error {
	if c.SessionDeadAfter <= c.HeartbeatInterval {
		return fmt.Errorf("%w: dead_after %v must exceed heartbeat %v", ErrInvalidConfig, c.SessionDeadAfter, c.HeartbeatInterval)
	}
	if c.PollInterval >= c.HeartbeatInterval {
		return fmt.Errorf("%w: poll interval %v must be below heartbeat %v", ErrInvalidConfig, c.PollInterval, c.HeartbeatInterval)
	}
	return nil
}
