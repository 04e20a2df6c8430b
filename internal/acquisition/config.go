package acquisition

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMaxSamples ends a stream on its own once this many samples were produced.
	DefaultMaxSamples int64 = 32_000_000
	// DefaultMaxSleep bounds a single wait so stop requests are seen promptly.
	DefaultMaxSleep = 500 * time.Millisecond
)

var (
	ErrInvalidConfig  = errors.New("acquisition: invalid config")
	ErrAlreadyRunning = errors.New("acquisition: pacer already running")
	ErrSampleLimit    = errors.New("acquisition: sample limit reached")
)

// Config describes one stream.
type Config struct {
	SamplingRate int
	BufferSize   int
	// MaxSamples caps the stream length. Zero selects DefaultMaxSamples, negative disables the cap.
	MaxSamples int64
	MaxSleep   time.Duration
}

func (c Config) WithDefaults() Config {
	if c.MaxSamples == 0 {
		c.MaxSamples = DefaultMaxSamples
	}
	if c.MaxSleep <= 0 {
		c.MaxSleep = DefaultMaxSleep
	}
	return c
}

func (c Config) Validate() error {
	if c.SamplingRate <= 0 {
		return fmt.Errorf("%w: sampling rate %d", ErrInvalidConfig, c.SamplingRate)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("%w: buffer size %d", ErrInvalidConfig, c.BufferSize)
	}
	return nil
}

// BufferDuration is the wall-clock span covered by one buffer.
func (c Config) BufferDuration() time.Duration {
	return time.Duration(float64(c.BufferSize) / float64(c.SamplingRate) * float64(time.Second))
}

// deadline is the stream-relative time at which samples up to end are due.
func (c Config) deadline(end int64) time.Duration {
	return time.Duration(float64(end) / float64(c.SamplingRate) * float64(time.Second))
}
