package provider

import (
	"fmt"
	"slices"
)

// ChannelConfig holds the selected acquisition parameters and the sets they are
// chosen from. Available sets are fixed at construction; every selected value is
// always a member of its set. Not safe for concurrent use; owners guard it.
type ChannelConfig struct {
	channels      []string
	bufferSizes   []int
	samplingRates []int

	channel      string
	bufferSize   int
	samplingRate int
}

// NewChannelConfig selects the first element of each set.
func NewChannelConfig(channels []string, bufferSizes, samplingRates []int) (*ChannelConfig, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: channels", ErrEmptyAvailableSet)
	}
	if len(bufferSizes) == 0 {
		return nil, fmt.Errorf("%w: buffer sizes", ErrEmptyAvailableSet)
	}
	if len(samplingRates) == 0 {
		return nil, fmt.Errorf("%w: sampling rates", ErrEmptyAvailableSet)
	}
	return &ChannelConfig{
		channels:      slices.Clone(channels),
		bufferSizes:   slices.Clone(bufferSizes),
		samplingRates: slices.Clone(samplingRates),
		channel:       channels[0],
		bufferSize:    bufferSizes[0],
		samplingRate:  samplingRates[0],
	}, nil
}

func (c *ChannelConfig) Channel() string   { return c.channel }
func (c *ChannelConfig) BufferSize() int   { return c.bufferSize }
func (c *ChannelConfig) SamplingRate() int { return c.samplingRate }

func (c *ChannelConfig) Channels() []string   { return slices.Clone(c.channels) }
func (c *ChannelConfig) BufferSizes() []int   { return slices.Clone(c.bufferSizes) }
func (c *ChannelConfig) SamplingRates() []int { return slices.Clone(c.samplingRates) }

// CheckChannel validates name without applying it.
func (c *ChannelConfig) CheckChannel(name string) error {
	if !slices.Contains(c.channels, name) {
		return fmt.Errorf("%w: channel %q", ErrNotAvailable, name)
	}
	return nil
}

func (c *ChannelConfig) CheckBufferSize(n int) error {
	if !slices.Contains(c.bufferSizes, n) {
		return fmt.Errorf("%w: buffer size %d", ErrNotAvailable, n)
	}
	return nil
}

func (c *ChannelConfig) CheckSamplingRate(n int) error {
	if !slices.Contains(c.samplingRates, n) {
		return fmt.Errorf("%w: sampling rate %d", ErrNotAvailable, n)
	}
	return nil
}

func (c *ChannelConfig) SetChannel(name string) error {
	if err := c.CheckChannel(name); err != nil {
		return err
	}
	c.channel = name
	return nil
}

func (c *ChannelConfig) SetBufferSize(n int) error {
	if err := c.CheckBufferSize(n); err != nil {
		return err
	}
	c.bufferSize = n
	return nil
}

func (c *ChannelConfig) SetSamplingRate(n int) error {
	if err := c.CheckSamplingRate(n); err != nil {
		return err
	}
	c.samplingRate = n
	return nil
}

// Fill copies the configuration into s.
func (c *ChannelConfig) Fill(s *Snapshot) {
	s.Channel = c.channel
	s.BufferSize = c.bufferSize
	s.SamplingRate = c.samplingRate
	s.Channels = c.Channels()
	s.BufferSizes = c.BufferSizes()
	s.SamplingRates = c.SamplingRates()
}
