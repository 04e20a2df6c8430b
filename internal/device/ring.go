package device

import (
	"fmt"
	"sync"

	"github.com/danmuck/daqlink/internal/acquisition"
)

// DefaultRingCapacity holds a little over two seconds at the highest hardware rate.
const DefaultRingCapacity = 1 << 16

// RingSource adapts a push-style feed to acquisition.Generator. Pushed samples
// are numbered from the last Rebase; reads outside the retained window return
// zero and are counted as gaps.
type RingSource struct {
	mu      sync.Mutex
	buf     []float32
	written int64
	base    int64
	gaps    uint64
	fault   error
}

func NewRingSource(capacity int) *RingSource {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &RingSource{buf: make([]float32, capacity)}
}

// Push appends samples delivered by the source callback.
func (r *RingSource) Push(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := int64(len(r.buf))
	for _, s := range samples {
		r.buf[r.written%c] = s
		r.written++
	}
}

// Rebase makes the next pushed sample index zero.
func (r *RingSource) Rebase() {
	r.mu.Lock()
	r.base = r.written
	r.gaps = 0
	r.mu.Unlock()
}

func (r *RingSource) Sample(index int64, _ int) float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	abs := r.base + index
	c := int64(len(r.buf))
	if abs >= r.written || abs < r.written-c {
		r.gaps++
		return 0
	}
	return r.buf[abs%c]
}

// Gaps counts reads that were not yet pushed or already overwritten.
func (r *RingSource) Gaps() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gaps
}

// Fail records an unrecoverable source fault; the running stream ends at its next buffer.
func (r *RingSource) Fail(err error) {
	r.mu.Lock()
	r.fault = err
	r.mu.Unlock()
}

func (r *RingSource) Fault() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fault
}

// PushDevice exposes one RingSource per hardware channel.
type PushDevice struct {
	caps    Capabilities
	sources map[string]*RingSource
}

func NewPushDevice(caps Capabilities, capacity int) (*PushDevice, error) {
	if len(caps.Channels) == 0 {
		return nil, ErrNoChannels
	}
	d := &PushDevice{caps: caps, sources: make(map[string]*RingSource, len(caps.Channels))}
	for _, name := range caps.Channels {
		if _, ok := d.sources[name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrChannelExists, name)
		}
		d.sources[name] = NewRingSource(capacity)
	}
	return d, nil
}

func (d *PushDevice) Capabilities() Capabilities {
	return d.caps
}

// Source returns the ring fed for channel.
func (d *PushDevice) Source(channel string) (*RingSource, bool) {
	s, ok := d.sources[channel]
	return s, ok
}

// Push forwards a raw sample array to channel.
func (d *PushDevice) Push(channel string, samples []float32) error {
	s, ok := d.sources[channel]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	s.Push(samples)
	return nil
}

func (d *PushDevice) Generator(channel string) (acquisition.Generator, error) {
	s, ok := d.sources[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	s.Rebase()
	return s, nil
}
