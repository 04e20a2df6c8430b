package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/daqlink/internal/acquisition"
)

var (
	ErrChannelExists   = errors.New("device: channel already registered")
	ErrChannelNil      = errors.New("device: channel generator is nil")
	ErrInvalidChannel  = errors.New("device: invalid channel name")
	ErrUnknownChannel  = errors.New("device: unknown channel")
	ErrNoChannels      = errors.New("device: no channels")
	ErrInvalidRateSpan = errors.New("device: invalid sampling rate span")
)

// Registry maps channel names to generators, keeping registration order.
type Registry struct {
	items map[string]acquisition.Generator
	order []string
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]acquisition.Generator)}
}

// Register adds a channel.
func (r *Registry) Register(name string, gen acquisition.Generator) error {
	if gen == nil {
		return ErrChannelNil
	}
	if strings.TrimSpace(name) == "" || name != strings.TrimSpace(name) {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, name)
	}
	if _, ok := r.items[name]; ok {
		return fmt.Errorf("%w: %q", ErrChannelExists, name)
	}
	r.items[name] = gen
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Resolve(name string) (acquisition.Generator, bool) {
	gen, ok := r.items[name]
	return gen, ok
}

// Names returns channel names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	return len(r.order)
}
