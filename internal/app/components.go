package app

import (
	"sort"
	"sync"

	"github.com/danmuck/daqlink/internal/observability"
	"github.com/danmuck/daqlink/internal/protocol/session"
	"github.com/danmuck/daqlink/internal/provider"
)

// Component is one status source shown on the admin surface.
type Component interface {
	Name() string
	Ready() bool
	Status() any
}

// Components stores status sources by name.
type Components struct {
	mu   sync.RWMutex
	repo map[string]Component
}

var _ observability.StatusReporter = (*Components)(nil)

func NewComponents() *Components {
	return &Components{repo: make(map[string]Component)}
}

// Register adds c, replacing any component with the same name.
func (cs *Components) Register(c Component) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.repo[c.Name()] = c
}

func (cs *Components) Get(name string) (Component, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	c, ok := cs.repo[name]
	return c, ok
}

// Names returns registered names in sorted order.
func (cs *Components) Names() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]string, 0, len(cs.repo))
	for name := range cs.repo {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Ready is true when at least one component is registered and all are ready.
func (cs *Components) Ready() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if len(cs.repo) == 0 {
		return false
	}
	for _, c := range cs.repo {
		if !c.Ready() {
			return false
		}
	}
	return true
}

func (cs *Components) Status() any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.repo))
	for name, c := range cs.repo {
		out[name] = c.Status()
	}
	return out
}

// ProviderComponent reports a provider and, when present, the session carrying it.
type ProviderComponent struct {
	Label    string
	Provider provider.Provider
	Session  func() session.Status
}

// ProviderStatus is the /status view of a ProviderComponent.
type ProviderStatus struct {
	Provider provider.Snapshot `json:"provider"`
	Session  *session.Status   `json:"session,omitempty"`
}

func (p ProviderComponent) Name() string { return p.Label }

// Ready requires a usable provider and, for remote setups, a live connection.
func (p ProviderComponent) Ready() bool {
	switch p.Provider.State() {
	case provider.Ready, provider.Working:
	default:
		return false
	}
	return p.Session == nil || p.Session().Connected
}

func (p ProviderComponent) Status() any {
	out := ProviderStatus{Provider: p.Provider.Snapshot()}
	if p.Session != nil {
		s := p.Session()
		out.Session = &s
	}
	return out
}
