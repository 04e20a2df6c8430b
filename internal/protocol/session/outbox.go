package session

import (
	"sync"

	"github.com/danmuck/daqlink/internal/protocol/message"
)

// Outbox is an unbounded FIFO of messages waiting for the connection worker.
// Producers on any goroutine Push; the worker drains on Ready.
type Outbox struct {
	mu    sync.Mutex
	items []message.Tagged
	ready chan struct{}
}

func NewOutbox() *Outbox {
	return &Outbox{
		items: make([]message.Tagged, 0, 16),
		ready: make(chan struct{}, 1),
	}
}

func (o *Outbox) Push(m message.Tagged) {
	o.mu.Lock()
	o.items = append(o.items, m)
	o.mu.Unlock()
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

// Drain removes and returns every queued message in push order.
func (o *Outbox) Drain() []message.Tagged {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) == 0 {
		return nil
	}
	out := o.items
	o.items = make([]message.Tagged, 0, cap(out))
	return out
}

func (o *Outbox) Clear() {
	o.mu.Lock()
	o.items = o.items[:0]
	o.mu.Unlock()
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Ready is signalled at least once after any Push.
func (o *Outbox) Ready() <-chan struct{} {
	return o.ready
}
