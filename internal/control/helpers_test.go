package control

import (
	"sync"
	"testing"
	"time"

	"github.com/danmuck/daqlink/internal/protocol/message"
	"github.com/danmuck/daqlink/internal/protocol/session"
	"github.com/danmuck/daqlink/internal/provider"
	"github.com/stretchr/testify/require"
)

// fakeTransport records pushes and lets tests drive callbacks synchronously.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	started   int
	stopped   int
	pushed    []message.Tagged
	startErr  error

	onConnected    func()
	onDisconnected func()
	onMessage      session.MessageHandler
}

var _ session.Transport = (*fakeTransport)(nil)

func (f *fakeTransport) Start() error {
	f.mu.Lock()
	f.started++
	f.mu.Unlock()
	return f.startErr
}

func (f *fakeTransport) Stop() {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
}

func (f *fakeTransport) Push(m message.Tagged) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return false
	}
	f.pushed = append(f.pushed, m)
	return true
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Status() session.Status {
	return session.Status{Name: "fake", Connected: f.Connected()}
}

func (f *fakeTransport) OnConnected(fn func())               { f.onConnected = fn }
func (f *fakeTransport) OnDisconnected(fn func())            { f.onDisconnected = fn }
func (f *fakeTransport) OnMessage(fn session.MessageHandler) { f.onMessage = fn }

func (f *fakeTransport) connect() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.onConnected()
}

func (f *fakeTransport) disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.onDisconnected()
}

func (f *fakeTransport) deliver(t *testing.T, typ message.Type, m message.Message) error {
	t.Helper()
	tagged, err := message.Encode(typ, m)
	require.NoError(t, err)
	return f.onMessage(tagged)
}

// take returns and clears pushed messages, skipping data packets when control is set.
func (f *fakeTransport) take(controlOnly bool) []message.Tagged {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]message.Tagged, 0, len(f.pushed))
	for _, m := range f.pushed {
		if controlOnly && m.Type == MsgDataPacket {
			continue
		}
		out = append(out, m)
	}
	f.pushed = nil
	return out
}

func (f *fakeTransport) count(typ message.Type) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.pushed {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func types(ms []message.Tagged) []message.Type {
	out := make([]message.Type, len(ms))
	for i, m := range ms {
		out[i] = m.Type
	}
	return out
}

type countingObserver struct {
	mu       sync.Mutex
	handled  map[string]int
	unknown  int
	decode   int
	rejected int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{handled: make(map[string]int)}
}

func (o *countingObserver) MessageHandled(side, kind string) {
	o.mu.Lock()
	o.handled[side+"/"+kind]++
	o.mu.Unlock()
}

func (o *countingObserver) UnknownMessage(string) {
	o.mu.Lock()
	o.unknown++
	o.mu.Unlock()
}

func (o *countingObserver) DecodeFailed(string) {
	o.mu.Lock()
	o.decode++
	o.mu.Unlock()
}

func (o *countingObserver) SettingRejected(string, string) {
	o.mu.Lock()
	o.rejected++
	o.mu.Unlock()
}

func (o *countingObserver) get(key string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.handled[key]
}

type recordingConsumer struct {
	mu       sync.Mutex
	events   []string
	indexes  []uint64
	last     provider.Snapshot
	settings int
}

func (c *recordingConsumer) record(ev string) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *recordingConsumer) OnSettingsChange(s provider.Snapshot) {
	c.mu.Lock()
	c.last = s
	c.settings++
	c.mu.Unlock()
}

func (c *recordingConsumer) ReceiveData(index uint64, samples []float32) {
	c.mu.Lock()
	c.indexes = append(c.indexes, index)
	c.mu.Unlock()
	c.record("data")
}

func (c *recordingConsumer) DataStreamStarted(time.Time) { c.record("started") }
func (c *recordingConsumer) DataStreamEnded()            { c.record("ended") }
func (c *recordingConsumer) ResetIndex()                 { c.record("reset") }

func (c *recordingConsumer) take() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

func (c *recordingConsumer) has(ev string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e == ev {
			return true
		}
	}
	return false
}

func (c *recordingConsumer) snapshot() provider.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
