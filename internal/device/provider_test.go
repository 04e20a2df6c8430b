package device

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/daqlink/internal/provider"
	"github.com/danmuck/daqlink/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConsumer struct {
	mu      sync.Mutex
	events  []string
	indexes []uint64
	last    provider.Snapshot
	ended   chan struct{}
}

func newRecordingConsumer() *recordingConsumer {
	return &recordingConsumer{ended: make(chan struct{}, 8)}
}

func (c *recordingConsumer) record(ev string) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *recordingConsumer) OnSettingsChange(s provider.Snapshot) {
	c.mu.Lock()
	c.last = s
	c.mu.Unlock()
	c.record("settings")
}

func (c *recordingConsumer) ReceiveData(index uint64, samples []float32) {
	c.mu.Lock()
	c.indexes = append(c.indexes, index)
	c.mu.Unlock()
}

func (c *recordingConsumer) DataStreamStarted(time.Time) { c.record("started") }
func (c *recordingConsumer) ResetIndex()                 { c.record("reset") }

func (c *recordingConsumer) DataStreamEnded() {
	c.record("ended")
	c.ended <- struct{}{}
}

func (c *recordingConsumer) take() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

func (c *recordingConsumer) waitFor(t *testing.T, ev string) {
	t.Helper()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, e := range c.events {
			if e == ev {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func (c *recordingConsumer) dataCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.indexes)
}

func newSyntheticProvider(t *testing.T, opts Options) (*Provider, *recordingConsumer) {
	t.Helper()
	p := NewProvider(NewSynthetic(), opts, testlog.Start(t))
	c := newRecordingConsumer()
	p.Subscribe(c)
	t.Cleanup(p.Stop)
	return p, c
}

func TestProviderStartBeforeInitialize(t *testing.T) {
	p, c := newSyntheticProvider(t, Options{})
	assert.ErrorIs(t, p.Start(), provider.ErrNotInitialized)
	assert.ErrorIs(t, p.SetSelectedBufferSize(256), provider.ErrNotInitialized)
	assert.Equal(t, provider.Uninitialized, p.State())

	require.NoError(t, p.Initialize())
	assert.ErrorIs(t, p.Initialize(), provider.ErrAlreadyInitialized)
	assert.Equal(t, provider.Ready, p.State())
	assert.Equal(t, []string{"settings"}, c.take())

	assert.Equal(t, ChannelSin, p.SelectedChannel())
	assert.Equal(t, 128, p.SelectedBufferSize())
	assert.Equal(t, 1024, p.SelectedSamplingRate())
	assert.Equal(t, float32(-1), p.MinValue())
	assert.Equal(t, float32(1), p.MaxValue())
}

func TestProviderStopWhenIdleIsNoop(t *testing.T) {
	p, c := newSyntheticProvider(t, Options{})
	require.NoError(t, p.Initialize())
	c.take()

	p.Stop()
	assert.Empty(t, c.take())
	assert.Equal(t, provider.Ready, p.State())
}

func TestProviderStreams(t *testing.T) {
	p, c := newSyntheticProvider(t, Options{})
	require.NoError(t, p.Initialize())
	require.NoError(t, p.SetSelectedSamplingRate(16384))
	c.take()

	require.NoError(t, p.Start())
	assert.Equal(t, provider.Working, p.State())
	require.Eventually(t, func() bool { return c.dataCount() >= 4 }, 2*time.Second, 10*time.Millisecond)
	p.Stop()

	assert.Equal(t, provider.Ready, p.State())
	assert.Equal(t, []string{"reset", "started", "ended"}, c.take())
	c.mu.Lock()
	for i, idx := range c.indexes {
		assert.Equal(t, uint64(i*128), idx)
	}
	c.mu.Unlock()
}

func TestProviderSettingWhileWorkingStopsFirst(t *testing.T) {
	p, c := newSyntheticProvider(t, Options{})
	require.NoError(t, p.Initialize())
	require.NoError(t, p.Start())
	c.waitFor(t, "started")
	c.take()

	require.NoError(t, p.SetSelectedBufferSize(512))
	assert.Equal(t, []string{"ended", "settings"}, c.take())
	assert.Equal(t, provider.Ready, p.State())
	assert.Equal(t, 512, p.SelectedBufferSize())

	c.mu.Lock()
	assert.Equal(t, 512, c.last.BufferSize)
	assert.Equal(t, provider.Ready, c.last.State)
	c.mu.Unlock()
}

func TestProviderRejectedSettingKeepsStream(t *testing.T) {
	p, c := newSyntheticProvider(t, Options{})
	require.NoError(t, p.Initialize())
	require.NoError(t, p.Start())
	c.waitFor(t, "started")
	c.take()

	assert.ErrorIs(t, p.SetSelectedSamplingRate(1000), provider.ErrNotAvailable)
	assert.ErrorIs(t, p.SetSelectedChannel("triangle"), provider.ErrNotAvailable)
	assert.Empty(t, c.take())
	assert.Equal(t, provider.Working, p.State())
	assert.Equal(t, 1024, p.SelectedSamplingRate())
}

func TestProviderStartWhileWorkingRestarts(t *testing.T) {
	p, c := newSyntheticProvider(t, Options{})
	require.NoError(t, p.Initialize())
	require.NoError(t, p.Start())
	require.NoError(t, p.Start())
	p.Stop()
	assert.Equal(t, []string{
		"settings",
		"reset", "started", "ended",
		"reset", "started", "ended",
	}, c.take())
}

func TestProviderSampleLimitReturnsToReady(t *testing.T) {
	p, c := newSyntheticProvider(t, Options{MaxSamples: 512})
	require.NoError(t, p.Initialize())
	require.NoError(t, p.SetSelectedSamplingRate(16384))
	require.NoError(t, p.Start())

	select {
	case <-c.ended:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end at the sample limit")
	}
	assert.Equal(t, provider.Ready, p.State())
	assert.Equal(t, 4, c.dataCount())
}

func TestProviderSourceFaultIsSticky(t *testing.T) {
	caps, err := HardwareCapabilities([]string{"ai0"}, 8192, 8192, -5, 5)
	require.NoError(t, err)
	dev, err := NewPushDevice(caps, 0)
	require.NoError(t, err)

	p := NewProvider(dev, Options{Name: "daq"}, testlog.Start(t))
	c := newRecordingConsumer()
	p.Subscribe(c)
	t.Cleanup(p.Stop)
	require.NoError(t, p.Initialize())
	assert.Equal(t, 256, p.SelectedBufferSize())
	assert.Equal(t, 8192, p.SelectedSamplingRate())
	require.NoError(t, p.Start())

	src, ok := dev.Source("ai0")
	require.True(t, ok)
	src.Fail(errors.New("daq removed"))

	select {
	case <-c.ended:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end on source fault")
	}
	assert.Equal(t, provider.Error, p.State())
	assert.ErrorIs(t, p.Start(), provider.ErrFaulted)
	assert.ErrorIs(t, p.SetSelectedBufferSize(512), provider.ErrFaulted)
}

type countingObserver struct {
	mu      sync.Mutex
	started int
	ended   []string
	samples int
}

func (o *countingObserver) StreamStarted(string) {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
}

func (o *countingObserver) StreamEnded(_ string, reason string) {
	o.mu.Lock()
	o.ended = append(o.ended, reason)
	o.mu.Unlock()
}

func (o *countingObserver) BufferProduced(_ string, n int) {
	o.mu.Lock()
	o.samples += n
	o.mu.Unlock()
}

func TestProviderReportsToObserver(t *testing.T) {
	obs := &countingObserver{}
	p, c := newSyntheticProvider(t, Options{MaxSamples: 256, Observer: obs})
	require.NoError(t, p.Initialize())
	require.NoError(t, p.SetSelectedSamplingRate(16384))
	require.NoError(t, p.Start())
	<-c.ended

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 1, obs.started)
	assert.Equal(t, []string{EndLimit}, obs.ended)
	assert.Equal(t, 256, obs.samples)
}

// slowEndConsumer holds up the first DataStreamEnded.
type slowEndConsumer struct {
	*recordingConsumer
	delay time.Duration
	once  sync.Once
}

func (c *slowEndConsumer) DataStreamEnded() {
	c.once.Do(func() { time.Sleep(c.delay) })
	c.recordingConsumer.DataStreamEnded()
}

func TestRestartAfterSampleLimitWaitsForStreamEnd(t *testing.T) {
	p := NewProvider(NewSynthetic(), Options{Name: "synthetic", MaxSamples: 256}, testlog.Start(t))
	c := &slowEndConsumer{recordingConsumer: newRecordingConsumer(), delay: 150 * time.Millisecond}
	p.Subscribe(c)
	require.NoError(t, p.Initialize())
	require.NoError(t, p.SetSelectedSamplingRate(16384))
	t.Cleanup(p.Stop)

	require.NoError(t, p.Start())
	require.Eventually(t, func() bool { return p.State() == provider.Ready }, 2*time.Second, time.Millisecond)
	require.NoError(t, p.Start())
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		n := 0
		for _, e := range c.events {
			if e == "started" {
				n++
			}
		}
		return n == 2
	}, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	var lifecycle []string
	for _, ev := range c.take() {
		if ev == "started" || ev == "ended" {
			lifecycle = append(lifecycle, ev)
		}
	}
	assert.Equal(t, []string{"started", "ended", "started", "ended"}, lifecycle)
}
