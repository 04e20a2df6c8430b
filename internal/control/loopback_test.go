package control

import (
	"testing"
	"time"

	"github.com/danmuck/daqlink/internal/device"
	"github.com/danmuck/daqlink/internal/protocol/message"
	"github.com/danmuck/daqlink/internal/protocol/session"
	"github.com/danmuck/daqlink/internal/provider"
	"github.com/danmuck/daqlink/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopbackConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.HeartbeatInterval = 100 * time.Millisecond
	cfg.SessionDeadAfter = 500 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	cfg.AcceptWindow = 100 * time.Millisecond
	cfg.FrameReadTimeout = 300 * time.Millisecond
	cfg.WriteTimeout = time.Second
	cfg.Backoff = session.BackoffConfig{InitialDelay: 20 * time.Millisecond, Multiplier: 1, MaxDelay: 20 * time.Millisecond}
	return cfg
}

type loopback struct {
	remote    *RemoteProvider
	listener  *session.Listener
	consumer  *recordingConsumer
	remoteObs *countingObserver

	proxy     *Proxy
	initiator *session.Initiator
	device    *device.Provider
}

func newLoopback(t *testing.T) *loopback {
	t.Helper()
	logger := testlog.Start(t)
	lb := &loopback{consumer: &recordingConsumer{}, remoteObs: newCountingObserver()}

	ln, err := session.NewListener("consumer", "127.0.0.1:0", loopbackConfig(), logger, nil)
	require.NoError(t, err)
	lb.listener = ln
	lb.remote = NewRemoteProvider(ln, message.Default, logger, lb.remoteObs)
	lb.remote.Subscribe(lb.consumer)
	require.NoError(t, lb.remote.Initialize())
	t.Cleanup(lb.remote.Close)

	in, err := session.NewInitiator("producer", ln.Addr().String(), loopbackConfig(), logger, nil)
	require.NoError(t, err)
	lb.initiator = in
	lb.device = device.NewProvider(device.NewSynthetic(), device.Options{Name: "synthetic"}, logger)
	require.NoError(t, lb.device.Initialize())
	lb.proxy = NewProxy(in, lb.device, message.Default, logger, nil)
	require.NoError(t, lb.proxy.Start())
	t.Cleanup(lb.proxy.Stop)
	return lb
}

func (lb *loopback) waitSynced(t *testing.T, pushes int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return lb.remoteObs.get("consumer/sampling_rate_set") >= pushes
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLoopbackSynchronizesAndStreams(t *testing.T) {
	lb := newLoopback(t)
	lb.waitSynced(t, 1)

	assert.Equal(t, provider.Ready, lb.remote.State())
	assert.Equal(t, device.NewSynthetic().Capabilities().Channels, lb.remote.AvailableChannels())
	assert.Equal(t, 128, lb.remote.SelectedBufferSize())
	assert.Equal(t, float32(-1), lb.remote.MinValue())

	require.NoError(t, lb.remote.SetSelectedSamplingRate(16384))
	require.Eventually(t, func() bool { return lb.device.SelectedSamplingRate() == 16384 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, lb.remote.Start())
	require.Eventually(t, func() bool {
		lb.consumer.mu.Lock()
		defer lb.consumer.mu.Unlock()
		return len(lb.consumer.indexes) >= 8
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, provider.Working, lb.remote.State())

	lb.remote.Stop()
	require.Eventually(t, func() bool { return lb.device.State() == provider.Ready }, 2*time.Second, 10*time.Millisecond)

	lb.consumer.mu.Lock()
	for i, idx := range lb.consumer.indexes {
		assert.Equal(t, uint64(i*128), idx)
	}
	lb.consumer.mu.Unlock()
	events := lb.consumer.take()
	require.NotEmpty(t, events)
	assert.Equal(t, "reset", events[0])
	assert.Equal(t, "started", events[1])
	assert.Equal(t, "ended", events[len(events)-1])
}

func TestLoopbackReconnectRepushesConfiguration(t *testing.T) {
	lb := newLoopback(t)
	lb.waitSynced(t, 1)
	require.NoError(t, lb.remote.Start())
	require.Eventually(t, func() bool { return lb.consumer.has("started") }, 3*time.Second, 10*time.Millisecond)
	lb.consumer.take()

	// drop the producer's connection
	lb.initiator.Stop()
	require.Eventually(t, func() bool { return lb.remote.State() == provider.NotReady }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"ended"}, lb.consumer.take())
	assert.Equal(t, provider.Ready, lb.device.State())

	require.NoError(t, lb.initiator.Start())
	lb.waitSynced(t, 2)
	assert.Equal(t, provider.Ready, lb.remote.State())

	// one full push per connection, nothing more
	time.Sleep(200 * time.Millisecond)
	for _, kind := range []string{"min_max_value_info", "channel_info", "buffer_size_info", "sampling_rate_info", "channel_set", "buffer_size_set", "sampling_rate_set"} {
		assert.Equal(t, 2, lb.remoteObs.get("consumer/"+kind), kind)
	}
	assert.Equal(t, uint64(1), lb.listener.Status().Resets)
}

func TestLoopbackUnknownTypeKeepsSession(t *testing.T) {
	lb := newLoopback(t)
	lb.waitSynced(t, 1)

	require.True(t, lb.initiator.Push(message.Tagged{Type: 77, Payload: []byte("future")}))
	require.True(t, lb.initiator.Push(message.Tagged{Type: MsgChannelSet, Payload: []byte("saw")}))

	require.Eventually(t, func() bool { return lb.remote.SelectedChannel() == "saw" }, 2*time.Second, 10*time.Millisecond)
	lb.remoteObs.mu.Lock()
	assert.Equal(t, 1, lb.remoteObs.unknown)
	lb.remoteObs.mu.Unlock()
	assert.Equal(t, uint64(0), lb.listener.Status().Resets)
	assert.True(t, lb.listener.Connected())
}

func TestLoopbackMalformedMessageResetsAndResyncs(t *testing.T) {
	lb := newLoopback(t)
	lb.waitSynced(t, 1)

	require.True(t, lb.initiator.Push(message.Tagged{Type: MsgBufferSizeSet, Payload: []byte{1}}))
	lb.waitSynced(t, 2)
	assert.GreaterOrEqual(t, lb.listener.Status().Resets, uint64(1))
	lb.remoteObs.mu.Lock()
	assert.Equal(t, 1, lb.remoteObs.decode)
	lb.remoteObs.mu.Unlock()
}
