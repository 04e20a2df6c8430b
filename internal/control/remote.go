package control

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/danmuck/daqlink/internal/protocol/message"
	"github.com/danmuck/daqlink/internal/protocol/session"
	"github.com/danmuck/daqlink/internal/provider"
	"github.com/rs/zerolog"
)

// RemoteProvider mirrors a producer across a transport. Configuration is
// cached from what the producer pushes; the producer stays authoritative and
// every setter is confirmed by its echo.
//
// Consumer callbacks must not call Stop or a setter; those wait on the same
// ordering lock that delivery holds.
type RemoteProvider struct {
	endpoint
	sm *provider.StateMachine
	// streamMu orders stream transitions against delivery so ReceiveData never
	// follows DataStreamEnded.
	streamMu sync.Mutex

	mu       sync.Mutex
	consumer provider.Consumer
	cfg      remoteConfig
}

type remoteConfig struct {
	channels      []string
	bufferSizes   []int
	samplingRates []int
	channel       string
	bufferSize    int
	samplingRate  int
	min, max      float32
}

var _ provider.Provider = (*RemoteProvider)(nil)

func NewRemoteProvider(t session.Transport, codec message.Codec, logger zerolog.Logger, obs Observer) *RemoteProvider {
	r := &RemoteProvider{
		endpoint: newEndpoint("consumer", t, codec, logger, obs),
		sm:       provider.NewStateMachine(),
	}
	t.OnConnected(r.onConnected)
	t.OnDisconnected(r.onDisconnected)
	t.OnMessage(r.handle)
	return r
}

// Initialize starts the transport. The provider is NotReady until a producer
// connects. A transport that cannot start leaves the provider in Error.
func (r *RemoteProvider) Initialize() error {
	if !r.sm.CompareAndTransition(provider.Uninitialized, provider.NotReady) {
		return provider.ErrAlreadyInitialized
	}
	if err := r.transport.Start(); err != nil {
		r.log.Error().Err(err).Msg("transport failed to start")
		r.sm.Fail()
		return err
	}
	return nil
}

// Close stops the transport. The provider ends NotReady.
func (r *RemoteProvider) Close() {
	r.transport.Stop()
}

func (r *RemoteProvider) Status() session.Status {
	return r.transport.Status()
}

func (r *RemoteProvider) State() provider.State {
	return r.sm.State()
}

func (r *RemoteProvider) Subscribe(c provider.Consumer) {
	r.mu.Lock()
	r.consumer = c
	r.mu.Unlock()
}

func (r *RemoteProvider) currentConsumer() provider.Consumer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consumer == nil {
		return provider.NopConsumer{}
	}
	return r.consumer
}

func (r *RemoteProvider) Snapshot() provider.Snapshot {
	state := r.sm.State()
	r.mu.Lock()
	defer r.mu.Unlock()
	return provider.Snapshot{
		State:         state,
		Channel:       r.cfg.channel,
		BufferSize:    r.cfg.bufferSize,
		SamplingRate:  r.cfg.samplingRate,
		Channels:      slices.Clone(r.cfg.channels),
		BufferSizes:   slices.Clone(r.cfg.bufferSizes),
		SamplingRates: slices.Clone(r.cfg.samplingRates),
		MinValue:      r.cfg.min,
		MaxValue:      r.cfg.max,
		TakenAt:       time.Now(),
	}
}

func (r *RemoteProvider) SelectedChannel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.channel
}

func (r *RemoteProvider) SelectedBufferSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.bufferSize
}

func (r *RemoteProvider) SelectedSamplingRate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.samplingRate
}

func (r *RemoteProvider) AvailableChannels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.cfg.channels)
}

func (r *RemoteProvider) AvailableBufferSizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.cfg.bufferSizes)
}

func (r *RemoteProvider) AvailableSamplingRates() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.cfg.samplingRates)
}

func (r *RemoteProvider) MinValue() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.min
}

func (r *RemoteProvider) MaxValue() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.max
}

// SetSelectedChannel requests a channel change. A value outside the
// advertised set is rejected without contacting the producer.
func (r *RemoteProvider) SetSelectedChannel(name string) error {
	r.mu.Lock()
	err := checkMember(r.cfg.channels, name, "channel")
	r.mu.Unlock()
	if err := r.beforeSet(err); err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg.channel = name
	r.mu.Unlock()
	r.send(MsgChannelSet, message.String{Value: name})
	return nil
}

func (r *RemoteProvider) SetSelectedBufferSize(n int) error {
	r.mu.Lock()
	err := checkMember(r.cfg.bufferSizes, n, "buffer size")
	r.mu.Unlock()
	if err := r.beforeSet(err); err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg.bufferSize = n
	r.mu.Unlock()
	r.send(MsgBufferSizeSet, message.Int{Value: int32(n)})
	return nil
}

func (r *RemoteProvider) SetSelectedSamplingRate(n int) error {
	r.mu.Lock()
	err := checkMember(r.cfg.samplingRates, n, "sampling rate")
	r.mu.Unlock()
	if err := r.beforeSet(err); err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg.samplingRate = n
	r.mu.Unlock()
	r.send(MsgSamplingRateSet, message.Int{Value: int32(n)})
	return nil
}

func checkMember[T comparable](set []T, v T, field string) error {
	if !slices.Contains(set, v) {
		return fmt.Errorf("%w: %s %v", provider.ErrNotAvailable, field, v)
	}
	return nil
}

// beforeSet gates a setter on state and validation, then stops any open stream.
func (r *RemoteProvider) beforeSet(validation error) error {
	switch r.sm.State() {
	case provider.Uninitialized:
		return provider.ErrNotInitialized
	case provider.NotReady:
		return provider.ErrNotReady
	case provider.Error:
		return provider.ErrFaulted
	}
	if validation != nil {
		r.obs.SettingRejected(r.side, "local")
		r.log.Warn().Err(validation).Msg("setting rejected")
		return validation
	}
	r.Stop()
	return nil
}

// Start asks the producer to stream. The provider enters Working when the
// producer acknowledges.
func (r *RemoteProvider) Start() error {
	if err := provider.StartError(r.sm.State()); err != nil {
		return err
	}
	if !r.send(MsgStart, message.Empty{}) {
		return provider.ErrNotReady
	}
	return nil
}

// Stop ends the stream locally at once and asks the producer to stop. The
// producer's later Stop ack finds the provider idle and is ignored.
func (r *RemoteProvider) Stop() {
	r.streamMu.Lock()
	defer r.streamMu.Unlock()
	if !r.sm.CompareAndTransition(provider.Working, provider.Ready) {
		return
	}
	r.currentConsumer().DataStreamEnded()
	r.send(MsgStop, message.Empty{})
}

// Refresh re-requests every info message.
func (r *RemoteProvider) Refresh() bool {
	ok := r.send(MsgMinMaxValueInfo, message.Empty{})
	ok = r.send(MsgChannelInfo, message.Empty{}) && ok
	ok = r.send(MsgBufferSizeInfo, message.Empty{}) && ok
	ok = r.send(MsgSamplingRateInfo, message.Empty{}) && ok
	return ok
}

func (r *RemoteProvider) onConnected() {
	if r.sm.CompareAndTransition(provider.NotReady, provider.Ready) {
		r.log.Info().Msg("producer connected")
	}
}

func (r *RemoteProvider) onDisconnected() {
	r.streamMu.Lock()
	defer r.streamMu.Unlock()
	if r.sm.CompareAndTransition(provider.Working, provider.NotReady) {
		r.log.Warn().Msg("producer lost while streaming")
		r.currentConsumer().DataStreamEnded()
		return
	}
	r.sm.CompareAndTransition(provider.Ready, provider.NotReady)
}

func (r *RemoteProvider) handle(m message.Tagged) error {
	kind := TypeName(m.Type)
	switch m.Type {
	case MsgDataPacket:
		buf, err := r.codec.DecodeDataBuffer(m)
		if err != nil {
			return r.decodeFailed(m, err)
		}
		r.streamMu.Lock()
		defer r.streamMu.Unlock()
		if r.sm.State() != provider.Working {
			return nil
		}
		r.currentConsumer().ReceiveData(uint64(uint32(buf.Index)), buf.Samples)
		return nil
	case MsgStart:
		if err := r.expectEmpty(m); err != nil {
			return err
		}
		r.onStartAck()
	case MsgStop:
		if err := r.expectEmpty(m); err != nil {
			return err
		}
		r.endByProducer()
	case MsgChannelInfo:
		values, err := r.codec.DecodeStringArray(m)
		if err != nil {
			return r.decodeFailed(m, err)
		}
		r.update(func(c *remoteConfig) { c.channels = values })
	case MsgBufferSizeInfo:
		values, err := r.codec.DecodeIntArray(m)
		if err != nil {
			return r.decodeFailed(m, err)
		}
		r.update(func(c *remoteConfig) { c.bufferSizes = fromInts(values) })
	case MsgSamplingRateInfo:
		values, err := r.codec.DecodeIntArray(m)
		if err != nil {
			return r.decodeFailed(m, err)
		}
		r.update(func(c *remoteConfig) { c.samplingRates = fromInts(values) })
	case MsgMinMaxValueInfo:
		values, err := r.codec.DecodeIntArray(m)
		if err == nil && len(values) != 2 {
			err = fmt.Errorf("%w: got %d", ErrMinMaxShape, len(values))
		}
		if err != nil {
			return r.decodeFailed(m, err)
		}
		r.update(func(c *remoteConfig) { c.min, c.max = float32(values[0]), float32(values[1]) })
	case MsgChannelSet:
		v, err := r.codec.DecodeString(m)
		if err != nil {
			return r.decodeFailed(m, err)
		}
		r.update(func(c *remoteConfig) { c.channel = v })
	case MsgBufferSizeSet:
		v, err := r.codec.DecodeInt(m)
		if err != nil {
			return r.decodeFailed(m, err)
		}
		r.update(func(c *remoteConfig) { c.bufferSize = int(v) })
	case MsgSamplingRateSet:
		v, err := r.codec.DecodeInt(m)
		if err != nil {
			return r.decodeFailed(m, err)
		}
		r.update(func(c *remoteConfig) { c.samplingRate = int(v) })
	default:
		r.unknown(m)
		return nil
	}
	r.obs.MessageHandled(r.side, kind)
	return nil
}

// onStartAck opens a stream; an ack while already streaming restarts it.
func (r *RemoteProvider) onStartAck() {
	r.streamMu.Lock()
	defer r.streamMu.Unlock()
	c := r.currentConsumer()
	if r.sm.CompareAndTransition(provider.Working, provider.Ready) {
		c.DataStreamEnded()
	}
	if !r.sm.CompareAndTransition(provider.Ready, provider.Working) {
		r.log.Warn().Str("state", r.sm.State().String()).Msg("ignoring start ack")
		return
	}
	c.ResetIndex()
	c.DataStreamStarted(time.Now())
}

func (r *RemoteProvider) endByProducer() {
	r.streamMu.Lock()
	defer r.streamMu.Unlock()
	if r.sm.CompareAndTransition(provider.Working, provider.Ready) {
		r.log.Info().Msg("producer ended stream")
		r.currentConsumer().DataStreamEnded()
	}
}

// update applies a producer value and notifies the consumer outside the lock.
func (r *RemoteProvider) update(apply func(*remoteConfig)) {
	r.mu.Lock()
	apply(&r.cfg)
	r.mu.Unlock()
	r.currentConsumer().OnSettingsChange(r.Snapshot())
}
