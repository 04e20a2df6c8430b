package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/daqlink/internal/acquisition"
	"github.com/danmuck/daqlink/internal/provider"
	"github.com/rs/zerolog"
)

// Observer receives stream events for metrics.
type Observer interface {
	StreamStarted(name string)
	StreamEnded(name, reason string)
	BufferProduced(name string, samples int)
}

type nopObserver struct{}

func (nopObserver) StreamStarted(string)       {}
func (nopObserver) StreamEnded(string, string) {}
func (nopObserver) BufferProduced(string, int) {}

// Stream end reasons reported to Observer.
const (
	EndStopped = "stopped"
	EndLimit   = "limit"
	EndFault   = "fault"
)

// Options tune a Provider.
type Options struct {
	Name       string
	MaxSamples int64
	MaxSleep   time.Duration
	Observer   Observer
}

var _ provider.Provider = (*Provider)(nil)

// Provider paces one device in-process.
//
// runMu serializes every start/stop/apply decision; mu guards configuration
// and the consumer. Pacer callbacks only take mu, so stopping under runMu
// cannot deadlock against a stream that is ending on its own.
type Provider struct {
	name string
	dev  Device
	log  zerolog.Logger
	obs  Observer
	opts Options
	sm   *provider.StateMachine

	runMu sync.Mutex
	pacer *acquisition.Pacer

	mu       sync.Mutex
	caps     Capabilities
	cfg      *provider.ChannelConfig
	consumer provider.Consumer
}

func NewProvider(dev Device, opts Options, logger zerolog.Logger) *Provider {
	if opts.Name == "" {
		opts.Name = "device"
	}
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Provider{
		name: opts.Name,
		dev:  dev,
		log:  logger.With().Str("component", "provider").Str("provider", opts.Name).Logger(),
		obs:  obs,
		opts: opts,
		sm:   provider.NewStateMachine(),
	}
}

func (p *Provider) Name() string {
	return p.name
}

// Initialize reads the device capabilities once. The provider is Ready when
// the device offers at least one channel, NotReady otherwise.
func (p *Provider) Initialize() error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.sm.State() != provider.Uninitialized {
		return provider.ErrAlreadyInitialized
	}
	caps := p.dev.Capabilities()
	if len(caps.Channels) == 0 {
		p.log.Warn().Msg("device offers no channels")
		return p.sm.Transition(provider.NotReady)
	}
	cfg, err := provider.NewChannelConfig(caps.Channels, caps.BufferSizes, caps.SamplingRates)
	if err != nil {
		p.log.Warn().Err(err).Msg("device capabilities incomplete")
		return p.sm.Transition(provider.NotReady)
	}
	if caps.DefaultBufferSize != 0 {
		if err := cfg.SetBufferSize(caps.DefaultBufferSize); err != nil {
			return fmt.Errorf("default buffer size: %w", err)
		}
	}
	if caps.DefaultSamplingRate != 0 {
		if err := cfg.SetSamplingRate(caps.DefaultSamplingRate); err != nil {
			return fmt.Errorf("default sampling rate: %w", err)
		}
	}

	p.mu.Lock()
	p.caps = caps
	p.cfg = cfg
	p.mu.Unlock()
	if err := p.sm.Transition(provider.Ready); err != nil {
		return err
	}
	p.log.Info().
		Strs("channels", caps.Channels).
		Int("buffer_size", cfg.BufferSize()).
		Int("sampling_rate", cfg.SamplingRate()).
		Msg("initialized")
	p.notifySettings()
	return nil
}

func (p *Provider) State() provider.State {
	return p.sm.State()
}

// Subscribe replaces the consumer and sends it the current settings.
func (p *Provider) Subscribe(c provider.Consumer) {
	p.mu.Lock()
	p.consumer = c
	ready := p.cfg != nil
	p.mu.Unlock()
	if ready && c != nil {
		c.OnSettingsChange(p.Snapshot())
	}
}

func (p *Provider) currentConsumer() provider.Consumer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.consumer == nil {
		return provider.NopConsumer{}
	}
	return p.consumer
}

func (p *Provider) Snapshot() provider.Snapshot {
	s := provider.Snapshot{State: p.sm.State(), TakenAt: time.Now()}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg != nil {
		p.cfg.Fill(&s)
	}
	s.MinValue = p.caps.Min
	s.MaxValue = p.caps.Max
	return s
}

func (p *Provider) SelectedChannel() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg == nil {
		return ""
	}
	return p.cfg.Channel()
}

func (p *Provider) SelectedBufferSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg == nil {
		return 0
	}
	return p.cfg.BufferSize()
}

func (p *Provider) SelectedSamplingRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg == nil {
		return 0
	}
	return p.cfg.SamplingRate()
}

func (p *Provider) AvailableChannels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg == nil {
		return nil
	}
	return p.cfg.Channels()
}

func (p *Provider) AvailableBufferSizes() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg == nil {
		return nil
	}
	return p.cfg.BufferSizes()
}

func (p *Provider) AvailableSamplingRates() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg == nil {
		return nil
	}
	return p.cfg.SamplingRates()
}

func (p *Provider) MinValue() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.caps.Min
}

func (p *Provider) MaxValue() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.caps.Max
}

func (p *Provider) SetSelectedChannel(name string) error {
	return apply(p, "channel", (*provider.ChannelConfig).CheckChannel, (*provider.ChannelConfig).SetChannel, name)
}

func (p *Provider) SetSelectedBufferSize(n int) error {
	return apply(p, "buffer_size", (*provider.ChannelConfig).CheckBufferSize, (*provider.ChannelConfig).SetBufferSize, n)
}

func (p *Provider) SetSelectedSamplingRate(n int) error {
	return apply(p, "sampling_rate", (*provider.ChannelConfig).CheckSamplingRate, (*provider.ChannelConfig).SetSamplingRate, n)
}

// apply validates before stopping, so a rejected value never interrupts a stream.
func apply[T any](p *Provider, field string, check, set func(*provider.ChannelConfig, T) error, v T) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.mu.Lock()
	cfg := p.cfg
	p.mu.Unlock()
	if cfg == nil {
		return provider.ErrNotInitialized
	}
	if p.sm.State() == provider.Error {
		return provider.ErrFaulted
	}
	p.mu.Lock()
	err := check(cfg, v)
	p.mu.Unlock()
	if err != nil {
		p.log.Warn().Err(err).Str("field", field).Msg("setting rejected")
		return err
	}

	p.stopLocked()

	p.mu.Lock()
	err = set(cfg, v)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.log.Info().Str("field", field).Interface("value", v).Msg("setting applied")
	p.notifySettings()
	return nil
}

func (p *Provider) notifySettings() {
	p.currentConsumer().OnSettingsChange(p.Snapshot())
}

// Start begins a stream. A running or finishing stream is stopped first.
func (p *Provider) Start() error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	// joins a pacer that ended on its own too, so its DataStreamEnded
	// reaches the consumer before the next stream starts
	p.stopLocked()
	if err := provider.StartError(p.sm.State()); err != nil {
		return err
	}

	p.mu.Lock()
	channel, size, rate := p.cfg.Channel(), p.cfg.BufferSize(), p.cfg.SamplingRate()
	p.mu.Unlock()

	gen, err := p.dev.Generator(channel)
	if err != nil {
		p.log.Error().Err(err).Str("channel", channel).Msg("channel source unavailable")
		p.sm.Fail()
		return err
	}
	pacer, err := acquisition.NewPacer(acquisition.Config{
		SamplingRate: rate,
		BufferSize:   size,
		MaxSamples:   p.opts.MaxSamples,
		MaxSleep:     p.opts.MaxSleep,
	}, gen, &stream{p: p}, p.log)
	if err != nil {
		return err
	}

	p.currentConsumer().ResetIndex()
	if err := p.sm.Transition(provider.Working); err != nil {
		return err
	}
	if err := pacer.Start(); err != nil {
		_ = p.sm.Transition(provider.Ready)
		return err
	}
	p.pacer = pacer
	p.log.Info().Str("channel", channel).Int("buffer_size", size).Int("sampling_rate", rate).Msg("acquisition started")
	return nil
}

// Stop ends the running stream and waits for the pacer to exit.
func (p *Provider) Stop() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	p.stopLocked()
}

// Fail records an unrecoverable fault: the stream ends and the provider stays in Error.
func (p *Provider) Fail(err error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	p.log.Error().Err(err).Msg("unrecoverable fault")
	p.sm.Fail()
	p.stopLocked()
}

func (p *Provider) stopLocked() {
	if p.pacer == nil {
		return
	}
	p.pacer.Stop()
	p.pacer = nil
}

// Done is closed when the current stream ends; nil when idle.
func (p *Provider) Done() <-chan struct{} {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.pacer == nil {
		return nil
	}
	return p.pacer.Done()
}

// stream forwards one pacer's callbacks to the provider's consumer.
type stream struct {
	p *Provider
}

func (s *stream) StreamStarted(at time.Time) {
	s.p.obs.StreamStarted(s.p.name)
	s.p.currentConsumer().DataStreamStarted(at)
}

func (s *stream) Buffer(index int64, samples []float32) {
	s.p.obs.BufferProduced(s.p.name, len(samples))
	s.p.currentConsumer().ReceiveData(uint64(index), samples)
}

func (s *stream) StreamEnded(err error) {
	p := s.p
	reason := EndStopped
	switch {
	case err == nil:
	case errors.Is(err, acquisition.ErrSampleLimit):
		reason = EndLimit
	default:
		reason = EndFault
		p.log.Error().Err(err).Msg("acquisition fault")
		p.sm.Fail()
	}
	p.sm.CompareAndTransition(provider.Working, provider.Ready)
	p.obs.StreamEnded(p.name, reason)
	p.log.Info().Str("reason", reason).Msg("acquisition ended")
	p.currentConsumer().DataStreamEnded()
}
