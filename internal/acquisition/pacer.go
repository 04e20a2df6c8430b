package acquisition

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Generator produces the sample at a global index for the given rate.
type Generator interface {
	Sample(index int64, samplingRate int) float32
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(index int64, samplingRate int) float32

func (f GeneratorFunc) Sample(index int64, samplingRate int) float32 {
	return f(index, samplingRate)
}

// FaultReporter is implemented by generators backed by a source that can fail.
// A non-nil Fault ends the stream before the next buffer is delivered.
type FaultReporter interface {
	Fault() error
}

// Sink receives the stream. Every method runs on the pacer goroutine.
type Sink interface {
	StreamStarted(at time.Time)
	// Buffer delivers samples [index, index+len(samples)); the slice is reused after return.
	Buffer(index int64, samples []float32)
	// StreamEnded fires once per stream. err is nil after Stop, ErrSampleLimit
	// after the cap, or the generator fault.
	StreamEnded(err error)
}

// Pacer runs at most one stream at a time.
type Pacer struct {
	cfg  Config
	gen  Generator
	sink Sink
	log  zerolog.Logger

	mu   sync.Mutex
	ctrl chan struct{}
	done chan struct{}

	index   atomic.Int64
	buffers atomic.Uint64
}

func NewPacer(cfg Config, gen Generator, sink Sink, logger zerolog.Logger) (*Pacer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pacer{
		cfg:  cfg,
		gen:  gen,
		sink: sink,
		log:  logger.With().Str("component", "pacer").Logger(),
	}, nil
}

func (p *Pacer) Config() Config {
	return p.cfg
}

// Start spawns the stream goroutine. StreamStarted fires on that goroutine.
func (p *Pacer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runningLocked() {
		return ErrAlreadyRunning
	}
	p.index.Store(0)
	p.buffers.Store(0)
	p.ctrl = make(chan struct{}, 1)
	p.done = make(chan struct{})
	go p.run(p.ctrl, p.done)
	return nil
}

// Stop posts a stop request and waits for the goroutine to exit. No buffer is
// delivered after Stop returns. It must not be called from a Sink method.
func (p *Pacer) Stop() {
	p.mu.Lock()
	ctrl, done := p.ctrl, p.done
	p.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case ctrl <- struct{}{}:
	default:
	}
	<-done
}

func (p *Pacer) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runningLocked()
}

func (p *Pacer) runningLocked() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done is closed when the current stream's goroutine exits. Nil before the first Start.
func (p *Pacer) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Index is the next sample index the current stream will produce.
func (p *Pacer) Index() int64 {
	return p.index.Load()
}

func (p *Pacer) Buffers() uint64 {
	return p.buffers.Load()
}

func (p *Pacer) run(ctrl <-chan struct{}, done chan struct{}) {
	defer close(done)

	cfg := p.cfg
	size := int64(cfg.BufferSize)
	quarter := cfg.BufferDuration() / 4
	buf := make([]float32, cfg.BufferSize)
	faults, _ := p.gen.(FaultReporter)

	start := time.Now()
	p.sink.StreamStarted(start)
	var endErr error
	defer func() {
		p.sink.StreamEnded(endErr)
	}()
	p.log.Debug().Int("rate", cfg.SamplingRate).Int("buffer_size", cfg.BufferSize).Msg("stream started")

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var index int64
	for {
		select {
		case <-ctrl:
			p.log.Debug().Int64("index", index).Msg("stream stopped")
			return
		default:
		}
		if cfg.MaxSamples > 0 && index+size > cfg.MaxSamples {
			endErr = ErrSampleLimit
			p.log.Info().Int64("index", index).Msg("sample limit reached")
			return
		}

		due := cfg.deadline(index + size)
		elapsed := time.Since(start)
		if elapsed >= due {
			if faults != nil {
				if err := faults.Fault(); err != nil {
					endErr = err
					p.log.Error().Err(err).Int64("index", index).Msg("source fault")
					return
				}
			}
			for k := range buf {
				buf[k] = p.gen.Sample(index+int64(k), cfg.SamplingRate)
			}
			p.sink.Buffer(index, buf)
			index += size
			p.index.Store(index)
			p.buffers.Add(1)
			continue
		}

		wait := min(due-elapsed, quarter, cfg.MaxSleep)
		timer.Reset(wait)
		select {
		case <-ctrl:
			p.log.Debug().Int64("index", index).Msg("stream stopped")
			return
		case <-timer.C:
		}
	}
}
