package main

import (
	"sync"
	"time"

	"github.com/danmuck/daqlink/internal/provider"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// streamStats is a consumer that tracks stream continuity and logs a summary
// at most once per second.
type streamStats struct {
	log     zerolog.Logger
	summary rate.Sometimes

	mu       sync.Mutex
	streams  int
	buffers  int
	samples  int
	gaps     int
	next     uint64
	started  time.Time
	lastMin  float32
	lastMax  float32
	settings provider.Snapshot
}

var _ provider.Consumer = (*streamStats)(nil)

func newStreamStats(logger zerolog.Logger) *streamStats {
	return &streamStats{
		log:     logger.With().Str("component", "stats").Logger(),
		summary: rate.Sometimes{Interval: time.Second},
	}
}

type statsView struct {
	Streams int
	Buffers int
	Samples int
	Gaps    int
}

func (s *streamStats) view() statsView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return statsView{Streams: s.streams, Buffers: s.buffers, Samples: s.samples, Gaps: s.gaps}
}

func (s *streamStats) OnSettingsChange(snap provider.Snapshot) {
	s.mu.Lock()
	s.settings = snap
	s.mu.Unlock()
	s.log.Debug().
		Str("state", snap.State.String()).
		Str("channel", snap.Channel).
		Int("buffer_size", snap.BufferSize).
		Int("sampling_rate", snap.SamplingRate).
		Msg("settings")
}

func (s *streamStats) ReceiveData(index uint64, samples []float32) {
	lo, hi := bounds(samples)
	s.mu.Lock()
	if index != s.next {
		s.gaps++
	}
	s.next = index + uint64(len(samples))
	s.buffers++
	s.samples += len(samples)
	s.lastMin, s.lastMax = lo, hi
	buffers, total, gaps := s.buffers, s.samples, s.gaps
	s.mu.Unlock()

	s.log.Trace().Uint64("index", index).Int("len", len(samples)).Float32("min", lo).Float32("max", hi).Msg("buffer")
	s.summary.Do(func() {
		s.log.Info().Int("buffers", buffers).Int("samples", total).Int("gaps", gaps).Float32("min", lo).Float32("max", hi).Msg("streaming")
	})
}

func (s *streamStats) DataStreamStarted(at time.Time) {
	s.mu.Lock()
	s.streams++
	s.started = at
	s.mu.Unlock()
	s.log.Info().Time("at", at).Msg("stream started")
}

func (s *streamStats) DataStreamEnded() {
	s.mu.Lock()
	elapsed := time.Since(s.started)
	buffers, total := s.buffers, s.samples
	s.mu.Unlock()
	s.log.Info().Dur("elapsed", elapsed).Int("buffers", buffers).Int("samples", total).Msg("stream ended")
}

func (s *streamStats) ResetIndex() {
	s.mu.Lock()
	s.next = 0
	s.mu.Unlock()
}

func bounds(samples []float32) (float32, float32) {
	if len(samples) == 0 {
		return 0, 0
	}
	lo, hi := samples[0], samples[0]
	for _, v := range samples[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
