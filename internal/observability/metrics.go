package observability

import (
	"strconv"
	"time"

	"github.com/danmuck/daqlink/internal/control"
	"github.com/danmuck/daqlink/internal/device"
	"github.com/danmuck/daqlink/internal/protocol/session"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "daqlink"

// Metrics collects transport, protocol, stream and admin HTTP series.
// A nil *Metrics records nothing.
type Metrics struct {
	connects       *prometheus.CounterVec
	resets         *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	bytesSent      *prometheus.CounterVec
	bytesReceived  *prometheus.CounterVec
	heartbeats     *prometheus.CounterVec

	messages     *prometheus.CounterVec
	unknown      *prometheus.CounterVec
	decodeErrors *prometheus.CounterVec
	rejected     *prometheus.CounterVec

	streams     *prometheus.CounterVec
	streamEnds  *prometheus.CounterVec
	buffers     *prometheus.CounterVec
	samples     *prometheus.CounterVec
	streamsOpen *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var (
	_ session.Observer = (*Metrics)(nil)
	_ control.Observer = (*Metrics)(nil)
	_ device.Observer  = (*Metrics)(nil)
)

func counter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

// NewMetrics builds the collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connects:       counter("transport", "connects_total", "Established connections.", "side"),
		resets:         counter("transport", "resets_total", "Connection resets by reason.", "side", "reason"),
		framesSent:     counter("transport", "frames_sent_total", "Frames written.", "side"),
		framesReceived: counter("transport", "frames_received_total", "Frames read.", "side"),
		bytesSent:      counter("transport", "bytes_sent_total", "Frame bytes written.", "side"),
		bytesReceived:  counter("transport", "bytes_received_total", "Frame bytes read.", "side"),
		heartbeats:     counter("transport", "heartbeats_sent_total", "No-op heartbeats queued.", "side"),

		messages:     counter("control", "messages_total", "Control messages handled by kind.", "side", "kind"),
		unknown:      counter("control", "unknown_messages_total", "Messages with an unknown type tag.", "side"),
		decodeErrors: counter("control", "decode_errors_total", "Messages that failed to decode.", "side"),
		rejected:     counter("control", "rejected_settings_total", "Setting requests outside the available set.", "side", "field"),

		streams:    counter("acquisition", "streams_started_total", "Streams started.", "provider"),
		streamEnds: counter("acquisition", "streams_ended_total", "Streams ended by reason.", "provider", "reason"),
		buffers:    counter("acquisition", "buffers_total", "Buffers produced.", "provider"),
		samples:    counter("acquisition", "samples_total", "Samples produced.", "provider"),
		streamsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "acquisition",
			Name:      "streams_open",
			Help:      "Streams currently running.",
		}, []string{"provider"}),

		httpRequests: counter("http", "requests_total", "Total admin HTTP requests.", "method", "path", "status"),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.connects, m.resets, m.framesSent, m.framesReceived, m.bytesSent, m.bytesReceived, m.heartbeats,
			m.messages, m.unknown, m.decodeErrors, m.rejected,
			m.streams, m.streamEnds, m.buffers, m.samples, m.streamsOpen,
			m.httpRequests, m.httpDuration,
		)
	}
	return m
}

// Transport events.

func (m *Metrics) Connected(side string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(side).Inc()
}

func (m *Metrics) Reset(side, reason string) {
	if m == nil {
		return
	}
	m.resets.WithLabelValues(side, reason).Inc()
}

func (m *Metrics) FrameSent(side string, bytes int) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(side).Inc()
	m.bytesSent.WithLabelValues(side).Add(float64(bytes))
}

func (m *Metrics) FrameReceived(side string, bytes int) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(side).Inc()
	m.bytesReceived.WithLabelValues(side).Add(float64(bytes))
}

func (m *Metrics) HeartbeatSent(side string) {
	if m == nil {
		return
	}
	m.heartbeats.WithLabelValues(side).Inc()
}

// Protocol events.

func (m *Metrics) MessageHandled(side, kind string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(side, kind).Inc()
}

func (m *Metrics) UnknownMessage(side string) {
	if m == nil {
		return
	}
	m.unknown.WithLabelValues(side).Inc()
}

func (m *Metrics) DecodeFailed(side string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(side).Inc()
}

func (m *Metrics) SettingRejected(side, field string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(side, field).Inc()
}

// Stream events.

func (m *Metrics) StreamStarted(name string) {
	if m == nil {
		return
	}
	m.streams.WithLabelValues(name).Inc()
	m.streamsOpen.WithLabelValues(name).Inc()
}

func (m *Metrics) StreamEnded(name, reason string) {
	if m == nil {
		return
	}
	m.streamEnds.WithLabelValues(name, reason).Inc()
	m.streamsOpen.WithLabelValues(name).Dec()
}

func (m *Metrics) BufferProduced(name string, samples int) {
	if m == nil {
		return
	}
	m.buffers.WithLabelValues(name).Inc()
	m.samples.WithLabelValues(name).Add(float64(samples))
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
