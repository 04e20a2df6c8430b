package app

import (
	"github.com/danmuck/daqlink/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// Deps is the explicit dependency context handed to every component.
type Deps struct {
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Version  string
}

// NewDeps builds a private registry with runtime collectors and the daqlink series.
func NewDeps(logger zerolog.Logger, version string) Deps {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return Deps{
		Logger:   logger,
		Registry: reg,
		Metrics:  observability.NewMetrics(reg),
		Version:  version,
	}
}

// Component returns a child logger tagged with name.
func (d Deps) Component(name string) zerolog.Logger {
	return d.Logger.With().Str("component", name).Logger()
}
