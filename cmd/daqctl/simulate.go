package main

import (
	"context"
	"time"

	"github.com/danmuck/daqlink/internal/app"
	"github.com/danmuck/daqlink/internal/config"
	"github.com/danmuck/daqlink/internal/device"
	"github.com/danmuck/daqlink/internal/logging"
	"github.com/spf13/cobra"
)

func simulateCmd(g *globalOptions) *cobra.Command {
	var st streamFlags
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Pace a local synthetic device and log stream statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, nil, &st, "")
			if err != nil {
				return err
			}
			logger := setupLogging(cfg)
			defer logging.Flush()

			d := app.NewDeps(logger, version)
			rig, err := newSimulateRig(cfg, d)
			if err != nil {
				return err
			}
			cs := app.NewComponents()
			cs.Register(app.ProviderComponent{Label: "local", Provider: rig.device})
			return app.Run(cmd.Context(), d, cs, runOptions("simulate", cfg), func(ctx context.Context) error {
				return rig.run(ctx, duration)
			})
		},
	}
	st.bind(cmd)
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "how long to stream; 0 runs until interrupted")
	return cmd
}

// simulateRig streams a device straight into stream statistics.
type simulateRig struct {
	device *device.Provider
	stats  *streamStats
}

func newSimulateRig(cfg config.Config, d app.Deps) (*simulateRig, error) {
	dev, err := openDevice(cfg)
	if err != nil {
		return nil, err
	}
	p := device.NewProvider(dev, device.Options{
		Name:       cfg.Device,
		MaxSamples: cfg.MaxSamples,
		Observer:   d.Metrics,
	}, d.Logger)
	stats := newStreamStats(d.Logger)
	p.Subscribe(stats)
	if err := p.Initialize(); err != nil {
		return nil, err
	}
	if err := applySelection(p, cfg); err != nil {
		return nil, err
	}
	return &simulateRig{device: p, stats: stats}, nil
}

// run streams until ctx ends, duration elapses, or the stream ends on its own.
func (r *simulateRig) run(ctx context.Context, duration time.Duration) error {
	if err := r.device.Start(); err != nil {
		return err
	}
	defer r.device.Stop()

	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
	case <-timeout:
	case <-r.device.Done():
	}
	return nil
}
