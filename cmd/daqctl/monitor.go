package main

import (
	"context"
	"time"

	"github.com/danmuck/daqlink/internal/app"
	"github.com/danmuck/daqlink/internal/config"
	"github.com/danmuck/daqlink/internal/control"
	"github.com/danmuck/daqlink/internal/logging"
	"github.com/danmuck/daqlink/internal/protocol/message"
	"github.com/danmuck/daqlink/internal/protocol/session"
	"github.com/danmuck/daqlink/internal/provider"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const reconcileInterval = 250 * time.Millisecond

func monitorCmd(g *globalOptions) *cobra.Command {
	var sf sessionFlags
	var st streamFlags
	var autoStart bool
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Consume a remote device and log stream statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, &sf, &st, session.RoleListener)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("auto-start") {
				cfg.AutoStart = autoStart
			}
			logger := setupLogging(cfg)
			defer logging.Flush()

			d := app.NewDeps(logger, version)
			rig, err := newMonitorRig(cfg, d)
			if err != nil {
				return err
			}
			cs := app.NewComponents()
			cs.Register(rig.component())
			return app.Run(cmd.Context(), d, cs, runOptions("monitor", cfg), rig.run)
		},
	}
	sf.bind(cmd)
	st.bind(cmd)
	cmd.Flags().BoolVar(&autoStart, "auto-start", false, "start streaming on every new connection")
	return cmd
}

// monitorRig is the consumer side: a remote provider feeding stream statistics.
type monitorRig struct {
	cfg       config.Config
	log       zerolog.Logger
	transport session.Transport
	remote    *control.RemoteProvider
	stats     *streamStats

	// session id the selection and auto start were last applied to
	applied string
}

func newMonitorRig(cfg config.Config, d app.Deps) (*monitorRig, error) {
	t, err := newTransport(cfg, "consumer", d.Logger, d.Metrics)
	if err != nil {
		return nil, err
	}
	codec := message.Codec{StringArrays: cfg.StringArrays}
	remote := control.NewRemoteProvider(t, codec, d.Logger, d.Metrics)
	stats := newStreamStats(d.Logger)
	remote.Subscribe(stats)
	return &monitorRig{
		cfg:       cfg,
		log:       d.Component("monitor"),
		transport: t,
		remote:    remote,
		stats:     stats,
	}, nil
}

func (r *monitorRig) component() app.Component {
	return app.ProviderComponent{Label: "consumer", Provider: r.remote, Session: r.remote.Status}
}

func (r *monitorRig) run(ctx context.Context) error {
	if err := r.remote.Initialize(); err != nil {
		return err
	}
	defer r.remote.Close()

	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.remote.Stop()
			return nil
		case <-ticker.C:
			r.reconcile()
		}
	}
}

// configurationPushed reports whether every available set has arrived, so a
// selection failure means the producer does not offer the value.
func configurationPushed(s provider.Snapshot) bool {
	return len(s.Channels) > 0 && len(s.BufferSizes) > 0 && len(s.SamplingRates) > 0
}

// reconcile applies the configured selection and auto start once per
// connection, after the producer has pushed its configuration.
func (r *monitorRig) reconcile() {
	if r.remote.State() != provider.Ready {
		return
	}
	status := r.remote.Status()
	if !status.Connected || status.SessionID == r.applied {
		return
	}
	if !configurationPushed(r.remote.Snapshot()) {
		return
	}
	r.applied = status.SessionID
	log := r.log.With().Str("session", status.SessionID).Logger()

	if err := applySelection(r.remote, r.cfg); err != nil {
		log.Warn().Err(err).Msg("configured selection not offered by producer")
	}
	if !r.cfg.AutoStart {
		return
	}
	if err := r.remote.Start(); err != nil {
		log.Warn().Err(err).Msg("auto start failed")
		return
	}
	log.Info().Msg("auto start requested")
}
