package main

import (
	"context"
	"fmt"

	"github.com/danmuck/daqlink/internal/app"
	"github.com/danmuck/daqlink/internal/config"
	"github.com/danmuck/daqlink/internal/control"
	"github.com/danmuck/daqlink/internal/device"
	"github.com/danmuck/daqlink/internal/logging"
	"github.com/danmuck/daqlink/internal/protocol/message"
	"github.com/danmuck/daqlink/internal/protocol/session"
	"github.com/spf13/cobra"
)

func proxyCmd(g *globalOptions) *cobra.Command {
	var sf sessionFlags
	var st streamFlags
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Serve a synthetic device to one remote consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, &sf, &st, session.RoleInitiator)
			if err != nil {
				return err
			}
			logger := setupLogging(cfg)
			defer logging.Flush()

			d := app.NewDeps(logger, version)
			rig, err := newProxyRig(cfg, d)
			if err != nil {
				return err
			}
			cs := app.NewComponents()
			cs.Register(rig.component())
			return app.Run(cmd.Context(), d, cs, runOptions("proxy", cfg), rig.run)
		},
	}
	sf.bind(cmd)
	st.bind(cmd)
	return cmd
}

// proxyRig is the producer side: a device provider served over one transport.
type proxyRig struct {
	transport session.Transport
	device    *device.Provider
	proxy     *control.Proxy
}

func newProxyRig(cfg config.Config, d app.Deps) (*proxyRig, error) {
	dev, err := openDevice(cfg)
	if err != nil {
		return nil, err
	}
	p := device.NewProvider(dev, device.Options{
		Name:       cfg.Device,
		MaxSamples: cfg.MaxSamples,
		Observer:   d.Metrics,
	}, d.Logger)
	if err := p.Initialize(); err != nil {
		return nil, err
	}
	if err := applySelection(p, cfg); err != nil {
		return nil, err
	}

	t, err := newTransport(cfg, "producer", d.Logger, d.Metrics)
	if err != nil {
		return nil, err
	}
	codec := message.Codec{StringArrays: cfg.StringArrays}
	return &proxyRig{
		transport: t,
		device:    p,
		proxy:     control.NewProxy(t, p, codec, d.Logger, d.Metrics),
	}, nil
}

func (r *proxyRig) component() app.Component {
	return app.ProviderComponent{Label: "producer", Provider: r.device, Session: r.proxy.Status}
}

func (r *proxyRig) run(ctx context.Context) error {
	if err := r.proxy.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	r.proxy.Stop()
	return nil
}

func openDevice(cfg config.Config) (device.Device, error) {
	switch cfg.Device {
	case config.DeviceSynthetic:
		return device.NewSynthetic(), nil
	default:
		return nil, fmt.Errorf("%w: device %q", config.ErrInvalid, cfg.Device)
	}
}
