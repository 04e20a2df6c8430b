package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/daqlink/internal/app"
	"github.com/danmuck/daqlink/internal/config"
	"github.com/danmuck/daqlink/internal/logging"
	"github.com/danmuck/daqlink/internal/protocol/session"
	"github.com/danmuck/daqlink/internal/provider"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	// adminOff disables the admin server from the command line.
	adminOff          = "off"
	heartbeatInterval = 30 * time.Second
)

type globalOptions struct {
	configPath string
	logLevel   string
	adminAddr  string
}

func (g *globalOptions) bind(root *cobra.Command) {
	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "TOML config file")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: trace|debug|info|warn|error|off")
	pf.StringVar(&g.adminAddr, "admin", "", `admin HTTP address, or "off"`)
}

type sessionFlags struct {
	address string
	port    int
	role    string
}

func (s *sessionFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&s.address, "address", config.DefaultAddress, "peer address to dial or local address to bind")
	f.IntVar(&s.port, "port", config.DefaultPort, "session port")
	f.StringVar(&s.role, "role", "", "transport role: initiator|listener")
}

type streamFlags struct {
	channel      string
	bufferSize   int
	samplingRate int
	maxSamples   int64
}

func (s *streamFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&s.channel, "channel", "", "channel to select")
	f.IntVar(&s.bufferSize, "buffer-size", 0, "samples per buffer")
	f.IntVar(&s.samplingRate, "sampling-rate", 0, "samples per second")
	f.Int64Var(&s.maxSamples, "max-samples", 0, "samples per stream; 0 uses the default, negative is unlimited")
}

// loadConfig reads the config file and overlays flags that were set explicitly.
func loadConfig(cmd *cobra.Command, g *globalOptions, sf *sessionFlags, st *streamFlags, defaultRole session.Role) (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.Config{}, err
	}
	f := cmd.Flags()
	if f.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if f.Changed("admin") {
		cfg.AdminAddr = strings.TrimSpace(g.adminAddr)
		if strings.EqualFold(cfg.AdminAddr, adminOff) {
			cfg.AdminAddr = ""
		}
	}
	if sf != nil {
		if f.Changed("address") {
			cfg.Address = strings.TrimSpace(sf.address)
		}
		if f.Changed("port") {
			cfg.Port = sf.port
		}
		if f.Changed("role") {
			cfg.Role = session.Role(strings.ToLower(strings.TrimSpace(sf.role)))
		}
	}
	if st != nil {
		if f.Changed("channel") {
			cfg.Channel = strings.TrimSpace(st.channel)
		}
		if f.Changed("buffer-size") {
			cfg.BufferSize = st.bufferSize
		}
		if f.Changed("sampling-rate") {
			cfg.SamplingRate = st.samplingRate
		}
		if f.Changed("max-samples") {
			cfg.MaxSamples = st.maxSamples
		}
	}
	if cfg.Role == "" {
		cfg.Role = defaultRole
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func setupLogging(cfg config.Config) zerolog.Logger {
	return logging.ConfigureWith(logging.ProfileRuntime, func(c *logging.Config) {
		if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
			c.Level = lvl
		}
	})
}

func newTransport(cfg config.Config, name string, logger zerolog.Logger, obs session.Observer) (session.Transport, error) {
	switch cfg.Role {
	case session.RoleInitiator:
		return session.NewInitiator(name, cfg.Endpoint(), cfg.Session, logger, obs)
	case session.RoleListener:
		return session.NewListener(name, cfg.Endpoint(), cfg.Session, logger, obs)
	default:
		return nil, fmt.Errorf("%w: role %q", config.ErrInvalid, cfg.Role)
	}
}

// applySelection pushes the configured channel settings onto p. Zero values keep
// the provider's current selection.
func applySelection(p provider.Provider, cfg config.Config) error {
	if cfg.Channel != "" && cfg.Channel != p.SelectedChannel() {
		if err := p.SetSelectedChannel(cfg.Channel); err != nil {
			return fmt.Errorf("channel %q: %w", cfg.Channel, err)
		}
	}
	if cfg.BufferSize != 0 && cfg.BufferSize != p.SelectedBufferSize() {
		if err := p.SetSelectedBufferSize(cfg.BufferSize); err != nil {
			return fmt.Errorf("buffer size %d: %w", cfg.BufferSize, err)
		}
	}
	if cfg.SamplingRate != 0 && cfg.SamplingRate != p.SelectedSamplingRate() {
		if err := p.SetSelectedSamplingRate(cfg.SamplingRate); err != nil {
			return fmt.Errorf("sampling rate %d: %w", cfg.SamplingRate, err)
		}
	}
	return nil
}

func runOptions(name string, cfg config.Config) app.RunOptions {
	return app.RunOptions{
		Name:              name,
		AdminAddr:         cfg.AdminAddr,
		CORSOrigins:       cfg.CORSOrigins,
		HeartbeatInterval: heartbeatInterval,
	}
}
