package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/daqlink/internal/logging"
	"github.com/danmuck/daqlink/internal/protocol/message"
	"github.com/danmuck/daqlink/internal/protocol/session"
)

var ErrInvalid = errors.New("config: invalid")

const (
	DefaultAddress   = "127.0.0.1"
	DefaultPort      = 9001
	DefaultAdminAddr = "127.0.0.1:9090"
	DeviceSynthetic  = "synthetic"
)

// Config is one daqctl process: where the session goes and what it streams.
type Config struct {
	Address string
	Port    int
	// Role is empty until a command or file picks one; each command has its own default.
	Role         session.Role
	Session      session.Config
	StringArrays message.StringArrayEncoding

	Device       string
	Channel      string
	BufferSize   int
	SamplingRate int
	MaxSamples   int64
	AutoStart    bool

	AdminAddr   string
	CORSOrigins []string
	LogLevel    string
}

func Default() Config {
	return Config{
		Address:   DefaultAddress,
		Port:      DefaultPort,
		Session:   session.DefaultConfig(),
		Device:    DeviceSynthetic,
		AdminAddr: DefaultAdminAddr,
	}
}

// Endpoint is the host:port the session dials or binds.
func (c Config) Endpoint() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

type fileConfig struct {
	Address             string   `toml:"address"`
	Port                int      `toml:"port"`
	Role                string   `toml:"role"`
	HeartbeatInterval   string   `toml:"heartbeat_interval"`
	DeadAfter           string   `toml:"dead_after"`
	FrameReadTimeout    string   `toml:"frame_read_timeout"`
	ConnectTimeout      string   `toml:"connect_timeout"`
	AcceptWindow        string   `toml:"accept_window"`
	WriteTimeout        string   `toml:"write_timeout"`
	BackoffInitial      string   `toml:"backoff_initial"`
	BackoffMax          string   `toml:"backoff_max"`
	MaxFrameBytes       uint32   `toml:"max_frame_bytes"`
	StringArrayEncoding string   `toml:"string_array_encoding"`
	Device              string   `toml:"device"`
	Channel             string   `toml:"channel"`
	BufferSize          int      `toml:"buffer_size"`
	SamplingRate        int      `toml:"sampling_rate"`
	MaxSamples          int64    `toml:"max_samples"`
	AutoStart           bool     `toml:"auto_start"`
	AdminAddr           string   `toml:"admin_addr"`
	CORSOrigins         []string `toml:"cors_origins"`
	LogLevel            string   `toml:"log_level"`
}

// Load overlays the keys present in path onto Default. An empty path yields Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("role") {
		cfg.Role = session.Role(strings.ToLower(strings.TrimSpace(raw.Role)))
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"heartbeat_interval", raw.HeartbeatInterval, &cfg.Session.HeartbeatInterval},
		{"dead_after", raw.DeadAfter, &cfg.Session.SessionDeadAfter},
		{"frame_read_timeout", raw.FrameReadTimeout, &cfg.Session.FrameReadTimeout},
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"accept_window", raw.AcceptWindow, &cfg.Session.AcceptWindow},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"backoff_initial", raw.BackoffInitial, &cfg.Session.Backoff.InitialDelay},
		{"backoff_max", raw.BackoffMax, &cfg.Session.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("max_frame_bytes") {
		cfg.Session.Limits.MaxFrameBytes = raw.MaxFrameBytes
	}
	if meta.IsDefined("string_array_encoding") {
		enc, err := message.ParseStringArrayEncoding(raw.StringArrayEncoding)
		if err != nil {
			return Config{}, err
		}
		cfg.StringArrays = enc
	}
	if meta.IsDefined("device") {
		cfg.Device = strings.ToLower(strings.TrimSpace(raw.Device))
	}
	if meta.IsDefined("channel") {
		cfg.Channel = strings.TrimSpace(raw.Channel)
	}
	if meta.IsDefined("buffer_size") {
		cfg.BufferSize = raw.BufferSize
	}
	if meta.IsDefined("sampling_rate") {
		cfg.SamplingRate = raw.SamplingRate
	}
	if meta.IsDefined("max_samples") {
		cfg.MaxSamples = raw.MaxSamples
	}
	if meta.IsDefined("auto_start") {
		cfg.AutoStart = raw.AutoStart
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeList(raw.CORSOrigins)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("%w: address is required", ErrInvalid)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	switch c.Role {
	case "", session.RoleInitiator, session.RoleListener:
	default:
		return fmt.Errorf("%w: role %q", ErrInvalid, c.Role)
	}
	s := c.Session
	for name, d := range map[string]time.Duration{
		"heartbeat_interval": s.HeartbeatInterval,
		"dead_after":         s.SessionDeadAfter,
		"frame_read_timeout": s.FrameReadTimeout,
		"connect_timeout":    s.ConnectTimeout,
		"accept_window":      s.AcceptWindow,
		"write_timeout":      s.WriteTimeout,
		"backoff_initial":    s.Backoff.InitialDelay,
		"backoff_max":        s.Backoff.MaxDelay,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, name)
		}
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if s.Limits.MaxFrameBytes < 8 {
		return fmt.Errorf("%w: max_frame_bytes %d too small", ErrInvalid, s.Limits.MaxFrameBytes)
	}
	if c.Device != DeviceSynthetic {
		return fmt.Errorf("%w: device %q", ErrInvalid, c.Device)
	}
	if c.BufferSize < 0 || c.SamplingRate < 0 {
		return fmt.Errorf("%w: buffer_size and sampling_rate must not be negative", ErrInvalid)
	}
	if c.LogLevel != "" {
		if _, ok := logging.ParseLevel(c.LogLevel); !ok {
			return fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
		}
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
