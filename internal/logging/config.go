package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "DAQLINK_LOG_LEVEL"
	EnvLogTimestamp = "DAQLINK_LOG_TIMESTAMP"
	EnvLogNoColor   = "DAQLINK_LOG_NOCOLOR"
	EnvLogAsync     = "DAQLINK_LOG_ASYNC"
	EnvLogJSON      = "DAQLINK_LOG_JSON"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config controls how log lines are rendered and delivered.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	JSON      bool
	// Async routes writes through a diode buffer so callers never block on output.
	Async bool
	Out   io.Writer
}

var (
	configureOnce sync.Once
	flushLogs     = func() {}
)

// ConfigureRuntime installs the process-wide logger for command entrypoints.
func ConfigureRuntime() zerolog.Logger {
	return Configure(ProfileRuntime)
}

func ConfigureTests() zerolog.Logger {
	return Configure(ProfileTest)
}

func Configure(profile Profile) zerolog.Logger {
	return ConfigureWith(profile, nil)
}

// ConfigureWith is Configure with a final adjustment applied after environment
// overrides, for settings that came from flags or a config file. Only the first
// call in a process takes effect.
func ConfigureWith(profile Profile, adjust func(*Config)) zerolog.Logger {
	configureOnce.Do(func() {
		cfg := DefaultConfig(profile)
		ApplyEnvOverrides(&cfg)
		if adjust != nil {
			adjust(&cfg)
		}
		logger, flush := New(cfg)
		zerolog.SetGlobalLevel(cfg.Level)
		log.Logger = logger
		flushLogs = flush
	})
	return log.Logger
}

// Flush drains buffered output from the configured logger. Call it before exit.
func Flush() {
	flushLogs()
}

func DefaultConfig(profile Profile) Config {
	cfg := Config{Out: os.Stderr}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
		cfg.NoColor = true
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
		cfg.Async = true
	}
	return cfg
}

// New builds a logger from cfg. The returned flush func drains the async buffer
// and must be called before exit when cfg.Async is set.
func New(cfg Config) (zerolog.Logger, func()) {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSON {
		cw := zerolog.ConsoleWriter{Out: out, NoColor: cfg.NoColor, TimeFormat: time.RFC3339}
		if !cfg.Timestamp {
			cw.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		out = cw
	}
	flush := func() {}
	if cfg.Async {
		dw := diode.NewWriter(out, 4096, 10*time.Millisecond, func(missed int) {
			fmt.Fprintf(os.Stderr, "logging: dropped %d messages\n", missed)
		})
		out = dw
		flush = func() { _ = dw.Close() }
	}
	ctx := zerolog.New(out).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger(), flush
}

func ApplyEnvOverrides(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogAsync)); ok {
		cfg.Async = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogJSON)); ok {
		cfg.JSON = v
	}
}

func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
