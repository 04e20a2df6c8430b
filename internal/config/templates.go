package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns a commented example config for a daqctl command.
func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "proxy", "producer":
		return proxyTemplate, nil
	case "monitor", "consumer":
		return monitorTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const sessionTemplate = `
# session
heartbeat_interval = "5s"
dead_after = "15s"
frame_read_timeout = "10s"
connect_timeout = "5s"
accept_window = "10s"
write_timeout = "10s"
backoff_initial = "250ms"
backoff_max = "5s"
max_frame_bytes = 8388608
# "length-prefixed" or "separator" for peers that speak the older layout
string_array_encoding = "length-prefixed"

admin_addr = "127.0.0.1:9090"
cors_origins = []
log_level = "info"
`

const proxyTemplate = `# daqctl proxy: serves a device to one consumer
address = "127.0.0.1"
port = 9001
role = "initiator"

device = "synthetic"
channel = "sin"
buffer_size = 256
sampling_rate = 1024
max_samples = 32000000
` + sessionTemplate

const monitorTemplate = `# daqctl monitor: consumes a remote device
address = "127.0.0.1"
port = 9001
role = "listener"
auto_start = true
` + sessionTemplate
