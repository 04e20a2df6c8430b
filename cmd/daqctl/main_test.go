package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/danmuck/daqlink/internal/app"
	"github.com/danmuck/daqlink/internal/config"
	"github.com/danmuck/daqlink/internal/device"
	"github.com/danmuck/daqlink/internal/protocol/session"
	"github.com/danmuck/daqlink/internal/provider"
	"github.com/danmuck/daqlink/internal/testutil/testlog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsedCmd(t *testing.T, args ...string) (*cobra.Command, *globalOptions, *sessionFlags, *streamFlags) {
	t.Helper()
	g := &globalOptions{}
	root := &cobra.Command{Use: "daqctl"}
	g.bind(root)
	var sf sessionFlags
	var st streamFlags
	cmd := &cobra.Command{Use: "proxy"}
	sf.bind(cmd)
	st.bind(cmd)
	root.AddCommand(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, g, &sf, &st
}

func TestLoadConfigDefaultsRole(t *testing.T) {
	cmd, g, sf, st := parsedCmd(t)
	cfg, err := loadConfig(cmd, g, sf, st, session.RoleInitiator)
	require.NoError(t, err)
	assert.Equal(t, session.RoleInitiator, cfg.Role)
	assert.Equal(t, config.DefaultPort, cfg.Port)
	assert.Equal(t, config.DefaultAdminAddr, cfg.AdminAddr)
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daqctl.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = 9200\nchannel = \"saw\"\nrole = \"listener\"\n"), 0o600))

	cmd, g, sf, st := parsedCmd(t,
		"--config", path,
		"--port", "9300",
		"--buffer-size", "512",
		"--admin", "off",
		"--log-level", "debug",
	)
	cfg, err := loadConfig(cmd, g, sf, st, session.RoleInitiator)
	require.NoError(t, err)
	assert.Equal(t, 9300, cfg.Port, "flag beats file")
	assert.Equal(t, "saw", cfg.Channel, "file kept when flag unset")
	assert.Equal(t, session.RoleListener, cfg.Role, "file role beats command default")
	assert.Equal(t, 512, cfg.BufferSize)
	assert.Empty(t, cfg.AdminAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigRejectsBadRole(t *testing.T) {
	cmd, g, sf, st := parsedCmd(t, "--role", "server")
	_, err := loadConfig(cmd, g, sf, st, session.RoleInitiator)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestVersionShort(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--short"})
	require.NoError(t, root.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestConfigInitThenValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.toml")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "init", "--kind", "monitor", path})
	require.NoError(t, root.Execute())
	assert.FileExists(t, path)

	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "init", path})
	assert.Error(t, root.Execute(), "existing file needs --force")

	root = newRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "validate", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "ok (listener")
}

func TestApplySelectionRejectsUnknownChannel(t *testing.T) {
	p := device.NewProvider(device.NewSynthetic(), device.Options{}, testlog.Start(t))
	require.NoError(t, p.Initialize())

	cfg := config.Default()
	cfg.Channel = "square"
	cfg.SamplingRate = 2048
	require.NoError(t, applySelection(p, cfg))
	assert.Equal(t, "square", p.SelectedChannel())
	assert.Equal(t, 2048, p.SelectedSamplingRate())

	cfg.Channel = "noise"
	assert.ErrorIs(t, applySelection(p, cfg), provider.ErrNotAvailable)
}

func TestConfigurationPushedNeedsEverySet(t *testing.T) {
	full := provider.Snapshot{
		Channels:      []string{"sin"},
		BufferSizes:   []int{128},
		SamplingRates: []int{1024},
	}
	assert.True(t, configurationPushed(full))

	noRates := full
	noRates.SamplingRates = nil
	assert.False(t, configurationPushed(noRates))

	noSizes := full
	noSizes.BufferSizes = nil
	assert.False(t, configurationPushed(noSizes))

	assert.False(t, configurationPushed(provider.Snapshot{}))
}

func TestSimulateStreamsForDuration(t *testing.T) {
	cfg := config.Default()
	cfg.BufferSize = 128
	cfg.SamplingRate = 1024
	rig, err := newSimulateRig(cfg, app.NewDeps(testlog.Start(t), "test"))
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, rig.run(context.Background(), 300*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)

	v := rig.stats.view()
	assert.Equal(t, 1, v.Streams)
	assert.Greater(t, v.Buffers, 0)
	assert.Equal(t, v.Buffers*128, v.Samples)
	assert.Zero(t, v.Gaps)
	assert.Equal(t, provider.Ready, rig.device.State())
}

func TestSimulateEndsWithSampleLimit(t *testing.T) {
	cfg := config.Default()
	cfg.BufferSize = 128
	cfg.SamplingRate = 16384
	cfg.MaxSamples = 512
	rig, err := newSimulateRig(cfg, app.NewDeps(testlog.Start(t), "test"))
	require.NoError(t, err)

	require.NoError(t, rig.run(context.Background(), 10*time.Second))
	assert.Equal(t, 4, rig.stats.view().Buffers)
}

func TestProxyFeedsMonitor(t *testing.T) {
	logger := testlog.Start(t)

	mcfg := config.Default()
	mcfg.Port = 0
	mcfg.Role = session.RoleListener
	mcfg.AutoStart = true
	mcfg.Channel = "square"
	mcfg.BufferSize = 128
	monitor, err := newMonitorRig(mcfg, app.NewDeps(logger.With().Str("side", "monitor").Logger(), "test"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	monitorDone := make(chan error, 1)
	go func() { monitorDone <- monitor.run(ctx) }()

	ln := monitor.transport.(*session.Listener)
	require.Eventually(t, func() bool { return ln.Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	pcfg := config.Default()
	pcfg.Role = session.RoleInitiator
	pcfg.Address = host
	pcfg.Port, err = strconv.Atoi(port)
	require.NoError(t, err)
	proxy, err := newProxyRig(pcfg, app.NewDeps(logger.With().Str("side", "proxy").Logger(), "test"))
	require.NoError(t, err)
	proxyDone := make(chan error, 1)
	go func() { proxyDone <- proxy.run(ctx) }()

	require.Eventually(t, func() bool {
		return monitor.stats.view().Buffers >= 3
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "square", proxy.device.SelectedChannel())
	assert.Equal(t, 128, proxy.device.SelectedBufferSize())
	assert.Equal(t, provider.Working, monitor.remote.State())
	assert.True(t, monitor.component().Ready())
	assert.True(t, proxy.component().Ready())
	v := monitor.stats.view()
	assert.Equal(t, 1, v.Streams, "auto start fires once per connection")
	assert.Zero(t, v.Gaps)

	cancel()
	for _, done := range []chan error{monitorDone, proxyDone} {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("rig did not stop")
		}
	}
}
