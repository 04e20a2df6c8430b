package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "daqctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:   "daqctl",
		Short: "Stream waveform data between an acquisition device and a remote consumer",
		Long: `daqctl runs either end of a framed TCP session that carries device
configuration and sampled waveform buffers.

  proxy     serve a device to one consumer (initiator by default)
  monitor   consume a remote device and log stream statistics (listener by default)
  simulate  pace a local synthetic device without a session`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	g.bind(root)
	root.AddCommand(
		proxyCmd(g),
		monitorCmd(g),
		simulateCmd(g),
		configCmd(),
		versionCmd(),
	)
	return root
}
