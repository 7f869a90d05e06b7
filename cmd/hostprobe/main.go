package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hamed0406/hostprobe/internal/config"
	hperrors "github.com/hamed0406/hostprobe/internal/errors"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "hostprobe",
	Short: "Run diagnostic probes against the host you are looking at",
	Long: `hostprobe runs a registry of shell probes against the local machine or,
when a remote host is selected, through that host's collector socket, and
publishes the latest results at GET /data/current.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "YAML config file")
	pf.String("addr", "", "HTTP bind address (default 127.0.0.1:2048)")
	pf.String("log-dir", "", "log directory")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.Bool("log-console", false, "mirror logs to stderr")
	pf.Duration("tick-interval", 0, "scheduler tick (default 2s)")
	pf.Duration("probe-timeout", 0, "bound on a single probe (default 30s)")
	pf.String("registry-file", "", "probe registry YAML (default: built-in probes)")
	pf.String("instance", "", "instance id used in socket paths (default: generated)")
	pf.String("socket-template", "", "agent socket path with {instance} and {host}")
	pf.String("host-file", "", "file holding the terminal title to follow")
	pf.String("static-dir", "", "serve a front-end from this directory")

	rootCmd.AddCommand(serveCmd, probesCmd, runCmd, preflightCmd)
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.Load(configFile, cmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, hperrors.Format(err))
		os.Exit(1)
	}
}
