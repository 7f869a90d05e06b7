package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hamed0406/hostprobe/internal/app"
	"github.com/hamed0406/hostprobe/internal/config"
	"github.com/hamed0406/hostprobe/internal/conn"
	hperrors "github.com/hamed0406/hostprobe/internal/errors"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Check the configuration before serving",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if failed := preflight(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg); failed > 0 {
			return hperrors.New(hperrors.ErrConfig,
				fmt.Sprintf("preflight found %d problem(s)", failed), "")
		}
		return nil
	},
}

// preflight prints one line per check and returns the number of failures.
func preflight(out, errOut io.Writer, cfg config.Config) int {
	failed := 0
	fail := func(msg string) {
		fmt.Fprintln(errOut, "✖", msg)
		failed++
	}
	warn := func(msg string) { fmt.Fprintln(errOut, "⚠", msg) }
	ok := func(msg string) { fmt.Fprintln(out, "✔", msg) }

	reg, err := app.LoadRegistry(cfg.RegistryFile)
	if err != nil {
		fail(err.Error())
	} else {
		ok(fmt.Sprintf("registry loaded, %d probes", reg.Len()))
		for _, name := range []string{cfg.BootstrapProbe, cfg.DiscoveryProbe} {
			if _, found := reg.Get(name); name != "" && !found {
				warn(fmt.Sprintf("probe %q is not in the registry; remote hosts start without it", name))
			}
		}
	}

	if _, err := exec.LookPath(cfg.Shell); err != nil {
		fail("shell " + cfg.Shell + " not found: " + err.Error())
	} else {
		ok("shell " + cfg.Shell)
	}

	if ln, err := net.Listen("tcp", cfg.Addr); err != nil {
		fail("cannot listen on " + cfg.Addr + ": " + err.Error())
	} else {
		_ = ln.Close()
		ok("addr=" + cfg.Addr)
	}
	if host, _, err := net.SplitHostPort(cfg.Addr); err == nil && host != "127.0.0.1" && host != "localhost" && host != "::1" {
		if len(cfg.ControlTokens) == 0 {
			warn("addr is not loopback and control_tokens is empty; anyone who can reach it may switch hosts")
		}
	}

	sockDir := filepath.Dir(conn.TargetPath(cfg.SocketTemplate, cfg.Instance, "example"))
	if st, err := os.Stat(sockDir); err != nil || !st.IsDir() {
		warn("socket directory " + sockDir + " does not exist yet; agents create it when they start")
	} else {
		ok("socket directory " + sockDir)
	}

	if cfg.HostFile != "" {
		if _, err := os.Stat(filepath.Dir(cfg.HostFile)); err != nil {
			fail("host_file directory missing: " + filepath.Dir(cfg.HostFile))
		} else {
			ok("host_file=" + cfg.HostFile)
		}
	}

	if cfg.StaticDir != "" {
		if _, err := os.Stat(filepath.Join(cfg.StaticDir, "index.html")); err != nil {
			warn("static_dir has no index.html: " + cfg.StaticDir)
		}
	}

	ok("instance=" + cfg.Instance)

	if failed == 0 {
		ok("preflight passed")
	}
	return failed
}
