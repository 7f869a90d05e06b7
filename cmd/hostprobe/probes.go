package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/hostprobe/internal/app"
	"github.com/hamed0406/hostprobe/internal/domain"
	hperrors "github.com/hamed0406/hostprobe/internal/errors"
	"github.com/hamed0406/hostprobe/internal/transport"
)

var probesCmd = &cobra.Command{
	Use:   "probes",
	Short: "List the probe registry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		reg, err := app.LoadRegistry(cfg.RegistryFile)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tRUNS ON\tREFRESH\tCONDITION")
		for _, p := range reg.All() {
			refresh := "once"
			if p.Refresh > 0 {
				refresh = p.Refresh.String()
			}
			cond := "-"
			if p.Dependency != nil {
				cond = fmt.Sprintf("%s =~ /%s/", p.Dependency.On, p.Dependency.Pattern)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, p.Locality, refresh, cond)
		}
		return tw.Flush()
	},
}

var runHostFlag string

var runCmd = &cobra.Command{
	Use:   "run <probe>",
	Short: "Run one probe now and print its output",
	Long: `Run a single probe from the registry and print its output.

Without --host the probe runs on this machine; with --host it is sent to
that host's collector agent. Agent sockets are named after the serve
process's instance id, so --host also needs --instance (or
HOSTPROBE_INSTANCE) set to that id.

Examples:
  hostprobe run df
  hostprobe run --instance 1f0c-prod --host web1 "MySQL Status"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runProbe(cmd, args[0], runHostFlag, func() (*app.App, error) {
			return app.New(cfg, zap.NewNop())
		})
	},
}

func init() {
	runCmd.Flags().StringVar(&runHostFlag, "host", "", "run through this host's collector agent")
}

func runProbe(cmd *cobra.Command, name, host string, build func() (*app.App, error)) error {
	a, err := build()
	if err != nil {
		return err
	}
	defer a.Conn.Close()

	spec, ok := a.Registry.Get(name)
	if !ok {
		return hperrors.New(hperrors.ErrConfig, fmt.Sprintf("Unknown probe %q", name),
			"Run 'hostprobe probes' to list the registry")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var exec transport.Executor = a.Local
	sess := a.Store.Session()
	if host != "" && a.Config.InstanceGenerated {
		return hperrors.New(hperrors.ErrConfig,
			"--host needs the instance id of the running serve process",
			"Pass --instance (or set HOSTPROBE_INSTANCE) to match the agent socket name")
	}
	if host != "" {
		a.Conn.OnHostChanged(host)
		sess = a.Store.Session()
		if !a.Conn.EnsureConnected(ctx, sess) {
			return hperrors.New(hperrors.ErrConn,
				"Couldn't connect to the agent for "+host,
				"Expected a collector socket at "+a.Conn.TargetPath(host))
		}
		exec = a.Remote
	}
	if !exec.Accepts(sess, spec) {
		return hperrors.New(hperrors.ErrConfig,
			fmt.Sprintf("Probe %q runs on %s hosts only", name, spec.Locality),
			"Use --host for remote probes, drop it for local ones")
	}

	res := exec.Execute(ctx, sess, spec)
	if res.Status == domain.StatusError {
		return hperrors.New(hperrors.ErrTransport, fmt.Sprintf("Probe %q failed", name), res.ErrorData)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), res.Data)
	return err
}
