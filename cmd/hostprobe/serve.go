package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/hostprobe/internal/app"
	hperrors "github.com/hamed0406/hostprobe/internal/errors"
	"github.com/hamed0406/hostprobe/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel, cfg.LogConsole)
		if err != nil {
			return hperrors.WrapWithCode(err, hperrors.ErrConfig, "Couldn't set up logging", "Check log_dir is writable")
		}
		defer func() { _ = logger.Sync() }()

		a, err := app.New(cfg, logger)
		if err != nil {
			return err
		}

		ln, err := net.Listen("tcp", cfg.Addr)
		if err != nil {
			return hperrors.WrapWithCode(err, hperrors.ErrConfig,
				"Couldn't listen on "+cfg.Addr,
				"Is another hostprobe already running? Pick a different --addr")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("serve_start",
			zap.Int("probes", a.Registry.Len()),
			zap.Duration("tick_interval", cfg.TickInterval),
			zap.String("socket_template", cfg.SocketTemplate),
		)
		return a.Run(ctx, ln)
	},
}
