// Package app wires the probe scheduler, the connection manager and the HTTP
// publishing surface into one process.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/hostprobe/internal/config"
	"github.com/hamed0406/hostprobe/internal/conn"
	"github.com/hamed0406/hostprobe/internal/hostwatch"
	"github.com/hamed0406/hostprobe/internal/httpapi"
	"github.com/hamed0406/hostprobe/internal/probe"
	"github.com/hamed0406/hostprobe/internal/repo/memory"
	"github.com/hamed0406/hostprobe/internal/scheduler"
	"github.com/hamed0406/hostprobe/internal/transport"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Registry  *probe.Registry
	Store     *memory.Store
	Conn      *conn.Manager
	Local     *transport.Local
	Remote    *transport.Remote
	Scheduler *scheduler.Scheduler
	API       *httpapi.Server
}

// LoadRegistry returns the probes from path, or the built-in set when path
// is empty.
func LoadRegistry(path string) (*probe.Registry, error) {
	if path == "" {
		return probe.Default()
	}
	return probe.LoadFile(path)
}

func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg, err := LoadRegistry(cfg.RegistryFile)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{cfg.BootstrapProbe, cfg.DiscoveryProbe} {
		if _, ok := reg.Get(name); name != "" && !ok {
			logger.Warn("app_bootstrap_probe_missing", zap.String("probe", name))
		}
	}

	store := memory.New()
	cm := conn.NewManager(logger.Named("conn"), store, conn.Options{
		Instance:       cfg.Instance,
		SocketTemplate: cfg.SocketTemplate,
		MaxMessage:     cfg.MaxMessage,
		ReconnectEvery: cfg.ReconnectInterval,
	})
	local := transport.NewLocal(cfg.Shell, cfg.ProbeTimeout)
	remote := transport.NewRemote(cm, cfg.ProbeTimeout)

	sched := scheduler.NewScheduler(logger.Named("scheduler"), reg, store, cm, local, remote, scheduler.Config{
		Interval:  cfg.TickInterval,
		Bootstrap: cfg.BootstrapProbe,
		Discovery: cfg.DiscoveryProbe,
	})

	return &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  reg,
		Store:     store,
		Conn:      cm,
		Local:     local,
		Remote:    remote,
		Scheduler: sched,
		API:       httpapi.NewServer(logger.Named("http"), store, reg, cm, local),
	}, nil
}

func (a *App) Handler() http.Handler {
	return a.API.Router(httpapi.Options{
		ControlTokens: a.Config.ControlTokens,
		RateRPM:       a.Config.RateRPM,
		RateBurst:     a.Config.RateBurst,
		StaticDir:     a.Config.StaticDir,
	})
}

// Run serves HTTP on ln and drives the scheduler (and the host file watcher
// when configured) until ctx is cancelled.
func (a *App) Run(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Scheduler.Run(ctx)
	}()

	if a.Config.HostFile != "" {
		w := hostwatch.NewFileWatcher(a.Logger.Named("hostwatch"), a.Config.HostFile, a.Conn.OnHostChanged)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				a.Logger.Error("hostwatch_failed", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	a.Logger.Info("api_listen", zap.String("addr", ln.Addr().String()), zap.String("instance", a.Config.Instance))

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		a.Logger.Warn("api_shutdown_error", zap.Error(serr))
	}
	cancel()
	wg.Wait()
	a.Conn.Close()
	a.Logger.Info("app_stopped")
	return err
}
