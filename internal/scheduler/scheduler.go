package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/hostprobe/internal/domain"
	"github.com/hamed0406/hostprobe/internal/probe"
	"github.com/hamed0406/hostprobe/internal/repo"
	"github.com/hamed0406/hostprobe/internal/transport"
)

// Registry is the read side of the probe registry.
type Registry interface {
	All() []domain.ProbeSpec
	Get(name string) (domain.ProbeSpec, bool)
}

// Connector brings up the stream to the session's remote host.
type Connector interface {
	EnsureConnected(ctx context.Context, s domain.Session) bool
}

type Config struct {
	Interval time.Duration
	// Bootstrap and Discovery run first, alone, whenever a remote host has
	// no result for them yet. Names missing from the registry are ignored.
	Bootstrap string
	Discovery string
}

type Scheduler struct {
	Logger   *zap.Logger
	Registry Registry
	Store    repo.SnapshotStore
	Conn     Connector
	Local    transport.Executor
	Remote   transport.Executor
	Config   Config
	// Now stamps results and decides refresh due-ness.
	Now func() time.Time
}

func NewScheduler(
	logger *zap.Logger,
	reg Registry,
	store repo.SnapshotStore,
	conn Connector,
	local transport.Executor,
	remote transport.Executor,
	cfg Config,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	return &Scheduler{
		Logger:   logger,
		Registry: reg,
		Store:    store,
		Conn:     conn,
		Local:    local,
		Remote:   remote,
		Config:   cfg,
		Now:      time.Now,
	}
}

// Run starts the loop. It does an immediate pass, then runs each tick.
// Stops when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.Config.Interval == 0 {
		// disabled
		s.Logger.Info("scheduler_disabled")
		return
	}
	t := time.NewTicker(s.Config.Interval)
	defer t.Stop()

	// immediate pass
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("scheduler_stopped")
			return
		case <-t.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scheduling pass. Probes run one at a time, in
// registry order, so a reply is always read before the next request is
// written. A panic ends the pass but not the loop.
func (s *Scheduler) RunOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("scheduler_tick_panic", zap.String("panic", fmt.Sprint(r)))
		}
	}()

	sess := s.Store.Session()
	exec := s.Local
	if sess.Remote() {
		if !s.Conn.EnsureConnected(ctx, sess) {
			s.Logger.Debug("scheduler_waiting_for_connection", zap.String("host", sess.Host))
			return
		}
		exec = s.Remote
	}

	// Due-ness and conditions are judged against the results as they stood
	// when the pass started.
	snap := s.Store.Get()
	if snap.Epoch != sess.Epoch {
		return
	}

	if sess.Remote() && s.needsBootstrap(snap.Results) {
		s.bootstrap(ctx, sess, exec, snap.Results)
		return
	}

	now := s.Now()
	for _, spec := range s.Registry.All() {
		if ctx.Err() != nil {
			return
		}
		if !Due(spec, snap.Results, now) {
			continue
		}
		if el := probe.Evaluate(spec, snap.Results); el != probe.Eligible {
			s.Logger.Debug("scheduler_skipped",
				zap.String("probe", spec.Name),
				zap.String("reason", el.String()),
			)
			continue
		}
		if !exec.Accepts(sess, spec) {
			continue
		}
		s.run(ctx, sess, exec, spec)
	}
}

// Due reports whether spec should run at now: it has never produced a
// result, or it refreshes and its last result is at least Refresh old.
func Due(spec domain.ProbeSpec, results map[string]domain.ProbeResult, now time.Time) bool {
	last, ok := results[spec.Name]
	if !ok {
		return true
	}
	return spec.Refresh > 0 && !now.Before(last.CapturedAt.Add(spec.Refresh))
}

func (s *Scheduler) bootstrapNames() []string {
	return []string{s.Config.Bootstrap, s.Config.Discovery}
}

func (s *Scheduler) needsBootstrap(results map[string]domain.ProbeResult) bool {
	for _, name := range s.bootstrapNames() {
		if _, known := s.Registry.Get(name); !known {
			continue
		}
		if _, ok := results[name]; !ok {
			return true
		}
	}
	return false
}

// bootstrap runs whichever of the bootstrap and discovery probes has no
// result yet, in that order. When the first one fails and takes the
// connection with it, Accepts turns false and discovery waits for the next
// pass.
func (s *Scheduler) bootstrap(ctx context.Context, sess domain.Session, exec transport.Executor, results map[string]domain.ProbeResult) {
	for _, name := range s.bootstrapNames() {
		spec, ok := s.Registry.Get(name)
		if !ok {
			continue
		}
		if _, done := results[name]; done {
			continue
		}
		if !exec.Accepts(sess, spec) {
			s.Logger.Info("scheduler_bootstrap_aborted",
				zap.String("host", sess.Host),
				zap.String("probe", name),
			)
			return
		}
		s.run(ctx, sess, exec, spec)
	}
}

func (s *Scheduler) run(ctx context.Context, sess domain.Session, exec transport.Executor, spec domain.ProbeSpec) {
	res := exec.Execute(ctx, sess, spec)
	res.CapturedAt = s.Now()
	if spec.Render != nil {
		res.Render = spec.Render
	}

	if !s.Store.Put(sess, spec.Name, res) {
		s.Logger.Debug("scheduler_result_discarded",
			zap.String("probe", spec.Name),
			zap.String("host", sess.Host),
		)
		return
	}
	if res.Status == domain.StatusError {
		s.Logger.Warn("scheduler_probe_failed",
			zap.String("probe", spec.Name),
			zap.String("host", sess.Host),
			zap.String("executor", exec.Name()),
			zap.String("error", res.ErrorData),
		)
		return
	}
	s.Logger.Debug("scheduler_probed",
		zap.String("probe", spec.Name),
		zap.String("host", sess.Host),
		zap.String("executor", exec.Name()),
		zap.Int("bytes", len(res.Data)),
	)
}
