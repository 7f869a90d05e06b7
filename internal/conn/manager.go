// Package conn owns the single stream connection to the collector agent of
// the currently selected remote host.
package conn

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hamed0406/hostprobe/internal/domain"
	hperrors "github.com/hamed0406/hostprobe/internal/errors"
	"github.com/hamed0406/hostprobe/internal/repo"
	"github.com/hamed0406/hostprobe/internal/wire"
)

const DefaultSocketTemplate = "~/.hostprobe/hosts/{instance}-{host}.sock"

type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Dialer opens the stream to the agent socket at path.
type Dialer func(ctx context.Context, path string) (net.Conn, error)

func dialUnix(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}

type Options struct {
	Instance       string
	SocketTemplate string
	MaxMessage     int
	// ReconnectEvery is the minimum gap between two dial attempts.
	// Zero means try on every call.
	ReconnectEvery time.Duration
	Dial           Dialer
}

type Manager struct {
	log   *zap.Logger
	store repo.SnapshotStore
	opts  Options

	// ioMu serialises request/response pairs on the stream.
	ioMu sync.Mutex

	mu      sync.Mutex
	host    string
	conn    net.Conn
	limiter *rate.Limiter
}

func NewManager(log *zap.Logger, store repo.SnapshotStore, opts Options) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.SocketTemplate == "" {
		opts.SocketTemplate = DefaultSocketTemplate
	}
	if opts.MaxMessage <= 0 {
		opts.MaxMessage = wire.DefaultMaxMessage
	}
	if opts.Dial == nil {
		opts.Dial = dialUnix
	}
	m := &Manager{
		log:   log,
		store: store,
		opts:  opts,
		host:  store.Session().Host,
	}
	m.limiter = m.newLimiter()
	return m
}

func (m *Manager) newLimiter() *rate.Limiter {
	if m.opts.ReconnectEvery <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(m.opts.ReconnectEvery), 1)
}

// TargetPath returns the socket path the agent for host listens on.
func (m *Manager) TargetPath(host string) string {
	return TargetPath(m.opts.SocketTemplate, m.opts.Instance, host)
}

// TargetPath expands template: a leading "~/" becomes the home directory,
// {instance} and {host} are substituted.
func TargetPath(template, instance, host string) string {
	p := template
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}
	safeHost := strings.ReplaceAll(host, string(filepath.Separator), "_")
	return strings.NewReplacer("{instance}", instance, "{host}", safeHost).Replace(p)
}

// OnHostChanged switches the observed host. "" selects the local machine.
// Switching closes the current stream and clears the snapshot in one step
// with respect to EnsureConnected and Exchange.
func (m *Manager) OnHostChanged(host string) {
	host = strings.TrimSpace(host)

	m.mu.Lock()
	defer m.mu.Unlock()
	if host == m.host {
		return
	}
	prev := m.host
	m.closeLocked()
	m.host = host
	m.limiter = m.newLimiter()
	m.store.Reset(host)
	m.log.Info("conn_host_changed", zap.String("from", prev), zap.String("to", host))
}

// EnsureConnected dials the agent for s.Host if no stream is open. It
// returns true when a stream to that host is ready.
func (m *Manager) EnsureConnected(ctx context.Context, s domain.Session) bool {
	m.mu.Lock()
	if !s.Remote() || s.Host != m.host {
		m.mu.Unlock()
		return false
	}
	if m.conn != nil {
		m.mu.Unlock()
		return true
	}
	if !m.limiter.Allow() {
		m.mu.Unlock()
		return false
	}
	host := m.host
	path := m.TargetPath(host)
	m.mu.Unlock()

	c, err := m.opts.Dial(ctx, path)
	if err != nil {
		m.log.Warn("conn_dial_failed", zap.String("host", host), zap.String("path", path), zap.Error(err))
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.host != host || m.conn != nil {
		// Host switched or someone else connected while we were dialling.
		_ = c.Close()
		return m.host == host && m.conn != nil
	}
	m.conn = c
	m.log.Info("conn_connected", zap.String("host", host), zap.String("path", path))
	return true
}

// Exchange sends payload and returns the agent's reply with the terminator
// removed. Any I/O failure, including a reply cut off at MaxMessage, closes
// the stream; the next EnsureConnected redials.
func (m *Manager) Exchange(ctx context.Context, s domain.Session, payload []byte) ([]byte, error) {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	m.mu.Lock()
	c, host := m.conn, m.host
	m.mu.Unlock()

	if host != s.Host {
		return nil, hperrors.New(hperrors.ErrConn, "host changed while the probe was queued", "")
	}
	if c == nil {
		return nil, hperrors.New(hperrors.ErrConn, "not connected to "+host,
			"Start the collector agent on the remote host")
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = c.SetDeadline(dl)
	} else {
		_ = c.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if len(payload) > m.opts.MaxMessage {
		// Refused before anything hits the stream, so the connection stays usable.
		return nil, wire.Send(c, payload, m.opts.MaxMessage)
	}
	if err := wire.Send(c, payload, m.opts.MaxMessage); err != nil {
		m.drop(c, err)
		return nil, err
	}
	reply, err := wire.Receive(c, m.opts.MaxMessage)
	if err != nil {
		m.drop(c, err)
		return nil, err
	}
	return reply, nil
}

func (m *Manager) drop(c net.Conn, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != c {
		return
	}
	m.log.Warn("conn_broken", zap.String("host", m.host), zap.Error(cause))
	m.closeLocked()
}

func (m *Manager) closeLocked() {
	if m.conn == nil {
		return
	}
	if err := m.conn.Close(); err != nil {
		m.log.Debug("conn_close_failed", zap.Error(err))
	}
	m.conn = nil
}

// Close shuts the stream. Safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		return Connected
	}
	return Disconnected
}

func (m *Manager) ConnectedTo(host string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil && m.host == host
}

func (m *Manager) Host() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.host
}
