package memory

import (
	"bytes"
	"sync"

	"github.com/hamed0406/hostprobe/internal/domain"
	"github.com/hamed0406/hostprobe/internal/repo"
)

var _ repo.SnapshotStore = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	host    string
	epoch   uint64
	results map[string]domain.ProbeResult
}

func New() *Store {
	return &Store{
		results: make(map[string]domain.ProbeResult),
	}
}

func (m *Store) Session() domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.Session{Host: m.host, Epoch: m.epoch}
}

// Reset replaces the whole result map in one step, so no reader ever sees the
// new host next to results gathered for the old one.
func (m *Store) Reset(host string) domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.host = host
	m.epoch++
	m.results = make(map[string]domain.ProbeResult)
	return domain.Session{Host: m.host, Epoch: m.epoch}
}

func (m *Store) Put(s domain.Session, name string, r domain.ProbeResult) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Epoch != m.epoch || s.Host != m.host {
		return false
	}
	if cur, ok := m.results[name]; ok && r.CapturedAt.Before(cur.CapturedAt) {
		return false
	}
	m.results[name] = r
	return true
}

func (m *Store) Get() domain.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := domain.Snapshot{
		RemoteHost: m.host,
		Epoch:      m.epoch,
		Results:    make(map[string]domain.ProbeResult, len(m.results)),
	}
	for name, r := range m.results {
		if r.Render != nil {
			r.Render = bytes.Clone(r.Render)
		}
		out.Results[name] = r
	}
	return out
}
