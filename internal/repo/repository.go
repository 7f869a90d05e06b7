package repo

import "github.com/hamed0406/hostprobe/internal/domain"

// SnapshotStore holds the latest probe results for the observed host.
// Implementations must be safe for concurrent readers and a single writer.
type SnapshotStore interface {
	// Session returns the host and epoch writes are currently accepted for.
	Session() domain.Session
	// Reset switches to host, clearing all results, and returns the new session.
	Reset(host string) domain.Session
	// Put records r under name. It returns false when the write was dropped:
	// the session is stale, or r is older than the stored entry.
	Put(s domain.Session, name string, r domain.ProbeResult) bool
	// Get returns a deep copy of the current snapshot.
	Get() domain.Snapshot
}
