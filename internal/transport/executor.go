// Package transport runs probe commands either on the local machine or on
// the selected remote host through the collector socket.
package transport

import (
	"context"

	"github.com/hamed0406/hostprobe/internal/domain"
)

// Executor runs one probe. Execute never returns an error: every failure is
// reported as a result with StatusError so the caller's loop always goes on.
type Executor interface {
	Name() string
	// Accepts reports whether spec can run through this executor for the
	// given session right now. A false answer means "skip this tick".
	Accepts(s domain.Session, spec domain.ProbeSpec) bool
	Execute(ctx context.Context, s domain.Session, spec domain.ProbeSpec) domain.ProbeResult
}
