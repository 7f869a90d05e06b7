package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/hamed0406/hostprobe/internal/domain"
	hperrors "github.com/hamed0406/hostprobe/internal/errors"
)

const DefaultShell = "/bin/sh"

// Local runs probe commands through a shell on this machine.
type Local struct {
	Shell   string
	Timeout time.Duration
}

func NewLocal(shell string, timeout time.Duration) *Local {
	if shell == "" {
		shell = DefaultShell
	}
	return &Local{Shell: shell, Timeout: timeout}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Accepts(_ domain.Session, spec domain.ProbeSpec) bool {
	return spec.Locality.AllowsLocal()
}

func (l *Local) Execute(ctx context.Context, _ domain.Session, spec domain.ProbeSpec) domain.ProbeResult {
	out, err := l.Run(ctx, spec.Command)
	if err != nil {
		return domain.Failed(err.Error(), time.Now())
	}
	return domain.OK(out, time.Now())
}

// Run executes command and returns stdout followed by stderr. A non-zero
// exit status is not an error; only failing to run the command, or running
// out of time, is.
func (l *Local) Run(ctx context.Context, command string) (string, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, l.Shell, "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Background children may keep the pipes open after the shell exits.
	cmd.WaitDelay = 2 * time.Second

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", hperrors.WrapWithCode(ctxErr, hperrors.ErrTransport,
				fmt.Sprintf("probe timed out after %s", l.Timeout),
				"Raise probe_timeout or simplify the command")
		}
		return "", hperrors.WrapWithCode(ctxErr, hperrors.ErrTransport, "probe cancelled", "")
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return "", hperrors.WrapWithCode(runErr, hperrors.ErrTransport,
				"Couldn't run the command locally",
				"Make sure the shell exists and is executable.")
		}
	}
	return stdout.String() + stderr.String(), nil
}
