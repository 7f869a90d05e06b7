package transport

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/hostprobe/internal/domain"
	hperrors "github.com/hamed0406/hostprobe/internal/errors"
)

func spec(name, command string, loc domain.Locality) domain.ProbeSpec {
	return domain.ProbeSpec{Name: name, Command: command, Locality: loc}
}

func TestLocal_CollectsStdoutThenStderr(t *testing.T) {
	l := NewLocal("", time.Second*5)
	res := l.Execute(context.Background(), domain.Session{}, spec("echo", "echo out; echo err >&2", domain.AnyHost))

	require.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, "out\nerr\n", res.Data)
	assert.False(t, res.CapturedAt.IsZero())
}

func TestLocal_NonZeroExitIsStillOK(t *testing.T) {
	l := NewLocal("", time.Second*5)
	res := l.Execute(context.Background(), domain.Session{}, spec("grep", "echo nope; exit 3", domain.AnyHost))

	assert.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, "nope\n", res.Data)
}

func TestLocal_EmptyOutput(t *testing.T) {
	l := NewLocal("", time.Second*5)
	res := l.Execute(context.Background(), domain.Session{}, spec("true", "true", domain.LocalOnly))

	assert.Equal(t, domain.StatusOK, res.Status)
	assert.Empty(t, res.Data)
}

func TestLocal_MissingShellIsAnError(t *testing.T) {
	l := NewLocal("/nonexistent/shell", time.Second*5)
	res := l.Execute(context.Background(), domain.Session{}, spec("x", "echo hi", domain.AnyHost))

	assert.Equal(t, domain.StatusError, res.Status)
	assert.Contains(t, res.ErrorData, "Couldn't run the command locally")
	assert.Empty(t, res.Data)
}

func TestLocal_TimeoutBoundsTheProbe(t *testing.T) {
	l := NewLocal("", 100*time.Millisecond)
	start := time.Now()
	out, err := l.Run(context.Background(), "sleep 10")

	require.Error(t, err)
	assert.Empty(t, out)
	assert.True(t, hperrors.IsCode(err, hperrors.ErrTransport))
	assert.True(t, strings.Contains(err.Error(), "timed out"), err.Error())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLocal_Accepts(t *testing.T) {
	l := NewLocal("", 0)
	assert.True(t, l.Accepts(domain.Session{}, spec("a", "x", domain.AnyHost)))
	assert.True(t, l.Accepts(domain.Session{}, spec("a", "x", domain.LocalOnly)))
	assert.False(t, l.Accepts(domain.Session{}, spec("a", "x", domain.RemoteOnly)))
}
