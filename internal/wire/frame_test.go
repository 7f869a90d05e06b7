package wire

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hperrors "github.com/hamed0406/hostprobe/internal/errors"
)

const reply = "{\"data\":\"x\"}\nEND\n"

func TestReceive_StripsTerminator(t *testing.T) {
	got, err := Receive(strings.NewReader(reply), DefaultMaxMessage)
	require.NoError(t, err)
	assert.Equal(t, `{"data":"x"}`, string(got))
}

func TestReceive_SplitReadsMatchWholeRead(t *testing.T) {
	whole, err := Receive(strings.NewReader(reply), DefaultMaxMessage)
	require.NoError(t, err)

	split, err := Receive(iotest.OneByteReader(strings.NewReader(reply)), DefaultMaxMessage)
	require.NoError(t, err)
	assert.Equal(t, whole, split)

	half, err := Receive(iotest.HalfReader(strings.NewReader(reply)), DefaultMaxMessage)
	require.NoError(t, err)
	assert.Equal(t, whole, half)
}

func TestReceive_TerminatorSplitAcrossChunks(t *testing.T) {
	r := io.MultiReader(strings.NewReader("payload\nE"), strings.NewReader("ND\n"))
	got, err := Receive(r, DefaultMaxMessage)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestReceive_EOFBeforeTerminatorIsBroken(t *testing.T) {
	_, err := Receive(strings.NewReader(`{"data":"x"}`), DefaultMaxMessage)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectionBroken))
	assert.True(t, hperrors.IsCode(err, hperrors.ErrFraming))
}

func TestReceive_DataWithEOFAndTerminatorSucceeds(t *testing.T) {
	got, err := Receive(iotest.DataErrReader(strings.NewReader(reply)), DefaultMaxMessage)
	require.NoError(t, err)
	assert.Equal(t, `{"data":"x"}`, string(got))
}

func TestReceive_StopsAtMax(t *testing.T) {
	src := strings.NewReader(strings.Repeat("a", 100) + "\nEND\n")
	got, err := Receive(src, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReplyTooLarge))
	assert.True(t, hperrors.IsCode(err, hperrors.ErrFraming))
	assert.Equal(t, strings.Repeat("a", 10), string(got))
}

func TestReceive_ReadError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Receive(iotest.ErrReader(boom), DefaultMaxMessage)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestReceive_StripsEveryOccurrence(t *testing.T) {
	// max cuts the read after "a\nEND\nb\n"; the embedded terminator still goes
	got, err := Receive(strings.NewReader("a\nEND\nb\nEND\n"), 8)
	require.ErrorIs(t, err, ErrReplyTooLarge)
	assert.Equal(t, "ab\n", string(got))

	got, err = Receive(iotest.HalfReader(strings.NewReader("a\nEND\nb\nEND\n")), 64)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(got))
}

// shortWriter accepts at most n bytes per call.
type shortWriter struct {
	n   int
	buf bytes.Buffer
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.n {
		p = p[:w.n]
	}
	return w.buf.Write(p)
}

func TestSend_RetriesPartialWrites(t *testing.T) {
	w := &shortWriter{n: 3}
	require.NoError(t, Send(w, []byte("cat /proc/loadavg\n"), DefaultMaxMessage))
	assert.Equal(t, "cat /proc/loadavg\n", w.buf.String())
}

type stuckWriter struct{}

func (stuckWriter) Write(p []byte) (int, error) { return 0, nil }

func TestSend_ZeroProgressIsBroken(t *testing.T) {
	err := Send(stuckWriter{}, []byte("uptime\n"), DefaultMaxMessage)
	assert.True(t, errors.Is(err, ErrConnectionBroken))
}

func TestSend_RejectsOversized(t *testing.T) {
	err := Send(io.Discard, bytes.Repeat([]byte("x"), 11), 10)
	require.Error(t, err)
	assert.True(t, hperrors.IsCode(err, hperrors.ErrFraming))
}

func TestSend_WriteError(t *testing.T) {
	pr, pw := io.Pipe()
	_ = pr.Close()
	err := Send(pw, []byte("x"), DefaultMaxMessage)
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrClosedPipe))
}
