// Package wire implements the framing used on the collector socket: raw
// request bytes bounded by a maximum size, and replies terminated by
// "\nEND\n".
package wire

import (
	"bytes"
	"fmt"
	"io"

	hperrors "github.com/hamed0406/hostprobe/internal/errors"
)

const (
	// DefaultMaxMessage bounds a single request or reply.
	DefaultMaxMessage = 20480
	// chunkSize caps a single read.
	chunkSize = 2048
)

// Terminator marks the end of a reply.
var Terminator = []byte("\nEND\n")

// ErrConnectionBroken is returned when the peer stops making progress or the
// stream ends before a reply is complete.
var ErrConnectionBroken = hperrors.New(hperrors.ErrFraming, "socket connection broken", "")

// Send writes msg to w, retrying partial writes until everything is flushed.
// A write that makes no progress is treated as a broken connection.
func Send(w io.Writer, msg []byte, max int) error {
	if max <= 0 {
		max = DefaultMaxMessage
	}
	if len(msg) > max {
		return hperrors.New(hperrors.ErrFraming,
			fmt.Sprintf("message of %d bytes exceeds the %d byte limit", len(msg), max), "")
	}
	sent := 0
	for sent < len(msg) {
		n, err := w.Write(msg[sent:])
		sent += n
		if err != nil {
			return hperrors.WrapWithCode(err, hperrors.ErrFraming, "send failed", "")
		}
		if n == 0 {
			return ErrConnectionBroken
		}
	}
	return nil
}

// ErrReplyTooLarge is returned when max bytes arrive without the terminator.
// The rest of the reply is still unread, so the stream is out of step.
var ErrReplyTooLarge = hperrors.New(hperrors.ErrFraming, "reply exceeds the message size limit", "Raise max_message")

// Receive reads one reply from r. It stops once max bytes are buffered or the
// buffer ends with the terminator, and returns the buffer with every
// terminator occurrence removed. Hitting max first returns what was read
// together with ErrReplyTooLarge.
func Receive(r io.Reader, max int) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxMessage
	}
	buf := make([]byte, 0, min(max, 4*chunkSize))
	chunk := make([]byte, chunkSize)
	for len(buf) < max {
		n, err := r.Read(chunk[:min(max-len(buf), chunkSize)])
		buf = append(buf, chunk[:n]...)
		if bytes.HasSuffix(buf, Terminator) {
			break
		}
		if err != nil {
			if err == io.EOF {
				return nil, ErrConnectionBroken
			}
			return nil, hperrors.WrapWithCode(err, hperrors.ErrFraming, "receive failed", "")
		}
		if n == 0 {
			return nil, ErrConnectionBroken
		}
	}
	out := bytes.ReplaceAll(buf, Terminator, nil)
	if !bytes.HasSuffix(buf, Terminator) {
		return out, ErrReplyTooLarge
	}
	return out, nil
}
