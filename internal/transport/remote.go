package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/hamed0406/hostprobe/internal/domain"
	hperrors "github.com/hamed0406/hostprobe/internal/errors"
)

// Exchanger performs one framed request/response with the agent serving the
// session's host.
type Exchanger interface {
	ConnectedTo(host string) bool
	Exchange(ctx context.Context, s domain.Session, payload []byte) ([]byte, error)
}

// Remote sends probe commands to the collector agent of the selected host.
type Remote struct {
	Conn    Exchanger
	Timeout time.Duration
}

func NewRemote(conn Exchanger, timeout time.Duration) *Remote {
	return &Remote{Conn: conn, Timeout: timeout}
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) Accepts(s domain.Session, spec domain.ProbeSpec) bool {
	return s.Remote() && spec.Locality.AllowsRemote() && r.Conn.ConnectedTo(s.Host)
}

func (r *Remote) Execute(ctx context.Context, s domain.Session, spec domain.ProbeSpec) domain.ProbeResult {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := spec.Command
	if !strings.HasSuffix(cmd, "\n") {
		cmd += "\n"
	}
	reply, err := r.Conn.Exchange(ctx, s, []byte(cmd))
	if err != nil {
		return domain.Failed(err.Error(), time.Now())
	}
	res, err := DecodeResult(reply)
	if err != nil {
		return domain.Failed(err.Error(), time.Now())
	}
	res.CapturedAt = time.Now()
	return res
}

// wireResult accepts both the current reply shape and the short keys older
// agents send ("d" for data, "s" non-zero for failure).
type wireResult struct {
	Status    string  `json:"status"`
	Data      *string `json:"data"`
	ErrorData string  `json:"errorData"`
	D         *string `json:"d"`
	S         *int    `json:"s"`
}

// DecodeResult parses an agent reply. The timestamp is left for the caller.
func DecodeResult(b []byte) (domain.ProbeResult, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return domain.ProbeResult{}, hperrors.New(hperrors.ErrDecode, "empty reply from agent", "")
	}
	var w wireResult
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return domain.ProbeResult{}, hperrors.WrapWithCode(err, hperrors.ErrDecode,
			"malformed reply from agent", "Check the agent speaks the JSON result format")
	}

	data := ""
	switch {
	case w.Data != nil:
		data = *w.Data
	case w.D != nil:
		data = *w.D
	}

	failed := w.Status == string(domain.StatusError) || (w.S != nil && *w.S != 0)
	if !failed {
		return domain.ProbeResult{Status: domain.StatusOK, Data: data}, nil
	}
	msg := w.ErrorData
	if msg == "" {
		msg = data
	}
	return domain.ProbeResult{Status: domain.StatusError, ErrorData: msg}, nil
}
