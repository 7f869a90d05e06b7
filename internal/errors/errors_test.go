package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_SingleLine(t *testing.T) {
	err := WrapWithCode(stderrors.New("connection refused"), ErrConn, "dial failed", "start the agent")
	if got := err.Error(); got != "dial failed: connection refused" {
		t.Fatalf("unexpected message %q", got)
	}
	if strings.Contains(err.Error(), "\n") {
		t.Fatalf("Error() must stay on one line")
	}
}

func TestError_Detailed(t *testing.T) {
	err := WrapWithCode(stderrors.New("boom"), ErrConfig, "bad registry", "check the YAML")
	d := err.Detailed()
	for _, want := range []string{"✗ bad registry", "boom", "check the YAML"} {
		if !strings.Contains(d, want) {
			t.Fatalf("detailed output %q missing %q", d, want)
		}
	}
}

func TestIsCode_ThroughWrapping(t *testing.T) {
	base := New(ErrFraming, "connection broken", "")
	wrapped := fmt.Errorf("receive: %w", base)

	if !IsCode(wrapped, ErrFraming) {
		t.Fatalf("expected FRAMING code through fmt wrapping")
	}
	if IsCode(wrapped, ErrDecode) {
		t.Fatalf("unexpected DECODE match")
	}
	if IsCode(nil, ErrFraming) {
		t.Fatalf("nil must never match")
	}
	if IsCode(stderrors.New("plain"), ErrFraming) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("root")
	err := Wrap(cause, "outer")
	if !stderrors.Is(err, cause) {
		t.Fatalf("errors.Is should reach the cause")
	}
	if err.Code != ErrTransport {
		t.Fatalf("Wrap defaults to TRANSPORT, got %s", err.Code)
	}
}

func TestFormat(t *testing.T) {
	if got := Format(stderrors.New("plain")); got != "plain" {
		t.Fatalf("got %q", got)
	}
	if got := Format(New(ErrConfig, "oops", "")); !strings.HasPrefix(got, "✗ oops") {
		t.Fatalf("got %q", got)
	}
}
