package sysinfo

import (
	"context"
	"os"
	"testing"
)

func TestCollect_ReportsThisHost(t *testing.T) {
	s, err := Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want, err := os.Hostname()
	if err != nil {
		t.Skipf("hostname unavailable: %v", err)
	}
	if s.Hostname != want {
		t.Fatalf("hostname = %q, want %q", s.Hostname, want)
	}
	if s.OS == "" {
		t.Fatalf("expected an OS name")
	}
}
