package domain

import (
	"encoding/json"
	"regexp"
	"time"
)

// Locality says where a probe may run.
type Locality int

const (
	// RemoteOnly probes run only against a selected remote host.
	RemoteOnly Locality = iota
	// AnyHost probes run remotely when a host is selected, locally otherwise.
	AnyHost
	// LocalOnly probes run only on the local machine.
	LocalOnly
)

func (l Locality) String() string {
	switch l {
	case AnyHost:
		return "any"
	case LocalOnly:
		return "local"
	default:
		return "remote"
	}
}

// AllowsLocal is false only for RemoteOnly.
func (l Locality) AllowsLocal() bool { return l == AnyHost || l == LocalOnly }

// AllowsRemote is false only for LocalOnly.
func (l Locality) AllowsRemote() bool { return l == AnyHost || l == RemoteOnly }

// MarshalJSON encodes the locality as "any", "local" or "remote".
func (l Locality) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// Dependency gates a probe on another probe's latest output.
type Dependency struct {
	On      string
	Pattern *regexp.Regexp
}

// RenderHint is an opaque front-end payload. It is produced once when the
// registry is loaded and never interpreted afterwards.
type RenderHint = json.RawMessage

type ProbeSpec struct {
	Name       string
	Command    string
	Locality   Locality
	Refresh    time.Duration // zero: fetch once
	Dependency *Dependency
	Render     RenderHint
}

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

type ProbeResult struct {
	Status     Status     `json:"status"`
	Data       string     `json:"data"`
	ErrorData  string     `json:"errorData,omitempty"`
	CapturedAt time.Time  `json:"capturedAt"`
	Render     RenderHint `json:"render,omitempty"`
}

// OK builds a successful result; empty data is still a success.
func OK(data string, at time.Time) ProbeResult {
	return ProbeResult{Status: StatusOK, Data: data, CapturedAt: at}
}

// Failed builds an error result carrying msg and no data.
func Failed(msg string, at time.Time) ProbeResult {
	return ProbeResult{Status: StatusError, ErrorData: msg, CapturedAt: at}
}

// Session identifies one observation period of a host. Epoch advances on
// every host switch, so A -> B -> A still yields distinct sessions.
type Session struct {
	Host  string // "" = local machine
	Epoch uint64
}

func (s Session) Remote() bool { return s.Host != "" }

type Snapshot struct {
	RemoteHost string
	Epoch      uint64
	Results    map[string]ProbeResult
}
