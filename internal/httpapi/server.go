package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/hostprobe/internal/conn"
	"github.com/hamed0406/hostprobe/internal/domain"
	apimw "github.com/hamed0406/hostprobe/internal/httpapi/middleware"
	"github.com/hamed0406/hostprobe/internal/hostwatch"
	"github.com/hamed0406/hostprobe/internal/repo"
	"github.com/hamed0406/hostprobe/internal/sysinfo"
)

// HostSwitcher selects the observed host.
type HostSwitcher interface {
	OnHostChanged(host string)
	Host() string
	State() conn.State
}

type Registry interface {
	All() []domain.ProbeSpec
}

type Server struct {
	Logger   *zap.Logger
	Store    repo.SnapshotStore
	Registry Registry
	Hosts    HostSwitcher
	Runner   hostwatch.Runner
	SysInfo  func(ctx context.Context) (*sysinfo.Summary, error)
}

func NewServer(l *zap.Logger, store repo.SnapshotStore, reg Registry, hosts HostSwitcher, runner hostwatch.Runner) *Server {
	return &Server{
		Logger:   l,
		Store:    store,
		Registry: reg,
		Hosts:    hosts,
		Runner:   runner,
		SysInfo:  sysinfo.Collect,
	}
}

type Options struct {
	ControlTokens []string
	RateRPM       int
	RateBurst     int
	StaticDir     string
}

func (s *Server) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", apimw.TokenHeader},
	}))
	r.Use(apimw.RateLimit(opts.RateRPM, opts.RateBurst))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/data/current", s.handleCurrent)

	r.Route("/api", func(r chi.Router) {
		r.Get("/probes", s.handleProbes)
		r.Get("/hosts", s.handleHosts)
		r.Get("/history", s.handleHistory)
		r.Get("/local", s.handleLocal)
		r.Get("/host", s.handleGetHost)
		r.With(apimw.RequireToken(opts.ControlTokens)).Put("/host", s.handleSetHost)
	})

	if opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// hostName renders the local machine as JSON null.
func hostName(host string) *string {
	if host == "" {
		return nil
	}
	return &host
}

type currentResponse struct {
	Name *string                       `json:"name"`
	Data map[string]domain.ProbeResult `json:"data"`
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	snap := s.Store.Get()
	writeJSON(w, http.StatusOK, currentResponse{
		Name: hostName(snap.RemoteHost),
		Data: snap.Results,
	})
}

type probeInfo struct {
	Name      string            `json:"name"`
	Refresh   int               `json:"refresh,omitempty"` // seconds
	Locality  domain.Locality   `json:"locality"`
	Local     bool              `json:"local"`
	LocalOnly bool              `json:"localOnly"`
	If        string            `json:"if,omitempty"`
	Matches   string            `json:"matches,omitempty"`
	Render    domain.RenderHint `json:"render,omitempty"`
}

func (s *Server) handleProbes(w http.ResponseWriter, r *http.Request) {
	specs := s.Registry.All()
	out := make([]probeInfo, 0, len(specs))
	for _, p := range specs {
		pi := probeInfo{
			Name:      p.Name,
			Refresh:   int(p.Refresh / time.Second),
			Locality:  p.Locality,
			Local:     p.Locality == domain.AnyHost,
			LocalOnly: p.Locality == domain.LocalOnly,
			Render:    p.Render,
		}
		if p.Dependency != nil {
			pi.If = p.Dependency.On
			pi.Matches = p.Dependency.Pattern.String()
		}
		out = append(out, pi)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := hostwatch.Sessions(r.Context(), s.Runner)
	if err != nil {
		s.Logger.Warn("hosts_list_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list ssh sessions")
		return
	}
	writeJSON(w, http.StatusOK, hosts)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	hosts, err := hostwatch.History(r.Context(), s.Runner)
	if err != nil {
		s.Logger.Warn("history_list_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read ssh history")
		return
	}
	writeJSON(w, http.StatusOK, hosts)
}

func (s *Server) handleLocal(w http.ResponseWriter, r *http.Request) {
	sum, err := s.SysInfo(r.Context())
	if err != nil {
		s.Logger.Warn("sysinfo_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read local system info")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type hostResponse struct {
	Name  *string `json:"name"`
	State string  `json:"state"`
}

func (s *Server) handleGetHost(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, hostResponse{
		Name:  hostName(s.Hosts.Host()),
		State: s.Hosts.State().String(),
	})
}

// hostPayload selects a host either by name (null or "localhost" for this
// machine) or by a terminal title such as "deploy@web1: ~". One of the two
// keys must be present.
type hostPayload struct {
	Name  *string `json:"name"`
	Title *string `json:"title"`
}

func (s *Server) handleSetHost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4096))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	var keys map[string]json.RawMessage
	var p hostPayload
	if json.Unmarshal(body, &keys) != nil || json.Unmarshal(body, &p) != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	_, hasName := keys["name"]
	_, hasTitle := keys["title"]
	if !hasName && !hasTitle {
		writeError(w, http.StatusBadRequest, "name or title is required")
		return
	}

	host := ""
	switch {
	case p.Title != nil:
		host = hostwatch.HostFromTitle(*p.Title)
	case p.Name != nil:
		host = *p.Name
		if host == hostwatch.LocalName {
			host = ""
		}
		if host != "" && !hostwatch.ValidHost(host) {
			writeError(w, http.StatusBadRequest, "invalid host name")
			return
		}
	}

	s.Hosts.OnHostChanged(host)
	s.Logger.Info("host_selected", zap.String("host", host))
	writeJSON(w, http.StatusOK, hostResponse{
		Name:  hostName(s.Hosts.Host()),
		State: s.Hosts.State().String(),
	})
}
