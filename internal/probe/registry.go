package probe

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/hostprobe/internal/domain"
	hperrors "github.com/hamed0406/hostprobe/internal/errors"
)

//go:embed default_probes.yaml
var defaultProbes []byte

// Registry is the immutable, ordered set of probe definitions. It is built
// once at startup and only read afterwards.
type Registry struct {
	specs []domain.ProbeSpec
	index map[string]int
}

type registryFile struct {
	Probes []entry `yaml:"probes"`
}

// entry mirrors one YAML probe definition.
type entry struct {
	Name      string `yaml:"name"`
	Command   string `yaml:"command"`
	Local     bool   `yaml:"local"`
	LocalOnly bool   `yaml:"localOnly"`
	Refresh   *int   `yaml:"refresh"`
	If        string `yaml:"if"`
	Matches   string `yaml:"matches"`
	Render    any    `yaml:"render"`
}

// Default returns the built-in registry.
func Default() (*Registry, error) {
	return Load(bytes.NewReader(defaultProbes))
}

// LoadFile reads a registry from a YAML file.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, hperrors.WrapWithCode(err, hperrors.ErrConfig,
			"Couldn't open probe registry "+path,
			"Check the registry_file setting")
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates a registry. Every problem found is reported, not
// just the first one.
func Load(r io.Reader) (*Registry, error) {
	var file registryFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, hperrors.WrapWithCode(err, hperrors.ErrConfig,
			"Probe registry is not valid YAML",
			"Each probe needs at least a name and a command")
	}

	reg := &Registry{
		specs: make([]domain.ProbeSpec, 0, len(file.Probes)),
		index: make(map[string]int, len(file.Probes)),
	}

	var errs error
	for i, e := range file.Probes {
		spec, err := e.toSpec()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("probe #%d (%q): %w", i+1, e.Name, err))
			continue
		}
		if _, dup := reg.index[spec.Name]; dup {
			errs = multierr.Append(errs, fmt.Errorf("probe %q defined twice", spec.Name))
			continue
		}
		reg.index[spec.Name] = len(reg.specs)
		reg.specs = append(reg.specs, spec)
	}

	for _, s := range reg.specs {
		if s.Dependency == nil {
			continue
		}
		if _, ok := reg.index[s.Dependency.On]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("probe %q depends on unknown probe %q", s.Name, s.Dependency.On))
		}
		if s.Dependency.On == s.Name {
			errs = multierr.Append(errs, fmt.Errorf("probe %q depends on itself", s.Name))
		}
	}

	if errs != nil {
		return nil, hperrors.WrapWithCode(errs, hperrors.ErrConfig,
			"Probe registry is invalid",
			"Fix the listed probes and restart")
	}
	return reg, nil
}

func (e entry) toSpec() (domain.ProbeSpec, error) {
	spec := domain.ProbeSpec{
		Name:    strings.TrimSpace(e.Name),
		Command: strings.TrimSpace(e.Command),
	}
	if spec.Name == "" {
		return spec, fmt.Errorf("name is required")
	}
	if spec.Command == "" {
		return spec, fmt.Errorf("command is required")
	}

	switch {
	case e.Local && e.LocalOnly:
		return spec, fmt.Errorf("local and localOnly are mutually exclusive")
	case e.LocalOnly:
		spec.Locality = domain.LocalOnly
	case e.Local:
		spec.Locality = domain.AnyHost
	default:
		spec.Locality = domain.RemoteOnly
	}

	if e.Refresh != nil {
		if *e.Refresh <= 0 {
			return spec, fmt.Errorf("refresh must be a positive number of seconds, got %d", *e.Refresh)
		}
		spec.Refresh = time.Duration(*e.Refresh) * time.Second
	}

	if (e.If == "") != (e.Matches == "") {
		return spec, fmt.Errorf("if and matches must be set together")
	}
	if e.If != "" {
		re, err := regexp.Compile(e.Matches)
		if err != nil {
			return spec, fmt.Errorf("matches: %w", err)
		}
		spec.Dependency = &domain.Dependency{On: e.If, Pattern: re}
	}

	if e.Render != nil {
		b, err := json.Marshal(e.Render)
		if err != nil {
			return spec, fmt.Errorf("render: %w", err)
		}
		spec.Render = b
	}
	return spec, nil
}

// All returns the probes in registry order. The slice is a copy.
func (r *Registry) All() []domain.ProbeSpec {
	out := make([]domain.ProbeSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Get looks a probe up by its exact, case-sensitive name.
func (r *Registry) Get(name string) (domain.ProbeSpec, bool) {
	i, ok := r.index[name]
	if !ok {
		return domain.ProbeSpec{}, false
	}
	return r.specs[i], true
}

// Len reports how many probes were loaded.
func (r *Registry) Len() int { return len(r.specs) }
