package probe

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/hostprobe/internal/domain"
	hperrors "github.com/hamed0406/hostprobe/internal/errors"
)

func TestDefault_LoadsBuiltInRegistry(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	all := reg.All()
	require.NotEmpty(t, all)
	assert.Equal(t, "load", all[0].Name)
	assert.Equal(t, "netstat", all[1].Name)

	load, ok := reg.Get("load")
	require.True(t, ok)
	assert.Equal(t, domain.RemoteOnly, load.Locality)
	assert.Zero(t, load.Refresh)
	assert.Nil(t, load.Dependency)

	systemd, ok := reg.Get("systemd")
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, systemd.Refresh)
	assert.Equal(t, domain.AnyHost, systemd.Locality)
	assert.JSONEq(t, `{"type":"lines","severity":{"warning":"warn|masked|maintenance","critical":"failed"}}`, string(systemd.Render))

	redis, ok := reg.Get("redis")
	require.True(t, ok)
	require.NotNil(t, redis.Dependency)
	assert.Equal(t, "netstat", redis.Dependency.On)
	assert.True(t, redis.Dependency.Pattern.MatchString("tcp 0 0 127.0.0.1:6379 LISTEN 812/redis-server"))
}

func TestDefault_CommandsKeepShellEscapes(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	eureka, _ := reg.Get("Eureka Services")
	assert.Contains(t, eureka.Command, `s/.*a href=.\([^>]*\).>.*/\1/`)

	mysql, _ := reg.Get("MySQL Databases")
	assert.Contains(t, mysql.Command, `echo show databases\;`)
	assert.True(t, strings.HasSuffix(mysql.Command, `sys)\$"`))
}

func TestLoad_LocalOnly(t *testing.T) {
	reg, err := Load(strings.NewReader(`
probes:
  - name: uptime
    command: uptime
    localOnly: true
`))
	require.NoError(t, err)
	p, _ := reg.Get("uptime")
	assert.Equal(t, domain.LocalOnly, p.Locality)
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	_, err := Load(strings.NewReader(`
probes:
  - name: a
    command: echo a
  - name: a
    command: echo again
  - name: b
    command: echo b
    if: missing
    matches: x
  - name: c
    command: echo c
    refresh: 0
  - name: d
    command: echo d
    if: a
  - name: e
    command: echo e
    if: a
    matches: "("
  - name: f
    command: ""
  - name: g
    command: echo g
    local: true
    localOnly: true
`))
	require.Error(t, err)
	assert.True(t, hperrors.IsCode(err, hperrors.ErrConfig))

	msg := err.Error()
	for _, want := range []string{
		`probe "a" defined twice`,
		`depends on unknown probe "missing"`,
		"refresh must be a positive",
		"if and matches must be set together",
		"matches:",
		"command is required",
		"mutually exclusive",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	_, err := Load(strings.NewReader(`
probes:
  - name: a
    command: echo a
    refesh: 10
`))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("probes:\n  - name: x\n    command: echo x\n"), 0o644))

	reg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, hperrors.IsCode(err, hperrors.ErrConfig))
}

func TestAll_ReturnsCopy(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	all := reg.All()
	all[0].Name = "mutated"

	first, _ := reg.Get("load")
	assert.Equal(t, "load", first.Name)
	assert.Equal(t, "load", reg.All()[0].Name)
}
