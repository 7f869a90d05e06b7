package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hamed0406/hostprobe/internal/config"
)

const registryYAML = `
probes:
  - name: load
    command: echo 0.50 0.40 0.30 1/123 4567
    local: true
  - name: netstat
    command: echo tcp 0.0.0.0:6379 LISTEN
    local: true
  - name: redis
    command: redis-cli info keyspace
    if: netstat
    matches: ":6379"
  - name: whoami
    command: echo local-only
    localOnly: true
`

func testConfig(t *testing.T, dir string) config.Config {
	t.Helper()
	regPath := filepath.Join(dir, "probes.yaml")
	require.NoError(t, os.WriteFile(regPath, []byte(registryYAML), 0o644))
	return config.Config{
		Addr:              "127.0.0.1:0",
		LogLevel:          "info",
		TickInterval:      20 * time.Millisecond,
		ProbeTimeout:      5 * time.Second,
		Shell:             "/bin/sh",
		RegistryFile:      regPath,
		BootstrapProbe:    "load",
		DiscoveryProbe:    "netstat",
		Instance:          "it",
		SocketTemplate:    filepath.Join(dir, "{instance}-{host}.sock"),
		MaxMessage:        20480,
		ReconnectInterval: 10 * time.Millisecond,
	}
}

// serveAgent answers every command with a JSON result naming the command.
func serveAgent(t *testing.T, path string) {
	t.Helper()
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					body, _ := json.Marshal(map[string]string{"status": "ok", "data": "remote:" + strings.TrimSpace(line)})
					if _, err := c.Write(append(body, []byte("\nEND\n")...)); err != nil {
						return
					}
				}
			}(c)
		}
	}()
}

type current struct {
	Name *string `json:"name"`
	Data map[string]struct {
		Status string `json:"status"`
		Data   string `json:"data"`
	} `json:"data"`
}

func startApp(t *testing.T, cfg config.Config) string {
	t.Helper()
	a, err := New(cfg, nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", cfg.Addr)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Errorf("app did not stop")
		}
	})
	return "http://" + ln.Addr().String()
}

func poll(t *testing.T, base string, ok func(current) bool) current {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	var cur current
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/data/current")
		if err == nil {
			cur = current{}
			_ = json.NewDecoder(resp.Body).Decode(&cur)
			resp.Body.Close()
			if ok(cur) {
				return cur
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not reached, last snapshot %+v", cur)
	return cur
}

func TestApp_LocalThenRemote(t *testing.T) {
	dir, err := os.MkdirTemp("", "hpapp")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	cfg := testConfig(t, dir)
	serveAgent(t, filepath.Join(dir, "it-web1.sock"))
	base := startApp(t, cfg)

	// No host selected: local probes run, remote-only ones never do.
	cur := poll(t, base, func(c current) bool { return len(c.Data) == 3 })
	require.Nil(t, cur.Name)
	require.Equal(t, "local-only\n", cur.Data["whoami"].Data)
	require.Contains(t, cur.Data["load"].Data, "1/123")
	_, ranRedis := cur.Data["redis"]
	require.False(t, ranRedis)

	req, _ := http.NewRequest(http.MethodPut, base+"/api/host", bytes.NewReader([]byte(`{"title":"ops@web1: ~"}`)))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cur = poll(t, base, func(c current) bool { _, ok := c.Data["redis"]; return ok })
	require.NotNil(t, cur.Name)
	require.Equal(t, "web1", *cur.Name)
	require.Equal(t, "remote:redis-cli info keyspace", cur.Data["redis"].Data)
	require.Equal(t, "remote:echo 0.50 0.40 0.30 1/123 4567", cur.Data["load"].Data)
	_, ranLocalOnly := cur.Data["whoami"]
	require.False(t, ranLocalOnly, "local-only probe must not appear in a remote snapshot")
}

func TestNew_RejectsBrokenRegistry(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	require.NoError(t, os.WriteFile(cfg.RegistryFile, []byte("probes:\n  - name: x\n"), 0o644))

	_, err := New(cfg, nil)
	require.Error(t, err)
}
