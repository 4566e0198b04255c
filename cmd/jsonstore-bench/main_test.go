package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/loganszeto/jsonstore-go/client"
	"github.com/loganszeto/jsonstore-go/internal/testserver"
)

func benchAgainst(t *testing.T, srv *testserver.Server) benchConfig {
	t.Helper()
	return benchConfig{
		client:    client.Options{Host: srv.Host(), Port: srv.Port(), Timeout: 2 * time.Second},
		workers:   4,
		ops:       400,
		ratioGet:  0.5,
		valueSize: 16,
		keySpace:  20,
		runID:     "TESTRUN",
	}
}

func TestRunBench(t *testing.T) {
	srv := testserver.New(testserver.Options{})
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Close()

	bc := benchAgainst(t, srv)
	res, err := runBench(context.Background(), bc)
	if err != nil {
		t.Fatalf("runBench: %v", err)
	}
	if res.ops != 400 || len(res.lats) != 400 {
		t.Fatalf("expected 400 ops, got %d (%d samples)", res.ops, len(res.lats))
	}
	if res.stats["get"]+res.stats["set"] != 400 {
		t.Fatalf("unexpected stats %v", res.stats)
	}
	for i := 1; i < len(res.lats); i++ {
		if res.lats[i] < res.lats[i-1] {
			t.Fatalf("latencies not sorted")
		}
	}
	if n := srv.Store().Len(); n == 0 || n > 20 {
		t.Fatalf("expected keys within the key space, got %d", n)
	}

	var out bytes.Buffer
	report(&out, bc, res)
	for _, want := range []string{"Run: TESTRUN", "Total ops: 400", "p50:", "p99:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("report missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunBenchRateLimited(t *testing.T) {
	srv := testserver.New(testserver.Options{})
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Close()

	bc := benchAgainst(t, srv)
	bc.ops = 30
	bc.rate = 100
	start := time.Now()
	if _, err := runBench(context.Background(), bc); err != nil {
		t.Fatalf("runBench: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Fatalf("rate limit ignored, finished in %s", elapsed)
	}
}

func TestRunBenchConnectFailure(t *testing.T) {
	bc := benchConfig{
		client:    client.Options{Host: "127.0.0.1", Port: 1, Timeout: time.Second},
		workers:   2,
		ops:       10,
		ratioGet:  0.5,
		valueSize: 8,
		keySpace:  4,
	}
	if _, err := runBench(context.Background(), bc); err == nil {
		t.Fatal("expected a connect error")
	}
}

func TestValidate(t *testing.T) {
	base := benchConfig{workers: 1, ops: 1, ratioGet: 0.5, valueSize: 1, keySpace: 1}
	if err := base.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	for name, mutate := range map[string]func(*benchConfig){
		"workers": func(b *benchConfig) { b.workers = 0 },
		"ops":     func(b *benchConfig) { b.ops = 0 },
		"ratio":   func(b *benchConfig) { b.ratioGet = 1.5 },
		"value":   func(b *benchConfig) { b.valueSize = 0 },
		"keys":    func(b *benchConfig) { b.keySpace = 0 },
		"rate":    func(b *benchConfig) { b.rate = -1 },
	} {
		b := base
		mutate(&b)
		if err := b.validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func runApp(t *testing.T, srv *testserver.Server, args ...string) (string, error) {
	t.Helper()
	envFile := filepath.Join(t.TempDir(), ".env.test")
	if err := os.WriteFile(envFile, []byte("SERVER_PASSWORD=pw\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	full := []string{
		"jsonstore-bench",
		"--env-file", envFile,
		"--host", srv.Host(),
		"--port", strconv.Itoa(srv.Port()),
		"--log-level", "error",
	}
	full = append(full, args...)
	var out bytes.Buffer
	err := newApp(&out).Run(full)
	return out.String(), err
}

func TestAppRunsBench(t *testing.T) {
	srv := testserver.New(testserver.Options{Password: "pw"})
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Close()

	out, err := runApp(t, srv, "--workers", "2", "--ops", "50", "--keys", "5", "--value_size", "8")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "Total ops: 50") {
		t.Fatalf("unexpected report:\n%s", out)
	}
	if n := srv.Store().Len(); n > 5 {
		t.Fatalf("expected keys within the key space, got %d", n)
	}
}

func TestAppRejectsBadFlags(t *testing.T) {
	srv := testserver.New(testserver.Options{Password: "pw"})
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Close()

	if _, err := runApp(t, srv, "--workers", "0"); err == nil || !strings.Contains(err.Error(), "workers") {
		t.Fatalf("expected a workers error, got %v", err)
	}
	if _, err := runApp(t, srv, "--port", "70000"); err == nil {
		t.Fatal("expected a config error for an out of range port")
	}
}
