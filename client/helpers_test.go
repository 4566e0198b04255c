package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/loganszeto/jsonstore-go/internal/testserver"
	"github.com/loganszeto/jsonstore-go/internal/util"
	"github.com/loganszeto/jsonstore-go/protocol"
)

// scripted is a raw TCP peer driven by a test function, for cases the
// protocol double cannot produce.
type scripted struct {
	ln net.Listener

	mu    sync.Mutex
	lines []string
}

func newScripted(t *testing.T, serve func(s *scripted, c net.Conn, r *bufio.Reader)) *scripted {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &scripted{ln: ln}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				serve(s, c, bufio.NewReader(c))
			}()
		}
	}()
	return s
}

// replying greets with banner and answers every line with respond.
func replying(banner string, respond func(line string) string) func(*scripted, net.Conn, *bufio.Reader) {
	return func(s *scripted, c net.Conn, r *bufio.Reader) {
		if _, err := c.Write([]byte(banner + "\n")); err != nil {
			return
		}
		for {
			line, err := protocol.ReadLine(r)
			if err != nil {
				return
			}
			s.record(line)
			if _, err := c.Write([]byte(respond(line) + "\n")); err != nil {
				return
			}
		}
	}
}

func (s *scripted) record(line string) {
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
}

func (s *scripted) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *scripted) options() Options {
	addr := s.ln.Addr().(*net.TCPAddr)
	return Options{Host: "127.0.0.1", Port: addr.Port, Timeout: 2 * time.Second}
}

func startServer(t *testing.T, opts testserver.Options) *testserver.Server {
	t.Helper()
	srv := testserver.New(opts)
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func optionsFor(srv *testserver.Server) Options {
	return Options{Host: srv.Host(), Port: srv.Port(), Timeout: 2 * time.Second}
}

func connect(t *testing.T, opts Options) *Conn {
	t.Helper()
	conn := New(opts)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// fixture is a connected client against a protocol double on a manual clock.
func fixture(t *testing.T) (*Conn, *util.ManualClock) {
	t.Helper()
	clock := util.NewManualClock(1_700_000_000_000)
	srv := startServer(t, testserver.Options{Password: "test-password", Clock: clock})
	opts := optionsFor(srv)
	opts.Password = "test-password"
	return connect(t, opts), clock
}

type countingRecorder struct {
	mu       sync.Mutex
	commands map[protocol.Verb]int
	errors   int
	hits     int
	misses   int
	authFail int
}

func (r *countingRecorder) RecordCommand(verb protocol.Verb, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commands == nil {
		r.commands = make(map[protocol.Verb]int)
	}
	r.commands[verb]++
	if err != nil {
		r.errors++
	}
}

func (r *countingRecorder) RecordGet(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func (r *countingRecorder) RecordAuthFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authFail++
}

// jsonEqual compares two JSON-shaped values by their canonical encoding.
func jsonEqual(t *testing.T, got, want any) bool {
	t.Helper()
	a, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal got: %v", err)
	}
	b, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal want: %v", err)
	}
	return bytes.Equal(a, b)
}

func nanValue() float64 { return math.NaN() }
