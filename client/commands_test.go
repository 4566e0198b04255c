package client

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/loganszeto/jsonstore-go/internal/testserver"
	"github.com/loganszeto/jsonstore-go/protocol"
)

func TestSetRefused(t *testing.T) {
	srv := startServer(t, testserver.Options{
		Replies: map[protocol.Verb]string{protocol.VerbSet: "ERROR read only"},
	})
	conn := connect(t, optionsFor(srv))

	ok, err := conn.Set(context.Background(), "k", "v", 0)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if ok {
		t.Fatalf("expected false for a non-OK reply")
	}
	if !conn.Connected() {
		t.Fatalf("a refusal must not close the connection")
	}
}

func TestSetWithTTLSendsExpire(t *testing.T) {
	s := newScripted(t, replying("hello", func(string) string { return "OK" }))
	conn := connect(t, s.options())

	ok, err := conn.Set(context.Background(), "k", map[string]any{"a": 1}, 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("set: %v %v", ok, err)
	}
	want := []string{`SET k {"a":1}`, "EXPIRE k 5"}
	if got := s.received(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSetWithoutTTLSkipsExpire(t *testing.T) {
	s := newScripted(t, replying("hello", func(string) string { return "OK" }))
	conn := connect(t, s.options())

	if _, err := conn.Set(context.Background(), "k", 42, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := s.received(); !reflect.DeepEqual(got, []string{"SET k 42"}) {
		t.Fatalf("unexpected lines %q", got)
	}
}

func TestSetExpireRefused(t *testing.T) {
	s := newScripted(t, replying("hello", func(line string) string {
		if strings.HasPrefix(line, "EXPIRE") {
			return "0"
		}
		return "OK"
	}))
	conn := connect(t, s.options())

	ok, err := conn.Set(context.Background(), "k", "v", time.Second)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if ok {
		t.Fatalf("expected false when EXPIRE is refused")
	}
}

func TestExpireSendsWholeSeconds(t *testing.T) {
	s := newScripted(t, replying("hello", func(string) string { return "OK" }))
	conn := connect(t, s.options())

	if _, err := conn.Expire(context.Background(), "k", 200*time.Millisecond); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if _, err := conn.Expire(context.Background(), "k", 1900*time.Millisecond); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if got := s.received(); !reflect.DeepEqual(got, []string{"EXPIRE k 1", "EXPIRE k 1"}) {
		t.Fatalf("unexpected lines %q", got)
	}
}

func TestTTLReplies(t *testing.T) {
	cases := []struct {
		reply   string
		want    int64
		wantErr bool
	}{
		{reply: "nil", want: protocol.TTLKeyMissing},
		{reply: "-1", want: protocol.TTLNoExpiry},
		{reply: "-2", want: protocol.TTLKeyMissing},
		{reply: "17", want: 17},
		{reply: " 3 ", want: 3},
		{reply: "soon", wantErr: true},
		{reply: "-7", wantErr: true},
		{reply: "1.5", wantErr: true},
	}
	for _, tc := range cases {
		s := newScripted(t, replying("hello", func(string) string { return tc.reply }))
		conn := connect(t, s.options())

		got, err := conn.TTL(context.Background(), "k")
		if tc.wantErr {
			var perr *ProtocolError
			if !errors.As(err, &perr) {
				t.Errorf("%q: expected ProtocolError, got %v", tc.reply, err)
				continue
			}
			if perr.Verb != protocol.VerbTTL {
				t.Errorf("%q: unexpected verb %q", tc.reply, perr.Verb)
			}
			if !conn.Connected() {
				t.Errorf("%q: a protocol error must not close the connection", tc.reply)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%q: expected %d, got %d %v", tc.reply, tc.want, got, err)
		}
	}
}

func TestGetPingSendsBarePing(t *testing.T) {
	s := newScripted(t, replying("hello", func(line string) string {
		if line == "PING" {
			return "PONG"
		}
		return "nil"
	}))
	conn := connect(t, s.options())

	v, err := conn.Get(context.Background(), "PING")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.Kind != protocol.KindString || v.Str != "PONG" {
		t.Fatalf("unexpected value %#v", v)
	}
	if got := s.received(); !reflect.DeepEqual(got, []string{"PING"}) {
		t.Fatalf("unexpected lines %q", got)
	}
}

func TestInvalidArguments(t *testing.T) {
	s := newScripted(t, replying("hello", func(string) string { return "OK" }))
	conn := connect(t, s.options())
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["empty key"] = conn.Set(ctx, "", "v", 0)
	_, checks["spaced key"] = conn.Set(ctx, "a b", "v", 0)
	_, checks["newline key"] = conn.Get(ctx, "a\nb")
	_, checks["newline value"] = conn.Set(ctx, "k", "x\nDEL y", 0)
	_, checks["blank value"] = conn.Set(ctx, "k", "   ", 0)
	_, checks["nan"] = conn.Set(ctx, "k", nanValue(), 0)
	_, checks["zero ttl"] = conn.Expire(ctx, "k", 0)
	_, checks["auth via do"] = conn.Do(ctx, protocol.VerbAuth, "pw")
	_, checks["unknown verb"] = conn.Do(ctx, protocol.Verb("FLUSHALL"))
	for name, err := range checks {
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument, got %v", name, err)
		}
	}
	if got := s.received(); len(got) != 0 {
		t.Fatalf("invalid arguments must not reach the wire, got %q", got)
	}
	if !conn.Connected() {
		t.Fatalf("invalid arguments must not close the connection")
	}
}

func TestDoRawRoundTrip(t *testing.T) {
	srv := startServer(t, testserver.Options{})
	conn := connect(t, optionsFor(srv))
	ctx := context.Background()

	if resp, err := conn.Do(ctx, protocol.VerbSet, "raw", "hello world"); err != nil || resp != "OK" {
		t.Fatalf("set: %q %v", resp, err)
	}
	if resp, err := conn.Do(ctx, protocol.VerbGet, "raw"); err != nil || resp != "hello world" {
		t.Fatalf("get: %q %v", resp, err)
	}
}

func TestRecorder(t *testing.T) {
	srv := startServer(t, testserver.Options{})
	rec := &countingRecorder{}
	opts := optionsFor(srv)
	opts.Recorder = rec
	conn := connect(t, opts)
	ctx := context.Background()

	if _, err := conn.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := conn.Get(ctx, "k"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := conn.Get(ctx, "missing"); err != nil {
		t.Fatalf("get: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.commands[protocol.VerbSet] != 1 || rec.commands[protocol.VerbExpire] != 1 || rec.commands[protocol.VerbGet] != 2 {
		t.Fatalf("unexpected command counts %v", rec.commands)
	}
	if rec.hits != 1 || rec.misses != 1 || rec.errors != 0 {
		t.Fatalf("unexpected hits=%d misses=%d errors=%d", rec.hits, rec.misses, rec.errors)
	}
}
