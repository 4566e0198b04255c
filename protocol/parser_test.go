package protocol

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestReadLineAcrossSegments(t *testing.T) {
	src := iotest.OneByteReader(strings.NewReader("{\"a\": [1, 2]}\r\nPONG\npartial"))
	r := bufio.NewReader(src)

	line, err := ReadLine(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != `{"a": [1, 2]}` {
		t.Fatalf("unexpected line %q", line)
	}
	line, err = ReadLine(r)
	if err != nil || line != "PONG" {
		t.Fatalf("expected PONG, got %q %v", line, err)
	}
	if _, err := ReadLine(r); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF on unterminated tail, got %v", err)
	}
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		line string
		want Request
	}{
		{"PING", Request{Verb: VerbPing}},
		{"ping", Request{Verb: VerbPing}},
		{"AUTH s3cret", Request{Verb: VerbAuth, Password: "s3cret"}},
		{"GET user:1", Request{Verb: VerbGet, Key: "user:1"}},
		{"DEL user:1", Request{Verb: VerbDel, Key: "user:1"}},
		{"TTL user:1", Request{Verb: VerbTTL, Key: "user:1"}},
		{"SET k hello", Request{Verb: VerbSet, Key: "k", Value: "hello"}},
		{`SET k {"a": "x  y"}`, Request{Verb: VerbSet, Key: "k", Value: `{"a": "x  y"}`}},
		{"EXPIRE k 10", Request{Verb: VerbExpire, Key: "k", Seconds: 10}},
	}
	for _, tt := range tests {
		got, err := ParseRequest(tt.line)
		if err != nil {
			t.Fatalf("ParseRequest(%q): %v", tt.line, err)
		}
		if got != tt.want {
			t.Errorf("ParseRequest(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestParseRequestErrors(t *testing.T) {
	tests := []struct {
		line string
		want error
	}{
		{"", ErrInvalidRequest},
		{"AUTH", ErrInvalidRequest},
		{"GET", ErrInvalidRequest},
		{"GET a b", ErrInvalidRequest},
		{"SET k", ErrInvalidRequest},
		{"EXPIRE k soon", ErrInvalidRequest},
		{"FLUSHALL", ErrUnknownVerb},
	}
	for _, tt := range tests {
		if _, err := ParseRequest(tt.line); !errors.Is(err, tt.want) {
			t.Errorf("ParseRequest(%q) = %v, want %v", tt.line, err, tt.want)
		}
	}
}
