package main

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/urfave/cli/v2"

	"github.com/loganszeto/jsonstore-go/client"
	"github.com/loganszeto/jsonstore-go/protocol"
)

func selftestCommand() *cli.Command {
	return &cli.Command{
		Name:  "selftest",
		Usage: "run a round-trip suite against the server",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "expiry-wait", Value: 2 * time.Second, Usage: "how long to wait for a 1s key to expire"},
			&cli.BoolFlag{Name: "skip-expiry", Usage: "skip the expiry check"},
		},
		Action: func(c *cli.Context) error {
			return withConn(c, func(ctx context.Context, conn *client.Conn) error {
				s := &selftest{
					conn:   conn,
					out:    c.App.Writer,
					prefix: "selftest:" + ulid.Make().String() + ":",
				}
				s.run(ctx, c.Duration("expiry-wait"), c.Bool("skip-expiry"))
				fmt.Fprintf(s.out, "%d passed, %d failed\n", s.passed, s.failed)
				if s.failed > 0 {
					return fmt.Errorf("%d checks failed", s.failed)
				}
				return nil
			})
		},
	}
}

type selftest struct {
	conn   *client.Conn
	out    io.Writer
	prefix string
	passed int
	failed int
}

func (s *selftest) check(name string, err error) {
	if err != nil {
		s.failed++
		fmt.Fprintf(s.out, "FAIL %s: %v\n", name, err)
		return
	}
	s.passed++
	fmt.Fprintf(s.out, "PASS %s\n", name)
}

func (s *selftest) run(ctx context.Context, expiryWait time.Duration, skipExpiry bool) {
	s.check("ping", func() error {
		pong, err := s.conn.Ping(ctx)
		if err != nil {
			return err
		}
		if pong != protocol.ReplyPong {
			return fmt.Errorf("got %q", pong)
		}
		return nil
	}())

	roundTrips := []struct {
		name  string
		value any
		want  any
	}{
		{"string", "hello world", "hello world"},
		{"int", 42, int64(42)},
		{"negative int", -17, int64(-17)},
		{"float", 3.25, 3.25},
		{"bool true", true, true},
		{"bool false", false, false},
		{"null", nil, nil},
		{"nested json", map[string]any{"user": map[string]any{"name": "Jane", "tags": []any{"a", "b"}}}, nil},
	}
	for _, rt := range roundTrips {
		key := s.prefix + rt.name
		s.check("round trip "+rt.name, func() error {
			ok, err := s.conn.Set(ctx, key, rt.value, 0)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("SET refused")
			}
			got, err := s.conn.Get(ctx, key)
			if err != nil {
				return err
			}
			want := rt.want
			if rt.name == "nested json" {
				return sameJSON(got, rt.value)
			}
			if !reflect.DeepEqual(got.Interface(), want) {
				return fmt.Errorf("got %v (%s), want %v", got, got.Kind, want)
			}
			return nil
		}())
		_, _ = s.conn.Delete(ctx, key)
	}

	s.check("missing key is null", func() error {
		v, err := s.conn.Get(ctx, s.prefix+"never-set")
		if err != nil {
			return err
		}
		if !v.IsNull() {
			return fmt.Errorf("got %v", v)
		}
		return nil
	}())

	s.check("delete semantics", func() error {
		key := s.prefix + "delete"
		if _, err := s.conn.Set(ctx, key, "x", 0); err != nil {
			return err
		}
		first, err := s.conn.Delete(ctx, key)
		if err != nil {
			return err
		}
		second, err := s.conn.Delete(ctx, key)
		if err != nil {
			return err
		}
		if !first || second {
			return fmt.Errorf("deletes returned %v then %v", first, second)
		}
		ttl, err := s.conn.TTL(ctx, key)
		if err != nil {
			return err
		}
		if ttl != protocol.TTLKeyMissing {
			return fmt.Errorf("ttl after delete is %d", ttl)
		}
		return nil
	}())

	s.check("ttl countdown", func() error {
		key := s.prefix + "ttl"
		defer s.conn.Delete(ctx, key)
		ok, err := s.conn.Set(ctx, key, "x", 60*time.Second)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("SET with ttl refused")
		}
		ttl, err := s.conn.TTL(ctx, key)
		if err != nil {
			return err
		}
		if ttl <= 0 || ttl > 60 {
			return fmt.Errorf("ttl %d outside (0, 60]", ttl)
		}
		return nil
	}())

	if skipExpiry {
		return
	}
	s.check("ttl expiry", func() error {
		key := s.prefix + "expiry"
		if _, err := s.conn.Set(ctx, key, "x", time.Second); err != nil {
			return err
		}
		select {
		case <-time.After(expiryWait):
		case <-ctx.Done():
			return ctx.Err()
		}
		v, err := s.conn.Get(ctx, key)
		if err != nil {
			return err
		}
		if !v.IsNull() {
			return fmt.Errorf("still present after %s: %v", expiryWait, v)
		}
		return nil
	}())
}

func sameJSON(got protocol.Value, want any) error {
	if got.Kind != protocol.KindJSON {
		return fmt.Errorf("got %s, want json", got.Kind)
	}
	var a, b any
	if err := got.Decode(&a); err != nil {
		return err
	}
	if err := (protocol.Value{Kind: protocol.KindJSON, JSON: want}).Decode(&b); err != nil {
		return err
	}
	if !reflect.DeepEqual(a, b) {
		return fmt.Errorf("got %v, want %v", a, b)
	}
	return nil
}
