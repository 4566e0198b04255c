package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/loganszeto/jsonstore-go/client"
)

func exampleCommand() *cli.Command {
	return &cli.Command{
		Name:  "example",
		Usage: "walk through the basic commands",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "pause", Value: 2 * time.Second, Usage: "wait before re-reading the TTL"},
		},
		Action: func(c *cli.Context) error {
			return withConn(c, func(ctx context.Context, conn *client.Conn) error {
				return example(ctx, c, conn)
			})
		},
	}
}

func example(ctx context.Context, c *cli.Context, conn *client.Conn) error {
	out := c.App.Writer

	fmt.Fprintln(out, "=== PING ===")
	pong, err := conn.Ping(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "PING response:", pong)

	fmt.Fprintln(out, "\n=== SET ===")
	key := "example:test:1"
	ok, err := conn.Set(ctx, key, "Hello from basic commands!", 0)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "SET result:", status(ok))

	fmt.Fprintln(out, "\n=== GET ===")
	v, err := conn.Get(ctx, key)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "GET result:", v)

	fmt.Fprintln(out, "\n=== SET with TTL ===")
	ttlKey := "example:ttl:1"
	if _, err := conn.Set(ctx, ttlKey, "This will expire in 5 seconds", 5*time.Second); err != nil {
		return err
	}
	if v, err = conn.Get(ctx, ttlKey); err != nil {
		return err
	}
	fmt.Fprintln(out, "Initial value:", v)
	ttl, err := conn.TTL(ctx, ttlKey)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "TTL remaining: %d seconds\n", ttl)

	pause := c.Duration("pause")
	select {
	case <-time.After(pause):
	case <-ctx.Done():
		return ctx.Err()
	}
	if ttl, err = conn.TTL(ctx, ttlKey); err != nil {
		return err
	}
	fmt.Fprintf(out, "After %s - TTL remaining: %d seconds\n", pause, ttl)

	fmt.Fprintln(out, "\n=== DEL ===")
	if _, err := conn.Delete(ctx, key); err != nil {
		return err
	}
	if v, err = conn.Get(ctx, key); err != nil {
		return err
	}
	exists := "Yes"
	if v.IsNull() {
		exists = "No"
	}
	fmt.Fprintln(out, "After DEL - value exists?:", exists)
	return nil
}

func status(ok bool) string {
	if ok {
		return "SUCCESS"
	}
	return "FAILED"
}
