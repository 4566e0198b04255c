package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/loganszeto/jsonstore-go/client"
	"github.com/loganszeto/jsonstore-go/internal/config"
	"github.com/loganszeto/jsonstore-go/protocol"
)

func pingCommand() *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "check that the server answers",
		Action: func(c *cli.Context) error {
			return withConn(c, func(ctx context.Context, conn *client.Conn) error {
				pong, err := conn.Ping(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, pong)
				return nil
			})
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "print the value stored under a key",
		ArgsUsage: "KEY",
		Action: func(c *cli.Context) error {
			key, err := oneArg(c, "KEY")
			if err != nil {
				return err
			}
			return withConn(c, func(ctx context.Context, conn *client.Conn) error {
				v, err := conn.Get(ctx, key)
				if err != nil {
					return err
				}
				return printValue(c.App.Writer, v)
			})
		},
	}
}

func setCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "store a value; numbers, booleans, null and JSON keep their type",
		ArgsUsage: "KEY VALUE...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "ttl", Usage: "expire after this long, e.g. 30s or 30"},
			&cli.BoolFlag{Name: "string", Usage: "store VALUE as a plain string"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("usage: set KEY VALUE")
			}
			key := c.Args().First()
			text := strings.Join(c.Args().Slice()[1:], " ")

			var ttl time.Duration
			if c.IsSet("ttl") {
				d, err := config.ParseDuration(c.String("ttl"))
				if err != nil {
					return err
				}
				ttl = d
			}

			var value any = text
			if !c.Bool("string") {
				value = protocol.DecodeValue(text).Interface()
			}
			return withConn(c, func(ctx context.Context, conn *client.Conn) error {
				ok, err := conn.Set(ctx, key, value, ttl)
				if err != nil {
					return err
				}
				return printResult(c.App.Writer, ok, "OK", "FAILED")
			})
		},
	}
}

func delCommand() *cli.Command {
	return &cli.Command{
		Name:      "del",
		Usage:     "delete a key",
		ArgsUsage: "KEY",
		Action: func(c *cli.Context) error {
			key, err := oneArg(c, "KEY")
			if err != nil {
				return err
			}
			return withConn(c, func(ctx context.Context, conn *client.Conn) error {
				ok, err := conn.Delete(ctx, key)
				if err != nil {
					return err
				}
				return printResult(c.App.Writer, ok, "1", "0")
			})
		},
	}
}

func ttlCommand() *cli.Command {
	return &cli.Command{
		Name:      "ttl",
		Usage:     "print remaining seconds (-1 no expiration, -2 missing)",
		ArgsUsage: "KEY",
		Action: func(c *cli.Context) error {
			key, err := oneArg(c, "KEY")
			if err != nil {
				return err
			}
			return withConn(c, func(ctx context.Context, conn *client.Conn) error {
				ttl, err := conn.TTL(ctx, key)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, ttl)
				return nil
			})
		},
	}
}

func expireCommand() *cli.Command {
	return &cli.Command{
		Name:      "expire",
		Usage:     "set a time to live on an existing key",
		ArgsUsage: "KEY DURATION",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("usage: expire KEY DURATION")
			}
			ttl, err := config.ParseDuration(c.Args().Get(1))
			if err != nil {
				return err
			}
			return withConn(c, func(ctx context.Context, conn *client.Conn) error {
				ok, err := conn.Expire(ctx, c.Args().First(), ttl)
				if err != nil {
					return err
				}
				return printResult(c.App.Writer, ok, "OK", "0")
			})
		},
	}
}

func oneArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("usage: %s %s", c.Command.Name, name)
	}
	return c.Args().First(), nil
}

func printValue(w io.Writer, v protocol.Value) error {
	if v.Kind != protocol.KindJSON {
		_, err := fmt.Fprintln(w, v.String())
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printResult(w io.Writer, ok bool, yes, no string) error {
	if ok {
		_, err := fmt.Fprintln(w, yes)
		return err
	}
	_, err := fmt.Fprintln(w, no)
	return err
}
