package main

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/loganszeto/jsonstore-go/client"
	"github.com/loganszeto/jsonstore-go/protocol"
)

func replCommand() *cli.Command {
	return &cli.Command{
		Name:  "repl",
		Usage: "send raw commands interactively; QUIT or EXIT to leave",
		Action: func(c *cli.Context) error {
			return withConn(c, func(ctx context.Context, conn *client.Conn) error {
				return repl(ctx, c, conn)
			})
		},
	}
}

func repl(ctx context.Context, c *cli.Context, conn *client.Conn) error {
	out := c.App.Writer
	in := bufio.NewScanner(c.App.Reader)
	for {
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			fmt.Fprintln(out)
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		head, _, _ := strings.Cut(line, " ")
		if strings.EqualFold(head, "QUIT") || strings.EqualFold(head, "EXIT") {
			return nil
		}

		req, err := protocol.ParseRequest(line)
		if err != nil {
			fmt.Fprintf(out, "ERR %v\n", err)
			continue
		}
		resp, err := conn.Do(ctx, req.Verb, requestArgs(req)...)
		if err != nil {
			fmt.Fprintf(out, "ERR %v\n", err)
			if !conn.Connected() {
				return err
			}
			continue
		}
		fmt.Fprintln(out, resp)
	}
}

func requestArgs(req protocol.Request) []string {
	switch req.Verb {
	case protocol.VerbSet:
		return []string{req.Key, req.Value}
	case protocol.VerbGet, protocol.VerbDel, protocol.VerbTTL:
		return []string{req.Key}
	case protocol.VerbExpire:
		return []string{req.Key, strconv.FormatInt(req.Seconds, 10)}
	case protocol.VerbAuth:
		return []string{req.Password}
	default:
		return nil
	}
}
