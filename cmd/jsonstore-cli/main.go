package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"

	"github.com/loganszeto/jsonstore-go/client"
	"github.com/loganszeto/jsonstore-go/internal/config"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := newApp(os.Stdin, os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(in io.Reader, out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:      "jsonstore-cli",
		Usage:     "talk to a jsondb server",
		Version:   fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Reader:    in,
		Writer:    out,
		ErrWriter: errOut,
		Flags:     globalFlags(),
		Commands: []*cli.Command{
			pingCommand(),
			getCommand(),
			setCommand(),
			delCommand(),
			ttlCommand(),
			expireCommand(),
			replCommand(),
			selftestCommand(),
			exampleCommand(),
		},
		Before: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			c.App.Metadata["config"] = cfg
			return nil
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Usage: "server host (default from config, then localhost)"},
		&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "server port (default from config, then 5555)"},
		&cli.StringFlag{Name: "password", Usage: "server password, sent only if the server asks"},
		&cli.StringFlag{Name: "timeout", Usage: "per-operation timeout, e.g. 5s or 5"},
		&cli.StringFlag{Name: "env-file", Usage: "jsondb env file to read instead of searching for .env.<environment>"},
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file"},
		&cli.StringFlag{Name: "environment", Aliases: []string{"e"}, Usage: "environment name used to find .env.<environment>"},
		&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn or error"},
	}
}

// loadConfig merges config sources and applies flags on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var opts []config.Option
	if path := c.String("env-file"); path != "" {
		opts = append(opts, config.WithEnvFile(path))
	}
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	if env := c.String("environment"); env != "" {
		opts = append(opts, config.WithEnvironment(env))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}

	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("password") {
		cfg.Password = c.String("password")
	}
	if c.IsSet("timeout") {
		if cfg.Timeout, err = config.ParseDuration(c.String("timeout")); err != nil {
			return nil, err
		}
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFrom(c *cli.Context) *config.Config {
	cfg, _ := c.App.Metadata["config"].(*config.Config)
	return cfg
}

// withConn connects, runs fn and closes the connection.
func withConn(c *cli.Context, fn func(ctx context.Context, conn *client.Conn) error) error {
	cfg := configFrom(c)
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "jsonstore-cli",
		Level:  hclog.LevelFromString(cfg.LogLevel),
		Output: c.App.ErrWriter,
	})

	ctx := c.Context
	conn := client.New(cfg.ClientOptions(logger))
	if err := conn.Connect(ctx); err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, conn)
}
