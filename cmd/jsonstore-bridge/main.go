package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/loganszeto/jsonstore-go/client"
	"github.com/loganszeto/jsonstore-go/internal/bridge"
	"github.com/loganszeto/jsonstore-go/internal/config"
	"github.com/loganszeto/jsonstore-go/internal/persistence"
	"github.com/loganszeto/jsonstore-go/internal/util"
)

const (
	defaultDataDir = "/tmp/jsonstore-bridge"
	defaultObject  = "journal.log"
)

// journalMirror is the remote copy of the journal.
type journalMirror interface {
	bridge.Mirror
	Download(ctx context.Context, path string) error
	Close() error
}

var dialMirror = func(ctx context.Context, bucket, object string) (journalMirror, error) {
	m, err := persistence.DialGCSMirror(ctx, bucket, object)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "jsonstore-bridge",
		Usage: "WebSocket bridge to a jsondb server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Value: ":8080", EnvVars: []string{"JSONSTORE_BRIDGE_LISTEN"}, Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "data-dir", Value: defaultDataDir, EnvVars: []string{"JSONSTORE_BRIDGE_DATA_DIR"}, Usage: "journal directory"},
			&cli.StringFlag{Name: "bucket", EnvVars: []string{"JSONSTORE_BRIDGE_BUCKET"}, Usage: "Cloud Storage bucket mirroring the journal"},
			&cli.StringFlag{Name: "object", Value: defaultObject, EnvVars: []string{"JSONSTORE_BRIDGE_OBJECT"}, Usage: "object name inside the bucket"},
			&cli.BoolFlag{Name: "replay", EnvVars: []string{"JSONSTORE_BRIDGE_REPLAY"}, Usage: "replay the journal into the server on startup"},
			&cli.BoolFlag{Name: "fsync", Value: true, EnvVars: []string{"JSONSTORE_BRIDGE_FSYNC"}, Usage: "fsync every journal append"},
			&cli.StringFlag{Name: "env-file", Usage: "jsondb env file"},
			&cli.StringFlag{Name: "config", Usage: "YAML config file"},
		},
		Action: run,
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) (err error) {
	var opts []config.Option
	if path := c.String("env-file"); path != "" {
		opts = append(opts, config.WithEnvFile(path))
	}
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cfg.Logger("jsonstore-bridge")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataDir := c.String("data-dir")
	journalPath := persistence.JournalPath(dataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}

	var mirror bridge.Mirror
	if bucket := c.String("bucket"); bucket != "" {
		var remote journalMirror
		remote, err = dialMirror(ctx, bucket, c.String("object"))
		if err != nil {
			return fmt.Errorf("gcs client: %w", err)
		}
		defer func() { err = multierr.Append(err, remote.Close()) }()
		if err := remote.Download(ctx, journalPath); err != nil {
			return fmt.Errorf("download journal: %w", err)
		}
		mirror = remote
		logger.Info("mirroring journal", "bucket", bucket, "object", c.String("object"))
	}

	n, err := persistence.Compact(ctx, dataDir, util.RealClock{})
	if err != nil {
		return fmt.Errorf("compact journal: %w", err)
	}
	logger.Info("journal compacted", "path", journalPath, "keys", n)

	if c.Bool("replay") {
		if err := replay(ctx, cfg.ClientOptions(logger), journalPath, logger); err != nil {
			return err
		}
	}

	journal, err := persistence.OpenJournal(dataDir, persistence.Options{Fsync: c.Bool("fsync")})
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { err = multierr.Append(err, journal.Close()) }()

	h := bridge.New(bridge.Options{
		Client:  cfg.ClientOptions(logger),
		Journal: journal,
		Mirror:  mirror,
		Logger:  logger,
	})
	srv := &http.Server{
		Addr:              c.String("listen"),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("bridge listening", "addr", srv.Addr, "backend", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return multierr.Append(srv.Shutdown(shutdownCtx), h.Close())
	})
	return g.Wait()
}

func replay(ctx context.Context, opts client.Options, path string, logger hclog.Logger) error {
	conn := client.New(opts)
	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("replay connect: %w", err)
	}
	defer conn.Close()

	n, err := persistence.Replay(ctx, path, persistence.ConnApplier{Conn: conn})
	if err != nil {
		return fmt.Errorf("replay journal: %w", err)
	}
	logger.Info("journal replayed", "records", n)
	return nil
}
