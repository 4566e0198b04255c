package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/loganszeto/jsonstore-go/client"
	"github.com/loganszeto/jsonstore-go/internal/config"
	"github.com/loganszeto/jsonstore-go/internal/stats"
)

type benchConfig struct {
	client    client.Options
	workers   int
	ops       int
	ratioGet  float64
	valueSize int
	keySpace  int
	rate      float64
	runID     string
}

type result struct {
	ops     int64
	elapsed time.Duration
	lats    []time.Duration
	stats   map[string]int64
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "jsonstore-bench",
		Usage:     "load generator for a jsondb server",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Usage: "jsondb env file"},
			&cli.StringFlag{Name: "config", Usage: "YAML config file"},
			&cli.StringFlag{Name: "host", Usage: "server host (overrides config)"},
			&cli.IntFlag{Name: "port", Usage: "server port (overrides config)"},
			&cli.StringFlag{Name: "password", Usage: "server password (overrides config)"},
			&cli.StringFlag{Name: "log-level", Usage: "log level (overrides config)"},
			&cli.IntFlag{Name: "workers", Value: 10, Usage: "concurrent connections, one per goroutine"},
			&cli.IntFlag{Name: "ops", Value: 10000, Usage: "total operations"},
			&cli.Float64Flag{Name: "ratio_get", Value: 0.8, Usage: "get ratio"},
			&cli.IntFlag{Name: "value_size", Value: 128, Usage: "value size bytes"},
			&cli.IntFlag{Name: "keys", Value: 1000, Usage: "distinct keys"},
			&cli.Float64Flag{Name: "rate", Usage: "ops/sec limit across all workers, 0 for none"},
		},
		Action: bench,
	}
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "bench: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	var opts []config.Option
	if path := c.String("env-file"); path != "" {
		opts = append(opts, config.WithEnvFile(path))
	}
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
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
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func bench(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := cfg.Logger("jsonstore-bench")

	bc := benchConfig{
		client:    cfg.ClientOptions(logger),
		workers:   c.Int("workers"),
		ops:       c.Int("ops"),
		ratioGet:  c.Float64("ratio_get"),
		valueSize: c.Int("value_size"),
		keySpace:  c.Int("keys"),
		rate:      c.Float64("rate"),
		runID:     ulid.Make().String(),
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	logger.Info("starting run", "run_id", bc.runID, "addr", cfg.Addr(), "workers", bc.workers, "ops", bc.ops)
	res, err := runBench(ctx, bc)
	if err != nil {
		return err
	}
	report(c.App.Writer, bc, res)
	return nil
}

func (bc benchConfig) validate() error {
	switch {
	case bc.workers <= 0:
		return errors.New("workers must be > 0")
	case bc.ops <= 0:
		return errors.New("ops must be > 0")
	case bc.ratioGet < 0 || bc.ratioGet > 1:
		return errors.New("ratio_get must be within [0, 1]")
	case bc.valueSize <= 0:
		return errors.New("value_size must be > 0")
	case bc.keySpace <= 0:
		return errors.New("keys must be > 0")
	case bc.rate < 0:
		return errors.New("rate must be >= 0")
	}
	return nil
}

// runBench drives bc.ops operations over bc.workers connections. Keys are
// namespaced by run id so concurrent runs do not collide.
func runBench(ctx context.Context, bc benchConfig) (result, error) {
	if err := bc.validate(); err != nil {
		return result{}, err
	}

	rec := stats.New()
	bc.client.Recorder = rec

	value := strings.Repeat("x", bc.valueSize)
	keys := make([]string, bc.keySpace)
	for i := range keys {
		keys[i] = fmt.Sprintf("bench:%s:%d", bc.runID, i)
	}

	var limiter *rate.Limiter
	if bc.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(bc.rate), bc.workers)
	}

	var (
		opsDone atomic.Int64
		latMu   sync.Mutex
		lats    = make([]time.Duration, 0, bc.ops)
	)

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for id := 0; id < bc.workers; id++ {
		g.Go(func() error {
			conn := client.New(bc.client)
			if err := conn.Connect(gctx); err != nil {
				return fmt.Errorf("worker %d: %w", id, err)
			}
			defer conn.Close()

			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
			local := make([]time.Duration, 0, bc.ops/bc.workers+1)
			defer func() {
				latMu.Lock()
				lats = append(lats, local...)
				latMu.Unlock()
			}()

			for {
				if int(opsDone.Add(1)) > bc.ops {
					return nil
				}
				if limiter != nil {
					if err := limiter.Wait(gctx); err != nil {
						return err
					}
				}
				key := keys[rng.Intn(len(keys))]
				startOp := time.Now()
				var err error
				if rng.Float64() < bc.ratioGet {
					_, err = conn.Get(gctx, key)
				} else {
					_, err = conn.Set(gctx, key, value, 0)
				}
				if err != nil {
					return fmt.Errorf("worker %d: %w", id, err)
				}
				local = append(local, time.Since(startOp))
			}
		})
	}
	err := g.Wait()
	elapsed := time.Since(start)

	slices.Sort(lats)
	return result{
		ops:     int64(len(lats)),
		elapsed: elapsed,
		lats:    lats,
		stats:   rec.Snapshot(),
	}, err
}

func report(w io.Writer, bc benchConfig, res result) {
	fmt.Fprintf(w, "Run: %s\n", bc.runID)
	fmt.Fprintf(w, "Total ops: %d\n", res.ops)
	fmt.Fprintf(w, "Elapsed: %s\n", res.elapsed)
	fmt.Fprintf(w, "Ops/sec: %.2f\n", float64(res.ops)/res.elapsed.Seconds())
	fmt.Fprintf(w, "Gets: %d (hits %d, misses %d)  Sets: %d\n",
		res.stats["get"], res.stats["hits"], res.stats["misses"], res.stats["set"])
	printLatencyStats(w, res.lats)
}

// printLatencyStats expects lats sorted.
func printLatencyStats(w io.Writer, lats []time.Duration) {
	if len(lats) == 0 {
		fmt.Fprintln(w, "No latency samples")
		return
	}
	fmt.Fprintf(w, "p50: %s\n", percentile(lats, 50))
	fmt.Fprintf(w, "p95: %s\n", percentile(lats, 95))
	fmt.Fprintf(w, "p99: %s\n", percentile(lats, 99))
}

func percentile(sorted []time.Duration, p int) time.Duration {
	return sorted[len(sorted)*p/100]
}
