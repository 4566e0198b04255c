// Package bridge exposes a jsondb server to browsers over WebSocket. Every
// socket gets its own client connection; successful mutations are
// journaled and optionally mirrored to Cloud Storage.
package bridge

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loganszeto/jsonstore-go/client"
	"github.com/loganszeto/jsonstore-go/internal/persistence"
	"github.com/loganszeto/jsonstore-go/internal/stats"
	"github.com/loganszeto/jsonstore-go/internal/util"
)

// Mirror uploads the journal after each mutation.
type Mirror interface {
	Upload(ctx context.Context, path string) error
}

type Options struct {
	// Client is used for every socket's connection.
	Client  client.Options
	Journal *persistence.Journal
	Mirror  Mirror
	Stats   *stats.Stats
	Clock   util.Clock
	Logger  hclog.Logger
}

type Handler struct {
	opts     Options
	log      hclog.Logger
	registry *prometheus.Registry
	upgrader websocket.Upgrader

	// journal appends and uploads happen in order
	persistMu sync.Mutex

	mu      sync.Mutex
	sockets map[*websocket.Conn]struct{}
	closed  bool
	wg      sync.WaitGroup
}

func New(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Clock == nil {
		opts.Clock = util.RealClock{}
	}
	if opts.Stats == nil {
		opts.Stats = stats.New()
	}
	opts.Client.Recorder = opts.Stats
	opts.Client.Logger = opts.Logger

	registry := prometheus.NewRegistry()
	registry.MustRegister(opts.Stats.Collector())

	return &Handler{
		opts:     opts,
		log:      opts.Logger.Named("bridge"),
		registry: registry,
		sockets:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", h.ServeWS)
	mux.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("jsonstore bridge ok\n"))
	})
	return h.withLogging(mux)
}

// track registers or forgets a socket. It reports false once Close has
// started; the caller must then drop the socket.
func (h *Handler) track(ws *websocket.Conn, add bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if add {
		if h.closed {
			return false
		}
		h.sockets[ws] = struct{}{}
		h.wg.Add(1)
		return true
	}
	if _, ok := h.sockets[ws]; ok {
		delete(h.sockets, ws)
		h.wg.Done()
	}
	return true
}

// Close drops every open socket and waits for their handlers to return.
// Sockets upgraded afterwards are refused. http.Server.Shutdown does not
// touch hijacked connections.
func (h *Handler) Close() error {
	h.mu.Lock()
	h.closed = true
	for ws := range h.sockets {
		_ = ws.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
	return nil
}

func (h *Handler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.Debug("request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}
