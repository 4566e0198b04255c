// Package testserver is an in-process double of a jsondb server. It speaks
// the greeting/AUTH handshake and PING/SET/GET/DEL/TTL/EXPIRE over loopback
// TCP and is meant for tests and local tooling only.
package testserver

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/loganszeto/jsonstore-go/internal/store"
	"github.com/loganszeto/jsonstore-go/internal/util"
	"github.com/loganszeto/jsonstore-go/protocol"
)

const DefaultBanner = "JSONDB READY"

type Options struct {
	// Addr defaults to an ephemeral loopback port.
	Addr string
	// Password makes the server greet with AUTH_REQUIRED.
	Password string
	Banner   string
	Clock    util.Clock
	// ChunkSize > 0 splits every reply into writes of at most that many
	// bytes with a short pause between them.
	ChunkSize int
	// Replies forces a fixed reply line for a verb.
	Replies map[protocol.Verb]string
	Logger  hclog.Logger
}

type Server struct {
	opts Options
	st   *store.MemTable
	log  hclog.Logger

	ln     net.Listener
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	if opts.Banner == "" {
		opts.Banner = DefaultBanner
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Server{
		opts:  opts,
		st:    store.NewMemTable(opts.Clock),
		log:   opts.Logger.Named("testserver"),
		conns: make(map[net.Conn]struct{}),
	}
}

func (s *Server) Store() *store.MemTable { return s.st }

func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Start listens and serves in the background until Close.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.Serve(ctx)
	}()
	return nil
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) Serve(ctx context.Context) error {
	ln := s.ln
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handleConn(conn)
		}()
	}
}

func (s *Server) Addr() string {
	if s.ln == nil {
		return s.opts.Addr
	}
	return s.ln.Addr().String()
}

func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// Close stops accepting, drops open connections and waits for handlers.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	var err error
	if s.ln != nil {
		err = s.ln.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	}
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closed {
			_ = c.Close()
			return
		}
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}
