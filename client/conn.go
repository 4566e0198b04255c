// Package client implements a connection to a jsondb server over its
// newline-delimited text protocol.
//
// A Conn owns exactly one TCP socket. Connect dials and runs the greeting
// and AUTH handshake; commands are strict request/response round trips;
// Close releases the socket. Protocol-level refusals (SET not OK, DEL of a
// missing key) are reported as false, while transport, handshake and
// grammar failures are errors. Any transport failure or timeout closes the
// connection, since the reply stream can no longer be trusted.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/loganszeto/jsonstore-go/protocol"
)

// Conn is a single connection. Operations are serialized internally; open
// one Conn per goroutine for parallel traffic.
type Conn struct {
	opts Options
	log  hclog.Logger

	mu     sync.Mutex
	nc     net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	banner string

	connected atomic.Bool
	state     atomic.Int32
}

func New(opts Options) *Conn {
	opts = opts.withDefaults()
	return &Conn{
		opts: opts,
		log:  opts.Logger.Named("jsonstore").With("addr", opts.Addr()),
	}
}

func (c *Conn) Addr() string { return c.opts.Addr() }

func (c *Conn) Connected() bool { return c.connected.Load() }

func (c *Conn) Authenticated() bool {
	return c.connected.Load() && authState(c.state.Load()) == stateAuthenticated
}

// Banner returns the greeting line of a server that did not ask for a
// password. It carries no protocol meaning.
func (c *Conn) Banner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.banner
}

// Connect dials the server and completes the handshake. It is a no-op on a
// connected Conn. On failure the socket is closed and Connect may be retried.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc != nil {
		return nil
	}
	if err := c.opts.validate(); err != nil {
		return err
	}

	addr := c.opts.Addr()
	c.log.Debug("connecting")
	dialer := &net.Dialer{Timeout: c.opts.Timeout}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &ConnectionError{Addr: addr, Err: err}
	}

	c.nc = nc
	c.r = bufio.NewReader(nc)
	c.w = bufio.NewWriter(nc)
	c.banner = ""
	c.connected.Store(true)
	c.setState(stateAwaitingGreeting)

	stop := c.watch(ctx)
	err = c.authenticate(ctx)
	stop()
	if err != nil {
		c.log.Debug("handshake failed", "error", err)
		_ = c.teardown()
		return err
	}
	c.log.Debug("connected")
	return nil
}

// Close releases the socket. Closing a closed Conn is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teardown()
}

func (c *Conn) teardown() error {
	if c.nc == nil {
		return nil
	}
	err := c.nc.Close()
	c.nc = nil
	c.r = nil
	c.w = nil
	c.connected.Store(false)
	c.setState(stateDisconnected)
	return err
}

// roundTrip sends one command and reads one reply line. The caller holds mu.
func (c *Conn) roundTrip(ctx context.Context, verb protocol.Verb, args ...string) (string, error) {
	if c.nc == nil {
		return "", ErrNotConnected
	}
	line, err := protocol.FormatCommand(verb, args...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if err := ctx.Err(); err != nil {
		return "", contextError("write", err)
	}

	stop := c.watch(ctx)
	defer stop()

	start := time.Now()
	c.log.Trace("sending command", "verb", verb, "args", len(args))
	resp, err := c.exchange(ctx, line)
	if c.opts.Recorder != nil {
		c.opts.Recorder.RecordCommand(verb, time.Since(start), err)
	}
	if err != nil {
		c.log.Warn("closing connection after failed round trip", "verb", verb, "error", err)
		_ = c.teardown()
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

func (c *Conn) exchange(ctx context.Context, line string) (string, error) {
	if err := c.writeLine(ctx, line); err != nil {
		return "", err
	}
	return c.readLine(ctx)
}

// writeLine appends the terminator and flushes the whole command.
func (c *Conn) writeLine(ctx context.Context, line string) error {
	if c.nc == nil {
		return ErrNotConnected
	}
	if err := c.nc.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return c.classify(ctx, "write", err)
	}
	if _, err := c.w.WriteString(line); err != nil {
		return c.classify(ctx, "write", err)
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return c.classify(ctx, "write", err)
	}
	if err := c.w.Flush(); err != nil {
		return c.classify(ctx, "write", err)
	}
	return nil
}

func (c *Conn) readLine(ctx context.Context) (string, error) {
	if c.nc == nil {
		return "", ErrNotConnected
	}
	if err := c.nc.SetReadDeadline(c.deadline(ctx)); err != nil {
		return "", c.classify(ctx, "read", err)
	}
	line, err := protocol.ReadLine(c.r)
	if err != nil {
		return "", c.classify(ctx, "read", err)
	}
	return line, nil
}

func (c *Conn) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.opts.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		return dl
	}
	return d
}

// watch interrupts blocked socket I/O when ctx is cancelled. The returned
// stop waits for an interrupt already in flight, so a later operation
// never sees its deadline overwritten.
func (c *Conn) watch(ctx context.Context) func() {
	nc := c.nc
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = nc.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		if !stop() {
			<-fired
		}
	}
}

func (c *Conn) classify(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return contextError(op, ctxErr)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Op: op, Err: err}
	}
	return &IOError{Op: op, Err: err}
}

// contextError reports an expired context deadline as a timeout, since it
// shortens the per-operation timeout. Cancellation is returned as is.
func contextError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
