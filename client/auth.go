package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/loganszeto/jsonstore-go/protocol"
)

// authState tracks the handshake:
//
//	AwaitingGreeting -> NoAuthNeeded -> Authenticated
//	AwaitingGreeting -> AuthPending  -> Authenticated | Failed
type authState int32

const (
	stateDisconnected authState = iota
	stateAwaitingGreeting
	stateNoAuthNeeded
	stateAuthPending
	stateAuthenticated
	stateFailed
)

func (s authState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateAwaitingGreeting:
		return "awaiting_greeting"
	case stateNoAuthNeeded:
		return "no_auth_needed"
	case stateAuthPending:
		return "auth_pending"
	case stateAuthenticated:
		return "authenticated"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

func (c *Conn) setState(s authState) {
	prev := authState(c.state.Swap(int32(s)))
	if prev != s {
		c.log.Trace("handshake transition", "from", prev, "to", s)
	}
}

// authenticate runs the greeting exchange. Any first line other than
// AUTH_REQUIRED is treated as a banner and means no password is needed.
// The caller holds mu.
func (c *Conn) authenticate(ctx context.Context) error {
	if authState(c.state.Load()) == stateAuthenticated {
		return nil
	}

	greeting, err := c.readLine(ctx)
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}
	greeting = strings.TrimSpace(greeting)
	if greeting != protocol.AuthRequired {
		c.banner = greeting
		c.setState(stateNoAuthNeeded)
		c.setState(stateAuthenticated)
		return nil
	}

	c.setState(stateAuthPending)
	if c.opts.Password == "" {
		c.setState(stateFailed)
		return ErrAuthConfiguration
	}

	line, err := protocol.FormatCommand(protocol.VerbAuth, c.opts.Password)
	if err != nil {
		c.setState(stateFailed)
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c.log.Debug("authenticating")
	if err := c.writeLine(ctx, line); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	resp, err := c.readLine(ctx)
	if err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}
	if !strings.Contains(resp, protocol.ReplyOK) {
		c.setState(stateFailed)
		if c.opts.Recorder != nil {
			c.opts.Recorder.RecordAuthFailure()
		}
		return &AuthenticationError{Response: strings.TrimSpace(resp)}
	}
	c.setState(stateAuthenticated)
	return nil
}
