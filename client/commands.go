package client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/loganszeto/jsonstore-go/protocol"
)

// Ping sends PING and returns the server's reply, normally PONG.
func (c *Conn) Ping(ctx context.Context) (string, error) {
	v, err := c.Get(ctx, string(protocol.VerbPing))
	if err != nil {
		return "", err
	}
	return v.Str, nil
}

// Set stores value under key. Maps, slices and structs travel as compact
// JSON, scalars bare. A reply other than OK yields false without an error.
//
// With ttl > 0 an EXPIRE follows in a second round trip and the result is
// true only if both succeed; ttl is rounded as for Expire. The pair is not
// atomic: if the connection breaks in between, the key stays without an
// expiration.
func (c *Conn) Set(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		return false, ErrNotConnected
	}
	if err := protocol.ValidateKey(key); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	wire, err := protocol.EncodeValue(value)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	resp, err := c.roundTrip(ctx, protocol.VerbSet, key, wire)
	if err != nil {
		return false, err
	}
	if resp != protocol.ReplyOK {
		c.log.Debug("set refused", "key", key, "reply", resp)
		return false, nil
	}
	if ttl <= 0 {
		return true, nil
	}
	return c.expire(ctx, key, ttl)
}

// Get fetches key and decodes the reply with protocol.DecodeValue. An
// absent key yields a KindNull value.
//
// The key "PING" is not looked up: Get sends a bare PING and returns the
// reply as a string value.
func (c *Conn) Get(ctx context.Context, key string) (protocol.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		return protocol.Value{}, ErrNotConnected
	}
	if key == string(protocol.VerbPing) {
		resp, err := c.roundTrip(ctx, protocol.VerbPing)
		if err != nil {
			return protocol.Value{}, err
		}
		return protocol.Value{Kind: protocol.KindString, Str: resp, Raw: resp}, nil
	}
	if err := protocol.ValidateKey(key); err != nil {
		return protocol.Value{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	resp, err := c.roundTrip(ctx, protocol.VerbGet, key)
	if err != nil {
		return protocol.Value{}, err
	}
	if c.opts.Recorder != nil {
		c.opts.Recorder.RecordGet(resp != protocol.ReplyNil)
	}
	return protocol.DecodeValue(resp), nil
}

// TTL returns the remaining seconds for key, protocol.TTLNoExpiry (-1) for
// a key without expiration and protocol.TTLKeyMissing (-2) for an absent
// key. A non-numeric reply is a *ProtocolError.
func (c *Conn) TTL(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		return 0, ErrNotConnected
	}
	if err := protocol.ValidateKey(key); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	resp, err := c.roundTrip(ctx, protocol.VerbTTL, key)
	if err != nil {
		return 0, err
	}
	if resp == protocol.ReplyNil {
		return protocol.TTLKeyMissing, nil
	}
	n, err := strconv.ParseInt(resp, 10, 64)
	if err != nil {
		return 0, &ProtocolError{Verb: protocol.VerbTTL, Reply: resp, Message: "ttl is not an integer"}
	}
	if n < 0 && n != protocol.TTLNoExpiry && n != protocol.TTLKeyMissing {
		return 0, &ProtocolError{Verb: protocol.VerbTTL, Reply: resp, Message: "negative ttl"}
	}
	return n, nil
}

// Expire sets a time to live on an existing key. The protocol counts whole
// seconds: ttl is truncated (1.9s becomes 1s) and sub-second durations are
// rounded up to one second.
func (c *Conn) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		return false, ErrNotConnected
	}
	if err := protocol.ValidateKey(key); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if ttl <= 0 {
		return false, fmt.Errorf("%w: ttl must be positive", ErrInvalidArgument)
	}
	return c.expire(ctx, key, ttl)
}

func (c *Conn) expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	resp, err := c.roundTrip(ctx, protocol.VerbExpire, key, strconv.FormatInt(seconds(ttl), 10))
	if err != nil {
		return false, err
	}
	return resp == protocol.ReplyOK, nil
}

// Delete removes key and reports whether it existed.
func (c *Conn) Delete(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		return false, ErrNotConnected
	}
	if err := protocol.ValidateKey(key); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	resp, err := c.roundTrip(ctx, protocol.VerbDel, key)
	if err != nil {
		return false, err
	}
	return resp == protocol.ReplyDeleted, nil
}

// Do performs one raw round trip and returns the trimmed reply line. AUTH
// is reserved for the handshake.
func (c *Conn) Do(ctx context.Context, verb protocol.Verb, args ...string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		return "", ErrNotConnected
	}
	if verb == protocol.VerbAuth {
		return "", fmt.Errorf("%w: AUTH is sent by Connect", ErrInvalidArgument)
	}
	return c.roundTrip(ctx, verb, args...)
}

func seconds(ttl time.Duration) int64 {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
