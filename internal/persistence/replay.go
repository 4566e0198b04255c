package persistence

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/loganszeto/jsonstore-go/client"
	"github.com/loganszeto/jsonstore-go/internal/store"
	"github.com/loganszeto/jsonstore-go/internal/util"
	"github.com/loganszeto/jsonstore-go/protocol"
)

// Applier receives journal records in append order.
type Applier interface {
	Apply(ctx context.Context, rec Record) error
}

// Replay feeds every record in the journal at path to a. A missing file is
// an empty journal. Reading stops without error at a torn or corrupt tail,
// which is what a crash mid-append leaves behind. It returns the number of
// records applied.
func Replay(ctx context.Context, path string, a Applier) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		rec, err := DecodeFrom(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrCorrupt) {
				return n, nil
			}
			return n, err
		}
		if err := a.Apply(ctx, rec); err != nil {
			return n, fmt.Errorf("apply %s %s: %w", rec.Op, rec.Key, err)
		}
		n++
	}
}

// StoreApplier replays into an in-memory store.
type StoreApplier struct {
	Store store.Store
}

func (s StoreApplier) Apply(_ context.Context, rec Record) error {
	switch rec.Op {
	case OpSet:
		s.Store.Set(rec.Key, []byte(rec.Value), rec.ExpiresAtMs)
	case OpDel:
		s.Store.Del(rec.Key)
	case OpExpire:
		s.Store.Expire(rec.Key, rec.ExpiresAtMs)
	}
	return nil
}

// ConnApplier replays into a live server through a connected client.
// Expirations are converted back to relative TTLs against Clock; a key
// whose deadline has passed is deleted instead.
type ConnApplier struct {
	Conn  *client.Conn
	Clock util.Clock
}

func (c ConnApplier) Apply(ctx context.Context, rec Record) error {
	switch rec.Op {
	case OpSet:
		resp, err := c.Conn.Do(ctx, protocol.VerbSet, rec.Key, rec.Value)
		if err != nil {
			return err
		}
		if resp != protocol.ReplyOK {
			return fmt.Errorf("server refused SET: %q", resp)
		}
		if rec.ExpiresAtMs == 0 {
			return nil
		}
		return c.expire(ctx, rec)
	case OpDel:
		_, err := c.Conn.Delete(ctx, rec.Key)
		return err
	case OpExpire:
		return c.expire(ctx, rec)
	default:
		return fmt.Errorf("unknown %s", rec.Op)
	}
}

func (c ConnApplier) expire(ctx context.Context, rec Record) error {
	clock := c.Clock
	if clock == nil {
		clock = util.RealClock{}
	}
	left := time.Duration(rec.ExpiresAtMs-clock.NowMs()) * time.Millisecond
	if left <= 0 {
		_, err := c.Conn.Delete(ctx, rec.Key)
		return err
	}
	_, err := c.Conn.Expire(ctx, rec.Key, left)
	return err
}
