package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/loganszeto/jsonstore-go/client"
	"github.com/loganszeto/jsonstore-go/internal/testserver"
	"github.com/loganszeto/jsonstore-go/internal/util"
	"github.com/loganszeto/jsonstore-go/protocol"
)

func TestConnApplierRecreatesKeys(t *testing.T) {
	clock := util.NewManualClock(1_700_000_000_000)
	srv := testserver.New(testserver.Options{Password: "pw", Clock: clock})
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Close()

	conn := client.New(client.Options{Host: srv.Host(), Port: srv.Port(), Password: "pw", Timeout: 2 * time.Second})
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	dir := t.TempDir()
	j, err := OpenJournal(dir, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	now := clock.NowMs()
	for _, rec := range []Record{
		{Op: OpSet, Key: "doc", Value: `{"a": [1, 2]}`},
		{Op: OpSet, Key: "tmp", Value: "x", ExpiresAtMs: now + 30_000},
		{Op: OpSet, Key: "old", Value: "x", ExpiresAtMs: now - 1},
		{Op: OpSet, Key: "gone", Value: "x"},
		{Op: OpDel, Key: "gone"},
		{Op: OpSet, Key: "later", Value: "3.5"},
		{Op: OpExpire, Key: "later", ExpiresAtMs: now + 90_000},
	} {
		if err := j.Append(rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ctx := context.Background()
	n, err := Replay(ctx, j.Path(), ConnApplier{Conn: conn, Clock: clock})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7 records, got %d", n)
	}

	v, err := conn.Get(ctx, "doc")
	if err != nil || v.Kind != protocol.KindJSON {
		t.Fatalf("doc: %v %v", v, err)
	}
	if ttl, _ := conn.TTL(ctx, "tmp"); ttl != 30 {
		t.Fatalf("tmp: expected ttl 30, got %d", ttl)
	}
	if ttl, _ := conn.TTL(ctx, "later"); ttl != 90 {
		t.Fatalf("later: expected ttl 90, got %d", ttl)
	}
	for _, key := range []string{"old", "gone"} {
		if v, err := conn.Get(ctx, key); err != nil || !v.IsNull() {
			t.Fatalf("%s: expected absent, got %v %v", key, v, err)
		}
	}
}
