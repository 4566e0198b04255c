package store

import (
	"testing"
	"time"

	"github.com/loganszeto/jsonstore-go/internal/util"
)

func TestMemTableTTL(t *testing.T) {
	clock := util.NewManualClock(1_000_000)
	tbl := NewMemTable(clock)

	if got := tbl.TTL("missing"); got != -2 {
		t.Fatalf("expected -2 for missing key, got %d", got)
	}

	tbl.Set("forever", []byte("x"), 0)
	if got := tbl.TTL("forever"); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}

	tbl.Set("temp", []byte("y"), 0)
	if !tbl.Expire("temp", clock.NowMs()+5000) {
		t.Fatalf("expire on live key failed")
	}
	if got := tbl.TTL("temp"); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}

	clock.Advance(1500 * time.Millisecond)
	if got := tbl.TTL("temp"); got != 4 {
		t.Fatalf("expected 4 after 1.5s, got %d", got)
	}

	clock.Advance(4 * time.Second)
	if _, ok := tbl.Get("temp"); ok {
		t.Fatalf("expected temp to be expired")
	}
	if got := tbl.TTL("temp"); got != -2 {
		t.Fatalf("expected -2 after expiry, got %d", got)
	}
	if tbl.Expire("temp", clock.NowMs()+1000) {
		t.Fatalf("expire on expired key should fail")
	}
}

func TestMemTableDel(t *testing.T) {
	clock := util.NewManualClock(0)
	tbl := NewMemTable(clock)

	tbl.Set("a", []byte("1"), 0)
	if !tbl.Del("a") {
		t.Fatalf("first delete should report true")
	}
	if tbl.Del("a") {
		t.Fatalf("second delete should report false")
	}

	tbl.Set("b", []byte("2"), 10)
	clock.Advance(time.Second)
	if tbl.Del("b") {
		t.Fatalf("deleting an expired key should report false")
	}
	if tbl.Len() != 0 {
		t.Fatalf("expected empty table, got %d", tbl.Len())
	}
}

func TestMemTableCopiesValues(t *testing.T) {
	tbl := NewMemTable(nil)
	buf := []byte("abc")
	tbl.Set("k", buf, 0)
	buf[0] = 'z'
	got, ok := tbl.Get("k")
	if !ok || string(got) != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
}

func TestMemTableRangeSkipsExpired(t *testing.T) {
	clock := util.NewManualClock(1_000_000)
	tbl := NewMemTable(clock)
	tbl.Set("a", []byte("1"), 0)
	tbl.Set("b", []byte("2"), clock.NowMs()+1000)
	tbl.Set("c", []byte("3"), clock.NowMs()+10_000)
	clock.Advance(2 * time.Second)

	seen := map[string]string{}
	tbl.Range(func(key string, value []byte, _ int64) bool {
		seen[key] = string(value)
		return true
	})
	if len(seen) != 2 || seen["a"] != "1" || seen["c"] != "3" {
		t.Fatalf("unexpected live entries %v", seen)
	}

	calls := 0
	tbl.Range(func(string, []byte, int64) bool {
		calls++
		return false
	})
	if calls != 1 {
		t.Fatalf("expected Range to stop after the first entry, got %d calls", calls)
	}
}
