package store

import (
	"sync"

	"github.com/loganszeto/jsonstore-go/internal/util"
)

type entry struct {
	v           []byte
	expiresAtMs int64
}

type MemTable struct {
	mu    sync.RWMutex
	m     map[string]entry
	clock util.Clock
}

func NewMemTable(clock util.Clock) *MemTable {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &MemTable{
		m:     make(map[string]entry),
		clock: clock,
	}
}

func (t *MemTable) Now() int64 {
	return t.clock.NowMs()
}

func (t *MemTable) Get(key string) ([]byte, bool) {
	ent, ok := t.live(key)
	if !ok {
		return nil, false
	}
	out := make([]byte, len(ent.v))
	copy(out, ent.v)
	return out, true
}

func (t *MemTable) Set(key string, value []byte, expiresAtMs int64) {
	buf := make([]byte, len(value))
	copy(buf, value)
	t.mu.Lock()
	t.m[key] = entry{v: buf, expiresAtMs: expiresAtMs}
	t.mu.Unlock()
}

func (t *MemTable) Del(key string) bool {
	if _, ok := t.live(key); !ok {
		return false
	}
	t.mu.Lock()
	_, ok := t.m[key]
	if ok {
		delete(t.m, key)
	}
	t.mu.Unlock()
	return ok
}

func (t *MemTable) Expire(key string, expiresAtMs int64) bool {
	now := t.clock.NowMs()
	t.mu.Lock()
	defer t.mu.Unlock()
	ent, ok := t.m[key]
	if !ok {
		return false
	}
	if IsExpired(ent.expiresAtMs, now) {
		delete(t.m, key)
		return false
	}
	ent.expiresAtMs = expiresAtMs
	t.m[key] = ent
	return true
}

func (t *MemTable) TTL(key string) int64 {
	ent, ok := t.live(key)
	if !ok {
		return -2
	}
	if ent.expiresAtMs == 0 {
		return -1
	}
	return remainingSeconds(ent.expiresAtMs, t.clock.NowMs())
}

func (t *MemTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// live returns the entry for key, evicting it first if it has expired.
func (t *MemTable) live(key string) (entry, bool) {
	now := t.clock.NowMs()
	t.mu.RLock()
	ent, ok := t.m[key]
	t.mu.RUnlock()
	if !ok {
		return entry{}, false
	}
	if IsExpired(ent.expiresAtMs, now) {
		t.mu.Lock()
		if cur, still := t.m[key]; still && IsExpired(cur.expiresAtMs, now) {
			delete(t.m, key)
		}
		t.mu.Unlock()
		return entry{}, false
	}
	return ent, true
}

// Range calls fn for every live entry until fn returns false. Entries are
// visited in no particular order.
func (t *MemTable) Range(fn func(key string, value []byte, expiresAtMs int64) bool) {
	now := t.clock.NowMs()
	t.mu.RLock()
	defer t.mu.RUnlock()
	for k, ent := range t.m {
		if IsExpired(ent.expiresAtMs, now) {
			continue
		}
		if !fn(k, ent.v, ent.expiresAtMs) {
			return
		}
	}
}
