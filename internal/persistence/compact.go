package persistence

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"go.uber.org/multierr"

	"github.com/loganszeto/jsonstore-go/internal/store"
	"github.com/loganszeto/jsonstore-go/internal/util"
)

// Compact rewrites the journal in dir as one SET per live key, dropping
// deleted and expired keys. The journal must not be open for appends. It
// returns the number of records written.
func Compact(ctx context.Context, dir string, clock util.Clock) (int, error) {
	path := JournalPath(dir)
	table := store.NewMemTable(clock)
	if _, err := Replay(ctx, path, StoreApplier{Store: table}); err != nil {
		return 0, fmt.Errorf("replay: %w", err)
	}

	tmp := path + ".compact"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	w := bufio.NewWriter(f)

	n := 0
	var werr error
	table.Range(func(key string, value []byte, expiresAtMs int64) bool {
		var data []byte
		data, werr = Encode(Record{Op: OpSet, Key: key, Value: string(value), ExpiresAtMs: expiresAtMs})
		if werr == nil {
			_, werr = w.Write(data)
		}
		n++
		return werr == nil
	})
	werr = multierr.Combine(werr, w.Flush(), f.Sync(), f.Close())
	if werr != nil {
		_ = os.Remove(tmp)
		return 0, werr
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, err
	}
	return n, nil
}
