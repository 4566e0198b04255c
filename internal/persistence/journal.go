// Package persistence keeps a local journal of successful mutations so a
// jsondb server's contents can be replayed after a restart, optionally
// mirrored to Cloud Storage.
package persistence

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
)

const journalFileName = "journal.log"

var ErrClosed = errors.New("journal closed")

type Options struct {
	// Fsync syncs the file after every append.
	Fsync bool
}

type Journal struct {
	mu   sync.Mutex
	path string
	f    *os.File
	buf  *bufio.Writer
	opts Options
}

func JournalPath(dir string) string {
	return filepath.Join(dir, journalFileName)
}

func OpenJournal(dir string, opts Options) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := JournalPath(dir)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Journal{
		path: path,
		f:    f,
		buf:  bufio.NewWriter(f),
		opts: opts,
	}, nil
}

func (j *Journal) Path() string { return j.path }

// Append writes rec and flushes it to the file before returning.
func (j *Journal) Append(rec Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return ErrClosed
	}
	if _, err := j.buf.Write(data); err != nil {
		return err
	}
	if err := j.buf.Flush(); err != nil {
		return err
	}
	if j.opts.Fsync {
		return j.f.Sync()
	}
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	err := multierr.Append(j.buf.Flush(), j.f.Close())
	j.f = nil
	return err
}
