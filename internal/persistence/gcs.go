package persistence

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/multierr"
)

const uploadTimeout = 10 * time.Second

// GCSMirror copies the journal file to and from a Cloud Storage object.
type GCSMirror struct {
	client *storage.Client
	bucket string
	object string
	mu     sync.Mutex
}

// DialGCSMirror creates a storage client with application default
// credentials.
func DialGCSMirror(ctx context.Context, bucket, object string) (*GCSMirror, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return NewGCSMirror(client, bucket, object), nil
}

func NewGCSMirror(client *storage.Client, bucket, object string) *GCSMirror {
	return &GCSMirror{client: client, bucket: bucket, object: object}
}

// Download replaces the file at path with the object's contents. A missing
// object leaves path untouched.
func (g *GCSMirror) Download(ctx context.Context, path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	rc, err := g.client.Bucket(g.bucket).Object(g.object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Upload overwrites the object with the file at path.
func (g *GCSMirror) Upload(ctx context.Context, path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(g.object).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		return multierr.Append(err, w.Close())
	}
	return w.Close()
}

func (g *GCSMirror) Close() error {
	return g.client.Close()
}
