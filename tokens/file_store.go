package tokens

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps the pair in a single file written with tmp, fsync and
// rename so readers never see a partial write.
type FileStore struct {
	path string
	opts *options
	mu   sync.RWMutex
}

// NewFileStore creates a FileStore persisting to path.
func NewFileStore(path string, opts ...Option) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("[NewFileStore] path is required")
	}
	o, err := newOptions("token_file_store", opts)
	if err != nil {
		return nil, errors.Wrap(err, "[NewFileStore]")
	}
	return &FileStore{path: path, opts: o}, nil
}

func (s *FileStore) Save(ctx context.Context, pair Pair) error {
	if err := ctx.Err(); err != nil {
		return storageErr("save", err)
	}
	data, err := s.opts.encode(pair)
	if err != nil {
		return storageErr("save", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return storageErr("save", errors.Wrap(err, "create directory"))
	}
	if err := s.writeAtomic(data); err != nil {
		return storageErr("save", err)
	}
	s.opts.logger.Debug().Str("path", s.path).Msg("tokens saved")
	return nil
}

func (s *FileStore) Load(ctx context.Context) (*Pair, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("load", err)
	}
	s.mu.RLock()
	data, err := os.ReadFile(s.path)
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, storageErr("load", errors.Wrap(err, "read"))
	}
	pair, err := s.opts.decode(data)
	if err != nil {
		return nil, storageErr("load", err)
	}
	return pair, nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return storageErr("clear", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return storageErr("clear", err)
	}
	s.opts.logger.Debug().Str("path", s.path).Msg("tokens cleared")
	return nil
}

// Path returns the file the pair is stored in.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return errors.Wrap(err, "write temp file")
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return errors.Wrap(err, "fsync temp file")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "rename temp file")
	}
	return nil
}
