package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"syscall"

	"github.com/rs/zerolog/log"
)

const (
	DefaultDirPermissions  = 0o755
	DefaultFilePermissions = 0o644
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// FileStore keeps each document as <dir>/<key>.json.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dir, err)
	}
	log.Debug().Str("dir", dir).Msg("file store ready")
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("invalid document key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// lock holds an exclusive flock on <dir>/.<key>.lock while fn runs, so
// writers in other processes sharing the directory take turns.
func (s *FileStore) lock(key string, fn func() error) error {
	f, err := os.OpenFile(filepath.Join(s.dir, "."+key+".lock"), os.O_CREATE|os.O_RDWR, DefaultFilePermissions)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return fn()
}

// Put replaces the document atomically; readers never see a partial write.
func (s *FileStore) Put(ctx context.Context, key string, doc []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	return s.lock(key, func() error { return s.replace(key, p, doc) })
}

func (s *FileStore) Swap(ctx context.Context, key string, old, doc []byte) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	swapped := false
	err = s.lock(key, func() error {
		current, err := os.ReadFile(p)
		switch {
		case errors.Is(err, os.ErrNotExist):
			if old != nil {
				return nil
			}
		case err != nil:
			return err
		case old == nil || !bytes.Equal(current, old):
			return nil
		}
		if err := s.replace(key, p, doc); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	return swapped, err
}

// replace writes to a temp file in the same directory and renames it over
// the target.
func (s *FileStore) replace(key, p string, doc []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+key+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, DefaultFilePermissions); err != nil {
		return err
	}
	return os.Rename(tmpName, p)
}

func (s *FileStore) Close() error { return nil }
