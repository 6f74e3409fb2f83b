// internal/db/store.go
package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by a backend when no document exists for a key.
var ErrNotFound = errors.New("document not found")

// ErrConflict means Update kept losing to concurrent writers.
var ErrConflict = errors.New("document changed concurrently")

// MaxUpdateAttempts bounds how often Update re-reads after a lost Swap.
const MaxUpdateAttempts = 10

// Store is durable key-addressed document storage. Writes replace the whole
// document. Put is unconditional; Swap only writes when the stored document
// still equals old, which is how writers in different processes avoid
// overwriting each other.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, doc []byte) error
	// Swap replaces the document under key with doc if it currently equals
	// old. A nil old means the key must not exist yet. It reports whether
	// the write happened.
	Swap(ctx context.Context, key string, old, doc []byte) (bool, error)
	Close() error
}

func encode[T any](key string, doc T) ([]byte, error) {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	return raw, nil
}

// load returns the stored bytes (nil when missing) and the decoded document.
func load[T any](ctx context.Context, s Store, key string, fallback T) ([]byte, T, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, fallback, nil
	}
	if err != nil {
		return nil, fallback, fmt.Errorf("read %s: %w", key, err)
	}
	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fallback, fmt.Errorf("decode %s: %w", key, err)
	}
	return raw, doc, nil
}

// Read decodes the document stored under key. A missing document is
// initialized to fallback, persisted, and returned.
func Read[T any](ctx context.Context, s Store, key string, fallback T) (T, error) {
	raw, doc, err := load(ctx, s, key, fallback)
	if err != nil || raw != nil {
		return doc, err
	}

	initial, err := encode(key, fallback)
	if err != nil {
		return fallback, err
	}
	ok, err := s.Swap(ctx, key, nil, initial)
	if err != nil {
		return fallback, fmt.Errorf("write %s: %w", key, err)
	}
	if ok {
		return fallback, nil
	}
	// someone else created it first
	_, doc, err = load(ctx, s, key, fallback)
	return doc, err
}

// Write serializes doc and replaces whatever is stored under key.
func Write[T any](ctx context.Context, s Store, key string, doc T) error {
	raw, err := encode(key, doc)
	if err != nil {
		return err
	}
	if err := s.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Update runs fn on the current document and writes the result with Swap.
// When another writer got there first, fn runs again on the fresh document,
// so it must not keep state between calls. fn returns false to skip the
// write. The document as last seen by fn is returned.
func Update[T any](ctx context.Context, s Store, key string, fallback func() T, fn func(doc *T) (bool, error)) (T, error) {
	for attempt := 0; attempt < MaxUpdateAttempts; attempt++ {
		old, doc, err := load(ctx, s, key, fallback())
		if err != nil {
			return doc, err
		}
		changed, err := fn(&doc)
		if err != nil || !changed {
			return doc, err
		}
		next, err := encode(key, doc)
		if err != nil {
			return doc, err
		}
		if old != nil && bytes.Equal(old, next) {
			return doc, nil
		}
		ok, err := s.Swap(ctx, key, old, next)
		if err != nil {
			return doc, fmt.Errorf("write %s: %w", key, err)
		}
		if ok {
			return doc, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("update %s: %w", key, ErrConflict)
}
