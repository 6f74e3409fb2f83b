package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Messages []string `json:"messages"`
}

func TestFileStore_ReadMissingWritesFallback(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	got, err := Read(context.Background(), s, "queue", doc{Messages: []string{}})
	require.NoError(t, err)
	assert.Empty(t, got.Messages)

	raw, err := os.ReadFile(filepath.Join(dir, "queue.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"messages":[]}`, string(raw))
}

func TestFileStore_WriteThenRead(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, Write(ctx, s, "queue", doc{Messages: []string{"a", "b"}}))
	got, err := Read(ctx, s, "queue", doc{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Messages)

	// no temp files left behind
	tmps, err := filepath.Glob(filepath.Join(s.Dir(), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, tmps)
}

func TestFileStore_CorruptDocument(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "queue.json"), []byte("{not json"), 0o644))

	_, err = Read(context.Background(), s, "queue", doc{})
	assert.Error(t, err)
}

func TestFileStore_RejectsPathKeys(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "../escape")
	assert.Error(t, err)
	assert.Error(t, s.Put(context.Background(), "a/b", []byte("{}")))
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "messaging.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, err = s.Get(ctx, "queue")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := Read(ctx, s, "queue", doc{Messages: []string{"seed"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"seed"}, got.Messages)

	require.NoError(t, Write(ctx, s, "queue", doc{Messages: []string{"x"}}))
	got, err = Read(ctx, s, "queue", doc{})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got.Messages)
}

func TestPostgresStore_Get(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	s := &SQLStore{db: conn, d: postgresDialect}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT body FROM documents WHERE key = $1`)).
		WithArgs("queue").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow([]byte(`{"messages":["a"]}`)))

	got, err := Read(context.Background(), s, "queue", doc{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Messages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MissingWritesFallback(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	s := &SQLStore{db: conn, d: postgresDialect}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT body FROM documents WHERE key = $1`)).
		WithArgs("queue").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))
	mock.ExpectExec(`INSERT INTO documents`).
		WithArgs("queue", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	got, err := Read(context.Background(), s, "queue", doc{Messages: []string{}})
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func testSwap(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	ok, err := s.Swap(ctx, "queue", []byte(`{"v":0}`), []byte(`{"v":1}`))
	require.NoError(t, err)
	assert.False(t, ok, "old given for a missing key")

	ok, err = s.Swap(ctx, "queue", nil, []byte(`{"v":1}`))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Swap(ctx, "queue", nil, []byte(`{"v":2}`))
	require.NoError(t, err)
	assert.False(t, ok, "key already exists")

	ok, err = s.Swap(ctx, "queue", []byte(`{"v":9}`), []byte(`{"v":2}`))
	require.NoError(t, err)
	assert.False(t, ok, "stale old")

	ok, err = s.Swap(ctx, "queue", []byte(`{"v":1}`), []byte(`{"v":2}`))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, "queue")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(got))
}

func TestFileStore_Swap(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	testSwap(t, s)
}

func TestSQLiteStore_Swap(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "messaging.db"))
	require.NoError(t, err)
	defer s.Close()
	testSwap(t, s)
}

func TestPostgresStore_SwapComparesBody(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	s := &SQLStore{db: conn, d: postgresDialect}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents SET body = $1, updated_at = $2 WHERE key = $3 AND body = $4::jsonb`)).
		WithArgs(`{"v":2}`, sqlmock.AnyArg(), "queue", `{"v":1}`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.Swap(context.Background(), "queue", []byte(`{"v":1}`), []byte(`{"v":2}`))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// interleavingStore lets another writer in just before each Swap.
type interleavingStore struct {
	Store
	before func()
}

func (s *interleavingStore) Swap(ctx context.Context, key string, old, doc []byte) (bool, error) {
	if s.before != nil {
		s.before()
	}
	return s.Store.Swap(ctx, key, old, doc)
}

func TestUpdate_RerunsOnConcurrentWrite(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, Write(ctx, fs, "queue", doc{Messages: []string{"a"}}))

	s := &interleavingStore{Store: fs}
	s.before = func() {
		s.before = nil
		require.NoError(t, Write(ctx, fs, "queue", doc{Messages: []string{"a", "other"}}))
	}

	calls := 0
	got, err := Update(ctx, s, "queue", func() doc { return doc{} }, func(d *doc) (bool, error) {
		calls++
		d.Messages = append(d.Messages, "mine")
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"a", "other", "mine"}, got.Messages)

	stored, err := Read(ctx, fs, "queue", doc{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "other", "mine"}, stored.Messages)
}

func TestUpdate_GivesUpAfterRepeatedConflicts(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	n := 0
	s := &interleavingStore{Store: fs, before: func() {
		n++
		require.NoError(t, Write(ctx, fs, "queue", doc{Messages: []string{string(rune('a' + n))}}))
	}}

	_, err = Update(ctx, s, "queue", func() doc { return doc{} }, func(d *doc) (bool, error) {
		d.Messages = append(d.Messages, "mine")
		return true, nil
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, MaxUpdateAttempts, n)
}

func TestUpdate_SkipsWriteWhenUnchanged(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	stop := errors.New("stop")

	_, err = Update(ctx, fs, "queue", func() doc { return doc{} }, func(d *doc) (bool, error) {
		return false, stop
	})
	assert.ErrorIs(t, err, stop)

	_, err = Update(ctx, fs, "queue", func() doc { return doc{} }, func(d *doc) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	_, err = fs.Get(ctx, "queue")
	assert.ErrorIs(t, err, ErrNotFound)
}
