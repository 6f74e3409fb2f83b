// internal/db/sql_store.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS documents (
	key        TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

const postgresSchema = `CREATE TABLE IF NOT EXISTS documents (
	key        TEXT PRIMARY KEY,
	body       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

type dialect struct {
	name   string
	schema string
	get    string
	put    string
	// swap updates key only while body still equals the old value;
	// create inserts only when key is absent.
	swap   string
	create string
}

var (
	sqliteDialect = dialect{
		name:   "sqlite3",
		schema: sqliteSchema,
		get:    `SELECT body FROM documents WHERE key = ?`,
		put: `INSERT INTO documents (key, body, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		swap:   `UPDATE documents SET body = ?, updated_at = ? WHERE key = ? AND body = ?`,
		create: `INSERT INTO documents (key, body, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO NOTHING`,
	}
	postgresDialect = dialect{
		name:   "postgres",
		schema: postgresSchema,
		get:    `SELECT body FROM documents WHERE key = $1`,
		put: `INSERT INTO documents (key, body, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		// jsonb equality ignores formatting, so old may be the text Get returned
		swap:   `UPDATE documents SET body = $1, updated_at = $2 WHERE key = $3 AND body = $4::jsonb`,
		create: `INSERT INTO documents (key, body, updated_at) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`,
	}
)

// SQLStore keeps documents as rows of a single documents table. The same
// layout serves SQLite and Postgres; only placeholders and column types differ.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

// NewSQLiteStore opens (creating if needed) the SQLite database at path.
func NewSQLiteStore(path string) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	conn, err := sql.Open(sqliteDialect.name, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time keeps SQLite from returning SQLITE_BUSY
	conn.SetMaxOpenConns(1)
	return newSQLStore(conn, sqliteDialect)
}

// NewPostgresStore connects using a postgres:// URL.
func NewPostgresStore(url string) (*SQLStore, error) {
	conn, err := sql.Open(postgresDialect.name, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return newSQLStore(conn, postgresDialect)
}

func newSQLStore(conn *sql.DB, d dialect) (*SQLStore, error) {
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}
	if _, err := conn.Exec(d.schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate %s: %w", d.name, err)
	}
	log.Info().Str("driver", d.name).Msg("connected to document database")
	return &SQLStore{db: conn, d: d}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, s.d.get, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (s *SQLStore) Put(ctx context.Context, key string, doc []byte) error {
	_, err := s.db.ExecContext(ctx, s.d.put, key, string(doc), time.Now().UTC())
	return err
}

func (s *SQLStore) Swap(ctx context.Context, key string, old, doc []byte) (bool, error) {
	var (
		res sql.Result
		err error
	)
	now := time.Now().UTC()
	if old == nil {
		res, err = s.db.ExecContext(ctx, s.d.create, key, string(doc), now)
	} else {
		res, err = s.db.ExecContext(ctx, s.d.swap, string(doc), now, key, string(old))
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
