package tokens

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

const kvSchema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLiteStore keeps the pair as one row of a key/value table.
type SQLiteStore struct {
	db   *sql.DB
	opts *options
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("[OpenSQLiteStore] path is required")
	}
	o, err := newOptions("token_sqlite_store", opts)
	if err != nil {
		return nil, errors.Wrap(err, "[OpenSQLiteStore]")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, storageErr("open", errors.Wrap(err, "create directory"))
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storageErr("open", err)
	}
	// One connection serialises writers and readers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, kvSchema); err != nil {
		_ = db.Close()
		return nil, storageErr("open", errors.Wrap(err, "create schema"))
	}
	return &SQLiteStore{db: db, opts: o}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, pair Pair) error {
	data, err := s.opts.encode(pair)
	if err != nil {
		return storageErr("save", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("save", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		StorageKey, data, s.opts.nowTime().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	if err != nil {
		_ = tx.Rollback()
		return storageErr("save", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("save", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*Pair, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, StorageKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("load", err)
	}
	pair, err := s.opts.decode(data)
	if err != nil {
		return nil, storageErr("load", err)
	}
	return pair, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, StorageKey); err != nil {
		return storageErr("clear", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
