package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteKV keeps entries in a single kv table. It backs the timeline cache,
// where snapshots can grow past what a keyring entry holds.
type SQLiteKV struct{ sql *sql.DB }

func OpenSQLite(path string) (*SQLiteKV, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: ":memory:" databases are per-connection.
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &SQLiteKV{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *SQLiteKV) Close() error { return d.sql.Close() }

func (d *SQLiteKV) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS kv (
	  key TEXT PRIMARY KEY,
	  value BLOB NOT NULL,
	  updated_at INTEGER NOT NULL
	);
	`)
	return err
}

func (d *SQLiteKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=?`, key)
	var v []byte
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

func (d *SQLiteKV) Set(ctx context.Context, key string, val []byte) error {
	if val == nil {
		val = []byte{}
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO kv(key, value, updated_at) VALUES(?,?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, val, time.Now().Unix())
	return err
}

func (d *SQLiteKV) Delete(ctx context.Context, key string) error {
	_, err := d.sql.ExecContext(ctx, `DELETE FROM kv WHERE key=?`, key)
	return err
}
