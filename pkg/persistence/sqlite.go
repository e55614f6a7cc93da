package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps all sessions in a single sessions table, one row per
// session, upserted on every save.
type SQLiteStore struct {
	db *sql.DB
}

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open database %s", path)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, errors.Wrap(err, "could not enable foreign keys")
	}
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, errors.Wrap(err, "could not set journal mode")
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, errors.Wrap(err, "could not set busy timeout")
	}

	if _, err := conn.Exec(sessionsSchema); err != nil {
		return nil, errors.Wrap(err, "could not create sessions table")
	}

	return &SQLiteStore{db: conn}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM sessions WHERE id = ?", sessionID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not load session %s", sessionID)
	}

	return payload, nil
}

func (s *SQLiteStore) Set(ctx context.Context, sessionID string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		sessionID, payload, time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrapf(err, "could not save session %s", sessionID)
	}

	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return errors.Wrapf(err, "could not delete session %s", sessionID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = &SQLiteStore{}
