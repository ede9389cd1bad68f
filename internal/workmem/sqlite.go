package workmem

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLiteBackend stores records in a SQLite database so sessions survive
// process restarts.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) workmem.db under dataDir with WAL mode
// and runs migrations.
func NewSQLiteBackend(dataDir string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("workmem: create data dir: %w", err)
	}

	db, err := openDB("sqlite", filepath.Join(dataDir, "workmem.db"))
	if err != nil {
		return nil, fmt.Errorf("workmem: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("workmem: pragma %q: %w", p, err)
		}
	}

	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("workmem: migration: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS working_memory (
			session_id TEXT PRIMARY KEY,
			state      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_working_memory_updated ON working_memory(updated_at);
	`
	_, err := b.db.Exec(schema)
	return err
}

func (b *SQLiteBackend) Load(ctx context.Context, sessionID string) (Record, bool, error) {
	var (
		state   string
		updated int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT state, updated_at FROM working_memory WHERE session_id = ?`, sessionID,
	).Scan(&state, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}

	rec := Record{SessionID: sessionID, UpdatedAt: time.Unix(0, updated)}
	if err := json.Unmarshal([]byte(state), &rec.Values); err != nil {
		return Record{}, false, fmt.Errorf("decode state: %w", err)
	}
	return rec, true, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec.Values)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO working_memory (session_id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		rec.SessionID, string(data), rec.UpdatedAt.UnixNano(),
	)
	return err
}

func (b *SQLiteBackend) Delete(ctx context.Context, sessionID string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM working_memory WHERE session_id = ?`, sessionID)
	return err
}

func (b *SQLiteBackend) SweepBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM working_memory WHERE updated_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close closes the underlying database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
