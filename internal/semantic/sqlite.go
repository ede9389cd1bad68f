package semantic

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLiteVectors is a VectorBackend on a local SQLite database. Embeddings are
// stored as JSON arrays and ranked in Go, which is fast enough for the few
// thousand chunks of a single workstation's projects.
type SQLiteVectors struct {
	db     *sql.DB
	closed atomic.Bool
}

// NewSQLiteVectors opens (or creates) vectors.db under dataDir.
func NewSQLiteVectors(dataDir string) (*SQLiteVectors, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("semantic: create data dir: %w", err)
	}

	db, err := openDB("sqlite", filepath.Join(dataDir, "vectors.db"))
	if err != nil {
		return nil, fmt.Errorf("semantic: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("semantic: pragma %q: %w", p, err)
		}
	}

	v := &SQLiteVectors{db: db}
	if err := v.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("semantic: migration: %w", err)
	}
	return v, nil
}

func (v *SQLiteVectors) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chunks (
			id          TEXT PRIMARY KEY,
			project     TEXT NOT NULL,
			path        TEXT NOT NULL,
			source      TEXT NOT NULL,
			title       TEXT,
			language    TEXT,
			chunk_index INTEGER NOT NULL,
			content     TEXT NOT NULL,
			embedding   TEXT NOT NULL,
			indexed_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_project ON chunks(project, source);
	`
	_, err := v.db.Exec(schema)
	return err
}

func (v *SQLiteVectors) Ready() bool { return v != nil && v.db != nil && !v.closed.Load() }

func (v *SQLiteVectors) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("semantic: begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, project, path, source, title, language, chunk_index, content, embedding, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			language = excluded.language,
			chunk_index = excluded.chunk_index,
			content = excluded.content,
			embedding = excluded.embedding,
			indexed_at = excluded.indexed_at`)
	if err != nil {
		return fmt.Errorf("semantic: prepare upsert: %w", err)
	}
	defer stmt.Close()

	ts := now().UnixNano()
	for _, p := range points {
		vec, err := json.Marshal(p.Vector)
		if err != nil {
			return fmt.Errorf("semantic: encode vector %s: %w", p.ID, err)
		}
		pl := p.Payload
		if _, err := stmt.ExecContext(ctx, p.ID, pl.Project, pl.Path, string(pl.Source),
			pl.Title, pl.Language, pl.Chunk, pl.Text, string(vec), ts); err != nil {
			return fmt.Errorf("semantic: upsert %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// existingBatch bounds the number of bound parameters per query.
const existingBatch = 500

func (v *SQLiteVectors) Existing(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for start := 0; start < len(ids); start += existingBatch {
		end := min(start+existingBatch, len(ids))
		batch := ids[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		q := `SELECT id FROM chunks WHERE id IN (` + placeholders(len(batch)) + `)`
		rows, err := v.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("semantic: existing: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("semantic: existing scan: %w", err)
			}
			out[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

func (v *SQLiteVectors) Query(ctx context.Context, q VectorQuery) ([]ScoredPoint, error) {
	sqlq := `SELECT id, project, path, source, title, language, chunk_index, content, embedding FROM chunks WHERE 1=1`
	var args []any
	if q.Project != "" {
		sqlq += ` AND project = ?`
		args = append(args, q.Project)
	}
	if q.Source != "" {
		sqlq += ` AND source = ?`
		args = append(args, string(q.Source))
	}

	rows, err := v.db.QueryContext(ctx, sqlq, args...)
	if err != nil {
		return nil, fmt.Errorf("semantic: query: %w", err)
	}
	defer rows.Close()

	var results []ScoredPoint
	for rows.Next() {
		var (
			sp          ScoredPoint
			src         string
			title, lang sql.NullString
			embJSON     string
		)
		if err := rows.Scan(&sp.ID, &sp.Payload.Project, &sp.Payload.Path, &src, &title, &lang,
			&sp.Payload.Chunk, &sp.Payload.Text, &embJSON); err != nil {
			return nil, fmt.Errorf("semantic: query scan: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			continue
		}
		score, err := CosineSimilarity(q.Vector, vec)
		if err != nil {
			// Vectors from a different embedder; not comparable.
			continue
		}
		if score < 0 {
			score = 0
		}
		if score < q.ScoreThreshold {
			continue
		}
		sp.Score = score
		sp.Payload.Source = Source(src)
		sp.Payload.Title = title.String
		sp.Payload.Language = lang.String
		results = append(results, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("semantic: query rows: %w", err)
	}

	sortScored(results)
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// sortScored orders by score descending, then path, then chunk index.
func sortScored(points []ScoredPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		a, b := points[i], points[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Payload.Path != b.Payload.Path {
			return a.Payload.Path < b.Payload.Path
		}
		return a.Payload.Chunk < b.Payload.Chunk
	})
}

func (v *SQLiteVectors) Prune(ctx context.Context, project string, sources []Source, keep map[string]bool) (int, error) {
	if len(sources) == 0 {
		return 0, nil
	}
	args := []any{project}
	for _, s := range sources {
		args = append(args, string(s))
	}
	rows, err := v.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE project = ? AND source IN (`+placeholders(len(sources))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("semantic: prune scan: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("semantic: prune scan: %w", err)
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if len(stale) == 0 {
		return 0, nil
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("semantic: begin prune: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("semantic: prune %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("semantic: commit prune: %w", err)
	}
	return len(stale), nil
}

func (v *SQLiteVectors) Projects(ctx context.Context) ([]ProjectInfo, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT project, COUNT(DISTINCT path), COUNT(*), MAX(indexed_at)
		FROM chunks GROUP BY project ORDER BY project`)
	if err != nil {
		return nil, fmt.Errorf("semantic: projects: %w", err)
	}
	defer rows.Close()

	var out []ProjectInfo
	for rows.Next() {
		var (
			p  ProjectInfo
			ts int64
		)
		if err := rows.Scan(&p.Path, &p.Files, &p.Chunks, &ts); err != nil {
			return nil, fmt.Errorf("semantic: projects scan: %w", err)
		}
		p.IndexedAt = time.Unix(0, ts)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (v *SQLiteVectors) Close() error {
	if v.closed.Swap(true) {
		return nil
	}
	return v.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
