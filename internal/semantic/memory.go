// Package semantic implements project-scoped retrieval for the kernel.
//
// A Memory walks a project read-only, chunks each file with a fixed token
// budget and overlap, embeds chunks keyed by content fingerprint, and serves
// similarity search over a VectorBackend. Retrieval is an optimization: every
// failure degrades to an empty result plus a logged warning.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/HendryAvila/sage/internal/config"
)

// ErrNotReady is returned by operations that need a working backend.
var ErrNotReady = errors.New("semantic: memory not ready")

const (
	defaultBatchSize = 32
	snippetMaxBytes  = 800
)

// Memory is the semantic memory of the kernel.
type Memory struct {
	cfg       config.SemanticMemory
	backend   VectorBackend
	embedder  Embedder
	chunker   Chunker
	logger    *zap.Logger
	batchSize int

	group singleflight.Group

	mu        sync.Mutex
	manifests map[string]indexMemo
}

// indexMemo remembers the last clean pass for a project and scope.
type indexMemo struct {
	manifest string
	chunks   int
}

// Option configures a Memory.
type Option func(*Memory)

// WithLogger sets the logger used for degradation warnings.
func WithLogger(l *zap.Logger) Option {
	return func(m *Memory) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithBatchSize sets how many chunks are embedded per request.
func WithBatchSize(n int) Option {
	return func(m *Memory) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// New creates a Memory. A nil backend or embedder yields a Memory that is
// not ready and answers every call with an empty result.
func New(cfg config.SemanticMemory, backend VectorBackend, embedder Embedder, opts ...Option) *Memory {
	m := &Memory{
		cfg:       cfg,
		backend:   backend,
		embedder:  embedder,
		chunker:   Chunker{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		logger:    zap.NewNop(),
		batchSize: defaultBatchSize,
		manifests: make(map[string]indexMemo),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Ready reports whether retrieval is available.
func (m *Memory) Ready() bool {
	return m != nil && m.cfg.Enabled && m.backend != nil && m.backend.Ready() && m.embedder != nil
}

// Close releases the vector backend.
func (m *Memory) Close() error {
	if m == nil || m.backend == nil {
		return nil
	}
	return m.backend.Close()
}

// ─── Indexing ────────────────────────────────────────────────────────────────

// EnsureIndexedProject brings the project's index up to date for scope.
// Chunks whose fingerprint is already stored are not embedded again, and
// concurrent calls for the same project and scope share one pass. The shared
// pass does not end when one caller's ctx does; that caller just stops
// waiting and gets a skipped report.
func (m *Memory) EnsureIndexedProject(ctx context.Context, projectPath string, scope Scope) IndexReport {
	if scope == "" {
		scope = ScopeAll
	}
	report := IndexReport{Project: projectPath, Scope: scope}
	if !m.Ready() {
		report.Skipped = true
		report.Warnings = append(report.Warnings, "semantic memory not ready; indexing skipped")
		if m != nil {
			m.logger.Warn("index skipped, semantic memory not ready", zap.String("project", projectPath))
		}
		return report
	}

	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return m.failIndex(report, fmt.Errorf("resolve project path: %w", err))
	}
	report.Project = abs
	info, err := os.Stat(abs)
	if err != nil {
		return m.failIndex(report, fmt.Errorf("stat project: %w", err))
	}
	if !info.IsDir() {
		return m.failIndex(report, fmt.Errorf("project path %s is not a directory", abs))
	}

	key := abs + "|" + string(scope)
	ch := m.group.DoChan(key, func() (any, error) {
		pctx, cancel := m.passContext(ctx)
		defer cancel()
		return m.index(pctx, abs, scope, key), nil
	})
	select {
	case res := <-ch:
		shared := res.Val.(IndexReport)
		shared.Warnings = append([]string(nil), shared.Warnings...)
		return shared
	case <-ctx.Done():
		return m.failIndex(report, fmt.Errorf("waiting for index pass: %w", ctx.Err()))
	}
}

// passContext detaches a shared pass from the caller that started it and
// bounds it by the configured index timeout.
func (m *Memory) passContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if m.cfg.IndexTimeout > 0 {
		return context.WithTimeout(ctx, m.cfg.IndexTimeout)
	}
	return context.WithCancel(ctx)
}

// space names the embedding space chunk ids belong to. Vectors from another
// embedder or dimensionality never satisfy an Existing check.
func (m *Memory) space() string {
	return fmt.Sprintf("%s/%d", m.embedder.Name(), m.embedder.Dimensions())
}

func (m *Memory) failIndex(report IndexReport, err error) IndexReport {
	m.logger.Warn("index failed", zap.String("project", report.Project), zap.Error(err))
	report.Skipped = true
	report.Warnings = append(report.Warnings, err.Error())
	return report
}

func (m *Memory) index(ctx context.Context, root string, scope Scope, key string) IndexReport {
	report := IndexReport{Project: root, Scope: scope}

	files, truncated, err := discover(root, scope, m.cfg.MaxFileBytes, m.cfg.MaxFiles)
	if err != nil {
		return m.failIndex(report, err)
	}
	report.Files = len(files)
	if truncated {
		report.Warnings = append(report.Warnings, fmt.Sprintf("file cap of %d reached; remaining files not indexed", m.cfg.MaxFiles))
	}

	manifest := manifestHash(files)
	m.mu.Lock()
	memo, seen := m.manifests[key]
	m.mu.Unlock()
	if seen && memo.manifest == manifest {
		report.Unchanged = true
		report.Chunks = memo.chunks
		return report
	}

	space := m.space()
	var (
		points []Point
		keep   = make(map[string]bool)
	)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return m.failIndex(report, err)
		}
		text, ok, err := readText(f.Path)
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("read %s: %v", f.Path, err))
			continue
		}
		if !ok {
			continue
		}
		for _, c := range m.chunker.Split(text) {
			id := Fingerprint(space, root, f.Path, c.Text)
			if keep[id] {
				continue
			}
			keep[id] = true
			points = append(points, Point{
				ID: id,
				Payload: Payload{
					Project:  root,
					Path:     f.Path,
					Source:   f.Source,
					Title:    titleFor(f.Path, f.Source, c.Text),
					Language: f.Language,
					Chunk:    c.Index,
					Text:     c.Text,
				},
			})
		}
	}
	report.Chunks = len(points)

	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}
	existing, err := m.backend.Existing(ctx, ids)
	if err != nil {
		return m.failIndex(report, err)
	}
	var fresh []Point
	for _, p := range points {
		if !existing[p.ID] {
			fresh = append(fresh, p)
		}
	}

	for start := 0; start < len(fresh); start += m.batchSize {
		end := min(start+m.batchSize, len(fresh))
		batch := fresh[start:end]
		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.Payload.Text
		}
		vecs, err := m.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return m.failIndex(report, fmt.Errorf("embed: %w", err))
		}
		if len(vecs) != len(batch) {
			return m.failIndex(report, fmt.Errorf("embed: got %d vectors for %d chunks", len(vecs), len(batch)))
		}
		for i := range batch {
			batch[i].Vector = vecs[i]
		}
		if err := m.backend.Upsert(ctx, batch); err != nil {
			return m.failIndex(report, err)
		}
		report.Embedded += len(batch)
	}

	pruned, err := m.backend.Prune(ctx, root, scope.sources(), keep)
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("prune: %v", err))
	}
	report.Pruned = pruned

	if len(report.Warnings) == 0 || (truncated && len(report.Warnings) == 1) {
		m.mu.Lock()
		m.manifests[key] = indexMemo{manifest: manifest, chunks: report.Chunks}
		m.mu.Unlock()
	}

	m.logger.Info("project indexed",
		zap.String("project", root),
		zap.String("scope", string(scope)),
		zap.Int("files", report.Files),
		zap.Int("chunks", report.Chunks),
		zap.Int("embedded", report.Embedded),
		zap.Int("pruned", report.Pruned),
	)
	return report
}

// ─── Search ──────────────────────────────────────────────────────────────────

// SearchProject returns hits ordered by score descending, ties broken by
// path then chunk index. Every hit scores at least the effective threshold.
func (m *Memory) SearchProject(ctx context.Context, query string, opts SearchOptions) []Hit {
	if !m.Ready() || strings.TrimSpace(query) == "" {
		return []Hit{}
	}

	if m.cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.SearchTimeout)
		defer cancel()
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = m.cfg.MaxResults
	}
	threshold := opts.ScoreThreshold
	switch {
	case threshold == 0:
		threshold = m.cfg.ScoreThreshold
	case threshold < 0:
		threshold = 0
	}
	project := opts.Project
	if project != "" {
		if abs, err := filepath.Abs(project); err == nil {
			project = abs
		}
	}

	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		m.logger.Warn("search degraded, embed failed", zap.Error(err))
		return []Hit{}
	}
	points, err := m.backend.Query(ctx, VectorQuery{
		Vector:         vec,
		Project:        project,
		Source:         opts.Source,
		ScoreThreshold: threshold,
		Limit:          limit,
	})
	if err != nil {
		m.logger.Warn("search degraded, vector query failed", zap.Error(err))
		return []Hit{}
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		if p.Score < threshold {
			continue
		}
		hits = append(hits, Hit{
			Source:    p.Payload.Source,
			PathOrURL: p.Payload.Path,
			Title:     p.Payload.Title,
			Language:  p.Payload.Language,
			Score:     p.Score,
			Snippet:   Truncate(p.Payload.Text, snippetMaxBytes),
			chunk:     p.Payload.Chunk,
		})
	}
	sortHits(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.PathOrURL != b.PathOrURL {
			return a.PathOrURL < b.PathOrURL
		}
		return a.chunk < b.chunk
	})
}

// Projects lists indexed projects.
func (m *Memory) Projects(ctx context.Context) ([]ProjectInfo, error) {
	if !m.Ready() {
		return nil, ErrNotReady
	}
	return m.backend.Projects(ctx)
}
