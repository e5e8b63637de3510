package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SaveRun persists a finalized run record. A record is written once;
// saving the same ID twice is an error.
func (s *DB) SaveRun(ctx context.Context, r RunRecord) error {
	refs := r.ChunkRefs
	if refs == nil {
		refs = []ChunkRef{}
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("failed to encode chunk refs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, question, retrieval_method, page_slug, status, error_code, error_message, warning,
			chunk_refs, num_chunks, embed_ms, retrieve_ms, rerank_ms, generate_ms,
			answer_preview, saved, version_label, created_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Question, r.RetrievalMethod, r.PageSlug, r.Status, r.ErrorCode, r.ErrorMessage, r.Warning,
		string(refsJSON), len(refs),
		nullFloat(r.Timings.EmbedMS), nullFloat(r.Timings.RetrieveMS),
		nullFloat(r.Timings.RerankMS), nullFloat(r.Timings.GenerateMS),
		r.AnswerPreview, r.Saved, r.VersionLabel,
		r.CreatedAt.UTC().UnixMilli(), r.FinishedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.ID, err)
	}
	return nil
}

const runColumns = `id, question, retrieval_method, page_slug, status, error_code, error_message, warning,
	chunk_refs, embed_ms, retrieve_ms, rerank_ms, generate_ms,
	answer_preview, saved, version_label, created_at, finished_at`

func scanRun(scan func(dest ...any) error) (RunRecord, error) {
	var (
		r                            RunRecord
		refs                         string
		embed, retrieve, rerank, gen sql.NullFloat64
		created, finished            int64
	)
	err := scan(&r.ID, &r.Question, &r.RetrievalMethod, &r.PageSlug, &r.Status, &r.ErrorCode,
		&r.ErrorMessage, &r.Warning, &refs, &embed, &retrieve, &rerank, &gen,
		&r.AnswerPreview, &r.Saved, &r.VersionLabel, &created, &finished)
	if err != nil {
		return RunRecord{}, err
	}
	if err := json.Unmarshal([]byte(refs), &r.ChunkRefs); err != nil {
		return RunRecord{}, fmt.Errorf("run %s has corrupt chunk refs: %w", r.ID, err)
	}
	r.Timings = StageTimings{
		EmbedMS:    floatPtr(embed),
		RetrieveMS: floatPtr(retrieve),
		RerankMS:   floatPtr(rerank),
		GenerateMS: floatPtr(gen),
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	r.FinishedAt = time.UnixMilli(finished).UTC()
	return r, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *DB) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit < 1 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CountRuns returns the number of stored runs.
func (s *DB) CountRuns(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return n, nil
}

// Run returns the run with id, or ErrNotFound.
func (s *DB) Run(ctx context.Context, id string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return RunRecord{}, ErrClosed
	}

	r, err := scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id).Scan)
	if err == sql.ErrNoRows {
		return RunRecord{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to read run %s: %w", id, err)
	}
	return r, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
