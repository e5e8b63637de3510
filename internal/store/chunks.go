package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// ReplaceSlug atomically swaps the chunk set of slug for chunks. Old rows and
// their full-text entries are deleted and the new rows inserted in one
// transaction, so readers see either the old set or the new one. The stored
// chunks are returned with their new row IDs, in index order.
//
// Chunk indexes must be 0..len(chunks)-1.
func (s *DB) ReplaceSlug(ctx context.Context, slug string, chunks []NewChunk) ([]Chunk, error) {
	for i, c := range chunks {
		if c.Index != i {
			return nil, fmt.Errorf("chunk indexes for %s must be contiguous from 0: position %d has index %d", slug, i, c.Index)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chunks_fts WHERE rowid IN (SELECT id FROM chunks WHERE slug = ?)", slug); err != nil {
		return nil, fmt.Errorf("failed to delete full-text rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE slug = ?", slug); err != nil {
		return nil, fmt.Errorf("failed to delete chunks: %w", err)
	}

	insertChunk, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (slug, chunk_index, path, content, tokens, embedding, dims, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer insertChunk.Close()

	insertFTS, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks_fts (rowid, tokens, slug, chunk_index) VALUES (?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare full-text insert: %w", err)
	}
	defer insertFTS.Close()

	now := time.Now().UTC()
	stored := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		tokens := strings.Join(Tokenize(c.Content), " ")
		res, err := insertChunk.ExecContext(ctx, slug, c.Index, c.Path, c.Content, tokens,
			encodeVector(c.Embedding), len(c.Embedding), now.UnixMilli())
		if err != nil {
			return nil, fmt.Errorf("failed to insert chunk %s#%d: %w", slug, c.Index, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk id: %w", err)
		}
		if _, err := insertFTS.ExecContext(ctx, id, tokens, slug, c.Index); err != nil {
			return nil, fmt.Errorf("failed to index chunk %s#%d: %w", slug, c.Index, err)
		}
		stored = append(stored, Chunk{
			ChunkRef:  ChunkRef{ID: id, Slug: slug, Index: c.Index},
			Path:      c.Path,
			Content:   c.Content,
			Tokens:    tokens,
			Embedding: c.Embedding,
			CreatedAt: now,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return stored, nil
}

const chunkColumns = "id, slug, chunk_index, path, content, tokens, embedding, created_at"

func scanChunk(scan func(dest ...any) error) (Chunk, error) {
	var (
		c       Chunk
		blob    []byte
		created int64
	)
	if err := scan(&c.ID, &c.Slug, &c.Index, &c.Path, &c.Content, &c.Tokens, &blob, &created); err != nil {
		return Chunk{}, err
	}
	c.Embedding = decodeVector(blob)
	c.CreatedAt = time.UnixMilli(created).UTC()
	return c, nil
}

// ChunksBySlug returns a slug's chunks in index order.
func (s *DB) ChunksBySlug(ctx context.Context, slug string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE slug = ? ORDER BY chunk_index", slug)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ChunksByIDs loads chunks by row ID. IDs that no longer exist are absent
// from the result.
func (s *DB) ChunksByIDs(ctx context.Context, ids []int64) (map[int64]Chunk, error) {
	result := make(map[int64]Chunk, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		result[c.ID] = c
	}
	return result, rows.Err()
}

// ForEachChunk calls fn for every stored chunk, ordered by slug and index.
// It is used to rebuild in-memory indexes at startup.
func (s *DB) ForEachChunk(ctx context.Context, fn func(Chunk) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+chunkColumns+" FROM chunks ORDER BY slug, chunk_index")
	if err != nil {
		return fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return fmt.Errorf("failed to scan chunk: %w", err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SlugStats describes the indexed state of one slug.
type SlugStats struct {
	Slug       string `json:"slug"`
	Chunks     int    `json:"chunks"`
	Dimensions int    `json:"dimensions"`
}

// ChunkStats returns the chunk count per indexed slug, ordered by slug.
func (s *DB) ChunkStats(ctx context.Context) ([]SlugStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT slug, COUNT(*), MAX(dims) FROM chunks GROUP BY slug ORDER BY slug")
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk stats: %w", err)
	}
	defer rows.Close()

	var stats []SlugStats
	for rows.Next() {
		var st SlugStats
		if err := rows.Scan(&st.Slug, &st.Chunks, &st.Dimensions); err != nil {
			return nil, fmt.Errorf("failed to scan chunk stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// CountChunks returns the number of chunks stored for slug, or for all
// slugs when slug is empty.
func (s *DB) CountChunks(ctx context.Context, slug string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	var n int
	var err error
	if slug == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE slug = ?", slug).Scan(&n)
	}
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// encodeVector stores float32 values little-endian.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
