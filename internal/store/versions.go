package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Document is the current content of a slug.
type Document struct {
	Slug        string    `json:"slug"`
	Content     string    `json:"-"`
	LastVersion int       `json:"last_version"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SaveResult reports what SaveDocument changed.
type SaveResult struct {
	// Archived is the label the previous current content was archived
	// under, or "" when the slug had no current content.
	Archived string
	// Pruned is the number of old versions removed by the history limit.
	Pruned int
}

// SaveDocument archives the current content of slug as the next version
// number, overwrites current with content, and prunes history beyond
// maxHistory versions (0 keeps everything). All three steps share one
// transaction, and the archive row is written before current changes.
func (s *DB) SaveDocument(ctx context.Context, slug, content string, maxHistory int) (SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return SaveResult{}, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().UnixMilli()
	var (
		result  SaveResult
		current string
		last    int
	)
	err = tx.QueryRowContext(ctx,
		"SELECT content, last_version FROM documents WHERE slug = ?", slug).Scan(&current, &last)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO documents (slug, content, last_version, updated_at) VALUES (?, ?, 0, ?)",
			slug, content, now); err != nil {
			return SaveResult{}, fmt.Errorf("failed to create document %s: %w", slug, err)
		}
	case err != nil:
		return SaveResult{}, fmt.Errorf("failed to read document %s: %w", slug, err)
	default:
		next := last + 1
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO document_versions (slug, version, content, created_at) VALUES (?, ?, ?, ?)",
			slug, next, current, now); err != nil {
			return SaveResult{}, fmt.Errorf("failed to archive %s as %s: %w", slug, VersionLabel(next), err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE documents SET content = ?, last_version = ?, updated_at = ? WHERE slug = ?",
			content, next, now, slug); err != nil {
			return SaveResult{}, fmt.Errorf("failed to update document %s: %w", slug, err)
		}
		result.Archived = VersionLabel(next)

		if maxHistory > 0 {
			res, err := tx.ExecContext(ctx,
				"DELETE FROM document_versions WHERE slug = ? AND version <= ?", slug, next-maxHistory)
			if err != nil {
				return SaveResult{}, fmt.Errorf("failed to prune versions of %s: %w", slug, err)
			}
			n, _ := res.RowsAffected()
			result.Pruned = int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return SaveResult{}, fmt.Errorf("failed to commit document %s: %w", slug, err)
	}
	return result, nil
}

// Document returns the current content of slug, or ErrNotFound.
func (s *DB) Document(ctx context.Context, slug string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Document{}, ErrClosed
	}
	return readDocument(ctx, s.db, slug)
}

// rowQuerier is satisfied by *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func readDocument(ctx context.Context, q rowQuerier, slug string) (Document, error) {
	d := Document{Slug: slug}
	var updated int64
	err := q.QueryRowContext(ctx,
		"SELECT content, last_version, updated_at FROM documents WHERE slug = ?", slug).
		Scan(&d.Content, &d.LastVersion, &updated)
	if err == sql.ErrNoRows {
		return Document{}, fmt.Errorf("document %s: %w", slug, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to read document %s: %w", slug, err)
	}
	d.UpdatedAt = time.UnixMilli(updated).UTC()
	return d, nil
}

// Slugs returns every slug with current content, sorted.
func (s *DB) Slugs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, "SELECT slug FROM documents ORDER BY slug")
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	slugs := []string{}
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// Versions returns the history of slug newest first: current, then every
// archived version by descending number. A slug without current content
// has no history.
func (s *DB) Versions(ctx context.Context, slug string) ([]VersionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	// Current content and history come from one snapshot.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin read of %s: %w", slug, err)
	}
	defer func() { _ = tx.Rollback() }()

	doc, err := readDocument(ctx, tx, slug)
	if err != nil {
		return nil, err
	}

	infos := []VersionInfo{{Label: CurrentLabel, Size: len(doc.Content), CreatedAt: doc.UpdatedAt}}
	rows, err := tx.QueryContext(ctx,
		"SELECT version, length(content), created_at FROM document_versions WHERE slug = ? ORDER BY version DESC", slug)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions of %s: %w", slug, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			n, size int
			created int64
		)
		if err := rows.Scan(&n, &size, &created); err != nil {
			return nil, err
		}
		infos = append(infos, VersionInfo{
			Label:     VersionLabel(n),
			Number:    n,
			Size:      size,
			CreatedAt: time.UnixMilli(created).UTC(),
		})
	}
	return infos, rows.Err()
}

// VersionContent returns the content stored under label, which is either
// "current" or "v<N>".
func (s *DB) VersionContent(ctx context.Context, slug, label string) (string, error) {
	if label == CurrentLabel {
		doc, err := s.Document(ctx, slug)
		if err != nil {
			return "", err
		}
		return doc.Content, nil
	}

	n, ok := ParseVersionLabel(label)
	if !ok {
		return "", fmt.Errorf("version %q of %s: %w", label, slug, ErrNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrClosed
	}

	var content string
	err := s.db.QueryRowContext(ctx,
		"SELECT content FROM document_versions WHERE slug = ? AND version = ?", slug, n).Scan(&content)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("version %s of %s: %w", label, slug, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s of %s: %w", label, slug, err)
	}
	return content, nil
}

// ParseVersionLabel parses "v<N>" with N ≥ 1.
func ParseVersionLabel(label string) (int, bool) {
	rest, ok := strings.CutPrefix(label, versionPrefix)
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || strconv.Itoa(n) != rest {
		return 0, false
	}
	return n, true
}
