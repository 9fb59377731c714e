package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// CreateChapter inserts a chapter.
func (db *DB) CreateChapter(ctx context.Context, ch *models.Chapter) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO chapters (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, ch.ID, ch.Title, ch.CreatedAt, ch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: insert chapter: %w", err)
	}
	return nil
}

// GetChapter returns a chapter by id.
func (db *DB) GetChapter(ctx context.Context, id string) (*models.Chapter, error) {
	var ch models.Chapter
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at FROM chapters WHERE id = ?
	`, id).Scan(&ch.ID, &ch.Title, &ch.CreatedAt, &ch.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get chapter: %w", err)
	}
	return &ch, nil
}

// ListChapters returns every chapter, newest first.
func (db *DB) ListChapters(ctx context.Context) ([]models.Chapter, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, created_at, updated_at FROM chapters ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list chapters: %w", err)
	}
	defer rows.Close()

	out := []models.Chapter{}
	for rows.Next() {
		var ch models.Chapter
		if err := rows.Scan(&ch.ID, &ch.Title, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// DeleteChapter removes a chapter; its notes and their references cascade.
func (db *DB) DeleteChapter(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM chapters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete chapter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// CreateNote inserts a note.
func (db *DB) CreateNote(ctx context.Context, n *models.Note) error {
	blob, err := marshalElaboration(n.Elaboration)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO notes (id, chapter_id, kind, title, body, image_url, caption, elaboration, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.ChapterID, n.Kind, n.Title, n.Body, n.ImageURL, n.Caption, blob, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: insert note: %w", err)
	}
	return nil
}

// GetNote returns a note by id together with its ordered references.
// A corrupt elaboration blob is surfaced as a nil Elaboration, never as
// an error: the caller treats it as a cache miss and regenerates.
func (db *DB) GetNote(ctx context.Context, id string) (*models.Note, error) {
	var (
		n    models.Note
		blob sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, chapter_id, kind, title, body, image_url, caption, elaboration, created_at, updated_at
		FROM notes WHERE id = ?
	`, id).Scan(&n.ID, &n.ChapterID, &n.Kind, &n.Title, &n.Body, &n.ImageURL, &n.Caption, &blob, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get note: %w", err)
	}
	if blob.Valid && blob.String != "" {
		var rec models.ElaborationRecord
		if jsonErr := json.Unmarshal([]byte(blob.String), &rec); jsonErr == nil {
			n.Elaboration = &rec
		}
	}
	return &n, nil
}

// ListNotes returns the notes of a chapter ordered by creation time.
func (db *DB) ListNotes(ctx context.Context, chapterID string) ([]models.Note, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, chapter_id, kind, title, body, image_url, caption, created_at, updated_at
		FROM notes WHERE chapter_id = ? ORDER BY created_at ASC
	`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("store: list notes: %w", err)
	}
	defer rows.Close()

	out := []models.Note{}
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.ChapterID, &n.Kind, &n.Title, &n.Body, &n.ImageURL, &n.Caption, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpdateNote overwrites title and body and bumps updated_at.
func (db *DB) UpdateNote(ctx context.Context, id, title, body string, now time.Time) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE notes SET title = ?, body = ?, updated_at = ? WHERE id = ?
	`, title, body, now, id)
	if err != nil {
		return fmt.Errorf("store: update note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteNote removes a note; its references cascade.
func (db *DB) DeleteNote(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// References returns the stored references of a note in rank order.
func (db *DB) References(ctx context.Context, noteID string) ([]models.Reference, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT rank, title, url, snippet FROM note_references
		WHERE note_id = ? ORDER BY rank ASC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("store: references: %w", err)
	}
	defer rows.Close()

	out := []models.Reference{}
	for rows.Next() {
		var r models.Reference
		if err := rows.Scan(&r.Rank, &r.Title, &r.URL, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveElaboration replaces a note's references (delete-all, insert-new)
// and overwrites its elaboration blob in one transaction, bumping
// updated_at so the TTL gate measures from this write.
func (db *DB) SaveElaboration(ctx context.Context, noteID string, rec *models.ElaborationRecord, refs []models.Reference, now time.Time) error {
	blob, err := marshalElaboration(rec)
	if err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.ExecContext(ctx, `
		UPDATE notes SET elaboration = ?, updated_at = ? WHERE id = ?
	`, blob, now, noteID)
	if err != nil {
		return fmt.Errorf("store: update elaboration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM note_references WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("store: clear references: %w", err)
	}
	if len(refs) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO note_references (note_id, rank, title, url, snippet) VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("store: prepare reference insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range refs {
			if _, err := stmt.ExecContext(ctx, noteID, r.Rank, r.Title, r.URL, r.Snippet); err != nil {
				return fmt.Errorf("store: insert reference: %w", err)
			}
		}
	}

	return tx.Commit()
}

func marshalElaboration(rec *models.ElaborationRecord) (sql.NullString, error) {
	if rec == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("store: marshal elaboration: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
