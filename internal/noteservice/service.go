// Package noteservice coordinates chapter and note CRUD around the store,
// including caption enrichment for image notes.
package noteservice

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/store"
)

// PlaceholderCaption is stored when captioning fails or is unavailable.
// Caption failure never fails the note creation; the note simply keeps
// the placeholder.
const PlaceholderCaption = "Image note"

// Captioner generates a one-line caption for an image URL.
type Captioner interface {
	Caption(ctx context.Context, url string) (string, error)
}

// Service coordinates store operations for chapters and notes.
type Service struct {
	db        *store.DB
	captioner Captioner // nil disables caption enrichment
}

// NewService creates a note service. captioner may be nil.
func NewService(db *store.DB, captioner Captioner) *Service {
	return &Service{db: db, captioner: captioner}
}

// CreateChapter inserts a new chapter.
func (s *Service) CreateChapter(ctx context.Context, title string) (*models.Chapter, error) {
	if strings.TrimSpace(title) == "" {
		return nil, apperr.Validation("chapter title is required")
	}
	now := time.Now().UTC()
	ch := &models.Chapter{ID: uuid.NewString(), Title: title, CreatedAt: now, UpdatedAt: now}
	if err := s.db.CreateChapter(ctx, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// ListChapters returns every chapter.
func (s *Service) ListChapters(ctx context.Context) ([]models.Chapter, error) {
	return s.db.ListChapters(ctx)
}

// DeleteChapter removes a chapter and, by cascade, its notes.
func (s *Service) DeleteChapter(ctx context.Context, id string) error {
	return s.db.DeleteChapter(ctx, id)
}

// CreateNoteInput is the request to create a note.
type CreateNoteInput struct {
	ChapterID string
	Kind      string
	Title     string
	Body      string
	ImageURL  string
}

// CreateNote validates the input, inserts the note, and for image notes
// enriches it with a generated caption. A caption failure degrades to
// PlaceholderCaption and a warning log.
func (s *Service) CreateNote(ctx context.Context, in CreateNoteInput) (*models.Note, error) {
	if in.Kind == "" {
		in.Kind = models.NoteKindText
	}
	if in.Kind != models.NoteKindText && in.Kind != models.NoteKindImage {
		return nil, apperr.Validation("kind must be %q or %q", models.NoteKindText, models.NoteKindImage)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, apperr.Validation("note title is required")
	}
	if in.Kind == models.NoteKindText && strings.TrimSpace(in.Body) == "" {
		return nil, apperr.Validation("text notes require a body")
	}
	if in.Kind == models.NoteKindImage && strings.TrimSpace(in.ImageURL) == "" {
		return nil, apperr.Validation("image notes require an image_url")
	}
	if _, err := s.db.GetChapter(ctx, in.ChapterID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	n := &models.Note{
		ID:        uuid.NewString(),
		ChapterID: in.ChapterID,
		Kind:      in.Kind,
		Title:     in.Title,
		Body:      in.Body,
		ImageURL:  in.ImageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if n.Kind == models.NoteKindImage {
		n.Caption = s.caption(ctx, n.ImageURL)
	}
	if err := s.db.CreateNote(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// GetNote returns a note with its ordered references.
func (s *Service) GetNote(ctx context.Context, id string) (*models.Note, []models.Reference, error) {
	n, err := s.db.GetNote(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	refs, err := s.db.References(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return n, refs, nil
}

// ListNotes returns the notes of a chapter.
func (s *Service) ListNotes(ctx context.Context, chapterID string) ([]models.Note, error) {
	if _, err := s.db.GetChapter(ctx, chapterID); err != nil {
		return nil, err
	}
	return s.db.ListNotes(ctx, chapterID)
}

// UpdateNote overwrites title and body. The updated_at bump invalidates
// any cached elaboration whose hash no longer matches.
func (s *Service) UpdateNote(ctx context.Context, id, title, body string) (*models.Note, error) {
	if strings.TrimSpace(title) == "" {
		return nil, apperr.Validation("note title is required")
	}
	if err := s.db.UpdateNote(ctx, id, title, body, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.db.GetNote(ctx, id)
}

// DeleteNote removes a note and its references.
func (s *Service) DeleteNote(ctx context.Context, id string) error {
	return s.db.DeleteNote(ctx, id)
}

func (s *Service) caption(ctx context.Context, url string) string {
	if s.captioner == nil {
		return PlaceholderCaption
	}
	caption, err := s.captioner.Caption(ctx, url)
	if err != nil || strings.TrimSpace(caption) == "" {
		slog.Warn("image caption failed, using placeholder",
			slog.String("image_url", url),
			slog.Any("error", err))
		return PlaceholderCaption
	}
	return caption
}
