// Package testutil provides shared test helpers for setting up databases
// and fixture notes.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SeedChapter inserts a chapter and returns it.
func SeedChapter(t *testing.T, db *store.DB, title string) *models.Chapter {
	t.Helper()
	now := time.Now().UTC()
	ch := &models.Chapter{ID: uuid.NewString(), Title: title, CreatedAt: now, UpdatedAt: now}
	if err := db.CreateChapter(context.Background(), ch); err != nil {
		t.Fatal(err)
	}
	return ch
}

// SeedNote inserts a text note in the given chapter and returns it.
func SeedNote(t *testing.T, db *store.DB, chapterID, body string) *models.Note {
	t.Helper()
	now := time.Now().UTC()
	n := &models.Note{
		ID:        uuid.NewString(),
		ChapterID: chapterID,
		Kind:      models.NoteKindText,
		Title:     "Fixture",
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.CreateNote(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	return n
}
