// Package notes stores the annotations recorded against form entries when a
// notification is handed to SendGrid.
package notes

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type is the outcome a note reports.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
)

// ErrNoEntry is returned when a note has no entry id.
var ErrNoEntry = errors.New("note must reference an entry")

// Note is one annotation on an entry.
type Note struct {
	ID        string    `json:"id"`
	EntryID   string    `json:"entry_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Source    string    `json:"source"`
	Type      Type      `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// Recorder persists entry notes.
type Recorder interface {
	Add(ctx context.Context, note Note) (Note, error)
	List(ctx context.Context, entryID string) ([]Note, error)
}

// prepare fills the id and timestamp of a new note.
func prepare(note Note) (Note, error) {
	if note.EntryID == "" {
		return note, ErrNoEntry
	}
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	return note, nil
}

// Memory keeps notes in process memory.
type Memory struct {
	mu    sync.RWMutex
	notes map[string][]Note
}

// NewMemory creates an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{notes: make(map[string][]Note)}
}

// Add implements Recorder.
func (m *Memory) Add(_ context.Context, note Note) (Note, error) {
	note, err := prepare(note)
	if err != nil {
		return note, err
	}

	m.mu.Lock()
	m.notes[note.EntryID] = append(m.notes[note.EntryID], note)
	m.mu.Unlock()

	return note, nil
}

// List implements Recorder. Notes are returned oldest first.
func (m *Memory) List(_ context.Context, entryID string) ([]Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Note, len(m.notes[entryID]))
	copy(out, m.notes[entryID])
	return out, nil
}
