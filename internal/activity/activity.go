// Package activity records snapshots of the system state whenever something
// notable happens (startup, collection, training, deletion, settings).
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/renameio"
	"github.com/google/uuid"
)

// Event names.
const (
	EventStartup             = "startup"
	EventCollectionStarted   = "collection_started"
	EventCollectionStopped   = "collection_stopped"
	EventCollectionCompleted = "collection_completed"
	EventModelTrained        = "model_trained"
	EventPersonDeleted       = "person_deleted"
	EventSettingsChanged     = "settings_changed"
)

// Entry is one activity record.
type Entry struct {
	ID                 uuid.UUID `json:"id"`
	Timestamp          time.Time `json:"timestamp"`
	Event              string    `json:"event"`
	IsCollecting       bool      `json:"is_collecting"`
	CollectedCount     int       `json:"collected_count"`
	CurrentPerson      string    `json:"current_person"`
	ModelTrained       bool      `json:"model_trained"`
	PeopleCount        int       `json:"people_count"`
	PeopleNames        []string  `json:"people_names"`
	FaceCascadeLoaded  bool      `json:"face_cascade_loaded"`
	EyeCascadeLoaded   bool      `json:"eye_cascade_loaded"`
	RequireEyesForFace bool      `json:"require_eyes_for_face"`
}

// Recorder stores activity entries.
type Recorder interface {
	Append(ctx context.Context, e Entry) error
	// Cleanup removes entries older than the cutoff and returns how many were removed.
	Cleanup(ctx context.Context, before time.Time) (int, error)
}

// Reader lists stored entries.
type Reader interface {
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// stamp fills in the id and timestamp when missing.
func stamp(e Entry) Entry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.PeopleNames == nil {
		e.PeopleNames = []string{}
	}
	return e
}

// FileLog keeps entries as one JSON array in a file.
type FileLog struct {
	path string
	mu   sync.Mutex
}

// NewFileLog creates a log writing to path. The file is created on first append.
func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

// Append adds an entry. An unreadable existing file is replaced by a new array.
func (l *FileLog) Append(_ context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readLocked()
	if err != nil {
		return err
	}
	return l.writeLocked(append(entries, stamp(e)))
}

// Entries returns every stored entry in append order.
func (l *FileLog) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked()
}

// Recent returns up to limit entries, newest first. A limit of zero or less
// returns every entry.
func (l *FileLog) Recent(_ context.Context, limit int) ([]Entry, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Cleanup drops entries older than before.
func (l *FileLog) Cleanup(_ context.Context, before time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readLocked()
	if err != nil || len(entries) == 0 {
		return 0, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Timestamp.After(before) {
			kept = append(kept, e)
		}
	}
	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, l.writeLocked(kept)
}

func (l *FileLog) readLocked() ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading activity log: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Warn("activity log is not a JSON array, starting over", "path", l.path, "error", err)
		return nil, nil
	}
	return entries, nil
}

func (l *FileLog) writeLocked(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding activity log: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating activity log directory: %w", err)
	}
	if err := renameio.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("writing activity log: %w", err)
	}
	return nil
}

// Multi fans entries out to several recorders. Every recorder is tried;
// failures are joined.
type Multi []Recorder

// Append appends to every recorder.
func (m Multi) Append(ctx context.Context, e Entry) error {
	e = stamp(e)
	var errs []error
	for _, r := range m {
		if err := r.Append(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Cleanup cleans every recorder and returns the largest removal count.
func (m Multi) Cleanup(ctx context.Context, before time.Time) (int, error) {
	var errs []error
	removed := 0
	for _, r := range m {
		n, err := r.Cleanup(ctx, before)
		if err != nil {
			errs = append(errs, err)
		}
		removed = max(removed, n)
	}
	return removed, errors.Join(errs...)
}

// Retention returns the cutoff for keeping entries newer than days.
func Retention(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}
