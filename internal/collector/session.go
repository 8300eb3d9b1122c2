// Package collector implements the process-wide collection session that
// turns verified face detections into numbered samples of one subject.
package collector

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/facecam/internal/dataset"
)

// ErrNotCollecting is returned by Record while the session is idle.
var ErrNotCollecting = errors.New("collection is not active")

// Saver writes one normalized face sample to path.
type Saver func(path string) error

// Snapshot is a copy of the session state.
type Snapshot struct {
	Active    bool      `json:"is_collecting"`
	ID        string    `json:"session_id,omitempty"`
	Name      string    `json:"current_person"`
	Key       string    `json:"directory,omitempty"`
	Count     int       `json:"collected_count"`
	Max       int       `json:"max_images"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

// Session is Idle or Collecting(subject, count). The zero count of a new
// activation is independent of samples already on disk: numbering continues
// after the highest existing sample so earlier files are never overwritten.
type Session struct {
	store *dataset.Store
	max   int

	mu        sync.Mutex
	active    bool
	id        uuid.UUID
	subject   dataset.Subject
	count     int
	offset    int
	startedAt time.Time
}

// New creates an idle session writing into store, stopping after maxImages samples.
func New(store *dataset.Store, maxImages int) *Session {
	return &Session{store: store, max: maxImages}
}

// Start switches to Collecting(name, 0), replacing any running activation.
func (s *Session) Start(name string) (Snapshot, error) {
	subject, err := s.store.Ensure(name)
	if err != nil {
		return Snapshot{}, err
	}
	offset, err := s.store.LastSampleIndex(subject.Key)
	if err != nil {
		return Snapshot{}, fmt.Errorf("scanning existing samples: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = true
	s.id = uuid.New()
	s.subject = subject
	s.count = 0
	s.offset = offset
	s.startedAt = time.Now()

	slog.Info("collection started", "session", s.id, "name", subject.Name, "directory", subject.Key, "existing", offset)
	return s.snapshotLocked(), nil
}

// Stop switches to Idle. The collected count stays readable until the next Start.
func (s *Session) Stop() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		slog.Info("collection stopped", "session", s.id, "name", s.subject.Name, "collected", s.count)
	}
	s.active = false
	return s.snapshotLocked()
}

// Active reports whether a collection is running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Record persists one sample through save. The write that reaches the cap
// switches the session to Idle. A failed write does not advance the count.
func (s *Session) Record(save Saver) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || s.count >= s.max {
		return s.snapshotLocked(), ErrNotCollecting
	}

	path := s.store.SamplePath(s.subject.Key, s.offset+s.count+1)
	if err := save(path); err != nil {
		return s.snapshotLocked(), fmt.Errorf("saving sample %s: %w", path, err)
	}
	s.count++

	if s.count >= s.max {
		s.active = false
		slog.Info("collection complete", "session", s.id, "name", s.subject.Name, "collected", s.count)
	}
	return s.snapshotLocked(), nil
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Active:    s.active,
		Name:      s.subject.Name,
		Key:       s.subject.Key,
		Count:     s.count,
		Max:       s.max,
		StartedAt: s.startedAt,
	}
	if s.id != uuid.Nil {
		snap.ID = s.id.String()
	}
	return snap
}
