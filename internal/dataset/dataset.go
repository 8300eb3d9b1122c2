// Package dataset manages the on-disk training set: one directory per
// subject under a root, named by the subject's storage key, plus an index
// that maps storage keys back to display names.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/renameio"

	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/facematch"
)

const indexFile = "subjects.json"

var (
	// ErrEmptyName is returned for blank display names.
	ErrEmptyName = errors.New("name cannot be empty")
	// ErrSubjectNotFound is returned when no directory matches a subject.
	ErrSubjectNotFound = errors.New("subject not found")
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
}

// Subject is one person in the dataset.
type Subject struct {
	Name       string `json:"name"`
	Key        string `json:"directory"`
	ImageCount int    `json:"image_count"`
}

// Store is the dataset root. It is safe for concurrent use.
type Store struct {
	root string

	mu    sync.Mutex
	names map[string]string // storage key -> display name
}

// Open creates the root directory if needed and reads the name index.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating dataset root: %w", err)
	}

	s := &Store{root: root, names: map[string]string{}}
	data, err := os.ReadFile(filepath.Join(root, indexFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading subject index: %w", err)
	default:
		if err := json.Unmarshal(data, &s.names); err != nil {
			// Directories stay usable; names fall back to storage keys.
			slog.Warn("ignoring unreadable subject index", "path", filepath.Join(root, indexFile), "error", err)
			s.names = map[string]string{}
		}
	}
	return s, nil
}

// Root returns the dataset root directory.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory of a subject.
func (s *Store) Dir(key string) string {
	return filepath.Join(s.root, key)
}

// SamplePath returns the path of the n-th sample (1-based) of a subject.
func (s *Store) SamplePath(key string, n int) string {
	return filepath.Join(s.Dir(key), strconv.Itoa(n)+constants.SampleExtension)
}

// Ensure registers a display name and creates its directory.
// The same display name always maps to the same key. A different name whose
// transliteration collides with an existing key gets a numeric suffix.
func (s *Store) Ensure(displayName string) (Subject, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return Subject{}, ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.keyForNameLocked(name)
	if key == "" {
		// Unindexed directories are adopted by the first name that maps to them.
		key = facematch.UniqueKey(facematch.StorageKey(name), func(k string) bool {
			_, ok := s.names[k]
			return ok
		})
	}

	if err := os.MkdirAll(s.Dir(key), 0o755); err != nil {
		return Subject{}, fmt.Errorf("creating subject directory: %w", err)
	}
	if s.names[key] != name {
		s.names[key] = name
		if err := s.saveIndexLocked(); err != nil {
			return Subject{}, err
		}
	}

	count, err := countImages(s.Dir(key))
	if err != nil {
		return Subject{}, err
	}
	return Subject{Name: name, Key: key, ImageCount: count}, nil
}

func (s *Store) keyForNameLocked(name string) string {
	for _, key := range slices.Sorted(maps.Keys(s.names)) {
		if s.names[key] == name {
			return key
		}
	}
	return ""
}

func (s *Store) saveIndexLocked() error {
	data, err := json.MarshalIndent(s.names, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding subject index: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(s.root, indexFile), data, 0o644); err != nil {
		return fmt.Errorf("writing subject index: %w", err)
	}
	return nil
}

// DisplayName returns the display name of a key, or the key itself.
func (s *Store) DisplayName(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name, ok := s.names[key]; ok {
		return name
	}
	return key
}

// Names returns a copy of the key to display name index.
func (s *Store) Names() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.names)
}

// Keys returns every subject directory, sorted lexicographically.
func (s *Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading dataset root: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			keys = append(keys, e.Name())
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Subjects lists every subject with its image count, sorted by key.
func (s *Store) Subjects() ([]Subject, error) {
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}
	subjects := make([]Subject, 0, len(keys))
	for _, key := range keys {
		count, err := countImages(s.Dir(key))
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, Subject{Name: s.DisplayName(key), Key: key, ImageCount: count})
	}
	return subjects, nil
}

// NonEmptyKeys returns the sorted keys of subjects with at least one image file.
func (s *Store) NonEmptyKeys() ([]string, error) {
	subjects, err := s.Subjects()
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, sub := range subjects {
		if sub.ImageCount > 0 {
			keys = append(keys, sub.Key)
		}
	}
	return keys, nil
}

// TotalImages counts image files across all subjects.
func (s *Store) TotalImages() (int, error) {
	subjects, err := s.Subjects()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, sub := range subjects {
		total += sub.ImageCount
	}
	return total, nil
}

// Images returns the image files of a subject, sorted by name.
func (s *Store) Images(key string) ([]string, error) {
	entries, err := os.ReadDir(s.Dir(key))
	if err != nil {
		return nil, fmt.Errorf("reading subject %s: %w", key, err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && IsImageFile(e.Name()) {
			paths = append(paths, filepath.Join(s.Dir(key), e.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// LastSampleIndex returns the highest numeric sample name in a subject's
// directory, 0 when there is none.
func (s *Store) LastSampleIndex(key string) (int, error) {
	images, err := s.Images(key)
	if err != nil {
		return 0, err
	}
	last := 0
	for _, path := range images {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if n, err := strconv.Atoi(stem); err == nil && n > last {
			last = n
		}
	}
	return last, nil
}

// Resolve finds the key of a subject given either its key or its display name.
func (s *Store) Resolve(nameOrKey string) (string, error) {
	nameOrKey = strings.TrimSpace(nameOrKey)
	if nameOrKey == "" {
		return "", ErrEmptyName
	}

	candidates := []string{nameOrKey}
	s.mu.Lock()
	if key := s.keyForNameLocked(nameOrKey); key != "" {
		candidates = append(candidates, key)
	}
	s.mu.Unlock()
	candidates = append(candidates, facematch.StorageKey(nameOrKey))

	for _, key := range candidates {
		if filepath.Base(key) != key || key == "." || key == ".." {
			continue
		}
		if info, err := os.Stat(s.Dir(key)); err == nil && info.IsDir() {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSubjectNotFound, nameOrKey)
}

// Delete removes a subject's directory and its index entry.
func (s *Store) Delete(nameOrKey string) (string, error) {
	key, err := s.Resolve(nameOrKey)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.Dir(key)); err != nil {
		return "", fmt.Errorf("deleting subject %s: %w", key, err)
	}
	if _, ok := s.names[key]; ok {
		delete(s.names, key)
		if err := s.saveIndexLocked(); err != nil {
			return "", err
		}
	}
	return key, nil
}

// IsImageFile reports whether a file name has a supported image extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

func countImages(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", dir, err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && IsImageFile(e.Name()) {
			n++
		}
	}
	return n, nil
}
