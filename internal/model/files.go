package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

var (
	// ErrNoModel means no persisted model exists.
	ErrNoModel = errors.New("no trained model")
	// ErrCorrupt means persisted model files failed an integrity check.
	// Files reported with ErrCorrupt have already been deleted.
	ErrCorrupt = errors.New("corrupt model files")
)

// CorruptError describes why persisted model files were rejected.
type CorruptError struct {
	File   string
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}

// Is makes errors.Is(err, ErrCorrupt) match.
func (e *CorruptError) Is(target error) bool {
	return target == ErrCorrupt
}

// Files locates the two persisted model files.
type Files struct {
	Weights  string
	Metadata string
}

// Load checks both files and decodes the metadata.
//
// It returns ErrNoModel when either file is missing. When the weights are
// empty or malformed, the metadata is not valid JSON with every required
// key, or the weights digest recorded in the metadata does not match, both
// files are deleted and a *CorruptError is returned.
func (f Files) Load() (*Metadata, error) {
	for _, path := range []string{f.Weights, f.Metadata} {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, ErrNoModel
			}
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
	}

	if err := CheckFormat(f.Weights); err != nil {
		return nil, err
	}
	if _, err := ReadLayout(f.Weights); err != nil {
		return nil, f.corrupt(f.Weights, err.Error())
	}

	data, err := os.ReadFile(f.Metadata)
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	if len(data) == 0 {
		return nil, f.corrupt(f.Metadata, "empty file")
	}
	meta, err := decodeMetadata(data)
	if err != nil {
		return nil, f.corrupt(f.Metadata, err.Error())
	}
	if meta.WeightsSHA256 != "" {
		sum, err := fileDigest(f.Weights)
		if err != nil {
			return nil, fmt.Errorf("hashing weights: %w", err)
		}
		if sum != meta.WeightsSHA256 {
			return nil, f.corrupt(f.Weights, "weights do not match metadata")
		}
	}
	return meta, nil
}

func (f Files) corrupt(file, reason string) error {
	_ = f.Remove()
	return &CorruptError{File: file, Reason: reason}
}

// Exist reports whether the weights file is present.
func (f Files) Exist() bool {
	_, err := os.Stat(f.Weights)
	return err == nil
}

// Remove deletes both files, ignoring ones that do not exist.
func (f Files) Remove() error {
	var errs []error
	for _, path := range []string{f.Weights, f.Metadata} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Save persists a model. writeWeights receives a scratch path with the same
// extension as the final weights file. The weights are verified, then both
// files are replaced atomically, weights first and metadata last. The
// metadata records a digest of the weights, so a crash between the two
// replacements leaves a pair that Load rejects.
func (f Files) Save(meta *Metadata, writeWeights func(path string) error) error {
	if err := CheckFormat(f.Weights); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.Weights), 0o755); err != nil {
		return fmt.Errorf("creating model directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Metadata), 0o755); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}

	scratch := scratchPath(f.Weights)
	defer os.Remove(scratch)
	if err := writeWeights(scratch); err != nil {
		return fmt.Errorf("writing weights: %w", err)
	}
	if _, err := ReadLayout(scratch); err != nil {
		return fmt.Errorf("verifying weights: %w", err)
	}
	weights, err := os.ReadFile(scratch)
	if err != nil {
		return fmt.Errorf("reading weights: %w", err)
	}

	sum := sha256.Sum256(weights)
	meta.WeightsSHA256 = hex.EncodeToString(sum[:])
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	pendingWeights, err := pending(f.Weights, weights)
	if err != nil {
		return fmt.Errorf("writing weights: %w", err)
	}
	defer func() { _ = pendingWeights.Cleanup() }()
	pendingMeta, err := pending(f.Metadata, data)
	if err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	defer func() { _ = pendingMeta.Cleanup() }()

	if err := pendingWeights.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing weights: %w", err)
	}
	if err := pendingMeta.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing metadata: %w", err)
	}
	return nil
}

// pending writes data to a temporary file next to path.
func pending(path string, data []byte) (*renameio.PendingFile, error) {
	t, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return nil, err
	}
	if err := t.Chmod(0o644); err != nil {
		_ = t.Cleanup()
		return nil, err
	}
	if _, err := t.Write(data); err != nil {
		_ = t.Cleanup()
		return nil, err
	}
	return t, nil
}

// scratchPath keeps the extension so OpenCV picks the same storage format.
func scratchPath(path string) string {
	return filepath.Join(filepath.Dir(path), ".tmp-"+filepath.Base(path))
}

func fileDigest(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
