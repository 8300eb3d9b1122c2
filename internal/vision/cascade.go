package vision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/renameio"
	"gocv.io/x/gocv"

	"github.com/kozaktomas/facecam/internal/config"
)

// ErrCascadeUnavailable is returned when no cascade file could be loaded.
var ErrCascadeUnavailable = errors.New("cascade unavailable")

const (
	maxCascadeSize      = 10 << 20
	downloadAttempts    = 3
	downloadInitialWait = 500 * time.Millisecond
)

// CascadeLoader finds cascade files in the OpenCV data directory, then in the
// local cascade directory, and finally downloads them into the local directory.
type CascadeLoader struct {
	Dirs   config.CascadeDirs
	Client *http.Client
}

// NewCascadeLoader creates a loader with a bounded HTTP client.
func NewCascadeLoader(dirs config.CascadeDirs) *CascadeLoader {
	return &CascadeLoader{
		Dirs:   dirs,
		Client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Load returns a usable cascade for src. The returned interface is nil on error.
func (l *CascadeLoader) Load(ctx context.Context, src config.CascadeSource) (Cascade, error) {
	var candidates []string
	if l.Dirs.OpenCVDir != "" {
		candidates = append(candidates, filepath.Join(l.Dirs.OpenCVDir, src.File))
	}
	local := filepath.Join(l.Dirs.Dir, src.File)
	candidates = append(candidates, local)

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if c, ok := loadCascadeFile(path); ok {
			slog.Info("cascade loaded", "path", path)
			return c, nil
		}
		slog.Warn("cascade file is not usable", "path", path)
	}

	if !l.Dirs.Download || src.URL == "" {
		return nil, fmt.Errorf("%w: %s not found", ErrCascadeUnavailable, src.File)
	}

	slog.Info("downloading cascade", "url", src.URL, "path", local)
	if err := l.download(ctx, src.URL, local); err != nil {
		return nil, fmt.Errorf("%w: downloading %s: %w", ErrCascadeUnavailable, src.File, err)
	}
	c, ok := loadCascadeFile(local)
	if !ok {
		_ = os.Remove(local)
		return nil, fmt.Errorf("%w: downloaded %s is not a valid cascade", ErrCascadeUnavailable, src.File)
	}
	slog.Info("cascade loaded", "path", local)
	return c, nil
}

func loadCascadeFile(path string) (Cascade, bool) {
	c := gocv.NewCascadeClassifier()
	if !c.Load(path) {
		_ = c.Close()
		return nil, false
	}
	return &c, true
}

func (l *CascadeLoader) download(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating cascade directory: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = downloadInitialWait
	policy := backoff.WithContext(backoff.WithMaxRetries(b, downloadAttempts-1), ctx)

	var data []byte
	err := backoff.Retry(func() error {
		var err error
		data, err = l.fetch(ctx, url)
		return err
	}, policy)
	if err != nil {
		return err
	}
	return renameio.WriteFile(dest, data, 0o644)
}

func (l *CascadeLoader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCascadeSize))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty response")
	}
	return data, nil
}
