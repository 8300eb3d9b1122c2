package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/engine"
	"github.com/kozaktomas/facecam/internal/model"
)

// outputJSON writes data to stdout as indented JSON.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// openTrained bootstraps a runtime and loads the persisted model. A model
// that cannot be loaded is not an error here: the runtime stays untrained and
// the operations report that themselves.
func openTrained(ctx context.Context) (*engine.Runtime, func(), error) {
	rt, cleanup, err := engine.Bootstrap(ctx, config.Load())
	if err != nil {
		return nil, nil, err
	}
	if err := rt.LoadModel(); err != nil && !errors.Is(err, model.ErrNoModel) {
		slog.Warn("model not loaded", "error", err)
	}
	return rt, cleanup, nil
}
