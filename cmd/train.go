package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/engine"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the face recognizer from the dataset",
	Long: `Train the face recognizer from every subject directory in the dataset.

Subjects are labeled in lexicographic order of their directory names, so
repeated trainings over the same data produce the same labels. The previous
model is replaced only when training succeeds.

Examples:
  facecam train
  facecam train --json`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// TrainResult is the JSON output of the train command.
type TrainResult struct {
	Success    bool     `json:"success"`
	People     []string `json:"people"`
	Images     int      `json:"images"`
	DurationMs int64    `json:"duration_ms"`
}

func runTrain(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()
	cfg := config.Load()

	rt, cleanup, err := engine.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if jsonOutput {
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Loading samples"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("images"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(done)
	}

	started := time.Now()
	meta, err := rt.Train(ctx, progress)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	status := rt.Status()
	result := TrainResult{
		Success:    true,
		People:     meta.DisplayNames(),
		Images:     status.TotalDataCount,
		DurationMs: time.Since(started).Milliseconds(),
	}
	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Printf("Model trained on %d images of %d people in %s\n",
		result.Images, len(result.People), time.Since(started).Round(time.Millisecond))
	for _, name := range result.People {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}
