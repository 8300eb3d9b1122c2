package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect the trained model",
}

var modelInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the trained model and its thresholds",
	RunE:  runModelInfo,
}

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelInfoCmd)

	modelInfoCmd.Flags().Bool("json", false, "Output as JSON")
}

func runModelInfo(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	rt, cleanup, err := openTrained(context.Background())
	if err != nil {
		return err
	}
	defer cleanup()

	info := rt.ModelInfo()
	if jsonOutput {
		return outputJSON(info)
	}

	fmt.Printf("Status:            %s\n", info.Status)
	fmt.Printf("Confidence cutoff: %.1f\n", info.Threshold)
	fmt.Printf("Unknown cutoff:    %.1f\n", info.UnknownThreshold)
	if !info.Trained {
		return nil
	}
	fmt.Printf("Image size:        %dx%d\n", info.ImageSize[0], info.ImageSize[1])
	if info.TrainingDate != nil {
		fmt.Printf("Trained:           %s\n", info.TrainingDate.Local().Format(time.DateTime))
	}
	fmt.Printf("People (%d):        %s\n", info.Count, strings.Join(info.Names, ", "))
	return nil
}
