package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Recognize faces on a still image",
	Long: `Detect and recognize faces on an image file with the trained model.

Examples:
  facecam recognize group.jpg
  facecam recognize group.jpg --output annotated.jpg
  facecam recognize group.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().StringP("output", "o", "", "Write the annotated image (JPEG) to this path")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	output := mustGetString(cmd, "output")
	jsonOutput := mustGetBool(cmd, "json")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	rt, cleanup, err := openTrained(context.Background())
	if err != nil {
		return err
	}
	defer cleanup()

	rec, err := rt.RecognizeImage(data)
	if err != nil {
		return fmt.Errorf("recognizing %s: %w", args[0], err)
	}

	if output != "" {
		if err := os.WriteFile(output, rec.ProcessedImage, 0o644); err != nil {
			return fmt.Errorf("writing annotated image: %w", err)
		}
	}

	if jsonOutput {
		return outputJSON(rec)
	}

	fmt.Printf("Faces found: %d\n", rec.FacesFound)
	for i, r := range rec.Results {
		state := "not recognized"
		if r.Recognized {
			state = "recognized"
		}
		fmt.Printf("  %d. %-20s confidence %6.1f  %s  at %dx%d+%d+%d\n",
			i+1, r.Name, r.Confidence, state, r.BBox.W, r.BBox.H, r.BBox.X, r.BBox.Y)
	}
	if output != "" {
		fmt.Printf("Annotated image written to %s\n", output)
	}
	return nil
}
