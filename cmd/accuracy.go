package cmd

import (
	"context"
	"fmt"
	"maps"
	"math/rand/v2"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facecam/internal/constants"
)

var accuracyCmd = &cobra.Command{
	Use:   "accuracy",
	Short: "Test the model against stored samples",
	Long: `Draw random stored samples of every person and check whether the trained
model recognizes them as that person.

The samples were used for training, so the result is an upper bound of the
live accuracy. A fixed --seed makes the draw repeatable.

Examples:
  facecam accuracy
  facecam accuracy --per-person 20 --seed 42`,
	RunE: runAccuracy,
}

func init() {
	rootCmd.AddCommand(accuracyCmd)

	accuracyCmd.Flags().Int("per-person", constants.DefaultTestImagesPerPerson, "Samples tested per person")
	accuracyCmd.Flags().Uint64("seed", 0, "Random seed (0 draws a fresh one)")
	accuracyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runAccuracy(cmd *cobra.Command, args []string) error {
	perPerson := mustGetInt(cmd, "per-person")
	seed := mustGetUint64(cmd, "seed")
	jsonOutput := mustGetBool(cmd, "json")

	if perPerson <= 0 {
		return fmt.Errorf("--per-person must be positive, got %d", perPerson)
	}

	rt, cleanup, err := openTrained(context.Background())
	if err != nil {
		return err
	}
	defer cleanup()

	var rng *rand.Rand
	if seed != 0 {
		rng = rand.New(rand.NewPCG(seed, seed))
	}

	report, err := rt.Accuracy(perPerson, rng)
	if err != nil {
		return fmt.Errorf("accuracy test: %w", err)
	}

	if jsonOutput {
		return outputJSON(report)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PERSON\tCORRECT\tTOTAL\tACCURACY")
	fmt.Fprintln(w, "------\t-------\t-----\t--------")
	for _, key := range slices.Sorted(maps.Keys(report.PerPerson)) {
		p := report.PerPerson[key]
		fmt.Fprintf(w, "%s\t%d\t%d\t%.1f%%\n", p.Name, p.Correct, p.Total, p.Accuracy*100)
	}
	w.Flush()

	fmt.Printf("\nOverall: %d/%d correct (%.1f%%)\n",
		report.CorrectPredictions, report.TotalTests, report.OverallAccuracy*100)
	return nil
}
