package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/dataset"
	"github.com/kozaktomas/facecam/internal/engine"
)

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "List and manage people in the dataset",
	Long:  `List every person in the dataset with the number of stored samples. Use subcommands to delete people.`,
	RunE:  runPeopleList,
}

var peopleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List people in the dataset",
	RunE:  runPeopleList,
}

var peopleDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a person and retrain the model",
	Long: `Delete a person's samples, addressed by display name or directory, and
retrain the model on the remaining people. Deleting the last person removes
the model.

Example:
  facecam people delete "Иван"
  facecam people delete Ivan --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runPeopleDelete,
}

func init() {
	rootCmd.AddCommand(peopleCmd)
	peopleCmd.AddCommand(peopleListCmd)
	peopleCmd.AddCommand(peopleDeleteCmd)

	peopleCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	peopleDeleteCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

func runPeopleList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	store, err := dataset.Open(config.Load().Paths.DatasetDir)
	if err != nil {
		return fmt.Errorf("opening dataset: %w", err)
	}
	people, err := store.Subjects()
	if err != nil {
		return fmt.Errorf("listing people: %w", err)
	}

	if jsonOutput {
		if people == nil {
			people = []dataset.Subject{}
		}
		return outputJSON(people)
	}

	if len(people) == 0 {
		fmt.Println("No people found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDIRECTORY\tIMAGES")
	fmt.Fprintln(w, "----\t---------\t------")
	total := 0
	for _, p := range people {
		fmt.Fprintf(w, "%s\t%s\t%d\n", p.Name, p.Key, p.ImageCount)
		total += p.ImageCount
	}
	w.Flush()

	fmt.Printf("\nTotal: %d people, %d images\n", len(people), total)
	return nil
}

func runPeopleDelete(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	skipConfirm := mustGetBool(cmd, "yes")
	ctx := context.Background()

	rt, cleanup, err := engine.Bootstrap(ctx, config.Load())
	if err != nil {
		return err
	}
	defer cleanup()

	if !skipConfirm {
		fmt.Printf("Delete %q and all its samples? [y/N]: ", args[0])
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	d, err := rt.DeletePerson(ctx, args[0])
	if err != nil {
		return fmt.Errorf("deleting %s: %w", args[0], err)
	}

	if jsonOutput {
		return outputJSON(d)
	}

	fmt.Printf("Deleted %s (%s).\n", d.Name, d.Key)
	switch {
	case d.Retrained:
		fmt.Println("Model retrained on the remaining people.")
	case d.Message != "":
		fmt.Printf("Model not retrained: %s\n", d.Message)
	}
	return nil
}
