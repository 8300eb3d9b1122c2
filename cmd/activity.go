package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facecam/internal/activity"
	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/database/postgres"
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show recent activity log entries",
	Long: `Show the most recent activity log entries, newest first.

Entries are read from PostgreSQL when DATABASE_URL is set and reachable,
otherwise from the JSON activity log file.

Examples:
  facecam activity
  facecam activity --limit 50 --json`,
	RunE: runActivity,
}

func init() {
	rootCmd.AddCommand(activityCmd)

	activityCmd.Flags().Int("limit", 20, "Maximum number of entries")
	activityCmd.Flags().Bool("json", false, "Output as JSON")
}

func runActivity(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")
	jsonOutput := mustGetBool(cmd, "json")
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", limit)
	}

	ctx := context.Background()
	reader, closeReader := openActivityReader(ctx, config.Load())
	defer closeReader()

	entries, err := reader.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("reading activity: %w", err)
	}

	if jsonOutput {
		if entries == nil {
			entries = []activity.Entry{}
		}
		return outputJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No activity recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tPERSON\tMODEL\tPEOPLE")
	fmt.Fprintln(w, "----\t-----\t------\t-----\t------")
	for _, e := range entries {
		person := e.CurrentPerson
		if person == "" {
			person = "-"
		}
		trained := "untrained"
		if e.ModelTrained {
			trained = "trained"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.Event, person, trained, strings.Join(e.PeopleNames, ", "))
	}
	return w.Flush()
}

// openActivityReader prefers the PostgreSQL log and falls back to the file log.
func openActivityReader(ctx context.Context, cfg *config.Config) (activity.Reader, func()) {
	fileLog := activity.NewFileLog(cfg.Activity.File)
	if cfg.Database.URL == "" {
		return fileLog, func() {}
	}
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		slog.Warn("PostgreSQL activity log unavailable, reading the file log", "error", err)
		return fileLog, func() {}
	}
	return postgres.NewActivityRepository(pool), func() {
		if err := pool.Close(); err != nil {
			slog.Warn("closing database", "error", err)
		}
	}
}
