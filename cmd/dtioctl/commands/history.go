package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dyluth/dtioctl/internal/filter"
	"github.com/dyluth/dtioctl/internal/history"
	"github.com/dyluth/dtioctl/internal/printer"
	"github.com/dyluth/dtioctl/internal/registry"
	"github.com/dyluth/dtioctl/internal/resolver"
	"github.com/dyluth/dtioctl/internal/timespec"
	"github.com/spf13/cobra"
)

var (
	historyRedisURL   string
	historyDeployment string
	historyOutput     string
	historySince      string
	historyUntil      string
	historyStatus     string
	historyProgram    string
	historyMechanism  string
)

var historyCmd = &cobra.Command{
	Use:   "history [RUN_ID]",
	Short: "Show recorded runs from the run registry",
	Long: `Show runs recorded by 'dtioctl run --redis-url'.

List Mode (no RUN_ID):
  Displays runs as a table or JSONL stream, oldest first.

Get Mode (with RUN_ID):
  Displays one run as pretty-printed JSON. Prefixes of at least 6 characters are accepted.

Time Filters (list mode only):
  --since  - Show runs created at or after this time
  --until  - Show runs created at or before this time
  Accepts durations ("2h", "7d"), dates ("2025-10-29") and RFC3339.

Run Filters (list mode only, ANDed):
  --status     - prepared, succeeded, failed or error
  --program    - Glob on the scenario program name (e.g. "dtio_simple_*")
  --mechanism  - Runs that intercepted with this mechanism

Examples:
  dtioctl history --since=1d
  dtioctl history --status=failed --mechanism=hdf5
  dtioctl history --output=jsonl | jq 'select(.status=="failed") | .id'
  dtioctl history 3f2b9c1e`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyRedisURL, "redis-url", os.Getenv("DTIO_REDIS_URL"), "Run registry Redis URL")
	historyCmd.Flags().StringVarP(&historyDeployment, "name", "n", "", "Deployment name (defaults to the declaration's name)")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "default", "Output format: default or jsonl (ignored in get mode)")
	historyCmd.Flags().StringVar(&historySince, "since", "", "Show runs after time (duration, date or RFC3339)")
	historyCmd.Flags().StringVar(&historyUntil, "until", "", "Show runs before time (duration, date or RFC3339)")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Only show runs with this status")
	historyCmd.Flags().StringVar(&historyProgram, "program", "", "Only show runs whose program matches this glob")
	historyCmd.Flags().StringVar(&historyMechanism, "mechanism", "", "Only show runs intercepted with this mechanism")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	now := time.Now()

	if historyOutput != "default" && historyOutput != "jsonl" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", historyOutput),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	if historyRedisURL == "" {
		return printer.Error(
			"no run registry configured",
			"History is read from the Redis run registry.",
			[]string{"Pass --redis-url redis://host:6379", "Set DTIO_REDIS_URL"},
		)
	}

	rng, err := timespec.ParseRange(historySince, historyUntil, now)
	if err != nil {
		return printer.Error("invalid time range", err.Error(), nil)
	}

	criteria := &filter.Criteria{
		Status:      registry.Status(historyStatus),
		ProgramGlob: historyProgram,
		Mechanism:   historyMechanism,
	}
	if err := criteria.Validate(); err != nil {
		return printer.Error("invalid filter", err.Error(), nil)
	}

	deployment := historyDeployment
	if deployment == "" {
		d, err := loadDeployment()
		if err != nil {
			return err
		}
		deployment = d.Name
	}

	client, err := registry.NewClientFromURL(historyRedisURL, deployment)
	if err != nil {
		return printer.Error("invalid Redis URL", err.Error(), []string{"Use the form redis://host:6379/0"})
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		return printer.ErrorWithContext(
			"run registry not reachable",
			err.Error(),
			map[string]string{"Redis URL": historyRedisURL},
			nil,
		)
	}

	if len(args) == 1 {
		run, err := findRun(ctx, client, args[0])
		if err != nil {
			return err
		}
		return history.FormatSingleJSON(out, run)
	}

	runs, err := client.ListRuns(ctx, rng.Since, rng.Until)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	runs = criteria.Apply(runs)

	if historyOutput == "jsonl" {
		return history.FormatJSONL(out, runs)
	}
	history.FormatTable(out, runs, deployment, now)
	return nil
}

// findRun resolves a full run ID or a unique prefix of one
func findRun(ctx context.Context, client *registry.Client, id string) (*registry.Run, error) {
	fullID, err := resolver.ResolveRunID(ctx, client, id)
	if err != nil {
		var ambiguous *resolver.AmbiguousError
		switch {
		case resolver.IsNotFoundError(err):
			return nil, printer.Error("run not found", fmt.Sprintf("No run with ID or prefix '%s'.", id), nil)
		case errors.As(err, &ambiguous):
			return nil, printer.ErrorWithContext(
				"ambiguous run ID",
				fmt.Sprintf("'%s' matches %d runs.", id, len(ambiguous.Matches)),
				map[string]string{"Matches": ambiguous.FormatMatches()},
				[]string{"Use a longer prefix"},
			)
		}
		return nil, printer.Error("invalid run ID", err.Error(), nil)
	}

	return client.GetRun(ctx, fullID)
}
