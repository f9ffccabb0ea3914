package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/dtioctl/internal/printer"
	"github.com/dyluth/dtioctl/internal/registry"
	"github.com/dyluth/dtioctl/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchRedisURL     string
	watchDeployment   string
	watchOutputFormat string
	watchTimeout      time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [RUN_ID]",
	Short: "Follow runs as they are prepared and finish",
	Long: `Follow run activity recorded in the run registry.

Without RUN_ID, streams every run event for the deployment until interrupted.
With RUN_ID, waits for that run to finish, prints it, and exits non-zero if
the scenario did not succeed.

Output Formats:
  default - Human-readable output with timestamps and emojis
  json    - Line-delimited JSON for programmatic processing

Examples:
  dtioctl watch --redis-url redis://localhost:6379
  dtioctl watch --output=json > events.jsonl
  dtioctl watch 3f2b9c1e --timeout 30m`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchRedisURL, "redis-url", os.Getenv("DTIO_REDIS_URL"), "Run registry Redis URL")
	watchCmd.Flags().StringVarP(&watchDeployment, "name", "n", "", "Deployment name (defaults to the declaration's name)")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", time.Hour, "Give up waiting for RUN_ID after this long")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var outputFormat watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		outputFormat = watch.OutputFormatDefault
	case "json":
		outputFormat = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	if watchRedisURL == "" {
		return printer.Error(
			"no run registry configured",
			"Run events are read from the Redis run registry.",
			[]string{"Pass --redis-url redis://host:6379", "Set DTIO_REDIS_URL"},
		)
	}

	deployment := watchDeployment
	if deployment == "" {
		d, err := loadDeployment()
		if err != nil {
			return err
		}
		deployment = d.Name
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := registry.NewClientFromURL(watchRedisURL, deployment)
	if err != nil {
		return printer.Error("invalid Redis URL", err.Error(), []string{"Use the form redis://host:6379/0"})
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		return printer.ErrorWithContext(
			"run registry not reachable",
			err.Error(),
			map[string]string{"Redis URL": watchRedisURL},
			nil,
		)
	}

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		return watch.StreamRuns(ctx, client, outputFormat, out)
	}

	run, err := findRun(ctx, client, args[0])
	if err != nil {
		return err
	}

	finished, err := watch.PollForRun(ctx, client, run.ID, watchTimeout)
	if err != nil {
		return printer.ErrorWithContext(
			"run did not finish",
			err.Error(),
			map[string]string{"Run ID": run.ID},
			nil,
		)
	}

	if outputFormat == watch.OutputFormatJSON {
		if err := watch.FormatJSON(out, finished); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, watch.FormatEvent(finished))
	}

	if finished.Status != registry.StatusSucceeded {
		return printer.ErrorWithContext(
			"run did not succeed",
			fmt.Sprintf("Run finished with status %s.", finished.Status),
			map[string]string{"Run ID": finished.ID},
			nil,
		)
	}
	return nil
}
