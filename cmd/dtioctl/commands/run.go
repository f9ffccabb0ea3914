package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dyluth/dtioctl/internal/deploy"
	dockerpkg "github.com/dyluth/dtioctl/internal/docker"
	"github.com/dyluth/dtioctl/internal/launcher"
	"github.com/dyluth/dtioctl/internal/printer"
	"github.com/dyluth/dtioctl/internal/registry"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	runRedisURL string
	runTimeout  time.Duration
	runQuiet    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Publish the runtime documents and launch the test scenario",
	Long: `Publish the runtime documents, then launch the scenario command with the
activating environment and report its exit status.

The scenario runs locally unless scenario.image is set, in which case it runs
in a Docker container with test_dir, shared_dir and the library roots mounted.

With --redis-url (or DTIO_REDIS_URL) the run and its outcome are recorded in
the run registry for 'dtioctl history'.

Examples:
  dtioctl run
  dtioctl run --set command="dtio_simple_write_posix {test_dir}/big.bin" --timeout 10m
  dtioctl run --set image=dtio/runtime:latest --redis-url redis://localhost:6379`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runRedisURL, "redis-url", os.Getenv("DTIO_REDIS_URL"), "Record the run in this Redis registry")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Kill the scenario after this long (0 = no limit)")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Do not echo the scenario's output")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	_, result, err := prepare(ctx)
	if err != nil {
		return err
	}

	l, kind, cleanup, err := newLauncher(ctx, result)
	if err != nil {
		return err
	}
	defer cleanup()

	var reg *registry.Client
	if runRedisURL != "" {
		reg, err = registry.NewClientFromURL(runRedisURL, result.Deployment)
		if err != nil {
			return printer.Error("invalid Redis URL", err.Error(), []string{"Use the form redis://host:6379/0"})
		}
		defer reg.Close()

		if err := reg.RecordPrepared(ctx, registry.NewRun(result, kind)); err != nil {
			// The registry is advisory; the run itself can still proceed
			log.Printf("[WARN] Failed to record run %s: %v", result.RunID, err)
			reg = nil
		}
	}

	launchCtx := ctx
	if kind == "docker" && runTimeout > 0 {
		var cancel context.CancelFunc
		launchCtx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	printer.Step("Running %v (%s)\n", result.Args, kind)
	outcome, launchErr := l.Launch(launchCtx, launcher.SpecFromResult(result))

	if reg != nil {
		recordOutcome(ctx, reg, result.RunID, outcome, launchErr)
	}

	if launchErr != nil {
		return printer.ErrorWithContext(
			"scenario could not be run",
			launchErr.Error(),
			map[string]string{"Run ID": result.RunID, "Command": fmt.Sprint(result.Args)},
			nil,
		)
	}

	if !runQuiet {
		fmt.Fprint(cmd.OutOrStdout(), outcome.Stdout)
		fmt.Fprint(cmd.ErrOrStderr(), outcome.Stderr)
	}
	if outcome.Truncated {
		printer.Warning("Scenario output exceeded 10MB and was truncated\n")
	}

	if !outcome.Succeeded() {
		return printer.ErrorWithContext(
			"scenario failed",
			fmt.Sprintf("The scenario exited with code %d.", outcome.ExitCode),
			map[string]string{"Run ID": result.RunID, "Config": result.ConfigPath},
			nil,
		)
	}

	printer.Success("Scenario succeeded in %s (run %s)\n", outcome.Duration.Round(time.Millisecond), result.RunID)
	return nil
}

// newLauncher picks the Docker launcher when the scenario names an image
func newLauncher(ctx context.Context, result *deploy.Result) (launcher.Launcher, string, func(), error) {
	if result.Image == "" {
		l := launcher.NewExecLauncher(afero.NewOsFs())
		l.Timeout = runTimeout
		return l, "exec", func() {}, nil
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return nil, "", nil, printer.Error(
			"Docker is not available",
			err.Error(),
			[]string{"Start Docker", "Unset scenario.image to run the scenario locally"},
		)
	}

	return launcher.NewDockerLauncher(cli, afero.NewOsFs()), "docker", func() { cli.Close() }, nil
}

func recordOutcome(ctx context.Context, reg *registry.Client, runID string, outcome *launcher.Outcome, launchErr error) {
	o := registry.Outcome{FinishedAt: time.Now()}
	switch {
	case launchErr != nil:
		o.Status = registry.StatusError
		o.Error = launchErr.Error()
	case outcome.Succeeded():
		o.Status = registry.StatusSucceeded
	default:
		o.Status = registry.StatusFailed
	}
	if outcome != nil {
		o.ExitCode = outcome.ExitCode
		o.Duration = outcome.Duration
	}

	if _, err := reg.RecordOutcome(ctx, runID, o); err != nil {
		log.Printf("[WARN] Failed to record outcome of run %s: %v", runID, err)
	}
}
