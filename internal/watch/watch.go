// Package watch follows runs in the registry as they change.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/dtioctl/internal/registry"
)

// OutputFormat selects how streamed run events are written
type OutputFormat string

const (
	OutputFormatDefault OutputFormat = "default"
	OutputFormatJSON    OutputFormat = "json"
)

// PollForRun polls until the run reaches a terminal status.
// Returns the finished run or an error if timeout occurs.
// Polls every 200ms for the specified timeout duration.
func PollForRun(ctx context.Context, client *registry.Client, runID string, timeout time.Duration) (*registry.Run, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for run %s to finish after %v", runID, timeout)

		case <-ticker.C:
			run, err := client.GetRun(ctx, runID)
			if err != nil {
				if registry.IsNotFound(err) {
					// Not recorded yet
					continue
				}
				return nil, fmt.Errorf("failed to query run: %w", err)
			}

			if run.Status.Terminal() {
				return run, nil
			}
		}
	}
}

// StreamRuns writes every run event for the client's deployment to w until
// ctx is cancelled. Subscription errors are reported inline and do not stop
// the stream.
func StreamRuns(ctx context.Context, client *registry.Client, format OutputFormat, w io.Writer) error {
	sub, err := client.SubscribeRunEvents(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	events := sub.Events()
	errs := sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case run, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeEvent(w, format, run); err != nil {
				return err
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Fprintf(w, "⚠️  %v\n", err)
		}
	}
}

func writeEvent(w io.Writer, format OutputFormat, run *registry.Run) error {
	if format == OutputFormatJSON {
		return FormatJSON(w, run)
	}

	_, err := fmt.Fprintln(w, FormatEvent(run))
	return err
}

// FormatJSON writes a run as one line of compact JSON
func FormatJSON(w io.Writer, run *registry.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// FormatEvent renders a run event as a single human-readable line
func FormatEvent(run *registry.Run) string {
	at := run.CreatedAtMs
	if run.FinishedAtMs > 0 {
		at = run.FinishedAtMs
	}
	stamp := time.UnixMilli(at).Format("15:04:05")

	id := run.ID
	if len(id) > 8 {
		id = id[:8]
	}

	switch run.Status {
	case registry.StatusPrepared:
		return fmt.Sprintf("[%s] 🚀 %s prepared  %s (%s)", stamp, id, strings.Join(run.Command, " "), run.Launcher)
	case registry.StatusSucceeded:
		return fmt.Sprintf("[%s] ✅ %s succeeded in %s", stamp, id, time.Duration(run.DurationMs)*time.Millisecond)
	case registry.StatusFailed:
		return fmt.Sprintf("[%s] ❌ %s failed with exit code %d", stamp, id, run.ExitCode)
	default:
		return fmt.Sprintf("[%s] ⚠️  %s %s: %s", stamp, id, run.Status, run.Error)
	}
}
