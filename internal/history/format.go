// Package history renders run registry records for the terminal.
package history

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dyluth/dtioctl/internal/registry"
)

// FormatTable writes runs as a table with columns RUN, STATUS, EXIT,
// MECHANISMS, DURATION, AGE and COMMAND. Returns the number of runs written.
func FormatTable(w io.Writer, runs []*registry.Run, deployment string, now time.Time) int {
	if len(runs) == 0 {
		fmt.Fprintf(w, "No runs found for deployment '%s'\n", deployment)
		return 0
	}

	fmt.Fprintf(w, "Runs for deployment '%s':\n\n", deployment)

	fmt.Fprintf(w, "%-8s %-9s %-4s %-16s %-8s %-14s %s\n",
		"RUN", "STATUS", "EXIT", "MECHANISMS", "DURATION", "AGE", "COMMAND")
	fmt.Fprintf(w, "%-8s %-9s %-4s %-16s %-8s %-14s %s\n",
		"--------", "---------", "----", "----------------", "--------", "--------------", "----------------------------------------")

	for _, r := range runs {
		fmt.Fprintf(w, "%-8s %-9s %-4s %-16s %-8s %-14s %s\n",
			formatID(r.ID),
			r.Status,
			formatExit(r),
			formatMechanisms(r.Mechanisms),
			formatDuration(r),
			formatAge(r.CreatedAtMs, now),
			formatCommand(r.Command),
		)
	}

	noun := "run"
	if len(runs) != 1 {
		noun = "runs"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(runs), noun)

	return len(runs)
}

// FormatJSONL writes one compact JSON object per run
func FormatJSONL(w io.Writer, runs []*registry.Run) error {
	for _, r := range runs {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal run to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes one run as indented JSON
func FormatSingleJSON(w io.Writer, r *registry.Run) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatExit shows "-" until the run has finished
func formatExit(r *registry.Run) string {
	if !r.Status.Terminal() || r.Status == registry.StatusError {
		return "-"
	}
	return fmt.Sprintf("%d", r.ExitCode)
}

func formatMechanisms(mechanisms []string) string {
	if len(mechanisms) == 0 {
		return "-"
	}
	s := strings.Join(mechanisms, ",")
	if len(s) > 16 {
		return s[:13] + "..."
	}
	return s
}

func formatDuration(r *registry.Run) string {
	if !r.Status.Terminal() {
		return "-"
	}
	d := time.Duration(r.DurationMs) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", r.DurationMs)
	}
	return d.Round(100 * time.Millisecond).String()
}

func formatAge(createdAtMs int64, now time.Time) string {
	if createdAtMs == 0 {
		return "-"
	}
	return humanize.RelTime(time.UnixMilli(createdAtMs), now, "ago", "from now")
}

// formatCommand shows the command line truncated to 40 characters
func formatCommand(command []string) string {
	if len(command) == 0 {
		return "-"
	}
	s := strings.Join(command, " ")
	if len(s) > 40 {
		return s[:37] + "..."
	}
	return s
}
