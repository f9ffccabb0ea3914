package registry

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RunToHash converts a Run to Redis hash format.
// Array fields (mechanisms, command) are JSON-encoded.
func RunToHash(r *Run) (map[string]interface{}, error) {
	mechanismsJSON, err := json.Marshal(nonNil(r.Mechanisms))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mechanisms: %w", err)
	}
	commandJSON, err := json.Marshal(nonNil(r.Command))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}

	return map[string]interface{}{
		"id":             r.ID,
		"deployment":     r.Deployment,
		"status":         string(r.Status),
		"mechanisms":     string(mechanismsJSON),
		"root":           r.Root,
		"config_path":    r.ConfigPath,
		"policy_path":    r.PolicyPath,
		"command":        string(commandJSON),
		"launcher":       r.Launcher,
		"exit_code":      r.ExitCode,
		"duration_ms":    r.DurationMs,
		"error":          r.Error,
		"created_at_ms":  r.CreatedAtMs,
		"finished_at_ms": r.FinishedAtMs,
	}, nil
}

// HashToRun converts a Redis hash back to a Run
func HashToRun(hash map[string]string) (*Run, error) {
	var mechanisms, command []string
	if err := json.Unmarshal([]byte(hash["mechanisms"]), &mechanisms); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mechanisms: %w", err)
	}
	if err := json.Unmarshal([]byte(hash["command"]), &command); err != nil {
		return nil, fmt.Errorf("failed to unmarshal command: %w", err)
	}

	exitCode, err := strconv.Atoi(hash["exit_code"])
	if err != nil {
		return nil, fmt.Errorf("invalid exit_code field: %w", err)
	}
	createdAtMs, err := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at_ms field: %w", err)
	}
	durationMs, _ := strconv.ParseInt(hash["duration_ms"], 10, 64)
	finishedAtMs, _ := strconv.ParseInt(hash["finished_at_ms"], 10, 64)

	return &Run{
		ID:           hash["id"],
		Deployment:   hash["deployment"],
		Status:       Status(hash["status"]),
		Mechanisms:   nonNil(mechanisms),
		Root:         hash["root"],
		ConfigPath:   hash["config_path"],
		PolicyPath:   hash["policy_path"],
		Command:      nonNil(command),
		Launcher:     hash["launcher"],
		ExitCode:     exitCode,
		DurationMs:   durationMs,
		Error:        hash["error"],
		CreatedAtMs:  createdAtMs,
		FinishedAtMs: finishedAtMs,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
