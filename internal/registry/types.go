// Package registry records prepared and completed DTIO runs in Redis so
// operators can see which documents and libraries each run used.
//
// All keys and channels are namespaced by deployment name, so several
// deployments can share one Redis server:
//
//	dtio:{deployment}:run:{id}      hash, one per run
//	dtio:{deployment}:runs          sorted set of run IDs scored by creation time (ms)
//	dtio:{deployment}:run_events    pub/sub channel carrying run JSON on every change
//
// Only the paths of the runtime documents are stored. The documents in the
// shared directory remain the single source of truth for their contents.
package registry

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a run
type Status string

const (
	// StatusPrepared means documents were published but the scenario has not finished
	StatusPrepared Status = "prepared"
	// StatusSucceeded means the scenario exited with code 0
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the scenario exited with a non-zero code
	StatusFailed Status = "failed"
	// StatusError means the scenario could not be started or waited for
	StatusError Status = "error"
)

// Validate checks the status is one of the defined values
func (s Status) Validate() error {
	switch s {
	case StatusPrepared, StatusSucceeded, StatusFailed, StatusError:
		return nil
	}
	return fmt.Errorf("invalid run status: %s", s)
}

// Terminal reports whether no further transition is expected
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusError
}

// Run is the registry record for one prepared run
type Run struct {
	ID           string   `json:"id"`
	Deployment   string   `json:"deployment"`
	Status       Status   `json:"status"`
	Mechanisms   []string `json:"mechanisms"`
	Root         string   `json:"root"`
	ConfigPath   string   `json:"config_path"`
	PolicyPath   string   `json:"policy_path"`
	Command      []string `json:"command"`
	Launcher     string   `json:"launcher"` // "exec" or "docker"
	ExitCode     int      `json:"exit_code"`
	DurationMs   int64    `json:"duration_ms"`
	Error        string   `json:"error,omitempty"`
	CreatedAtMs  int64    `json:"created_at_ms"`
	FinishedAtMs int64    `json:"finished_at_ms,omitempty"`
}

// Validate checks the fields every stored run must carry
func (r *Run) Validate() error {
	if r.ID == "" {
		return errors.New("run id is required")
	}
	if r.Deployment == "" {
		return errors.New("run deployment is required")
	}
	if err := r.Status.Validate(); err != nil {
		return err
	}
	if r.ConfigPath == "" || r.PolicyPath == "" {
		return errors.New("run document paths are required")
	}
	if r.CreatedAtMs <= 0 {
		return errors.New("run created_at_ms must be positive")
	}
	return nil
}
