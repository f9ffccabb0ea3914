// Package launcher runs a prepared scenario with the composed environment,
// either as a local process or inside a Docker container.
package launcher

import (
	"context"
	"io"
	"time"

	"github.com/dyluth/dtioctl/internal/deploy"
	"github.com/dyluth/dtioctl/internal/envpatch"
)

// maxOutputSize is the maximum number of bytes kept from stdout and stderr (10MB)
const maxOutputSize = 10 * 1024 * 1024

// Spec is everything needed to start one scenario
type Spec struct {
	RunID      string
	Deployment string
	Args       []string
	Dir        string       // Test directory; created before launch and used as working directory
	Env        envpatch.Env // Host environment with the patch applied; used by the exec launcher
	ImageEnv   envpatch.Env // Activating variables only; used by the Docker launcher
	Image      string       // Only used by the Docker launcher
	Mounts     []string     // Host directories made visible at the same path inside a container
}

// SpecFromResult builds the launch spec of a prepared run. The shared
// directory and every library installation root are mounted for containers.
func SpecFromResult(r *deploy.Result) Spec {
	mounts := []string{r.SharedDir}
	seen := map[string]bool{r.SharedDir: true, r.TestDir: true}
	for _, m := range r.Resolution.Mechanisms() {
		root := r.Resolution.RootOf(m)
		if root != "" && !seen[root] {
			seen[root] = true
			mounts = append(mounts, root)
		}
	}

	return Spec{
		RunID:      r.RunID,
		Deployment: r.Deployment,
		Args:       r.Args,
		Dir:        r.TestDir,
		Env:        r.Env,
		ImageEnv:   r.ContainerEnv(),
		Image:      r.Image,
		Mounts:     mounts,
	}
}

// Outcome is the result of a scenario that ran to completion.
// A non-zero ExitCode is reported here, not as an error.
type Outcome struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	StartedAt time.Time
	Duration  time.Duration
	Truncated bool // Output exceeded the 10MB limit and was cut
}

// Succeeded reports whether the scenario exited with code 0
func (o *Outcome) Succeeded() bool {
	return o.ExitCode == 0
}

// Launcher starts a scenario and waits for it to finish.
// An error means the scenario could not be started or waited for.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (*Outcome, error)
}

// limitedWriter keeps the first limit bytes and silently discards the rest
type limitedWriter struct {
	w       io.Writer
	limit   int
	written int
	dropped bool
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		lw.dropped = lw.dropped || len(p) > 0
		return len(p), nil
	}

	toWrite := p
	if len(p) > remaining {
		toWrite = p[:remaining]
		lw.dropped = true
	}

	n, err = lw.w.Write(toWrite)
	lw.written += n
	return len(p), err // Report the full length so the producer keeps going
}
