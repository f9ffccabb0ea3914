package registry

import (
	"github.com/dyluth/dtioctl/internal/deploy"
)

// NewRun builds the prepared-state record for a run about to be launched
func NewRun(r *deploy.Result, launcher string) *Run {
	mechanisms := make([]string, 0)
	for _, m := range r.Resolution.Mechanisms() {
		mechanisms = append(mechanisms, string(m))
	}

	return &Run{
		ID:          r.RunID,
		Deployment:  r.Deployment,
		Status:      StatusPrepared,
		Mechanisms:  mechanisms,
		Root:        r.Resolution.Root(),
		ConfigPath:  r.ConfigPath,
		PolicyPath:  r.PolicyPath,
		Command:     r.Args,
		Launcher:    launcher,
		CreatedAtMs: r.CreatedAt.UnixMilli(),
	}
}
