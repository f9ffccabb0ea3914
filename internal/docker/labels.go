package docker

import (
	"fmt"
)

// Label keys used for DTIO scenario containers
const (
	LabelProject    = "dtio.project"
	LabelDeployment = "dtio.deployment.name"
	LabelRunID      = "dtio.run.id"
	LabelSharedDir  = "dtio.shared_dir"
	LabelComponent  = "dtio.component"
)

// ComponentScenario labels the container running the test scenario
const ComponentScenario = "scenario"

// BuildLabels creates the standard label set for all DTIO containers.
// All parameters are required except component (which is resource-specific).
func BuildLabels(deployment, runID, sharedDir, component string) map[string]string {
	labels := map[string]string{
		LabelProject:    "true",
		LabelDeployment: deployment,
		LabelRunID:      runID,
		LabelSharedDir:  sharedDir,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// ScenarioContainerName returns the container name for a run's scenario.
// Only the first 8 characters of the run ID are used.
func ScenarioContainerName(deployment, runID string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("dtio-scenario-%s-%s", deployment, short)
}
