package registry

import "fmt"

// RunKey returns the Redis key for a run hash
func RunKey(deployment, runID string) string {
	return fmt.Sprintf("dtio:%s:run:%s", deployment, runID)
}

// RunsIndexKey returns the sorted set indexing a deployment's runs by creation time
func RunsIndexKey(deployment string) string {
	return fmt.Sprintf("dtio:%s:runs", deployment)
}

// RunEventsChannel returns the Pub/Sub channel for run changes
func RunEventsChannel(deployment string) string {
	return fmt.Sprintf("dtio:%s:run_events", deployment)
}
