package runstore

import "fmt"

// Redis key pattern helpers
//
// All keys are namespaced so several TeamFlow deployments can share one Redis
// server without interfering with each other.
//
// Key pattern: teamflow:{namespace}:run:{run_id}:{entity}

// MetaKey returns the Redis key for a run's metadata hash.
// Pattern: teamflow:{namespace}:run:{run_id}:meta
func MetaKey(namespace, runID string) string {
	return fmt.Sprintf("teamflow:%s:run:%s:meta", namespace, runID)
}

// IdeaKey returns the Redis key holding the submitted idea text.
// Pattern: teamflow:{namespace}:run:{run_id}:idea
func IdeaKey(namespace, runID string) string {
	return fmt.Sprintf("teamflow:%s:run:%s:idea", namespace, runID)
}

// StepsKey returns the Redis key for a run's stage status hash.
// Pattern: teamflow:{namespace}:run:{run_id}:steps
func StepsKey(namespace, runID string) string {
	return fmt.Sprintf("teamflow:%s:run:%s:steps", namespace, runID)
}

// ArtifactKey returns the Redis key for a single named artifact.
// Pattern: teamflow:{namespace}:run:{run_id}:artifact:{name}
func ArtifactKey(namespace, runID, name string) string {
	return fmt.Sprintf("teamflow:%s:run:%s:artifact:%s", namespace, runID, name)
}

// EventsKey returns the Redis key for a run's append-only event list.
// Pattern: teamflow:{namespace}:run:{run_id}:events
func EventsKey(namespace, runID string) string {
	return fmt.Sprintf("teamflow:%s:run:%s:events", namespace, runID)
}

// ChainsKey returns the Redis key of the deferred-work list consumed by workers.
// Pattern: teamflow:{namespace}:chains
func ChainsKey(namespace string) string {
	return fmt.Sprintf("teamflow:%s:chains", namespace)
}
