// Package runstore provides type-safe Go definitions and Redis schema patterns
// for TeamFlow run state.
//
// # Overview
//
// Every run of the document pipeline owns a small set of Redis keys: a metadata
// hash, the submitted idea, a hash of per-stage statuses, one string per named
// artifact and an append-only list of events. All of them carry a time-to-live
// that is refreshed whenever the key is written, so an abandoned run disappears
// from Redis on its own.
//
// # Usage Example
//
//	import "github.com/dyluth/teamflow/pkg/runstore"
//
//	client, err := runstore.NewClient(&redis.Options{Addr: "localhost:6379"}, "default", 6*time.Hour)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.InitRun(ctx, "run_abc", "Build a todo app", map[string]runstore.StepStatus{
//		"intake": runstore.StepStatusPending,
//	})
//
//	index, err := client.AppendEvent(ctx, "run_abc", runstore.NewEvent(runstore.EventRunStarted))
//
// # Redis Schema
//
// All Redis keys follow the pattern: teamflow:{namespace}:run:{run_id}:{entity}
//
// Metadata: teamflow:{namespace}:run:{run_id}:meta (hash)
// Idea: teamflow:{namespace}:run:{run_id}:idea (string)
// Step statuses: teamflow:{namespace}:run:{run_id}:steps (hash, stage -> status)
// Artifacts: teamflow:{namespace}:run:{run_id}:artifact:{name} (string)
// Events: teamflow:{namespace}:run:{run_id}:events (list of JSON objects)
//
// Deferred work: teamflow:{namespace}:chains (list of JSON chain descriptors)
//
// # Not-found semantics
//
// Reads of a missing run or artifact return redis.Nil. Use IsNotFound to test for it.
package runstore
