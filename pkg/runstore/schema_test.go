package runstore

import (
	"strings"
	"testing"
)

func TestRunKeys(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{"meta", MetaKey("prod", "run_1"), "teamflow:prod:run:run_1:meta"},
		{"idea", IdeaKey("prod", "run_1"), "teamflow:prod:run:run_1:idea"},
		{"steps", StepsKey("prod", "run_1"), "teamflow:prod:run:run_1:steps"},
		{"artifact", ArtifactKey("prod", "run_1", "prd"), "teamflow:prod:run:run_1:artifact:prd"},
		{"events", EventsKey("prod", "run_1"), "teamflow:prod:run:run_1:events"},
		{"chains", ChainsKey("prod"), "teamflow:prod:chains"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.key != tt.expected {
				t.Errorf("key = %q, expected %q", tt.key, tt.expected)
			}
			if !strings.HasPrefix(tt.key, "teamflow:prod:") {
				t.Errorf("key %q is not namespaced", tt.key)
			}
		})
	}
}

// TestNamespaceIsolation verifies keys for the same run differ across namespaces.
func TestNamespaceIsolation(t *testing.T) {
	if MetaKey("a", "run_1") == MetaKey("b", "run_1") {
		t.Error("metadata keys collide across namespaces")
	}
	if ArtifactKey("a", "run_1", "prd") == ArtifactKey("b", "run_1", "prd") {
		t.Error("artifact keys collide across namespaces")
	}
}
