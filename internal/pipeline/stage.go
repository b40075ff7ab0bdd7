// Package pipeline defines the ordered document-generation stages, the
// artifacts each stage owns and the prompt/output contract of every stage.
package pipeline

import (
	"fmt"

	"github.com/dyluth/teamflow/pkg/runstore"
)

// Stage is one step of the pipeline. Stages form a total order; Next returns
// the successor and StageNone terminates iteration.
type Stage int

const (
	StageNone Stage = iota
	StageIntake
	StageDesign
	StageVerification
	StageConsultation
	StageReview
)

var stageNames = map[Stage]string{
	StageIntake:       "intake",
	StageDesign:       "design",
	StageVerification: "verification",
	StageConsultation: "consultation",
	StageReview:       "review",
}

// First is the entry stage of a full run.
const First = StageIntake

// Stages returns every stage in canonical order.
func Stages() []Stage {
	return []Stage{StageIntake, StageDesign, StageVerification, StageConsultation, StageReview}
}

var stagesByName = func() map[string]Stage {
	byName := make(map[string]Stage, len(stageNames))
	for stage, name := range stageNames {
		byName[name] = stage
	}
	return byName
}()

// ParseStage resolves a stage by name.
func ParseStage(name string) (Stage, error) {
	if stage, ok := stagesByName[name]; ok {
		return stage, nil
	}
	return StageNone, fmt.Errorf("unknown stage %q", name)
}

// Valid reports whether s names a real stage.
func (s Stage) Valid() bool {
	_, ok := stageNames[s]
	return ok
}

// Next returns the stage that follows s, or StageNone after the last stage.
func (s Stage) Next() Stage {
	if !s.Valid() || s == StageReview {
		return StageNone
	}
	return s + 1
}

// From returns s and every stage downstream of it.
func (s Stage) From() []Stage {
	var suffix []Stage
	for stage := s; stage.Valid(); stage = stage.Next() {
		suffix = append(suffix, stage)
	}
	return suffix
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stage name.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Artifacts returns the names of the artifacts stage s produces.
func (s Stage) Artifacts() []string {
	switch s {
	case StageIntake:
		return []string{runstore.ArtifactPRD}
	case StageDesign:
		return []string{runstore.ArtifactArch, runstore.ArtifactAPI}
	case StageVerification:
		return []string{runstore.ArtifactTest, runstore.ArtifactRisk}
	case StageConsultation:
		return []string{runstore.ArtifactStack}
	case StageReview:
		return []string{runstore.ArtifactReview}
	default:
		return nil
	}
}

// CompositeOrder is the order in which stage artifacts are joined into the final document.
func CompositeOrder() []string {
	var names []string
	for _, stage := range Stages() {
		names = append(names, stage.Artifacts()...)
	}
	return names
}

// CompositeSeparator joins artifacts in the final document.
const CompositeSeparator = "\n\n---\n\n"
