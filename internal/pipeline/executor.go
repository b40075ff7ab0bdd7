package pipeline

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/dyluth/teamflow/pkg/runstore"
)

// Section headings written into stage artifacts.
const (
	HeadingPRD    = "Product Requirements (PRD)"
	HeadingArch   = "System Architecture"
	HeadingAPI    = "API Design"
	HeadingTest   = "Test Plan"
	HeadingRisk   = "Risk Analysis"
	HeadingStack  = "Tech Stack Recommendation"
	HeadingReview = "Review Notes"
)

// Inputs carries everything a stage prompt may reference.
// Missing upstream artifacts are represented by empty strings.
type Inputs struct {
	Idea      string
	MaxChars  int
	Artifacts map[string]string
	Feedback  string
	Iteration int
}

func (in Inputs) vars() map[string]string {
	vars := map[string]string{
		"idea":      in.Idea,
		"feedback":  in.Feedback,
		"iteration": strconv.Itoa(in.Iteration),
		"max_chars": "no limit",
	}
	if in.MaxChars > 0 {
		vars["max_chars"] = strconv.Itoa(in.MaxChars)
	}
	for _, name := range runstore.ArtifactNames() {
		vars[name] = in.Artifacts[name]
	}
	return vars
}

// Executor is the capability every stage implements: render a prompt from its
// inputs and turn the agent's text into named artifacts.
type Executor interface {
	Stage() Stage
	Role() string
	// Requires lists the upstream artifacts the prompt reads.
	Requires() []string
	Render(prompts *Prompts, in Inputs) (string, error)
	Apply(output string) map[string]string
}

type stageSpec struct {
	stage    Stage
	role     string
	template string
	requires []string
}

func (s stageSpec) Stage() Stage       { return s.stage }
func (s stageSpec) Role() string       { return s.role }
func (s stageSpec) Requires() []string { return s.requires }

func (s stageSpec) Render(prompts *Prompts, in Inputs) (string, error) {
	template, err := prompts.Load(s.template)
	if err != nil {
		return "", err
	}
	rendered, missing := Render(template, in.vars())
	if len(missing) > 0 {
		log.Printf("[Pipeline] WARN prompt %s left placeholders unresolved: %s",
			s.template, strings.Join(missing, ", "))
	}
	return rendered, nil
}

type intakeStage struct{ stageSpec }

func (intakeStage) Apply(output string) map[string]string {
	return map[string]string{runstore.ArtifactPRD: EnsureHeading(output, HeadingPRD)}
}

type designStage struct{ stageSpec }

func (designStage) Apply(output string) map[string]string {
	arch, api := SplitSections(output, HeadingArch, HeadingAPI)
	return map[string]string{runstore.ArtifactArch: arch, runstore.ArtifactAPI: api}
}

type verificationStage struct{ stageSpec }

func (verificationStage) Apply(output string) map[string]string {
	test, risk := SplitSections(output, HeadingTest, HeadingRisk)
	return map[string]string{runstore.ArtifactTest: test, runstore.ArtifactRisk: risk}
}

type consultationStage struct{ stageSpec }

func (consultationStage) Apply(output string) map[string]string {
	return map[string]string{runstore.ArtifactStack: EnsureHeading(output, HeadingStack)}
}

type reviewStage struct{ stageSpec }

func (reviewStage) Apply(output string) map[string]string {
	return map[string]string{runstore.ArtifactReview: EnsureHeading(output, HeadingReview)}
}

// ExecutorFor returns the executor of a stage.
func ExecutorFor(stage Stage) (Executor, error) {
	switch stage {
	case StageIntake:
		return intakeStage{stageSpec{
			stage: stage, role: "Product Manager", template: "intake",
		}}, nil
	case StageDesign:
		return designStage{stageSpec{
			stage: stage, role: "Tech Lead", template: "design",
			requires: []string{runstore.ArtifactPRD},
		}}, nil
	case StageVerification:
		return verificationStage{stageSpec{
			stage: stage, role: "QA Engineer", template: "verification",
			requires: []string{runstore.ArtifactPRD, runstore.ArtifactArch, runstore.ArtifactAPI},
		}}, nil
	case StageConsultation:
		return consultationStage{stageSpec{
			stage: stage, role: "Principal Engineer", template: "consultation",
			requires: []string{
				runstore.ArtifactPRD, runstore.ArtifactArch, runstore.ArtifactAPI,
				runstore.ArtifactTest, runstore.ArtifactRisk,
			},
		}}, nil
	case StageReview:
		return reviewStage{stageSpec{
			stage: stage, role: "Reviewer", template: "review",
			requires: []string{
				runstore.ArtifactPRD, runstore.ArtifactArch, runstore.ArtifactAPI,
				runstore.ArtifactTest, runstore.ArtifactRisk, runstore.ArtifactStack,
			},
		}}, nil
	default:
		return nil, fmt.Errorf("no executor for %s", stage)
	}
}

// RevisionExecutor returns the design-stage executor used by the revision loop.
// It renders the revision template and writes the same artifacts as design.
func RevisionExecutor() Executor {
	return designStage{stageSpec{
		stage: StageDesign, role: "Tech Lead", template: "design_revision",
		requires: []string{
			runstore.ArtifactPRD, runstore.ArtifactArch, runstore.ArtifactAPI,
			runstore.ArtifactTest, runstore.ArtifactRisk, runstore.ArtifactStack,
		},
	}}
}

// Feedback joins the verification artifacts into the revision loop's feedback text.
func Feedback(artifacts map[string]string) string {
	var parts []string
	for _, name := range StageVerification.Artifacts() {
		if content := strings.TrimSpace(artifacts[name]); content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n\n")
}
