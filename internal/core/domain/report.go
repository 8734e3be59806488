package domain

import (
	"fmt"
	"time"
)

// ReportState is a tagged state of the report generation job.
type ReportState string

const (
	ReportStateQueued                 ReportState = "queued"
	ReportStateProcessingRequirements ReportState = "processing_requirements"
	ReportStateGeneratingContent      ReportState = "generating_content"
	ReportStateCompilingReport        ReportState = "compiling_report"
	ReportStateCreatingPDF            ReportState = "creating_pdf"
	ReportStateCompleted              ReportState = "completed"
	ReportStateFailed                 ReportState = "failed"
)

// IsTerminal reports whether the state admits no further transitions.
func (s ReportState) IsTerminal() bool {
	return s == ReportStateCompleted || s == ReportStateFailed
}

// ReportEvent drives the report state machine.
type ReportEvent string

const (
	ReportEventPickup            ReportEvent = "pickup"
	ReportEventRequirementsReady ReportEvent = "requirements_ready"
	ReportEventSectionsGenerated ReportEvent = "sections_generated"
	ReportEventCompiled          ReportEvent = "compiled"
	ReportEventRendered          ReportEvent = "rendered"
	ReportEventFail              ReportEvent = "fail"
)

// reportTransitions is the legal (state, event) -> state table.
var reportTransitions = map[ReportState]map[ReportEvent]ReportState{
	ReportStateQueued: {
		ReportEventPickup: ReportStateProcessingRequirements,
		ReportEventFail:   ReportStateFailed,
	},
	ReportStateProcessingRequirements: {
		ReportEventRequirementsReady: ReportStateGeneratingContent,
		ReportEventFail:              ReportStateFailed,
	},
	ReportStateGeneratingContent: {
		ReportEventSectionsGenerated: ReportStateCompilingReport,
		ReportEventFail:              ReportStateFailed,
	},
	ReportStateCompilingReport: {
		ReportEventCompiled: ReportStateCreatingPDF,
		ReportEventFail:     ReportStateFailed,
	},
	ReportStateCreatingPDF: {
		ReportEventRendered: ReportStateCompleted,
		ReportEventFail:     ReportStateFailed,
	},
}

// Transition is the pure state transition function. Terminal states admit
// no events; illegal events return ErrInvalidTransition.
func Transition(state ReportState, event ReportEvent) (ReportState, error) {
	if state.IsTerminal() {
		return state, fmt.Errorf("%w: %s is terminal", ErrJobTerminal, state)
	}
	next, ok := reportTransitions[state][event]
	if !ok {
		return state, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, state)
	}
	return next, nil
}

// TemplateSection is one section of a report template: a title, the
// question the RAG pipeline answers for it, and the schema elements the
// retrieval is scoped to.
type TemplateSection struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Question     string   `json:"question"`
	ElementCodes []string `json:"element_codes,omitempty"`
}

// ReportTemplate orders the sections of a compliance report.
type ReportTemplate struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	SchemaType SchemaType        `json:"schema_type"`
	Sections   []TemplateSection `json:"sections"`
}

// ReportSection is a generated section of the final report.
type ReportSection struct {
	SectionID  string     `json:"section_id"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	Confidence float64    `json:"confidence"`
	Citations  []Citation `json:"citations"`
}

// ReportJob tracks one report generation request through the state
// machine. Persisted after every transition.
type ReportJob struct {
	ID               string      `json:"id"`
	RequirementSetID string      `json:"requirement_set_id"`
	TemplateID       string      `json:"template_id"`
	SchemaType       SchemaType  `json:"schema_type"`
	State            ReportState `json:"state"`

	// CurrentStep names the stage or section being worked on; on failure it
	// identifies what failed.
	CurrentStep string `json:"current_step,omitempty"`

	// Progress is 0-100, weighted across stages.
	Progress int `json:"progress"`

	Error     string           `json:"error,omitempty"`
	Cancelled bool             `json:"cancelled"`
	Sections  []*ReportSection `json:"sections,omitempty"`
	Gap       *GapAnalysisResult `json:"gap,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewReportJob creates a queued report job.
func NewReportJob(requirementSetID, templateID string, schemaType SchemaType) *ReportJob {
	now := time.Now()
	return &ReportJob{
		ID:               GenerateID(),
		RequirementSetID: requirementSetID,
		TemplateID:       templateID,
		SchemaType:       schemaType,
		State:            ReportStateQueued,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Apply runs the transition function and records the result on the job.
func (j *ReportJob) Apply(event ReportEvent) error {
	next, err := Transition(j.State, event)
	if err != nil {
		return err
	}
	j.State = next
	j.UpdatedAt = time.Now()
	if next.IsTerminal() {
		now := time.Now()
		j.CompletedAt = &now
	}
	return nil
}

// Fail moves the job to Failed, recording the failing step and error.
func (j *ReportJob) Fail(step, errMsg string) error {
	if err := j.Apply(ReportEventFail); err != nil {
		return err
	}
	j.CurrentStep = step
	j.Error = errMsg
	return nil
}

// Stage weights for progress reporting. Section generation dominates the
// wall clock, so it carries most of the weight.
const (
	progressRequirementsDone = 15
	progressSectionsSpan     = 65
	progressCompiled         = 90
	progressRendered         = 100
)

// ProgressForSections returns the weighted progress while generating
// content: done of total sections complete.
func ProgressForSections(done, total int) int {
	if total <= 0 {
		return progressRequirementsDone + progressSectionsSpan
	}
	return progressRequirementsDone + progressSectionsSpan*done/total
}
