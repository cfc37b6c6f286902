// Package decision holds the shared verdict vocabulary, the conservative
// fusion calculus that combines the three analyzers, and the archived
// DecisionResult produced for every prescription.
package decision

import (
	"time"

	"github.com/rxguard/rxguard/internal/domain/prescription"
)

// Action is the outcome an analyzer (or the fused decision) assigns.
type Action string

const (
	Approve Action = "approve"
	Hold    Action = "hold"
	Reject  Action = "reject"
	// Error marks an analyzer or orchestrator failure. It never appears as a
	// fused decision unless every analyzer failed to produce an action.
	Error Action = "error"
)

// Rank orders actions by risk. Higher rank is more conservative; an Error is
// fused as a Hold.
func Rank(a Action) int {
	switch a {
	case Reject:
		return 3
	case Hold, Error:
		return 2
	case Approve:
		return 1
	}
	return 2
}

// Verdict is one analyzer's (action, confidence, reason) tuple. Method is
// set by analyzers that can produce a verdict more than one way.
type Verdict struct {
	Action         Action  `json:"action"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason,omitempty"`
	Method         string  `json:"method,omitempty"`
	ProcessingTime float64 `json:"processing_time_s"`
}

// Details aggregates the findings of all three analyzers.
type Details struct {
	Issues          []string `json:"issues,omitempty"`
	Violations      []string `json:"violations,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Metadata carries processing provenance for a result.
type Metadata struct {
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	TotalTime  float64             `json:"total_time_s"`
	Source     prescription.Origin `json:"source"`
	BatchID    string              `json:"batch_id,omitempty"`
}

// Result maps to the prescriptions table. Exactly one Result is produced per
// input prescription, including on failure.
type Result struct {
	PrescriptionID string                     `json:"prescription_id"`
	PatientSummary string                     `json:"patient_summary,omitempty"`
	Dose           Verdict                    `json:"dose"`
	Sut            Verdict                    `json:"sut"`
	AI             Verdict                    `json:"ai"`
	FinalDecision  Action                     `json:"final_decision"`
	Details        Details                    `json:"details"`
	Metadata       Metadata                   `json:"processing_metadata"`
	RawInputs      *prescription.Prescription `json:"raw_inputs,omitempty"`
}

// ProcessingLog maps to the processing_logs table (append-only audit trail).
type ProcessingLog struct {
	ID             int64     `json:"id"`
	PrescriptionID string    `json:"prescription_id"`
	Action         string    `json:"action"`
	Details        string    `json:"details,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
