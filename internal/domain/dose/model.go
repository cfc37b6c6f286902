// Package dose reconciles prescribed quantities against report-authorized
// dosages. It owns the persistent drug→ingredient and report→dose caches and
// is the only writer to them.
package dose

import (
	"fmt"
	"strings"

	"github.com/rxguard/rxguard/internal/domain/decision"
)

// Mode selects how far the controller is allowed to go on cache misses.
type Mode string

const (
	// ModeFast consults the persistent caches only. Misses leave the drug
	// inconclusive.
	ModeFast Mode = "fast"
	// ModeDetailed may invoke the portal driver on cache misses and writes
	// successful lookups back to the caches.
	ModeDetailed Mode = "detailed"
)

// DrugStatus is the per-drug outcome of a dose check.
type DrugStatus string

const (
	StatusNotReportRequired DrugStatus = "not_report_required"
	StatusCompliant         DrugStatus = "compliant"
	StatusViolation         DrugStatus = "violation"
	StatusInconclusive      DrugStatus = "inconclusive"
	StatusError             DrugStatus = "error"
)

// DrugDetail records everything the controller learned about one drug line.
type DrugDetail struct {
	DrugName         string     `json:"drug_name"`
	ReportCode       string     `json:"report_code,omitempty"`
	ActiveIngredient string     `json:"active_ingredient,omitempty"`
	Prescribed       string     `json:"prescribed,omitempty"`
	Authorized       string     `json:"authorized,omitempty"`
	MessagePresent   bool       `json:"message_present"`
	MessageCodes     []string   `json:"message_codes,omitempty"`
	Status           DrugStatus `json:"status"`
	Reason           string     `json:"reason,omitempty"`
}

// ControlResult is the controller's answer for one prescription.
type ControlResult struct {
	TotalDrugs      int             `json:"total_drugs"`
	ReportedDrugs   int             `json:"reported_drugs"`
	CompliantDrugs  int             `json:"compliant_drugs"`
	Violations      []string        `json:"violations,omitempty"`
	DrugDetails     []DrugDetail    `json:"drug_details,omitempty"`
	MessageCodes    []string        `json:"message_codes,omitempty"`
	OverallDecision decision.Action `json:"overall_decision"`
	Note            string          `json:"note,omitempty"`
}

// Verdict condenses the control result into the analyzer tuple the fusion
// layer consumes.
func (r *ControlResult) Verdict() decision.Verdict {
	switch r.OverallDecision {
	case decision.Reject:
		return decision.Verdict{
			Action:     decision.Reject,
			Confidence: 0.95,
			Reason:     fmt.Sprintf("dose violations: %s", strings.Join(r.Violations, "; ")),
		}
	case decision.Approve:
		return decision.Verdict{
			Action:     decision.Approve,
			Confidence: 0.90,
			Reason: fmt.Sprintf("%d/%d reported drugs within authorized dose",
				r.CompliantDrugs, r.ReportedDrugs),
		}
	default:
		reason := r.Note
		if reason == "" {
			reason = "dose check inconclusive"
		}
		return decision.Verdict{Action: decision.Hold, Confidence: 0.50, Reason: reason}
	}
}
