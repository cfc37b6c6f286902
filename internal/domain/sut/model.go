// Package sut implements the structural rules engine: a static knowledge base
// of drug requirements, message-code metadata and general compliance rules,
// evaluated as a pure function of the input prescription.
package sut

import "github.com/rxguard/rxguard/internal/domain/decision"

// DrugRequirement describes what the rulebook demands for drugs whose name
// starts with a given prefix.
type DrugRequirement struct {
	RequiredDiagnoses   []string `json:"required_diagnoses"`
	Category            string   `json:"category"`
	ReportRequired      bool     `json:"report_required"`
	AllowedMessageCodes []string `json:"allowed_message_codes,omitempty"`
	MaxDurationMonths   int      `json:"max_duration_months,omitempty"`
	Contraindications   []string `json:"contraindications,omitempty"`
}

// MessageMetadata describes a 4-digit SUT message code.
type MessageMetadata struct {
	Description    string `json:"description"`
	SutSection     string `json:"sut_section,omitempty"`
	ReportRequired bool   `json:"report_required"`
	Constraints    string `json:"constraints,omitempty"`
}

// GeneralRules are the prescription-level checks that apply regardless of the
// drugs on it.
type GeneralRules struct {
	MaxPrescriptionAgeDays int  `json:"max_prescription_age_days"`
	RequirePatientID       bool `json:"require_patient_id"`
}

// KnowledgeBase is immutable after construction and safe to share.
type KnowledgeBase struct {
	Drugs    map[string]DrugRequirement
	Messages map[string]MessageMetadata
	General  GeneralRules
}

// DrugFinding is the per-drug outcome of an analysis.
type DrugFinding struct {
	DrugName        string   `json:"drug_name"`
	RulePrefix      string   `json:"rule_prefix,omitempty"`
	Matched         bool     `json:"matched"`
	Category        string   `json:"category,omitempty"`
	DiagnosisOK     bool     `json:"diagnosis_ok"`
	ReportOK        bool     `json:"report_ok"`
	Contraindicated []string `json:"contraindications,omitempty"`
}

// MessageFinding is the per-code outcome of message validation.
type MessageFinding struct {
	Code  string `json:"code"`
	Valid bool   `json:"valid"`
	Known bool   `json:"known"`
	Note  string `json:"note,omitempty"`
}

// Analysis is the full structural result for one prescription.
type Analysis struct {
	OverallCompliant bool             `json:"overall_compliant"`
	DrugFindings     []DrugFinding    `json:"drug_findings,omitempty"`
	MessageFindings  []MessageFinding `json:"message_findings,omitempty"`
	GeneralFindings  []string         `json:"general_findings,omitempty"`
	Issues           []string         `json:"issues,omitempty"`
	Warnings         []string         `json:"warnings,omitempty"`
}

// Recommendation is the engine's verdict plus the findings that drove it.
type Recommendation struct {
	decision.Verdict
	Issues   []string `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
