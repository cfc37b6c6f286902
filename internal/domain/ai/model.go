// Package ai formats prescriptions into LLM prompts, parses the advisory
// verdict out of the response, and reconciles it with the structural SUT
// recommendation. Every failure path degrades to the SUT-only verdict.
package ai

import "github.com/rxguard/rxguard/internal/domain/decision"

// Method records how a verdict was produced.
const (
	MethodLLM         = "llm"
	MethodSutOnly     = "sut_only"
	MethodSutFallback = "sut_fallback"
)

// Verdict is the AI analyzer's structured answer. Method lives on the
// embedded decision.Verdict so it survives archival.
type Verdict struct {
	decision.Verdict
	ClinicalAssessment   string   `json:"clinical_assessment,omitempty"`
	SutComplianceComment string   `json:"sut_compliance_comment,omitempty"`
	RiskFactors          []string `json:"risk_factors,omitempty"`
	Recommendations      []string `json:"recommendations,omitempty"`
	KeyFindings          []string `json:"key_findings,omitempty"`
	Error                string   `json:"error,omitempty"`
}
