package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rxguard/rxguard/internal/domain/decision"
	"github.com/rxguard/rxguard/internal/platform/llm"
)

// ParseVerdict extracts a structured verdict from the raw model output.
// It first looks for a JSON object (fenced or bare); when none parses, it
// falls back to a keyword scan of the free text with low confidence.
func ParseVerdict(text string) (Verdict, error) {
	if block := llm.ExtractJSONObject(text); block != "" {
		var raw struct {
			Action               string   `json:"action"`
			Confidence           float64  `json:"confidence"`
			Reason               string   `json:"reason"`
			ClinicalAssessment   string   `json:"clinical_assessment"`
			SutComplianceComment string   `json:"sut_compliance_comment"`
			RiskFactors          []string `json:"risk_factors"`
			Recommendations      []string `json:"recommendations"`
			KeyFindings          []string `json:"key_findings"`
		}
		if err := json.Unmarshal([]byte(block), &raw); err == nil {
			action, ok := normalizeAction(raw.Action)
			if !ok {
				return Verdict{}, fmt.Errorf("ai: unknown action %q", raw.Action)
			}
			v := Verdict{
				ClinicalAssessment:   raw.ClinicalAssessment,
				SutComplianceComment: raw.SutComplianceComment,
				RiskFactors:          raw.RiskFactors,
				Recommendations:      raw.Recommendations,
				KeyFindings:          raw.KeyFindings,
			}
			v.Method = MethodLLM
			v.Action = action
			v.Confidence = clamp01(raw.Confidence)
			v.Reason = raw.Reason
			return v, nil
		}
	}
	return keywordScan(text)
}

// keywordScan is the last-ditch parse for models that reply in prose despite
// the JSON instruction. Turkish portal vocabulary (onay/red) is recognized
// alongside English.
func keywordScan(text string) (Verdict, error) {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return Verdict{}, fmt.Errorf("ai: empty response")
	}
	var v Verdict
	v.Method = MethodLLM
	v.Confidence = 0.3
	v.Reason = "keyword scan of unstructured response"
	switch {
	case strings.Contains(lower, "approve") || strings.Contains(lower, "onay"):
		v.Action = decision.Approve
	case strings.Contains(lower, "reject") || strings.Contains(lower, "red"):
		v.Action = decision.Reject
	default:
		v.Action = decision.Hold
	}
	return v, nil
}

func normalizeAction(s string) (decision.Action, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "onay":
		return decision.Approve, true
	case "hold", "beklet":
		return decision.Hold, true
	case "reject", "red":
		return decision.Reject, true
	}
	return "", false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
