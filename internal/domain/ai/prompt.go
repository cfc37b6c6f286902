package ai

import (
	"fmt"
	"strings"

	"github.com/rxguard/rxguard/internal/domain/prescription"
	"github.com/rxguard/rxguard/internal/domain/sut"
)

const systemPrompt = `You are an advisory reviewer for pharmacy prescription insurance compliance.
You never make medical decisions; you assess whether a prescription conforms to
the reimbursement rulebook summarized for you. The legal actions are exactly:
"approve", "hold", "reject".
Respond ONLY with a JSON object with these fields:
{
  "action": "approve" | "hold" | "reject",
  "confidence": 0.0-1.0,
  "reason": "...",
  "clinical_assessment": "...",
  "sut_compliance_comment": "...",
  "risk_factors": ["..."],
  "recommendations": ["..."],
  "key_findings": ["..."]
}
Any text outside the JSON object is an error.`

// BuildPrompt renders the user prompt for one prescription plus a compact
// summary of the structural analysis.
func BuildPrompt(p *prescription.Prescription, analysis *sut.Analysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Prescription %s\n", p.PrescriptionID)
	fmt.Fprintf(&b, "Patient: %s (national id: %s)\n", orDash(p.Patient.Name), orDash(p.Patient.NationalID))
	if p.Date != "" {
		fmt.Fprintf(&b, "Date: %s\n", p.Date)
	}

	b.WriteString("Drugs:\n")
	for i, d := range p.Drugs {
		fmt.Fprintf(&b, "  %d. %s, quantity %s", i+1, d.NormalizedName(), orDash(d.Quantity.String()))
		if d.ReportCode != "" {
			fmt.Fprintf(&b, ", report code %s", d.ReportCode)
		}
		b.WriteByte('\n')
	}

	if diags := p.Diagnoses(); len(diags) > 0 {
		fmt.Fprintf(&b, "Diagnoses: %s\n", strings.Join(diags, ", "))
	}
	if len(p.DrugMessages) > 0 {
		b.WriteString("Message codes:\n")
		for _, m := range p.DrugMessages {
			fmt.Fprintf(&b, "  %s %s\n", m.Code, m.Text)
		}
	}
	if p.Report != nil {
		fmt.Fprintf(&b, "Report: id=%s date=%s doctor=%s specialty=%s\n",
			orDash(p.Report.ReportID), orDash(p.Report.ReportDate),
			orDash(p.Report.Doctor), orDash(p.Report.Specialty))
	}

	compliant := "no"
	if analysis.OverallCompliant {
		compliant = "yes"
	}
	fmt.Fprintf(&b, "SUT structural analysis: compliant=%s, issues=%d, warnings=%d\n",
		compliant, len(analysis.Issues), len(analysis.Warnings))
	for _, iss := range analysis.Issues {
		fmt.Fprintf(&b, "  issue: %s\n", iss)
	}
	for _, w := range analysis.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", w)
	}

	b.WriteString("\nAssess the prescription and reply with the JSON object only.")
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
