package sut

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rxguard/rxguard/internal/domain/decision"
	"github.com/rxguard/rxguard/internal/domain/prescription"
)

// Service evaluates prescriptions against the knowledge base. It holds no
// mutable state and is safe for concurrent use.
type Service struct {
	kb       *KnowledgeBase
	prefixes []string // sorted, for deterministic matching
	now      func() time.Time
}

func NewService(kb *KnowledgeBase) *Service {
	if kb == nil {
		kb = DefaultKnowledgeBase()
	}
	prefixes := make([]string, 0, len(kb.Drugs))
	for p := range kb.Drugs {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return &Service{kb: kb, prefixes: prefixes, now: time.Now}
}

// Analyze runs the full structural check and returns every finding.
func (s *Service) Analyze(p *prescription.Prescription) *Analysis {
	a := &Analysis{}
	diagnoses := p.Diagnoses()

	var matched []matchedRule
	seen := make(map[string]bool)
	for _, drug := range p.Drugs {
		finding := DrugFinding{DrugName: drug.NormalizedName()}
		prefix, req, ok := s.lookup(drug)
		if !ok {
			a.DrugFindings = append(a.DrugFindings, finding)
			continue
		}
		finding.Matched = true
		finding.RulePrefix = prefix
		finding.Category = req.Category
		if !seen[prefix] {
			seen[prefix] = true
			matched = append(matched, matchedRule{prefix: prefix, req: req})
		}

		finding.DiagnosisOK = anyDiagnosisMatches(req.RequiredDiagnoses, diagnoses)
		if !finding.DiagnosisOK {
			a.Issues = append(a.Issues, fmt.Sprintf(
				"%s requires one of diagnoses %s, none present",
				finding.DrugName, strings.Join(req.RequiredDiagnoses, ", ")))
		}

		finding.ReportOK = !req.ReportRequired || p.HasReport()
		if !finding.ReportOK {
			a.Issues = append(a.Issues, fmt.Sprintf(
				"%s requires a report but the prescription has none", finding.DrugName))
		}

		if len(req.Contraindications) > 0 {
			finding.Contraindicated = req.Contraindications
			for _, c := range req.Contraindications {
				a.Warnings = append(a.Warnings, fmt.Sprintf(
					"%s contraindicated with %s", finding.DrugName, c))
			}
		}

		a.DrugFindings = append(a.DrugFindings, finding)
	}

	s.checkMessages(p, matched, a)
	s.checkGeneral(p, a)

	a.OverallCompliant = len(a.Issues) == 0
	return a
}

// matchedRule pairs a knowledge-base prefix with its requirement, in the
// order drugs appear on the prescription.
type matchedRule struct {
	prefix string
	req    DrugRequirement
}

// checkMessages validates the message codes present on the prescription and
// flags required codes that are missing. Unknown codes are a warning, not an
// issue.
func (s *Service) checkMessages(p *prescription.Prescription, matched []matchedRule, a *Analysis) {
	present := make(map[string]bool)
	for _, m := range p.DrugMessages {
		code := strings.TrimSpace(m.Code)
		if code == "" {
			continue
		}
		present[code] = true

		finding := MessageFinding{Code: code}
		if _, known := s.kb.Messages[code]; known {
			finding.Known = true
		}
		for _, m := range matched {
			if contains(m.req.AllowedMessageCodes, code) {
				finding.Valid = true
				break
			}
		}
		if !finding.Known {
			finding.Note = "unknown message code"
			a.Warnings = append(a.Warnings, fmt.Sprintf("unknown message code %s", code))
		} else if !finding.Valid {
			finding.Note = "not linked to any drug on the prescription"
			a.Warnings = append(a.Warnings, fmt.Sprintf(
				"message code %s is not linked to any drug on the prescription", code))
		}
		a.MessageFindings = append(a.MessageFindings, finding)
	}

	for _, m := range matched {
		if len(m.req.AllowedMessageCodes) == 0 {
			continue
		}
		found := false
		for _, code := range m.req.AllowedMessageCodes {
			if present[code] {
				found = true
				break
			}
		}
		if !found {
			a.Issues = append(a.Issues, fmt.Sprintf(
				"%s requires message code %s, none present",
				m.prefix, strings.Join(m.req.AllowedMessageCodes, " or ")))
		}
	}
}

func (s *Service) checkGeneral(p *prescription.Prescription, a *Analysis) {
	if s.kb.General.RequirePatientID {
		id := strings.TrimSpace(p.Patient.NationalID)
		switch {
		case id == "":
			a.Issues = append(a.Issues, "patient national id is missing")
			a.GeneralFindings = append(a.GeneralFindings, "patient id: missing")
		case len(id) != 11:
			a.Warnings = append(a.Warnings, fmt.Sprintf(
				"patient national id has unexpected length %d", len(id)))
		default:
			a.GeneralFindings = append(a.GeneralFindings, "patient id: present")
		}
	}

	if p.Date != "" {
		date, err := time.Parse("02/01/2006", strings.TrimSpace(p.Date))
		if err != nil {
			a.Issues = append(a.Issues, fmt.Sprintf("unparseable prescription date %q", p.Date))
			return
		}
		ageDays := int(s.now().Sub(date).Hours() / 24)
		if ageDays > s.kb.General.MaxPrescriptionAgeDays {
			a.Issues = append(a.Issues, fmt.Sprintf(
				"prescription is %d days old, limit is %d",
				ageDays, s.kb.General.MaxPrescriptionAgeDays))
		} else {
			a.GeneralFindings = append(a.GeneralFindings,
				fmt.Sprintf("prescription age: %d days", ageDays))
		}
	}
}

// Recommend maps an analysis onto an action. A panic anywhere in the
// evaluation degrades to a low-confidence hold instead of taking the batch
// down.
func (s *Service) Recommend(p *prescription.Prescription) (rec Recommendation) {
	defer func() {
		if r := recover(); r != nil {
			rec = Recommendation{Verdict: decision.Verdict{
				Action:     decision.Hold,
				Confidence: 0.1,
				Reason:     fmt.Sprintf("SUT error: %v", r),
			}}
		}
	}()

	a := s.Analyze(p)
	rec = Recommendation{Issues: a.Issues, Warnings: a.Warnings}
	switch {
	case a.OverallCompliant && len(a.Warnings) == 0:
		rec.Action = decision.Approve
		rec.Confidence = 0.95
		rec.Reason = "all SUT checks passed"
	case a.OverallCompliant:
		rec.Action = decision.Approve
		rec.Confidence = 0.80
		rec.Reason = fmt.Sprintf("SUT compliant with %d warning(s)", len(a.Warnings))
	case len(a.Issues) >= 3:
		rec.Action = decision.Reject
		rec.Confidence = 0.90
		rec.Reason = fmt.Sprintf("%d SUT issues: %s", len(a.Issues), strings.Join(a.Issues, "; "))
	default:
		rec.Action = decision.Hold
		rec.Confidence = 0.60
		rec.Reason = fmt.Sprintf("SUT issues need review: %s", strings.Join(a.Issues, "; "))
	}
	return rec
}

// lookup finds the requirement for a drug, matching the leading token of the
// normalized name by prefix first and the full name by substring second.
func (s *Service) lookup(d prescription.Drug) (string, DrugRequirement, bool) {
	name := d.NormalizedName()
	if name == "" {
		return "", DrugRequirement{}, false
	}
	token := name
	if i := strings.IndexAny(name, " \t"); i > 0 {
		token = name[:i]
	}
	for _, prefix := range s.prefixes {
		if strings.HasPrefix(token, prefix) {
			return prefix, s.kb.Drugs[prefix], true
		}
	}
	for _, prefix := range s.prefixes {
		if strings.Contains(name, prefix) {
			return prefix, s.kb.Drugs[prefix], true
		}
	}
	return "", DrugRequirement{}, false
}

func anyDiagnosisMatches(required, have []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, req := range required {
		req = strings.ToUpper(strings.TrimSpace(req))
		for _, h := range have {
			h = strings.ToUpper(strings.TrimSpace(h))
			if h == req || strings.HasPrefix(h, req) || strings.HasPrefix(req, h) {
				return true
			}
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
