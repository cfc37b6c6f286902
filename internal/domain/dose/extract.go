package dose

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rxguard/rxguard/internal/domain/prescription"
)

// Report-code extraction is a strategies list: each strategy returns an
// optional code and the first non-empty result wins. The portal renders the
// code in several shapes, so exception-style probing is replaced by this
// data-driven scan.
var reportCodeStrategies = []func(d prescription.Drug) string{
	func(d prescription.Drug) string { return strings.TrimSpace(d.ReportCode) },
	func(d prescription.Drug) string { return rePrefixed.FindString(d.Name) },
	func(d prescription.Drug) string {
		if m := reParenthesized.FindStringSubmatch(d.Name); m != nil {
			return m[1]
		}
		return ""
	},
	func(d prescription.Drug) string { return reBareNumber.FindString(d.Name) },
}

var (
	rePrefixed      = regexp.MustCompile(`R[0-9]{6,}`)
	reParenthesized = regexp.MustCompile(`\(([A-Z][0-9]+)\)`)
	reBareNumber    = regexp.MustCompile(`[0-9]{6,}`)
	reMessageCode   = regexp.MustCompile(`\b[0-9]{4}\b`)
	reLeadingNumber = regexp.MustCompile(`[0-9]+(?:[.,][0-9]+)?`)
)

// ExtractReportCode returns the drug's report code, or "" when the drug is
// not report-governed.
func ExtractReportCode(d prescription.Drug) string {
	for _, strategy := range reportCodeStrategies {
		if code := strategy(d); code != "" {
			return code
		}
	}
	return ""
}

// ExtractMessageCodes returns the sorted union of 4-digit message codes found
// in the drug name and the prescription's message block.
func ExtractMessageCodes(d prescription.Drug, messages []prescription.DrugMessage) []string {
	set := make(map[string]bool)
	for _, code := range reMessageCode.FindAllString(d.Name, -1) {
		set[code] = true
	}
	for _, m := range messages {
		if code := strings.TrimSpace(m.Code); reMessageCode.MatchString(code) {
			set[code] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// ParseLeadingNumber extracts the first numeric value from a quantity or dose
// string, accepting either "," or "." as the decimal separator.
func ParseLeadingNumber(s string) (float64, bool) {
	m := reLeadingNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
