package dose

import (
	"reflect"
	"testing"

	"github.com/rxguard/rxguard/internal/domain/prescription"
)

func TestExtractReportCode(t *testing.T) {
	cases := []struct {
		name string
		drug prescription.Drug
		want string
	}{
		{"field wins", prescription.Drug{Name: "VEMLIDY R999999", ReportCode: "R100001"}, "R100001"},
		{"prefixed in name", prescription.Drug{Name: "VEMLIDY 25MG R100001"}, "R100001"},
		{"parenthesized token", prescription.Drug{Name: "HUMIRA 40MG (X123456)"}, "X123456"},
		{"bare number", prescription.Drug{Name: "ENBREL 50MG 654321"}, "654321"},
		{"no code", prescription.Drug{Name: "PARACETAMOL 500MG"}, ""},
		{"short number ignored", prescription.Drug{Name: "NEXIUM 40 MG 28 TABLET"}, ""},
	}
	for _, c := range cases {
		if got := ExtractReportCode(c.drug); got != c.want {
			t.Errorf("%s: ExtractReportCode = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestExtractMessageCodes(t *testing.T) {
	drug := prescription.Drug{Name: "VEMLIDY 25MG [1013]"}
	messages := []prescription.DrugMessage{{Code: "1013"}, {Code: "1301"}, {Code: "bad"}}
	got := ExtractMessageCodes(drug, messages)
	want := []string{"1013", "1301"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractMessageCodes = %v, want %v", got, want)
	}
}

func TestExtractMessageCodesIgnoresLongNumbers(t *testing.T) {
	drug := prescription.Drug{Name: "ENBREL 654321"}
	if got := ExtractMessageCodes(drug, nil); got != nil {
		t.Errorf("6-digit number should not yield message codes, got %v", got)
	}
}

func TestParseLeadingNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"30", 30, true},
		{"2,5", 2.5, true},
		{"2.5 mg daily", 2.5, true},
		{"up to 30 tablets", 30, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseLeadingNumber(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("ParseLeadingNumber(%q) = %v, %v; want %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}
