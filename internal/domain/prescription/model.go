// Package prescription defines the immutable input record that flows through
// the decision pipeline, together with the normalization helpers the source
// adapters rely on. A record is built once by an adapter and never mutated by
// the analyzers.
package prescription

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Origin identifies where a prescription record came from.
type Origin string

const (
	OriginFile   Origin = "file"
	OriginLive   Origin = "live"
	OriginManual Origin = "manual"
)

// Prescription is one prescription as retrieved from the portal or read from
// an input file. Optional fields default to their zero value.
type Prescription struct {
	PrescriptionID string        `json:"prescription_id"`
	Patient        Patient       `json:"patient"`
	Date           string        `json:"prescription_date,omitempty"` // dd/mm/yyyy
	Drugs          []Drug        `json:"drugs"`
	DrugMessages   []DrugMessage `json:"drug_messages,omitempty"`
	Report         *Report       `json:"report,omitempty"`
	Source         SourceMeta    `json:"source_metadata"`
}

// Patient holds the patient identifiers attached to a prescription.
// NationalID is an 11-digit string or empty when the portal hid it.
type Patient struct {
	NationalID string `json:"national_id"`
	Name       string `json:"name"`
	DOB        string `json:"dob,omitempty"`
}

// Drug is one prescribed drug line.
type Drug struct {
	Name             string      `json:"name"`
	Quantity         Quantity    `json:"quantity"`
	Barcode          string      `json:"barcode,omitempty"`
	ReportCode       string      `json:"report_code,omitempty"`
	MessageFlag      MessageFlag `json:"message_flag,omitempty"`
	ActiveIngredient string      `json:"active_ingredient,omitempty"`
}

// NormalizedName returns the drug name trimmed and upper-cased, the form the
// SUT knowledge base and the dose caches are keyed by.
func (d Drug) NormalizedName() string {
	return strings.ToUpper(strings.TrimSpace(d.Name))
}

// DrugMessage is a 4-digit SUT message code with its portal text.
type DrugMessage struct {
	Code string `json:"code"`
	Text string `json:"text,omitempty"`
}

// Report is the prior-authorization report block, when present.
type Report struct {
	ReportID   string        `json:"report_id"`
	ReportDate string        `json:"report_date,omitempty"`
	Diagnoses  DiagnosisList `json:"diagnoses,omitempty"`
	Doctor     string        `json:"doctor,omitempty"`
	Specialty  string        `json:"specialty,omitempty"`
}

// SourceMeta records how and when a record was obtained.
type SourceMeta struct {
	Origin           Origin    `json:"origin"`
	ExtractedAt      time.Time `json:"extracted_at,omitempty"`
	ExtractionMethod string    `json:"extraction_method,omitempty"`
}

// Quantity is a prescribed count. Portal extractions yield strings like
// "30" or "2,5" while file records may carry plain JSON numbers, so it
// decodes from either form and keeps the raw text.
type Quantity string

func (q *Quantity) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*q = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*q = Quantity(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("quantity must be a number or string: %w", err)
	}
	*q = Quantity(n.String())
	return nil
}

func (q Quantity) String() string { return string(q) }

// MessageFlag tells whether a drug line carried a message marker on the
// portal. Raw extractions produce a zoo of truthy and falsy tokens; decoding
// normalizes them all to present/absent.
type MessageFlag string

const (
	MessagePresent MessageFlag = "present"
	MessageAbsent  MessageFlag = "absent"
)

var truthyTokens = map[string]bool{
	"present": true, "true": true, "yes": true, "1": true,
	"var": true, "evet": true, "x": true, "+": true,
}

func (f *MessageFlag) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch s {
	case "null", `""`:
		*f = MessageAbsent
		return nil
	case "true":
		*f = MessagePresent
		return nil
	case "false", "0":
		*f = MessageAbsent
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		// numeric: anything non-zero is present
		var n float64
		if nerr := json.Unmarshal(data, &n); nerr == nil {
			if n != 0 {
				*f = MessagePresent
			} else {
				*f = MessageAbsent
			}
			return nil
		}
		return err
	}
	if truthyTokens[strings.ToLower(strings.TrimSpace(v))] {
		*f = MessagePresent
	} else {
		*f = MessageAbsent
	}
	return nil
}

// Present reports whether the flag decoded to present.
func (f MessageFlag) Present() bool { return f == MessagePresent }

// DiagnosisList is the report's ICD code list. Portals emit either bare
// strings ("B18.1") or structured objects with a code field; both decode to
// the plain code list.
type DiagnosisList []string

func (l *DiagnosisList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// tolerate a single bare string
		var one string
		if serr := json.Unmarshal(data, &one); serr == nil {
			*l = DiagnosisList{strings.TrimSpace(one)}
			return nil
		}
		return fmt.Errorf("diagnoses must be an array: %w", err)
	}
	out := make(DiagnosisList, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			Code string `json:"code"`
			ICD  string `json:"icd_code"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("diagnosis entry: %w", err)
		}
		code := obj.Code
		if code == "" {
			code = obj.ICD
		}
		if code = strings.TrimSpace(code); code != "" {
			out = append(out, code)
		}
	}
	*l = out
	return nil
}

// Diagnoses returns the report's ICD codes, or nil when no report exists.
func (p *Prescription) Diagnoses() []string {
	if p.Report == nil {
		return nil
	}
	return p.Report.Diagnoses
}

// HasReport reports whether the prescription carries a non-empty report id.
func (p *Prescription) HasReport() bool {
	return p.Report != nil && strings.TrimSpace(p.Report.ReportID) != ""
}

// Validate checks the minimum shape required before a record may enter the
// pipeline. Deeper checks belong to the analyzers.
func (p *Prescription) Validate() error {
	if strings.TrimSpace(p.PrescriptionID) == "" {
		return fmt.Errorf("prescription_id is required")
	}
	return nil
}
