package source

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rxguard/rxguard/internal/domain/prescription"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadFile(t *testing.T) {
	path := writeTemp(t, `[
		{"prescription_id": "P1", "patient": {"national_id": "12345678901", "name": "Test"}, "drugs": [{"name": "VEMLIDY", "quantity": "1"}]},
		{"prescription_id": "P2", "patient": {"name": "Other"}, "drugs": []}
	]`)

	records, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].PrescriptionID != "P1" {
		t.Errorf("unexpected id %q", records[0].PrescriptionID)
	}
	for i, r := range records {
		if r.Source.Origin != prescription.OriginFile {
			t.Errorf("record %d: origin = %q, want file", i, r.Source.Origin)
		}
		if r.Source.ExtractedAt.IsZero() {
			t.Errorf("record %d: extracted_at not set", i)
		}
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrFileMissing) {
		t.Fatalf("expected ErrFileMissing, got %v", err)
	}
}

func TestReadFileNotSequence(t *testing.T) {
	path := writeTemp(t, `{"prescription_id": "P1"}`)
	if _, err := ReadFile(path); !errors.Is(err, ErrNotSequence) {
		t.Fatalf("expected ErrNotSequence, got %v", err)
	}
}

func TestReadFileKeepsExtractedAt(t *testing.T) {
	path := writeTemp(t, `[{"prescription_id": "P1", "source_metadata": {"origin": "live", "extracted_at": "2026-01-02T10:00:00Z"}}]`)
	records, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := records[0].Source.ExtractedAt.Format("2006-01-02"); got != "2026-01-02" {
		t.Errorf("extracted_at rewritten: %s", got)
	}
	// origin is always rewritten to reflect the actual input channel
	if records[0].Source.Origin != prescription.OriginFile {
		t.Errorf("origin = %q, want file", records[0].Source.Origin)
	}
}
