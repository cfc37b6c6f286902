// Package source builds prescription records from the two supported inputs:
// a serialized document of records, or a live portal session.
package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rxguard/rxguard/internal/domain/prescription"
)

var (
	// ErrFileMissing is returned when the input file does not exist.
	ErrFileMissing = errors.New("source: input file not found")
	// ErrNotSequence is returned when the document is not an array of
	// prescription objects.
	ErrNotSequence = errors.New("source: input is not a sequence of prescriptions")
)

// ReadFile loads a UTF-8 JSON document containing an array of prescription
// records. Records are tagged with origin=file.
func ReadFile(path string) ([]prescription.Prescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileMissing, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var records []prescription.Prescription
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSequence, err)
	}

	now := time.Now().UTC()
	for i := range records {
		records[i].Source.Origin = prescription.OriginFile
		if records[i].Source.ExtractedAt.IsZero() {
			records[i].Source.ExtractedAt = now
		}
	}
	return records, nil
}
