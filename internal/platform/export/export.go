// Package export serializes batch results to the archival JSON document
// consumed by downstream reporting.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rxguard/rxguard/internal/domain/decision"
	"github.com/rxguard/rxguard/internal/domain/pipeline"
)

// FormatVersion identifies the document layout. Bump on breaking changes.
const FormatVersion = "1.0"

// Metadata is the document header.
type Metadata struct {
	ExportedAt time.Time       `json:"exported_at"`
	Total      int             `json:"total"`
	Stats      *pipeline.Stats `json:"stats,omitempty"`
	Version    string          `json:"version"`
}

// Document is the full export payload.
type Document struct {
	Metadata Metadata           `json:"metadata"`
	Results  []*decision.Result `json:"results"`
}

// Write serializes the batch to path, creating parent directories as needed.
// The file is written atomically via a temp file in the same directory.
func Write(path string, results []*decision.Result, stats *pipeline.Stats) error {
	doc := Document{
		Metadata: Metadata{
			ExportedAt: time.Now().UTC(),
			Total:      len(results),
			Stats:      stats,
			Version:    FormatVersion,
		},
		Results: results,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".export-*.json")
	if err != nil {
		return fmt.Errorf("create temp export: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("finalize export: %w", err)
	}
	return nil
}

// Read loads a previously exported document.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}
	return &doc, nil
}
