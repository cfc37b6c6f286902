package decision

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no archived result exists for a prescription.
var ErrNotFound = errors.New("decision: not found")

// ArchiveRepository stores every DecisionResult plus the append-only
// processing log. Saving the same prescription twice replaces the row.
type ArchiveRepository interface {
	Save(ctx context.Context, r *Result) error
	GetByPrescriptionID(ctx context.Context, prescriptionID string) (*Result, error)
	List(ctx context.Context, limit, offset int) ([]*Result, int, error)
	CountByDecision(ctx context.Context) (map[Action]int, error)

	AppendLog(ctx context.Context, prescriptionID, action, details string) error
	ListLogs(ctx context.Context, prescriptionID string) ([]*ProcessingLog, error)
}
