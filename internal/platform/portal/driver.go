// Package portal declares the browser-automation façade over the national
// health-insurance portal. The element-location heuristics live in an
// external automation sidecar; RemoteDriver speaks its HTTP API, and the
// pipeline depends only on the Driver interface.
package portal

import (
	"context"
	"errors"

	"github.com/rxguard/rxguard/internal/domain/prescription"
)

var (
	// ErrTimeout is returned when a portal interaction exceeds its per-step
	// budget. Callers translate it into a hold, never a batch abort.
	ErrTimeout = errors.New("portal: step timed out")
	// ErrNotFound is returned by the lookup calls when the portal has no
	// record for the requested key.
	ErrNotFound = errors.New("portal: not found")
)

// Group is the prescription list filter (A, B or C).
type Group string

const (
	GroupA Group = "A"
	GroupB Group = "B"
	GroupC Group = "C"
)

// Summary is one row of the portal's prescription list, enough to fetch the
// detail page.
type Summary struct {
	PrescriptionID string
	PatientName    string
	RowIndex       int
}

// Driver is the capability handle for the portal session. A driver instance
// is single-threaded and owned by exactly one orchestrator call at a time;
// Close must be invoked on every exit path.
type Driver interface {
	// Login authenticates the session. The driver resolves interactive
	// CAPTCHA with a human in the loop; Login returns once the session is
	// ready or the context expires.
	Login(ctx context.Context) error
	NavigateToList(ctx context.Context) error
	ApplyFilter(ctx context.Context, group Group) error
	ExtractPrescriptions(ctx context.Context, limit int) ([]Summary, error)
	ExtractPrescriptionDetail(ctx context.Context, row Summary) (*prescription.Prescription, error)

	// LookupActiveIngredient resolves a drug name to its active ingredient
	// via the portal's drug registry.
	LookupActiveIngredient(ctx context.Context, drugName string) (string, error)
	// LookupReportDose fetches the authorized dose for an ingredient under a
	// report code.
	LookupReportDose(ctx context.Context, reportCode, ingredient string) (string, error)

	Close() error
}
