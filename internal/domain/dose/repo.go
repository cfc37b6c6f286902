package dose

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned when a cache table has no row for the key.
var ErrCacheMiss = errors.New("dose: cache miss")

// CacheRepository is the persistent view of the three dose caches. All writes
// are insert-or-replace and safe under repeated identical input.
type CacheRepository interface {
	GetIngredient(ctx context.Context, drugName string) (string, error)
	PutIngredient(ctx context.Context, drugName, ingredient string) error

	GetReportDose(ctx context.Context, reportCode, ingredient string) (string, error)
	PutReportDose(ctx context.Context, reportCode, ingredient, authorizedDose string) error

	GetMessageCodes(ctx context.Context, drugName string) ([]string, error)
	PutMessageCodes(ctx context.Context, drugName string, codes []string) error
}

// LookupSource is the narrow slice of the portal driver the controller needs
// in detailed mode.
type LookupSource interface {
	LookupActiveIngredient(ctx context.Context, drugName string) (string, error)
	LookupReportDose(ctx context.Context, reportCode, ingredient string) (string, error)
}
