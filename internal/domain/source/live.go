package source

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rxguard/rxguard/internal/domain/prescription"
	"github.com/rxguard/rxguard/internal/platform/portal"
)

// LiveAdapter enumerates prescriptions through the portal driver. The driver
// is owned by the caller: the adapter never closes it, so the same session
// can serve the dose controller's detailed-mode lookups afterwards.
type LiveAdapter struct {
	driver      portal.Driver
	stepTimeout time.Duration
	log         zerolog.Logger
}

func NewLiveAdapter(driver portal.Driver, stepTimeout time.Duration, log zerolog.Logger) *LiveAdapter {
	if stepTimeout <= 0 {
		stepTimeout = 30 * time.Second
	}
	return &LiveAdapter{driver: driver, stepTimeout: stepTimeout, log: log}
}

// Fetch logs in, applies the group filter and extracts up to limit
// prescription details. A row whose detail extraction fails becomes a
// synthetic fallback record; the batch keeps going.
func (a *LiveAdapter) Fetch(ctx context.Context, limit int, group portal.Group) ([]prescription.Prescription, error) {
	if err := a.step(ctx, a.driver.Login); err != nil {
		return nil, fmt.Errorf("portal login: %w", err)
	}
	if err := a.step(ctx, a.driver.NavigateToList); err != nil {
		return nil, fmt.Errorf("navigate to list: %w", err)
	}
	if err := a.step(ctx, func(ctx context.Context) error {
		return a.driver.ApplyFilter(ctx, group)
	}); err != nil {
		return nil, fmt.Errorf("apply filter %s: %w", group, err)
	}

	stepCtx, cancel := context.WithTimeout(ctx, a.stepTimeout)
	rows, err := a.driver.ExtractPrescriptions(stepCtx, limit)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("extract prescription list: %w", err)
	}

	now := time.Now().UTC()
	records := make([]prescription.Prescription, 0, len(rows))
	for _, row := range rows {
		stepCtx, cancel := context.WithTimeout(ctx, a.stepTimeout)
		p, err := a.driver.ExtractPrescriptionDetail(stepCtx, row)
		cancel()
		if err != nil {
			a.log.Warn().Err(err).Str("prescription_id", row.PrescriptionID).
				Msg("detail extraction failed, recording fallback row")
			records = append(records, fallbackRecord(row, now))
			continue
		}
		p.Source.Origin = prescription.OriginLive
		if p.Source.ExtractedAt.IsZero() {
			p.Source.ExtractedAt = now
		}
		records = append(records, *p)
	}
	return records, nil
}

func (a *LiveAdapter) step(ctx context.Context, fn func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, a.stepTimeout)
	defer cancel()
	return fn(stepCtx)
}

// fallbackRecord is the synthetic stand-in for a row whose detail page could
// not be scraped. It still flows through the pipeline and lands in the
// archive so the row is never silently dropped.
func fallbackRecord(row portal.Summary, extractedAt time.Time) prescription.Prescription {
	return prescription.Prescription{
		PrescriptionID: row.PrescriptionID,
		Patient:        prescription.Patient{Name: row.PatientName},
		Source: prescription.SourceMeta{
			Origin:           prescription.OriginLive,
			ExtractedAt:      extractedAt,
			ExtractionMethod: "fallback",
		},
	}
}
