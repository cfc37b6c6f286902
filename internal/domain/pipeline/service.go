// Package pipeline orchestrates the three analyzers over single
// prescriptions and batches, fuses their verdicts and archives the outcome.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxguard/rxguard/internal/domain/ai"
	"github.com/rxguard/rxguard/internal/domain/decision"
	"github.com/rxguard/rxguard/internal/domain/dose"
	"github.com/rxguard/rxguard/internal/domain/prescription"
	"github.com/rxguard/rxguard/internal/domain/source"
	"github.com/rxguard/rxguard/internal/domain/sut"
	"github.com/rxguard/rxguard/internal/platform/portal"
)

// Stats accumulates batch counters. Total always equals the number of input
// records: every record yields exactly one archived result.
type Stats struct {
	BatchID    string    `json:"batch_id"`
	Total      int       `json:"total"`
	Approved   int       `json:"approved"`
	Rejected   int       `json:"rejected"`
	Held       int       `json:"held"`
	Errors     int       `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (s *Stats) count(a decision.Action) {
	switch a {
	case decision.Approve:
		s.Approved++
	case decision.Reject:
		s.Rejected++
	case decision.Error:
		s.Errors++
	default:
		s.Held++
	}
}

// Service runs the decision pipeline.
type Service struct {
	dose      *dose.Service
	sut       *sut.Service
	ai        *ai.Service
	archive   decision.ArchiveRepository
	delay     time.Duration
	threshold float64 // minimum analyzer confidence for an automatic approve
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(doseSvc *dose.Service, sutSvc *sut.Service, aiSvc *ai.Service,
	archive decision.ArchiveRepository, delay time.Duration, threshold float64, log zerolog.Logger) *Service {
	return &Service{
		dose:      doseSvc,
		sut:       sutSvc,
		ai:        aiSvc,
		archive:   archive,
		delay:     delay,
		threshold: threshold,
		log:       log,
		now:       time.Now,
	}
}

// ProcessSingle runs all three analyzers on one prescription, fuses the
// verdicts and archives the result. It always returns a result, even when
// the record is invalid or an analyzer failed.
func (s *Service) ProcessSingle(ctx context.Context, p *prescription.Prescription, mode dose.Mode, batchID string) *decision.Result {
	started := s.now()

	result := &decision.Result{
		PrescriptionID: p.PrescriptionID,
		PatientSummary: p.Patient.Name,
		RawInputs:      p,
		Metadata: decision.Metadata{
			StartedAt: started,
			Source:    p.Source.Origin,
			BatchID:   batchID,
		},
	}

	if err := p.Validate(); err != nil {
		result.FinalDecision = decision.Error
		result.Details.Issues = append(result.Details.Issues, err.Error())
		s.finish(ctx, result, started, "validation_failed", err.Error())
		return result
	}

	result.Dose = s.runDose(ctx, p, mode, result)
	result.Sut = s.runSut(p, result)
	result.AI = s.runAI(ctx, p, result)

	result.FinalDecision = decision.Fuse(result.Dose.Action, result.Sut.Action, result.AI.Action)
	if result.FinalDecision == decision.Approve && s.threshold > 0 {
		if c := minConfidence(result.Dose, result.Sut, result.AI); c < s.threshold {
			result.FinalDecision = decision.Hold
			result.Details.Warnings = append(result.Details.Warnings, fmt.Sprintf(
				"analyzer confidence %.2f below auto-approve threshold %.2f", c, s.threshold))
		}
	}
	s.finish(ctx, result, started, "decision", string(result.FinalDecision))
	return result
}

func minConfidence(verdicts ...decision.Verdict) float64 {
	min := verdicts[0].Confidence
	for _, v := range verdicts[1:] {
		if v.Confidence < min {
			min = v.Confidence
		}
	}
	return min
}

func (s *Service) runDose(ctx context.Context, p *prescription.Prescription, mode dose.Mode, result *decision.Result) decision.Verdict {
	t0 := s.now()
	control, err := s.dose.Control(ctx, p, mode)
	if err != nil {
		s.log.Error().Err(err).Str("prescription_id", p.PrescriptionID).Msg("dose control failed")
		return decision.Verdict{
			Action:         decision.Error,
			Reason:         fmt.Sprintf("dose control: %v", err),
			ProcessingTime: s.now().Sub(t0).Seconds(),
		}
	}
	result.Details.Violations = append(result.Details.Violations, control.Violations...)
	v := control.Verdict()
	v.ProcessingTime = s.now().Sub(t0).Seconds()
	return v
}

func (s *Service) runSut(p *prescription.Prescription, result *decision.Result) decision.Verdict {
	t0 := s.now()
	rec := s.sut.Recommend(p)
	result.Details.Issues = append(result.Details.Issues, rec.Issues...)
	result.Details.Warnings = append(result.Details.Warnings, rec.Warnings...)
	v := rec.Verdict
	v.ProcessingTime = s.now().Sub(t0).Seconds()
	return v
}

func (s *Service) runAI(ctx context.Context, p *prescription.Prescription, result *decision.Result) decision.Verdict {
	t0 := s.now()
	aiV := s.ai.Analyze(ctx, p)
	result.Details.Warnings = append(result.Details.Warnings, aiV.RiskFactors...)
	result.Details.Recommendations = append(result.Details.Recommendations, aiV.Recommendations...)
	v := aiV.Verdict
	v.ProcessingTime = s.now().Sub(t0).Seconds()
	return v
}

// finish stamps the metadata, persists the result and appends the audit log.
// Persistence failures are logged and never change the decision.
func (s *Service) finish(ctx context.Context, result *decision.Result, started time.Time, action, details string) {
	done := s.now()
	result.Metadata.FinishedAt = done
	result.Metadata.TotalTime = done.Sub(started).Seconds()

	if s.archive == nil {
		return
	}
	if err := s.archive.Save(ctx, result); err != nil {
		s.log.Error().Err(err).Str("prescription_id", result.PrescriptionID).Msg("archive save failed")
	}
	if err := s.archive.AppendLog(ctx, result.PrescriptionID, action, details); err != nil {
		s.log.Error().Err(err).Str("prescription_id", result.PrescriptionID).Msg("audit log append failed")
	}
}

// ProcessBatch processes records in input order. Context cancellation is
// honored between prescriptions; already-produced results are returned
// alongside the context error.
func (s *Service) ProcessBatch(ctx context.Context, records []prescription.Prescription, mode dose.Mode) ([]*decision.Result, *Stats, error) {
	stats := &Stats{
		BatchID:   uuid.NewString(),
		Total:     len(records),
		StartedAt: s.now(),
	}
	results := make([]*decision.Result, 0, len(records))

	for i := range records {
		if err := ctx.Err(); err != nil {
			stats.Total = len(results)
			stats.FinishedAt = s.now()
			return results, stats, fmt.Errorf("batch %s aborted after %d of %d: %w",
				stats.BatchID, len(results), len(records), err)
		}
		if i > 0 && s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
			}
		}

		r := s.ProcessSingle(ctx, &records[i], mode, stats.BatchID)
		stats.count(r.FinalDecision)
		results = append(results, r)

		s.log.Info().
			Str("batch_id", stats.BatchID).
			Str("prescription_id", r.PrescriptionID).
			Str("decision", string(r.FinalDecision)).
			Int("position", i+1).
			Int("of", len(records)).
			Msg("prescription processed")
	}

	stats.FinishedAt = s.now()
	return results, stats, nil
}

// ProcessFromFile reads a serialized batch and processes it in fast mode.
func (s *Service) ProcessFromFile(ctx context.Context, path string) ([]*decision.Result, *Stats, error) {
	records, err := source.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info().Str("path", path).Int("records", len(records)).Msg("file batch loaded")
	return s.ProcessBatch(ctx, records, dose.ModeFast)
}

// ProcessFromLive pulls prescriptions through the portal adapter and
// processes them in detailed mode, so dose cache misses can go back to the
// still-open portal session.
func (s *Service) ProcessFromLive(ctx context.Context, adapter *source.LiveAdapter, limit int, group portal.Group) ([]*decision.Result, *Stats, error) {
	records, err := adapter.Fetch(ctx, limit, group)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info().Int("records", len(records)).Str("group", string(group)).Msg("live batch extracted")
	return s.ProcessBatch(ctx, records, dose.ModeDetailed)
}
