package dose

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rxguard/rxguard/internal/domain/decision"
	"github.com/rxguard/rxguard/internal/domain/prescription"
)

// Service is the dose controller. The cache repository is its only mutable
// state, and the service is the single writer to those tables.
type Service struct {
	cache  CacheRepository
	source LookupSource // nil when no portal session is available
	log    zerolog.Logger
}

func NewService(cache CacheRepository, source LookupSource, log zerolog.Logger) *Service {
	return &Service{cache: cache, source: source, log: log}
}

// Control reconciles every drug on the prescription against its authorized
// dose. Per-drug failures are recorded in the detail rows and never abort the
// prescription.
func (s *Service) Control(ctx context.Context, p *prescription.Prescription, mode Mode) (*ControlResult, error) {
	result := &ControlResult{TotalDrugs: len(p.Drugs)}

	if len(p.Drugs) == 0 {
		result.OverallDecision = decision.Hold
		result.Note = "no drugs to analyze"
		return result, nil
	}

	codes := make(map[string]bool)
	for _, drug := range p.Drugs {
		detail := s.controlDrug(ctx, drug, p.DrugMessages, mode)
		for _, c := range detail.MessageCodes {
			codes[c] = true
		}
		switch detail.Status {
		case StatusCompliant:
			result.ReportedDrugs++
			result.CompliantDrugs++
		case StatusViolation:
			result.ReportedDrugs++
			result.Violations = append(result.Violations, detail.Reason)
		case StatusInconclusive, StatusError:
			result.ReportedDrugs++
		}
		result.DrugDetails = append(result.DrugDetails, detail)
	}
	for _, d := range result.DrugDetails {
		for _, c := range d.MessageCodes {
			if codes[c] {
				result.MessageCodes = append(result.MessageCodes, c)
				codes[c] = false
			}
		}
	}

	switch {
	case len(result.Violations) > 0:
		result.OverallDecision = decision.Reject
	case result.ReportedDrugs > 0 && result.CompliantDrugs == result.ReportedDrugs:
		result.OverallDecision = decision.Approve
	case result.ReportedDrugs == 0:
		result.OverallDecision = decision.Hold
		result.Note = "no report-governed drugs on prescription"
	default:
		result.OverallDecision = decision.Hold
		result.Note = "dose data incomplete for one or more drugs"
	}
	return result, nil
}

func (s *Service) controlDrug(ctx context.Context, drug prescription.Drug, messages []prescription.DrugMessage, mode Mode) DrugDetail {
	name := drug.NormalizedName()
	detail := DrugDetail{
		DrugName:       name,
		Prescribed:     drug.Quantity.String(),
		MessagePresent: drug.MessageFlag.Present(),
		MessageCodes:   ExtractMessageCodes(drug, messages),
	}
	if len(detail.MessageCodes) > 0 {
		if err := s.cache.PutMessageCodes(ctx, name, detail.MessageCodes); err != nil {
			s.log.Warn().Err(err).Str("drug", name).Msg("message code cache write failed")
		}
	}

	detail.ReportCode = ExtractReportCode(drug)
	if detail.ReportCode == "" {
		detail.Status = StatusNotReportRequired
		detail.Reason = "no report code, dose check not required"
		return detail
	}

	ingredient, err := s.resolveIngredient(ctx, drug, mode)
	if err != nil {
		detail.Status = StatusInconclusive
		detail.Reason = fmt.Sprintf("active ingredient unknown: %v", err)
		return detail
	}
	detail.ActiveIngredient = ingredient

	authorized, err := s.resolveAuthorizedDose(ctx, detail.ReportCode, ingredient, mode)
	if err != nil {
		detail.Status = StatusInconclusive
		detail.Reason = fmt.Sprintf("authorized dose unknown: %v", err)
		return detail
	}
	detail.Authorized = authorized

	prescribed, ok := ParseLeadingNumber(detail.Prescribed)
	if !ok {
		detail.Status = StatusInconclusive
		detail.Reason = fmt.Sprintf("prescribed quantity %q is not numeric", detail.Prescribed)
		return detail
	}
	limit, ok := ParseLeadingNumber(authorized)
	if !ok {
		detail.Status = StatusInconclusive
		detail.Reason = fmt.Sprintf("authorized dose %q is not numeric", authorized)
		return detail
	}

	// non-strict comparison: prescribing exactly the authorized dose is fine
	if prescribed <= limit {
		detail.Status = StatusCompliant
		detail.Reason = fmt.Sprintf("prescribed %g within authorized %g", prescribed, limit)
	} else {
		detail.Status = StatusViolation
		detail.Reason = fmt.Sprintf("%s: prescribed %g exceeds authorized %g", name, prescribed, limit)
	}
	return detail
}

// resolveIngredient answers from the cache, falling through to the portal in
// detailed mode and persisting the hit.
func (s *Service) resolveIngredient(ctx context.Context, drug prescription.Drug, mode Mode) (string, error) {
	name := drug.NormalizedName()
	if drug.ActiveIngredient != "" {
		return drug.ActiveIngredient, nil
	}
	ingredient, err := s.cache.GetIngredient(ctx, name)
	if err == nil {
		return ingredient, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return "", err
	}
	if mode != ModeDetailed || s.source == nil {
		return "", fmt.Errorf("not cached (fast mode)")
	}
	ingredient, err = s.source.LookupActiveIngredient(ctx, name)
	if err != nil {
		return "", fmt.Errorf("portal lookup: %w", err)
	}
	if err := s.cache.PutIngredient(ctx, name, ingredient); err != nil {
		s.log.Warn().Err(err).Str("drug", name).Msg("ingredient cache write failed")
	}
	return ingredient, nil
}

func (s *Service) resolveAuthorizedDose(ctx context.Context, reportCode, ingredient string, mode Mode) (string, error) {
	dose, err := s.cache.GetReportDose(ctx, reportCode, ingredient)
	if err == nil {
		return dose, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return "", err
	}
	if mode != ModeDetailed || s.source == nil {
		return "", fmt.Errorf("not cached (fast mode)")
	}
	dose, err = s.source.LookupReportDose(ctx, reportCode, ingredient)
	if err != nil {
		return "", fmt.Errorf("portal lookup: %w", err)
	}
	if err := s.cache.PutReportDose(ctx, reportCode, ingredient, dose); err != nil {
		s.log.Warn().Err(err).Str("report_code", reportCode).Msg("dose cache write failed")
	}
	return dose, nil
}
