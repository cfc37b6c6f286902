package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rxguard/rxguard/internal/domain/decision"
	"github.com/rxguard/rxguard/internal/domain/prescription"
	"github.com/rxguard/rxguard/internal/domain/sut"
	"github.com/rxguard/rxguard/internal/platform/llm"
)

// Service produces the advisory verdict. It reuses the SUT engine both for
// the prompt summary and as its fallback when the model is unavailable.
type Service struct {
	sut    *sut.Service
	client llm.Client // nil when no credential is configured
	opts   llm.Options
	log    zerolog.Logger
}

func NewService(sutSvc *sut.Service, client llm.Client, opts llm.Options, log zerolog.Logger) *Service {
	return &Service{sut: sutSvc, client: client, opts: opts, log: log}
}

// Analyze obtains the AI verdict for one prescription. It never returns an
// error: LLM or parse failures degrade to the SUT recommendation tagged as a
// fallback.
func (s *Service) Analyze(ctx context.Context, p *prescription.Prescription) Verdict {
	sutRec := s.sut.Recommend(p)

	if s.client == nil {
		v := sutOnlyVerdict(sutRec)
		v.Method = MethodSutOnly
		return v
	}

	analysis := s.sut.Analyze(p)
	user := BuildPrompt(p, analysis)

	raw, err := s.client.Complete(ctx, systemPrompt, user, s.opts)
	if err != nil {
		s.log.Warn().Err(err).Str("prescription_id", p.PrescriptionID).
			Str("provider", s.client.Name()).Msg("llm request failed, using SUT fallback")
		return fallbackVerdict(sutRec, err)
	}

	parsed, err := ParseVerdict(raw)
	if err != nil {
		s.log.Warn().Err(err).Str("prescription_id", p.PrescriptionID).
			Msg("llm response unparseable, using SUT fallback")
		return fallbackVerdict(sutRec, err)
	}

	return fuseWithSut(sutRec, parsed)
}

// fuseWithSut reconciles the structural and advisory verdicts. Identical
// actions pass through; a reject paired with a hold hardens to reject; any
// disagreement between a permissive and a restrictive action collapses to
// hold. Confidence is the minimum of the two.
func fuseWithSut(sutRec sut.Recommendation, aiV Verdict) Verdict {
	out := aiV
	sutAction := sutRec.Action
	aiAction := aiV.Action

	switch {
	case sutAction == aiAction:
		out.Action = aiAction
	case (sutAction == decision.Reject && aiAction == decision.Hold) ||
		(sutAction == decision.Hold && aiAction == decision.Reject):
		out.Action = decision.Reject
		out.Reason = fmt.Sprintf("SUT %s + AI %s harden to reject; %s", sutAction, aiAction, aiV.Reason)
	default:
		out.Action = decision.Hold
		out.Reason = fmt.Sprintf("SUT says %s, AI says %s; disagreement requires manual review", sutAction, aiAction)
	}

	if sutRec.Confidence < out.Confidence {
		out.Confidence = sutRec.Confidence
	}
	if out.SutComplianceComment == "" {
		out.SutComplianceComment = sutRec.Reason
	}
	return out
}

func sutOnlyVerdict(rec sut.Recommendation) Verdict {
	v := Verdict{SutComplianceComment: rec.Reason}
	v.Action = rec.Action
	v.Confidence = rec.Confidence
	v.Reason = rec.Reason
	return v
}

func fallbackVerdict(rec sut.Recommendation, cause error) Verdict {
	v := sutOnlyVerdict(rec)
	v.Method = MethodSutFallback
	v.Error = cause.Error()
	return v
}
