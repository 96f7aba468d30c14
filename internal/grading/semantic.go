package grading

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
)

// neutralSimilarity is returned when the Oracle call fails or replies with
// something that is not a number. A flaky point must not abort the answer.
const neutralSimilarity = 0.5

// DefaultFullCreditCutoff awards full credit when similarity reaches it.
// Kept configurable; the value has no documented derivation.
const DefaultFullCreditCutoff = 0.85

// SemanticEvaluator scores topical similarity between one scoring point and
// the answer through a single Oracle call. Invoked only for points the
// deterministic matcher left inconclusive.
type SemanticEvaluator struct {
	Oracle           domain.OracleClient
	DefaultThreshold float64
	FullCreditCutoff float64
}

// NewSemanticEvaluator constructs a SemanticEvaluator. The default threshold
// applies to points that carry no threshold of their own.
func NewSemanticEvaluator(oracle domain.OracleClient, defaultThreshold, fullCreditCutoff float64) *SemanticEvaluator {
	if defaultThreshold <= 0 || defaultThreshold > 1 {
		defaultThreshold = domain.DefaultSemanticThreshold
	}
	if fullCreditCutoff <= 0 || fullCreditCutoff > 1 {
		fullCreditCutoff = DefaultFullCreditCutoff
	}
	return &SemanticEvaluator{Oracle: oracle, DefaultThreshold: defaultThreshold, FullCreditCutoff: fullCreditCutoff}
}

// thresholdFor resolves the effective threshold for one point: the point's
// own value wins, then the evaluator's configured default.
func (e *SemanticEvaluator) thresholdFor(p domain.ScoringPoint) float64 {
	if p.SemanticThreshold <= 0 && e.DefaultThreshold > 0 {
		return e.DefaultThreshold
	}
	return p.Threshold()
}

// Score returns a similarity in [0,1] between the scoring point content and
// the answer. Any failure degrades to the neutral 0.5 rather than
// propagating an error.
func (e *SemanticEvaluator) Score(ctx domain.Context, pointContent, answer string) float64 {
	if e.Oracle == nil {
		return neutralSimilarity
	}
	msgs := []domain.Message{
		{Role: "system", Content: "You grade topical similarity. Reply with a single decimal number between 0 and 1 and nothing else."},
		{Role: "user", Content: fmt.Sprintf("Scoring point:\n%s\n\nAnswer:\n%s\n\nHow well does the answer cover the scoring point? Reply with one number in [0,1].", pointContent, answer)},
	}
	reply, err := e.Oracle.Complete(ctx, msgs, 0.0, 16, false)
	if err != nil {
		slog.Warn("semantic similarity call failed; using neutral default", slog.Any("error", err))
		return neutralSimilarity
	}
	s, ok := parseSimilarity(reply)
	if !ok {
		slog.Warn("semantic similarity reply not numeric; using neutral default", slog.String("reply", truncate(reply, 80)))
		return neutralSimilarity
	}
	return clamp01(s)
}

// CreditPoint turns a deterministic match outcome plus (optional) semantic
// similarity into the final per-point credit.
//
// A keyword match short-circuits with full credit. Otherwise, similarity at
// or above the point's threshold credits the point semantically (full score
// from the cutoff upward, proportional below it); similarity below the
// threshold keeps a deterministic partial at half credit; everything else
// earns zero.
func (e *SemanticEvaluator) CreditPoint(p domain.ScoringPoint, outcome MatchOutcome, similarity *float64) domain.PointMatch {
	pm := domain.PointMatch{
		Order:      p.Order,
		Content:    p.Content,
		MaxScore:   p.MaxScore,
		Kind:       domain.MatchNone,
		Similarity: similarity,
		Evidence:   outcome.Evidence,
	}
	if outcome.Kind == domain.MatchKeyword {
		pm.Matched = true
		pm.Kind = domain.MatchKeyword
		pm.EarnedScore = p.MaxScore
		return pm
	}
	if outcome.HardFail || similarity == nil {
		if outcome.Kind == domain.MatchPartial && !outcome.HardFail {
			pm.Matched = true
			pm.Kind = domain.MatchPartial
			pm.EarnedScore = round1(p.MaxScore * 0.5)
		}
		return pm
	}
	s := *similarity
	switch {
	case s >= e.thresholdFor(p):
		pm.Matched = true
		pm.Kind = domain.MatchSemantic
		if s >= e.FullCreditCutoff {
			pm.EarnedScore = p.MaxScore
		} else {
			pm.EarnedScore = round1(p.MaxScore * s)
		}
	case outcome.Kind == domain.MatchPartial:
		pm.Matched = true
		pm.Kind = domain.MatchPartial
		pm.EarnedScore = round1(p.MaxScore * 0.5)
	}
	return pm
}

func parseSimilarity(reply string) (float64, bool) {
	s := strings.Trim(strings.TrimSpace(reply), "`\"' \n\t")
	s = strings.TrimSuffix(s, ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// round1 rounds to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
