package grading_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
	"github.com/hanyue-dev/ai-essay-grader/internal/domain/mocks"
	"github.com/hanyue-dev/ai-essay-grader/internal/grading"
)

func floatPtr(v float64) *float64 { return &v }

func TestSemanticScore_ParsesDecimalReply(t *testing.T) {
	t.Parallel()
	oracle := &mocks.MockOracleClient{}
	oracle.On("Complete", mock.Anything, mock.Anything, 0.0, 16, false).Return("0.82", nil)
	e := grading.NewSemanticEvaluator(oracle, 0, 0)
	got := e.Score(context.Background(), "point", "answer")
	assert.InDelta(t, 0.82, got, 1e-9)
}

func TestSemanticScore_NonNumericReplyIsNeutral(t *testing.T) {
	t.Parallel()
	oracle := &mocks.MockOracleClient{}
	oracle.On("Complete", mock.Anything, mock.Anything, 0.0, 16, false).Return("I think it covers it well", nil)
	e := grading.NewSemanticEvaluator(oracle, 0, 0)
	assert.InDelta(t, 0.5, e.Score(context.Background(), "point", "answer"), 1e-9)
}

func TestSemanticScore_ErrorIsNeutral(t *testing.T) {
	t.Parallel()
	oracle := &mocks.MockOracleClient{}
	oracle.On("Complete", mock.Anything, mock.Anything, 0.0, 16, false).Return("", errors.New("boom"))
	e := grading.NewSemanticEvaluator(oracle, 0, 0)
	assert.InDelta(t, 0.5, e.Score(context.Background(), "point", "answer"), 1e-9)
}

func TestSemanticScore_ClampsOutOfRange(t *testing.T) {
	t.Parallel()
	oracle := &mocks.MockOracleClient{}
	oracle.On("Complete", mock.Anything, mock.Anything, 0.0, 16, false).Return("1.7", nil)
	e := grading.NewSemanticEvaluator(oracle, 0, 0)
	assert.InDelta(t, 1.0, e.Score(context.Background(), "point", "answer"), 1e-9)
}

func TestCreditPoint_KeywordMatchEarnsFullScore(t *testing.T) {
	t.Parallel()
	e := grading.NewSemanticEvaluator(nil, 0, 0.85)
	p := domain.ScoringPoint{Order: 1, Content: "c", MaxScore: 4}
	pm := e.CreditPoint(p, grading.MatchOutcome{Matched: true, Kind: domain.MatchKeyword, Evidence: "a, b"}, nil)
	assert.True(t, pm.Matched)
	assert.Equal(t, domain.MatchKeyword, pm.Kind)
	assert.Equal(t, 4.0, pm.EarnedScore)
	assert.Equal(t, "a, b", pm.Evidence)
}

func TestCreditPoint_SimilarityAtCutoffEarnsFullScore(t *testing.T) {
	t.Parallel()
	e := grading.NewSemanticEvaluator(nil, 0, 0.85)
	p := domain.ScoringPoint{MaxScore: 4}
	pm := e.CreditPoint(p, grading.MatchOutcome{Kind: domain.MatchNone}, floatPtr(0.85))
	assert.Equal(t, domain.MatchSemantic, pm.Kind)
	assert.Equal(t, 4.0, pm.EarnedScore)
}

func TestCreditPoint_SimilarityAboveThresholdIsProportional(t *testing.T) {
	t.Parallel()
	e := grading.NewSemanticEvaluator(nil, 0, 0.85)
	p := domain.ScoringPoint{MaxScore: 4}
	pm := e.CreditPoint(p, grading.MatchOutcome{Kind: domain.MatchNone}, floatPtr(0.75))
	assert.Equal(t, domain.MatchSemantic, pm.Kind)
	// round1(4 * 0.75) = 3.0
	assert.Equal(t, 3.0, pm.EarnedScore)
}

func TestCreditPoint_BelowThresholdKeepsDeterministicPartial(t *testing.T) {
	t.Parallel()
	e := grading.NewSemanticEvaluator(nil, 0, 0.85)
	p := domain.ScoringPoint{MaxScore: 5}
	pm := e.CreditPoint(p, grading.MatchOutcome{Matched: true, Kind: domain.MatchPartial}, floatPtr(0.3))
	assert.Equal(t, domain.MatchPartial, pm.Kind)
	assert.Equal(t, 2.5, pm.EarnedScore)
}

func TestCreditPoint_BelowThresholdNoPartialEarnsZero(t *testing.T) {
	t.Parallel()
	e := grading.NewSemanticEvaluator(nil, 0, 0.85)
	p := domain.ScoringPoint{MaxScore: 5}
	pm := e.CreditPoint(p, grading.MatchOutcome{Kind: domain.MatchNone}, floatPtr(0.3))
	assert.False(t, pm.Matched)
	assert.Equal(t, 0.0, pm.EarnedScore)
	assert.Equal(t, domain.MatchNone, pm.Kind)
}

func TestCreditPoint_HardFailEarnsZeroRegardless(t *testing.T) {
	t.Parallel()
	e := grading.NewSemanticEvaluator(nil, 0, 0.85)
	p := domain.ScoringPoint{MaxScore: 5}
	pm := e.CreditPoint(p, grading.MatchOutcome{Kind: domain.MatchNone, HardFail: true}, nil)
	assert.False(t, pm.Matched)
	assert.Equal(t, 0.0, pm.EarnedScore)
}

func TestCreditPoint_SimilarityAtDefaultThresholdMatches(t *testing.T) {
	t.Parallel()
	e := grading.NewSemanticEvaluator(nil, 0, 0.85)
	p := domain.ScoringPoint{MaxScore: 5}
	pm := e.CreditPoint(p, grading.MatchOutcome{Kind: domain.MatchNone}, floatPtr(0.70))
	assert.True(t, pm.Matched)
	assert.Equal(t, domain.MatchSemantic, pm.Kind)
	// round1(5 * 0.70) = 3.5
	assert.Equal(t, 3.5, pm.EarnedScore)
}

func TestCreditPoint_SimilarityJustBelowDefaultThresholdDoesNot(t *testing.T) {
	t.Parallel()
	e := grading.NewSemanticEvaluator(nil, 0, 0.85)
	p := domain.ScoringPoint{MaxScore: 5}
	pm := e.CreditPoint(p, grading.MatchOutcome{Kind: domain.MatchNone}, floatPtr(0.69))
	assert.False(t, pm.Matched)
	assert.Equal(t, domain.MatchNone, pm.Kind)
	assert.Equal(t, 0.0, pm.EarnedScore)
}

func TestCreditPoint_ConfiguredDefaultThresholdApplies(t *testing.T) {
	t.Parallel()
	e := grading.NewSemanticEvaluator(nil, 0.6, 0.85)
	p := domain.ScoringPoint{MaxScore: 4}
	pm := e.CreditPoint(p, grading.MatchOutcome{Kind: domain.MatchNone}, floatPtr(0.65))
	assert.Equal(t, domain.MatchSemantic, pm.Kind)
	assert.Equal(t, 2.6, pm.EarnedScore)

	// The point's own threshold still wins over the configured default.
	p.SemanticThreshold = 0.75
	pm = e.CreditPoint(p, grading.MatchOutcome{Kind: domain.MatchNone}, floatPtr(0.65))
	assert.False(t, pm.Matched)
	assert.Equal(t, 0.0, pm.EarnedScore)
}

func TestCreditPoint_PerPointThresholdOverride(t *testing.T) {
	t.Parallel()
	e := grading.NewSemanticEvaluator(nil, 0, 0.85)
	p := domain.ScoringPoint{MaxScore: 4, SemanticThreshold: 0.6}
	pm := e.CreditPoint(p, grading.MatchOutcome{Kind: domain.MatchNone}, floatPtr(0.65))
	assert.Equal(t, domain.MatchSemantic, pm.Kind)
	// Below the default 0.70 but above the point's own 0.6.
	assert.Equal(t, 2.6, pm.EarnedScore)
}
