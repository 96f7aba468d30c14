package grading_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
	"github.com/hanyue-dev/ai-essay-grader/internal/domain/mocks"
	"github.com/hanyue-dev/ai-essay-grader/internal/grading"
)

func holisticInput() grading.HolisticInput {
	return grading.HolisticInput{
		Answer:          "城市治理需要多方参与。",
		QuestionPrompt:  "谈谈对城市治理的看法。",
		ReferenceAnswer: "城市治理的关键在于共建共治共享。",
		Points: []domain.ScoringPoint{
			{Order: 1, Content: "多方参与", MaxScore: 5},
			{Order: 2, Content: "制度保障", MaxScore: 5},
		},
	}
}

func TestHolisticGenerate_ParsesWellFormedReply(t *testing.T) {
	t.Parallel()
	reply := `{
		"analysis": "covers participation",
		"dimensions": {"content": 20, "structure": 18, "language": 30, "insight": -2},
		"overall_comment": "solid",
		"strengths": ["participation"],
		"scoring_details": [
			{"point": "多方参与", "max_score": 5, "earned": 9, "status": "FULL", "evidence": "第一段"},
			{"point": "制度保障", "earned": 1, "status": "weird"}
		]
	}`
	oracle := &mocks.MockOracleClient{}
	oracle.On("Complete", mock.Anything, mock.Anything, 0.3, 4096, true).Return(reply, nil)

	g := grading.NewHolisticGenerator(oracle, 0.3, 4096)
	fb, err := g.Generate(context.Background(), holisticInput())
	require.NoError(t, err)

	assert.Equal(t, "covers participation", fb.Analysis)
	assert.Equal(t, 20.0, fb.Dimensions.Content)
	// Dimensions clamp to [0,25].
	assert.Equal(t, 25.0, fb.Dimensions.Language)
	assert.Equal(t, 0.0, fb.Dimensions.Insight)

	require.Len(t, fb.ScoringDetails, 2)
	// Earned clamps to the point max; status normalizes to lowercase.
	assert.Equal(t, 5.0, fb.ScoringDetails[0].Earned)
	assert.Equal(t, "full", fb.ScoringDetails[0].Status)
	// Missing max_score falls back to the rubric point's max.
	assert.Equal(t, 5.0, fb.ScoringDetails[1].MaxScore)
	assert.Equal(t, "partial", fb.ScoringDetails[1].Status)
}

func TestHolisticGenerate_FencedReplyStillParses(t *testing.T) {
	t.Parallel()
	reply := "Here you go:\n```json\n{\"overall_comment\": \"ok\", \"dimensions\": {\"content\": 10}}\n```"
	oracle := &mocks.MockOracleClient{}
	oracle.On("Complete", mock.Anything, mock.Anything, 0.3, 4096, true).Return(reply, nil)

	g := grading.NewHolisticGenerator(oracle, 0.3, 4096)
	fb, err := g.Generate(context.Background(), holisticInput())
	require.NoError(t, err)
	assert.Equal(t, "ok", fb.OverallComment)
	assert.Equal(t, 10.0, fb.Dimensions.Content)
}

func TestHolisticGenerate_MalformedReplyDegradesToFallback(t *testing.T) {
	t.Parallel()
	oracle := &mocks.MockOracleClient{}
	oracle.On("Complete", mock.Anything, mock.Anything, 0.3, 4096, true).Return("I cannot produce JSON today, sorry.", nil)

	g := grading.NewHolisticGenerator(oracle, 0.3, 4096)
	fb, err := g.Generate(context.Background(), holisticInput())
	require.NoError(t, err)
	assert.Equal(t, grading.FallbackFeedback(), fb)
	assert.Empty(t, fb.ScoringDetails)
	assert.Equal(t, 0.0, fb.Dimensions.Sum())
}

func TestHolisticGenerate_TransportErrorPropagates(t *testing.T) {
	t.Parallel()
	oracle := &mocks.MockOracleClient{}
	oracle.On("Complete", mock.Anything, mock.Anything, 0.3, 4096, true).Return("", errors.New("connection refused"))

	g := grading.NewHolisticGenerator(oracle, 0.3, 4096)
	_, err := g.Generate(context.Background(), holisticInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "holistic feedback call")
}

func TestHolisticGenerate_NilOracleErrors(t *testing.T) {
	t.Parallel()
	g := grading.NewHolisticGenerator(nil, 0.3, 4096)
	_, err := g.Generate(context.Background(), holisticInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInternal)
}
