package grading

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
	"github.com/hanyue-dev/ai-essay-grader/pkg/jsonx"
)

// HolisticInput is the full context handed to the holistic grading call.
type HolisticInput struct {
	Answer          string
	QuestionPrompt  string
	ReferenceAnswer string
	QuestionType    string
	ExamLevel       string
	Points          []domain.ScoringPoint
}

// HolisticGenerator obtains a multi-dimensional critique of the whole answer
// through one Oracle call. This is the most expensive step of the pipeline
// and the most likely to return malformed output; a reply the parser cannot
// recover degrades to a safe default rather than failing the job.
type HolisticGenerator struct {
	Oracle      domain.OracleClient
	Temperature float64
	MaxTokens   int
}

// NewHolisticGenerator constructs a HolisticGenerator.
func NewHolisticGenerator(oracle domain.OracleClient, temperature float64, maxTokens int) *HolisticGenerator {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &HolisticGenerator{Oracle: oracle, Temperature: temperature, MaxTokens: maxTokens}
}

// holisticPayload mirrors the prompt's response contract. Every field is
// optional: model replies must never be assumed complete.
type holisticPayload struct {
	Analysis       *string                  `json:"analysis"`
	Dimensions     *dimensionsPayload       `json:"dimensions"`
	OverallComment *string                  `json:"overall_comment"`
	Strengths      []string                 `json:"strengths"`
	Weaknesses     []string                 `json:"weaknesses"`
	Suggestions    []string                 `json:"suggestions"`
	ScoringDetails []scoringDetailPayload   `json:"scoring_details"`
	LogicChain     *domain.LogicChain       `json:"logic_chain"`
	PolishedMarkup *string                  `json:"polished_markup"`
	PolishedClean  *string                  `json:"polished_clean"`
	Upgrades       []domain.SentenceUpgrade `json:"upgrades"`
}

type dimensionsPayload struct {
	Content   *float64 `json:"content"`
	Structure *float64 `json:"structure"`
	Language  *float64 `json:"language"`
	Insight   *float64 `json:"insight"`
}

type scoringDetailPayload struct {
	Point           *string  `json:"point"`
	MaxScore        *float64 `json:"max_score"`
	Earned          *float64 `json:"earned"`
	Status          *string  `json:"status"`
	Evidence        *string  `json:"evidence"`
	MissingKeywords []string `json:"missing_keywords"`
}

// FallbackFeedback is the safe default used when the reply cannot be
// recovered: zero dimensions, empty lists, placeholder comment.
func FallbackFeedback() domain.HolisticFeedback {
	return domain.HolisticFeedback{
		OverallComment: "AI feedback unavailable for this answer; score is based on rubric point matching.",
	}
}

// Generate runs the holistic grading call. Transport failures propagate;
// malformed replies degrade to FallbackFeedback.
func (g *HolisticGenerator) Generate(ctx domain.Context, in HolisticInput) (domain.HolisticFeedback, error) {
	if g.Oracle == nil {
		return domain.HolisticFeedback{}, fmt.Errorf("%w: oracle client is nil", domain.ErrInternal)
	}
	msgs := []domain.Message{
		{Role: "system", Content: holisticSystemPrompt},
		{Role: "user", Content: buildHolisticPrompt(in)},
	}
	reply, err := g.Oracle.Complete(ctx, msgs, g.Temperature, g.MaxTokens, true)
	if err != nil {
		return domain.HolisticFeedback{}, fmt.Errorf("holistic feedback call: %w", err)
	}

	var payload holisticPayload
	if !jsonx.DecodeLenient(reply, &payload) {
		slog.Warn("holistic reply unparseable; using fallback feedback",
			slog.String("points", pointsSummary(in.Points)),
			slog.String("reply_head", truncate(reply, 120)))
		return FallbackFeedback(), nil
	}
	return payload.toDomain(in.Points), nil
}

// toDomain validates the payload field by field and converts it into the
// domain feedback. Dimension scores clamp to [0,25]; per-point earned scores
// clamp to [0, max].
func (p holisticPayload) toDomain(points []domain.ScoringPoint) domain.HolisticFeedback {
	fb := domain.HolisticFeedback{
		Analysis:       deref(p.Analysis),
		OverallComment: deref(p.OverallComment),
		Strengths:      p.Strengths,
		Weaknesses:     p.Weaknesses,
		Suggestions:    p.Suggestions,
		LogicChain:     p.LogicChain,
		PolishedMarkup: deref(p.PolishedMarkup),
		PolishedClean:  deref(p.PolishedClean),
		Upgrades:       p.Upgrades,
	}
	if p.Dimensions != nil {
		fb.Dimensions = domain.DimensionScores{
			Content:   clampDim(p.Dimensions.Content),
			Structure: clampDim(p.Dimensions.Structure),
			Language:  clampDim(p.Dimensions.Language),
			Insight:   clampDim(p.Dimensions.Insight),
		}
	}
	for i, d := range p.ScoringDetails {
		detail := domain.ScoringDetail{
			Point:           deref(d.Point),
			Status:          normalizeStatus(deref(d.Status)),
			Evidence:        deref(d.Evidence),
			MissingKeywords: d.MissingKeywords,
		}
		if d.MaxScore != nil && *d.MaxScore > 0 {
			detail.MaxScore = *d.MaxScore
		} else if i < len(points) {
			detail.MaxScore = points[i].MaxScore
		}
		if d.Earned != nil {
			detail.Earned = math.Max(0, math.Min(detail.MaxScore, *d.Earned))
		}
		fb.ScoringDetails = append(fb.ScoringDetails, detail)
	}
	return fb
}

func normalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "partial", "missed":
		return strings.ToLower(strings.TrimSpace(s))
	case "":
		return "missed"
	default:
		return "partial"
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func clampDim(v *float64) float64 {
	if v == nil {
		return 0
	}
	return math.Max(0, math.Min(25, *v))
}
