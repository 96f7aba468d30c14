package grading

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
)

// Orchestrator sequences the grading pipeline for one answer: deterministic
// point matching, semantic fallback for inconclusive points, one holistic
// feedback call, peripheral heuristics, and reconciliation.
type Orchestrator struct {
	Questions domain.QuestionRepository
	Rubrics   domain.RubricRepository
	Semantic  *SemanticEvaluator
	Holistic  *HolisticGenerator
	Recon     ReconcileConfig
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(questions domain.QuestionRepository, rubrics domain.RubricRepository, sem *SemanticEvaluator, hol *HolisticGenerator, recon ReconcileConfig) *Orchestrator {
	return &Orchestrator{Questions: questions, Rubrics: rubrics, Semantic: sem, Holistic: hol, Recon: recon}
}

// GradeByQuestionID loads the question and rubric from the store and grades
// the answer against them. A missing question or rubric is fatal to the job.
func (o *Orchestrator) GradeByQuestionID(ctx domain.Context, questionID, answer string) (domain.GradingResult, error) {
	q, err := o.Questions.Get(ctx, questionID)
	if err != nil {
		return domain.GradingResult{}, fmt.Errorf("load question: %w", err)
	}
	rubric, err := o.Rubrics.GetByQuestionID(ctx, q.ID)
	if err != nil {
		return domain.GradingResult{}, fmt.Errorf("load rubric: %w", err)
	}
	return o.Grade(ctx, q, rubric, answer)
}

// Grade runs the full pipeline against an in-memory question and rubric.
// The holistic call and reconciliation observe the completed point-match
// list; point evaluations are independent of each other.
func (o *Orchestrator) Grade(ctx domain.Context, q domain.Question, rubric domain.Rubric, answer string) (domain.GradingResult, error) {
	tracer := otel.Tracer("grading.orchestrator")
	ctx, span := tracer.Start(ctx, "Grade")
	defer span.End()

	matches := o.evaluatePoints(ctx, rubric.Points, answer)

	fb, err := o.Holistic.Generate(ctx, HolisticInput{
		Answer:          answer,
		QuestionPrompt:  q.Prompt,
		ReferenceAnswer: rubric.ReferenceAnswer,
		QuestionType:    q.Type,
		ExamLevel:       q.ExamLevel,
		Points:          rubric.Points,
	})
	if err != nil {
		return domain.GradingResult{}, err
	}
	mergeDetailEvidence(matches, fb.ScoringDetails)

	wordCount, deduction := WordStats(answer, q.WordLimit)
	formatCheck := CheckFormat(answer, q.Type)
	language := AnalyzeLanguage(answer)
	structure := AnalyzeStructure(answer)

	var formatScore, formatMax float64
	if formatCheck != nil {
		formatScore, formatMax = formatCheck.Score, formatCheck.MaxScore
	}
	var deterministic float64
	for _, m := range matches {
		deterministic += m.EarnedScore
	}
	algorithmicTotal := deterministic + formatScore + language.Score

	rec := Reconcile(matches, fb, rubric.MaxPointsScore(), q.MaxScore, algorithmicTotal, o.Recon)

	slog.Info("grading reconciled",
		slog.String("question_id", q.ID),
		slog.Float64("total_score", rec.TotalScore),
		slog.Float64("max_score", rec.MaxScore),
		slog.Int("points_hit", rec.PointsHit),
		slog.Int("points_total", rec.PointsTotal))

	return domain.GradingResult{
		TotalScore:         rec.TotalScore,
		MaxScore:           rec.MaxScore,
		ContentScore:       rec.ContentScore,
		ContentMax:         rec.MaxScore,
		FormatScore:        formatScore,
		FormatMax:          formatMax,
		LanguageScore:      language.Score,
		LanguageMax:        language.MaxScore,
		WordCount:          wordCount,
		WordCountDeduction: deduction,
		PointMatches:       matches,
		FormatCheck:        formatCheck,
		Language:           language,
		Structure:          structure,
		Feedback:           fb,
		PointsHit:          rec.PointsHit,
		PointsTotal:        rec.PointsTotal,
		HitRate:            rec.HitRate,
		CreatedAt:          time.Now().UTC(),
	}, nil
}

// evaluatePoints runs the deterministic matcher per point and the semantic
// fallback for inconclusive ones. A keyword match short-circuits semantic
// evaluation; a must-contain gate failure earns zero without a model call.
func (o *Orchestrator) evaluatePoints(ctx domain.Context, points []domain.ScoringPoint, answer string) []domain.PointMatch {
	tracer := otel.Tracer("grading.orchestrator")
	ctx, span := tracer.Start(ctx, "EvaluatePoints")
	defer span.End()

	matches := make([]domain.PointMatch, 0, len(points))
	for _, p := range points {
		outcome := MatchPoint(answer, p)
		var sim *float64
		if outcome.Kind != domain.MatchKeyword && !outcome.HardFail {
			s := o.Semantic.Score(ctx, p.Content, answer)
			sim = &s
		}
		matches = append(matches, o.Semantic.CreditPoint(p, outcome, sim))
	}
	return matches
}

// mergeDetailEvidence backfills evidence and missing-keyword feedback from
// the model's per-point details onto the deterministic matches, by order.
func mergeDetailEvidence(matches []domain.PointMatch, details []domain.ScoringDetail) {
	for i := range matches {
		if i >= len(details) {
			return
		}
		d := details[i]
		if matches[i].Evidence == "" && d.Evidence != "" {
			matches[i].Evidence = d.Evidence
		}
		if matches[i].Feedback == "" && len(d.MissingKeywords) > 0 {
			matches[i].Feedback = "missing: " + strings.Join(d.MissingKeywords, ", ")
		}
	}
}
