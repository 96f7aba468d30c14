// Package domain holds the core entities and ports of the grading pipeline.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")
)

// Question is an exam question as authored by the question bank.
// Immutable from the pipeline's perspective.
type Question struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	MaxScore  float64   `json:"max_score"`
	WordLimit int       `json:"word_limit,omitempty"` // 0 means no limit
	Type      string    `json:"type,omitempty"`       // toggles the optional format check
	ExamLevel string    `json:"exam_level,omitempty"` // passed through as grading-strictness context
	CreatedAt time.Time `json:"created_at"`
}

// DefaultSemanticThreshold is used when a scoring point does not carry
// its own threshold.
const DefaultSemanticThreshold = 0.70

// ScoringPoint is one gradable unit of content worth a fixed maximum score.
// Owned by a Rubric; never mutated by the pipeline.
type ScoringPoint struct {
	Order             int      `json:"order"`
	Content           string   `json:"content"`
	MaxScore          float64  `json:"max_score"`
	Keywords          []string `json:"keywords,omitempty"`
	Synonyms          []string `json:"synonyms,omitempty"`
	MustContain       []string `json:"must_contain,omitempty"`
	SemanticThreshold float64  `json:"semantic_threshold,omitempty"`
}

// Threshold returns the point's semantic threshold, falling back to the
// default when unset.
func (p ScoringPoint) Threshold() float64 {
	if p.SemanticThreshold <= 0 {
		return DefaultSemanticThreshold
	}
	return p.SemanticThreshold
}

// Rubric is the reference answer plus its ordered scoring points for one
// question. The sum of point max scores may legitimately be zero; that is a
// recognized degraded case, not an error.
type Rubric struct {
	ID              string         `json:"id"`
	QuestionID      string         `json:"question_id"`
	ReferenceAnswer string         `json:"reference_answer"`
	Points          []ScoringPoint `json:"points"`
	Source          string         `json:"source,omitempty"`
}

// MaxPointsScore sums the max scores of all authored scoring points.
func (r Rubric) MaxPointsScore() float64 {
	var sum float64
	for _, p := range r.Points {
		sum += p.MaxScore
	}
	return sum
}

// MatchKind classifies how a scoring point was credited.
type MatchKind string

// Match kinds, from strongest to weakest evidence.
const (
	MatchKeyword  MatchKind = "keyword"
	MatchSemantic MatchKind = "semantic"
	MatchPartial  MatchKind = "partial"
	MatchNone     MatchKind = "none"
)

// PointMatch is the per-point grading outcome.
// Invariant: 0 <= EarnedScore <= MaxScore.
type PointMatch struct {
	Order       int       `json:"order"`
	Content     string    `json:"content"`
	MaxScore    float64   `json:"max_score"`
	EarnedScore float64   `json:"earned_score"`
	Matched     bool      `json:"matched"`
	Kind        MatchKind `json:"kind"`
	Evidence    string    `json:"evidence,omitempty"`
	Similarity  *float64  `json:"similarity,omitempty"`
	Feedback    string    `json:"feedback,omitempty"`
}

// ScoringDetail is the model's own judgment of one scoring point, returned
// inside the holistic feedback. Status is one of full, partial, missed.
type ScoringDetail struct {
	Point           string   `json:"point"`
	MaxScore        float64  `json:"max_score"`
	Earned          float64  `json:"earned"`
	Status          string   `json:"status"`
	Evidence        string   `json:"evidence,omitempty"`
	MissingKeywords []string `json:"missing_keywords,omitempty"`
}

// LogicChain compares the answer's argument structure against an ideal one.
type LogicChain struct {
	UserChain   []string `json:"user_chain,omitempty"`
	IdealChain  []string `json:"ideal_chain,omitempty"`
	Gaps        []string `json:"gaps,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// SentenceUpgrade is one suggested sentence-level rewrite.
type SentenceUpgrade struct {
	Original string `json:"original"`
	Upgraded string `json:"upgraded"`
	Reason   string `json:"reason,omitempty"`
}

// DimensionScores are the four holistic critique dimensions, each nominally
// 0-25. Informational only; not used for max-score bookkeeping.
type DimensionScores struct {
	Content   float64 `json:"content"`
	Structure float64 `json:"structure"`
	Language  float64 `json:"language"`
	Insight   float64 `json:"insight"`
}

// Sum returns the total of the four dimensions (nominally out of 100).
func (d DimensionScores) Sum() float64 {
	return d.Content + d.Structure + d.Language + d.Insight
}

// HolisticFeedback is the model's full critique of one answer. Any field may
// be absent in practice; callers must validate before use.
type HolisticFeedback struct {
	Analysis       string            `json:"analysis,omitempty"`
	Dimensions     DimensionScores   `json:"dimensions"`
	OverallComment string            `json:"overall_comment,omitempty"`
	Strengths      []string          `json:"strengths,omitempty"`
	Weaknesses     []string          `json:"weaknesses,omitempty"`
	Suggestions    []string          `json:"suggestions,omitempty"`
	ScoringDetails []ScoringDetail   `json:"scoring_details,omitempty"`
	LogicChain     *LogicChain       `json:"logic_chain,omitempty"`
	PolishedMarkup string            `json:"polished_markup,omitempty"`
	PolishedClean  string            `json:"polished_clean,omitempty"`
	Upgrades       []SentenceUpgrade `json:"upgrades,omitempty"`
}

// FormatCheck reports the optional question-type format verification.
type FormatCheck struct {
	Passed   bool     `json:"passed"`
	Expected string   `json:"expected,omitempty"`
	Issues   []string `json:"issues,omitempty"`
	Score    float64  `json:"score"`
	MaxScore float64  `json:"max_score"`
}

// LanguageAnalysis reports the cheap deterministic language heuristics.
type LanguageAnalysis struct {
	Score    float64  `json:"score"`
	MaxScore float64  `json:"max_score"`
	Comments []string `json:"comments,omitempty"`
}

// StructureAnalysis reports paragraph-level structure heuristics.
type StructureAnalysis struct {
	ParagraphCount int    `json:"paragraph_count"`
	HasIntro       bool   `json:"has_intro"`
	HasConclusion  bool   `json:"has_conclusion"`
	Comment        string `json:"comment,omitempty"`
}

// GradingResult is the complete outcome for one answer. Created once per
// completed job; immutable thereafter.
type GradingResult struct {
	TotalScore         float64            `json:"total_score"`
	MaxScore           float64            `json:"max_score"`
	ContentScore       float64            `json:"content_score"`
	ContentMax         float64            `json:"content_max"`
	FormatScore        float64            `json:"format_score"`
	FormatMax          float64            `json:"format_max"`
	LanguageScore      float64            `json:"language_score"`
	LanguageMax        float64            `json:"language_max"`
	WordCount          int                `json:"word_count"`
	WordCountDeduction float64            `json:"word_count_deduction"`
	PointMatches       []PointMatch       `json:"point_matches"`
	FormatCheck        *FormatCheck       `json:"format_check,omitempty"`
	Language           *LanguageAnalysis  `json:"language,omitempty"`
	Structure          *StructureAnalysis `json:"structure,omitempty"`
	Feedback           HolisticFeedback   `json:"feedback"`
	PointsHit          int                `json:"points_hit"`
	PointsTotal        int                `json:"points_total"`
	HitRate            float64            `json:"hit_rate"`
	CreatedAt          time.Time          `json:"created_at"`
}

// JobStatus enumerates the grading job lifecycle states.
type JobStatus string

// Valid transitions: pending -> processing -> completed | error.
// A job never leaves a terminal state.
const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "error"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

// JobError captures a failed job's structured error detail.
type JobError struct {
	Message string    `json:"message"`
	Trace   string    `json:"trace,omitempty"`
	At      time.Time `json:"at"`
}

// GradingJob is one asynchronous grading request and its lifecycle state.
// Mutated only by the job manager; never deleted by the pipeline itself.
type GradingJob struct {
	ID          string         `json:"id"`
	QuestionID  string         `json:"question_id"`
	Content     string         `json:"content"`
	WordCount   int            `json:"word_count"`
	TimeSpent   *int           `json:"time_spent,omitempty"` // seconds
	UserID      *string        `json:"user_id,omitempty"`
	Status      JobStatus      `json:"status"`
	Result      *GradingResult `json:"result,omitempty"`
	Error       *JobError      `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Repositories (ports)

// QuestionRepository loads questions from the store.
type QuestionRepository interface {
	Get(ctx Context, id string) (Question, error)
	Create(ctx Context, q Question) (string, error)
}

// RubricRepository loads rubrics from the store.
type RubricRepository interface {
	GetByQuestionID(ctx Context, questionID string) (Rubric, error)
	Create(ctx Context, r Rubric) (string, error)
}

// JobRepository persists grading jobs and their results.
type JobRepository interface {
	Create(ctx Context, j GradingJob) (string, error)
	UpdateStatus(ctx Context, id string, status JobStatus, jobErr *JobError) error
	SaveResult(ctx Context, id string, res GradingResult) error
	Get(ctx Context, id string) (GradingJob, error)
}

// Oracle (port)

// Message is one role-tagged chat message sent to the Oracle.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OracleClient is the external text-completion service. Calls are
// synchronous with a multi-minute timeout budget; output structure is not
// guaranteed even when jsonMode is requested.
type OracleClient interface {
	Complete(ctx Context, messages []Message, temperature float64, maxTokens int, jsonMode bool) (string, error)
}

// Context is an alias to context.Context, kept so the domain package reads
// the same as its adapters.
type Context = context.Context
