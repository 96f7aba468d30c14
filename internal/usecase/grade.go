// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
	"github.com/hanyue-dev/ai-essay-grader/internal/grading"
	"github.com/hanyue-dev/ai-essay-grader/internal/observability"
	"github.com/hanyue-dev/ai-essay-grader/pkg/textx"
)

// Illustrative progress percentages per job state.
const (
	progressPending    = 10
	progressProcessing = 50
	progressCompleted  = 100
	progressError      = 0
)

// GradeService owns the grading job state machine. Submit persists a
// pending job and fires a detached background run; the persisted job row is
// the only externally observable handle on that run.
type GradeService struct {
	Jobs         domain.JobRepository
	Orchestrator *grading.Orchestrator
	JobTimeout   time.Duration
}

// NewGradeService constructs a GradeService.
func NewGradeService(jobs domain.JobRepository, orch *grading.Orchestrator, jobTimeout time.Duration) GradeService {
	if jobTimeout <= 0 {
		jobTimeout = 10 * time.Minute
	}
	return GradeService{Jobs: jobs, Orchestrator: orch, JobTimeout: jobTimeout}
}

// JobStatusView is the polling surface's response shape. It is always
// well-formed; unknown ids report an error status instead of raising.
type JobStatusView struct {
	ID       string                `json:"id"`
	Status   domain.JobStatus      `json:"status"`
	Progress int                   `json:"progress"`
	Message  string                `json:"message"`
	Result   *domain.GradingResult `json:"result,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// Submit creates a job in state pending, schedules the grading run in the
// background, and returns the job id immediately. Resubmitting the same
// answer creates an independent new job.
func (s GradeService) Submit(ctx domain.Context, questionID, content string, timeSpent *int, userID *string) (string, error) {
	if questionID == "" {
		return "", fmt.Errorf("%w: question_id required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: content required", domain.ErrInvalidArgument)
	}
	job := domain.GradingJob{
		ID:         newJobID(),
		QuestionID: questionID,
		Content:    content,
		WordCount:  textx.CountWords(content),
		TimeSpent:  timeSpent,
		UserID:     userID,
		Status:     domain.JobPending,
		CreatedAt:  time.Now().UTC(),
	}
	jobID, err := s.Jobs.Create(ctx, job)
	if err != nil {
		return "", err
	}
	observability.JobsSubmittedTotal.Inc()
	go s.run(jobID, questionID, content)
	return jobID, nil
}

// run is the background grading task. It owns all status transitions after
// pending; any failure, panic included, lands the job in the terminal error
// state rather than leaving it pending forever.
func (s GradeService) run(jobID, questionID, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.JobTimeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("grading run panicked", slog.String("job_id", jobID), slog.Any("recover", rec))
			s.markError(ctx, jobID, fmt.Errorf("panic: %v", rec), string(debug.Stack()))
			observability.FailJob()
		}
	}()

	if err := s.Jobs.UpdateStatus(ctx, jobID, domain.JobProcessing, nil); err != nil {
		slog.Error("failed to flip job to processing", slog.String("job_id", jobID), slog.Any("error", err))
		s.markError(ctx, jobID, fmt.Errorf("update status: %w", err), "")
		return
	}
	observability.StartJob()

	result, err := s.Orchestrator.GradeByQuestionID(ctx, questionID, content)
	if err != nil {
		slog.Error("grading run failed", slog.String("job_id", jobID), slog.Any("error", err))
		s.markError(ctx, jobID, err, "")
		observability.FailJob()
		return
	}

	// Persist the result before reporting completed: a failed write must
	// not leave a poller seeing completed with no result.
	if err := s.Jobs.SaveResult(ctx, jobID, result); err != nil {
		slog.Error("failed to store grading result", slog.String("job_id", jobID), slog.Any("error", err))
		s.markError(ctx, jobID, fmt.Errorf("store result: %w", err), "")
		observability.FailJob()
		return
	}
	observability.CompleteJob()
	observability.ObserveResult(result.HitRate, result.TotalScore, result.MaxScore)
	slog.Info("job completed", slog.String("job_id", jobID),
		slog.Float64("total_score", result.TotalScore),
		slog.Float64("max_score", result.MaxScore))
}

func (s GradeService) markError(ctx domain.Context, jobID string, err error, trace string) {
	if trace == "" {
		trace = fmt.Sprintf("%+v", err)
	}
	jobErr := &domain.JobError{Message: err.Error(), Trace: trace, At: time.Now().UTC()}
	if uerr := s.Jobs.UpdateStatus(ctx, jobID, domain.JobFailed, jobErr); uerr != nil {
		slog.Error("failed to flip job to error", slog.String("job_id", jobID), slog.Any("error", uerr))
	}
}

// Status is a pure read of the job state machine. Repeated calls on a
// terminal job return the same view.
func (s GradeService) Status(ctx domain.Context, jobID string) JobStatusView {
	job, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		msg := "status lookup failed"
		if errors.Is(err, domain.ErrNotFound) {
			msg = "job not found"
		}
		return JobStatusView{ID: jobID, Status: domain.JobFailed, Progress: progressError, Message: msg}
	}
	view := JobStatusView{ID: job.ID, Status: job.Status}
	switch job.Status {
	case domain.JobPending:
		view.Progress = progressPending
		view.Message = "queued for grading"
	case domain.JobProcessing:
		view.Progress = progressProcessing
		view.Message = "grading in progress"
	case domain.JobCompleted:
		view.Progress = progressCompleted
		view.Message = "grading completed"
		view.Result = job.Result
	case domain.JobFailed:
		view.Progress = progressError
		view.Message = "grading failed"
		if job.Error != nil {
			view.Error = job.Error.Message
		}
	}
	return view
}

// Custom grades an answer synchronously against a caller-supplied rubric.
// No job is created; errors surface directly to the caller.
func (s GradeService) Custom(ctx domain.Context, questionTitle, referenceAnswer string, points []domain.ScoringPoint, answer string, wordLimit int) (domain.GradingResult, error) {
	if strings.TrimSpace(questionTitle) == "" {
		return domain.GradingResult{}, fmt.Errorf("%w: question_title required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(answer) == "" {
		return domain.GradingResult{}, fmt.Errorf("%w: answer required", domain.ErrInvalidArgument)
	}
	for i := range points {
		if points[i].Order == 0 {
			points[i].Order = i + 1
		}
	}
	q := domain.Question{
		ID:        "custom",
		Prompt:    questionTitle,
		WordLimit: wordLimit,
	}
	rubric := domain.Rubric{
		QuestionID:      q.ID,
		ReferenceAnswer: referenceAnswer,
		Points:          points,
		Source:          "custom",
	}
	q.MaxScore = rubric.MaxPointsScore()
	if q.MaxScore <= 0 {
		q.MaxScore = 100
	}
	return s.Orchestrator.Grade(ctx, q, rubric, answer)
}

// newJobID returns a fresh globally unique, lexicographically sortable id.
// ulid.Make uses the locked default entropy, safe under concurrent submits.
func newJobID() string {
	return ulid.Make().String()
}
