package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
)

// JobRepo persists grading jobs and their results. Terminal states are
// enforced here: once a row reads completed or error it never changes again.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

// Create inserts a new job row and returns its id.
func (r *JobRepo) Create(ctx domain.Context, j domain.GradingJob) (string, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Create")
	defer span.End()
	if j.ID == "" {
		return "", fmt.Errorf("op=job.create: %w: missing id", domain.ErrInvalidArgument)
	}
	sql := `INSERT INTO grading_jobs (id, question_id, content, word_count, time_spent, user_id, status, created_at)
	        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.Pool.Exec(ctx, sql, j.ID, j.QuestionID, j.Content, j.WordCount, j.TimeSpent, j.UserID, j.Status, j.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("op=job.create: %w", err)
	}
	return j.ID, nil
}

// UpdateStatus transitions a job. Rows already in a terminal state are left
// untouched and the call reports ErrConflict.
func (r *JobRepo) UpdateStatus(ctx domain.Context, id string, status domain.JobStatus, jobErr *domain.JobError) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.UpdateStatus")
	defer span.End()
	var errJSON []byte
	if jobErr != nil {
		b, err := json.Marshal(jobErr)
		if err != nil {
			return fmt.Errorf("op=job.update_status marshal error: %w", err)
		}
		errJSON = b
	}
	sql := `UPDATE grading_jobs
	        SET status=$2, error=$3,
	            completed_at=CASE WHEN $2 IN ('completed','error') THEN $4 ELSE completed_at END
	        WHERE id=$1 AND status NOT IN ('completed','error')`
	tag, err := r.Pool.Exec(ctx, sql, id, status, errJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job.update_status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=job.update_status: %w: job %s missing or terminal", domain.ErrConflict, id)
	}
	return nil
}

// SaveResult stores the grading result and flips the job to completed in one
// statement, so a poller can never observe completed without a result.
func (r *JobRepo) SaveResult(ctx domain.Context, id string, res domain.GradingResult) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.SaveResult")
	defer span.End()
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("op=job.save_result marshal: %w", err)
	}
	sql := `UPDATE grading_jobs
	        SET status='completed', result=$2, completed_at=$3
	        WHERE id=$1 AND status NOT IN ('completed','error')`
	tag, err := r.Pool.Exec(ctx, sql, id, b, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job.save_result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=job.save_result: %w: job %s missing or terminal", domain.ErrConflict, id)
	}
	return nil
}

// Get loads a job by id, including the stored result and error when present.
func (r *JobRepo) Get(ctx domain.Context, id string) (domain.GradingJob, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Get")
	defer span.End()
	sql := `SELECT id, question_id, content, word_count, time_spent, user_id, status, result, error, created_at, completed_at
	        FROM grading_jobs WHERE id=$1`
	row := r.Pool.QueryRow(ctx, sql, id)
	var j domain.GradingJob
	var resJSON, errJSON []byte
	if err := row.Scan(&j.ID, &j.QuestionID, &j.Content, &j.WordCount, &j.TimeSpent, &j.UserID, &j.Status, &resJSON, &errJSON, &j.CreatedAt, &j.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GradingJob{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
		}
		return domain.GradingJob{}, fmt.Errorf("op=job.get: %w", err)
	}
	if len(resJSON) > 0 {
		var res domain.GradingResult
		if err := json.Unmarshal(resJSON, &res); err != nil {
			return domain.GradingJob{}, fmt.Errorf("op=job.get unmarshal result: %w", err)
		}
		j.Result = &res
	}
	if len(errJSON) > 0 {
		var je domain.JobError
		if err := json.Unmarshal(errJSON, &je); err != nil {
			return domain.GradingJob{}, fmt.Errorf("op=job.get unmarshal error: %w", err)
		}
		j.Error = &je
	}
	return j, nil
}
