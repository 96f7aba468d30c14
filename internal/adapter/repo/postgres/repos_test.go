package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanyue-dev/ai-essay-grader/internal/adapter/repo/postgres"
	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
)

// fakePool records statements and plays back canned results.
type fakePool struct {
	execSQL  []string
	execArgs [][]any
	execTag  pgconn.CommandTag
	execErr  error
	row      pgx.Row
}

func (f *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	return f.execTag, f.execErr
}

func (f *fakePool) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return f.row
}

func (f *fakePool) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

// fakeRow feeds canned values into Scan destinations.
type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		if i >= len(r.vals) || r.vals[i] == nil {
			continue
		}
		switch dst := d.(type) {
		case *string:
			*dst = r.vals[i].(string)
		case *int:
			*dst = r.vals[i].(int)
		case *float64:
			*dst = r.vals[i].(float64)
		case *[]byte:
			*dst = r.vals[i].([]byte)
		case *time.Time:
			*dst = r.vals[i].(time.Time)
		case **time.Time:
			v := r.vals[i].(time.Time)
			*dst = &v
		case **int:
			v := r.vals[i].(int)
			*dst = &v
		case **string:
			v := r.vals[i].(string)
			*dst = &v
		case *domain.JobStatus:
			*dst = r.vals[i].(domain.JobStatus)
		}
	}
	return nil
}

func TestJobRepo_Create_RequiresID(t *testing.T) {
	t.Parallel()
	repo := postgres.NewJobRepo(&fakePool{execTag: pgconn.NewCommandTag("INSERT 0 1")})
	_, err := repo.Create(context.Background(), domain.GradingJob{})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestJobRepo_Create_InsertsRow(t *testing.T) {
	t.Parallel()
	pool := &fakePool{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := postgres.NewJobRepo(pool)
	id, err := repo.Create(context.Background(), domain.GradingJob{
		ID: "job-1", QuestionID: "q1", Content: "answer", Status: domain.JobPending, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	require.Len(t, pool.execSQL, 1)
	assert.Contains(t, pool.execSQL[0], "INSERT INTO grading_jobs")
}

func TestJobRepo_UpdateStatus_TerminalRowsUntouched(t *testing.T) {
	t.Parallel()
	pool := &fakePool{execTag: pgconn.NewCommandTag("UPDATE 0")}
	repo := postgres.NewJobRepo(pool)
	err := repo.UpdateStatus(context.Background(), "job-1", domain.JobProcessing, nil)
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, pool.execSQL[0], "status NOT IN ('completed','error')")
}

func TestJobRepo_UpdateStatus_SerializesJobError(t *testing.T) {
	t.Parallel()
	pool := &fakePool{execTag: pgconn.NewCommandTag("UPDATE 1")}
	repo := postgres.NewJobRepo(pool)
	jobErr := &domain.JobError{Message: "boom", At: time.Now().UTC()}
	require.NoError(t, repo.UpdateStatus(context.Background(), "job-1", domain.JobFailed, jobErr))

	require.Len(t, pool.execArgs, 1)
	raw, ok := pool.execArgs[0][2].([]byte)
	require.True(t, ok)
	var decoded domain.JobError
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "boom", decoded.Message)
}

func TestJobRepo_SaveResult_StoresResultAndCompletes(t *testing.T) {
	t.Parallel()
	pool := &fakePool{execTag: pgconn.NewCommandTag("UPDATE 1")}
	repo := postgres.NewJobRepo(pool)
	res := domain.GradingResult{TotalScore: 8, MaxScore: 10}
	require.NoError(t, repo.SaveResult(context.Background(), "job-1", res))
	assert.Contains(t, pool.execSQL[0], "status='completed'")
	assert.Contains(t, pool.execSQL[0], "status NOT IN ('completed','error')")
}

func TestJobRepo_SaveResult_TerminalRowConflicts(t *testing.T) {
	t.Parallel()
	pool := &fakePool{execTag: pgconn.NewCommandTag("UPDATE 0")}
	repo := postgres.NewJobRepo(pool)
	err := repo.SaveResult(context.Background(), "job-1", domain.GradingResult{})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestJobRepo_Get_NotFound(t *testing.T) {
	t.Parallel()
	repo := postgres.NewJobRepo(&fakePool{row: fakeRow{err: pgx.ErrNoRows}})
	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobRepo_Get_DecodesResultAndError(t *testing.T) {
	t.Parallel()
	resJSON, _ := json.Marshal(domain.GradingResult{TotalScore: 7, MaxScore: 10})
	created := time.Now().UTC()
	repo := postgres.NewJobRepo(&fakePool{row: fakeRow{vals: []any{
		"job-1", "q1", "content", 42, nil, nil, domain.JobCompleted, resJSON, nil, created, created,
	}}})
	job, err := repo.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, 7.0, job.Result.TotalScore)
	assert.Nil(t, job.Error)
	require.NotNil(t, job.CompletedAt)
}

func TestQuestionRepo_Get_NotFound(t *testing.T) {
	t.Parallel()
	repo := postgres.NewQuestionRepo(&fakePool{row: fakeRow{err: pgx.ErrNoRows}})
	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQuestionRepo_Create_GeneratesIDWhenEmpty(t *testing.T) {
	t.Parallel()
	pool := &fakePool{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := postgres.NewQuestionRepo(pool)
	id, err := repo.Create(context.Background(), domain.Question{Prompt: "p", MaxScore: 10})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestRubricRepo_RoundTripsPointsAsJSON(t *testing.T) {
	t.Parallel()
	pool := &fakePool{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := postgres.NewRubricRepo(pool)
	points := []domain.ScoringPoint{{Order: 1, Content: "c", MaxScore: 5, Keywords: []string{"k"}}}
	_, err := repo.Create(context.Background(), domain.Rubric{QuestionID: "q1", Points: points})
	require.NoError(t, err)

	raw, ok := pool.execArgs[0][3].([]byte)
	require.True(t, ok)

	getRepo := postgres.NewRubricRepo(&fakePool{row: fakeRow{vals: []any{
		"r1", "q1", "ref", raw, "seed",
	}}})
	rb, err := getRepo.GetByQuestionID(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, points, rb.Points)
}

func TestRubricRepo_GetByQuestionID_NotFound(t *testing.T) {
	t.Parallel()
	repo := postgres.NewRubricRepo(&fakePool{row: fakeRow{err: pgx.ErrNoRows}})
	_, err := repo.GetByQuestionID(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
