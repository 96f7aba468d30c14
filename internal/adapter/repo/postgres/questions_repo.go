package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
)

// QuestionRepo loads and stores exam questions.
type QuestionRepo struct{ Pool PgxPool }

// NewQuestionRepo constructs a QuestionRepo with the given pool.
func NewQuestionRepo(p PgxPool) *QuestionRepo { return &QuestionRepo{Pool: p} }

// Create inserts a question and returns its id.
func (r *QuestionRepo) Create(ctx domain.Context, q domain.Question) (string, error) {
	tracer := otel.Tracer("repo.questions")
	ctx, span := tracer.Start(ctx, "questions.Create")
	defer span.End()
	id := q.ID
	if id == "" {
		id = uuid.New().String()
	}
	sql := `INSERT INTO questions (id, prompt, max_score, word_limit, type, exam_level, created_at)
	        VALUES ($1,$2,$3,$4,$5,$6,$7)
	        ON CONFLICT (id) DO UPDATE SET prompt=EXCLUDED.prompt, max_score=EXCLUDED.max_score,
	          word_limit=EXCLUDED.word_limit, type=EXCLUDED.type, exam_level=EXCLUDED.exam_level`
	_, err := r.Pool.Exec(ctx, sql, id, q.Prompt, q.MaxScore, q.WordLimit, q.Type, q.ExamLevel, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("op=question.create: %w", err)
	}
	return id, nil
}

// Get loads a question by id.
func (r *QuestionRepo) Get(ctx domain.Context, id string) (domain.Question, error) {
	tracer := otel.Tracer("repo.questions")
	ctx, span := tracer.Start(ctx, "questions.Get")
	defer span.End()
	sql := `SELECT id, prompt, max_score, word_limit, COALESCE(type,''), COALESCE(exam_level,''), created_at
	        FROM questions WHERE id=$1`
	row := r.Pool.QueryRow(ctx, sql, id)
	var q domain.Question
	if err := row.Scan(&q.ID, &q.Prompt, &q.MaxScore, &q.WordLimit, &q.Type, &q.ExamLevel, &q.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Question{}, fmt.Errorf("op=question.get: %w", domain.ErrNotFound)
		}
		return domain.Question{}, fmt.Errorf("op=question.get: %w", err)
	}
	return q, nil
}
