package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
)

// RubricRepo loads and stores rubrics. Scoring points live in a JSONB
// column; they are authored and read as one unit, never queried piecemeal.
type RubricRepo struct{ Pool PgxPool }

// NewRubricRepo constructs a RubricRepo with the given pool.
func NewRubricRepo(p PgxPool) *RubricRepo { return &RubricRepo{Pool: p} }

// Create inserts a rubric and returns its id. One rubric per question; a
// second insert for the same question replaces the first.
func (r *RubricRepo) Create(ctx domain.Context, rb domain.Rubric) (string, error) {
	tracer := otel.Tracer("repo.rubrics")
	ctx, span := tracer.Start(ctx, "rubrics.Create")
	defer span.End()
	id := rb.ID
	if id == "" {
		id = uuid.New().String()
	}
	points, err := json.Marshal(rb.Points)
	if err != nil {
		return "", fmt.Errorf("op=rubric.create marshal points: %w", err)
	}
	sql := `INSERT INTO rubrics (id, question_id, reference_answer, points, source, created_at)
	        VALUES ($1,$2,$3,$4,$5,$6)
	        ON CONFLICT (question_id) DO UPDATE SET reference_answer=EXCLUDED.reference_answer,
	          points=EXCLUDED.points, source=EXCLUDED.source`
	_, err = r.Pool.Exec(ctx, sql, id, rb.QuestionID, rb.ReferenceAnswer, points, rb.Source, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("op=rubric.create: %w", err)
	}
	return id, nil
}

// GetByQuestionID loads the rubric authored for a question.
func (r *RubricRepo) GetByQuestionID(ctx domain.Context, questionID string) (domain.Rubric, error) {
	tracer := otel.Tracer("repo.rubrics")
	ctx, span := tracer.Start(ctx, "rubrics.GetByQuestionID")
	defer span.End()
	sql := `SELECT id, question_id, reference_answer, points, COALESCE(source,'')
	        FROM rubrics WHERE question_id=$1`
	row := r.Pool.QueryRow(ctx, sql, questionID)
	var rb domain.Rubric
	var points []byte
	if err := row.Scan(&rb.ID, &rb.QuestionID, &rb.ReferenceAnswer, &points, &rb.Source); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rubric{}, fmt.Errorf("op=rubric.get_by_question: %w", domain.ErrNotFound)
		}
		return domain.Rubric{}, fmt.Errorf("op=rubric.get_by_question: %w", err)
	}
	if len(points) > 0 {
		if err := json.Unmarshal(points, &rb.Points); err != nil {
			return domain.Rubric{}, fmt.Errorf("op=rubric.get_by_question unmarshal points: %w", err)
		}
	}
	return rb, nil
}
