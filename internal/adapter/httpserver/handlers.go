package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hanyue-dev/ai-essay-grader/internal/config"
	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
	"github.com/hanyue-dev/ai-essay-grader/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Grade      usecase.GradeService
	Questions  domain.QuestionRepository
	Rubrics    domain.RubricRepository
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, grade usecase.GradeService, questions domain.QuestionRepository, rubrics domain.RubricRepository, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Grade: grade, Questions: questions, Rubrics: rubrics, DBCheck: dbCheck, RedisCheck: redisCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

func validationDetails(err error) map[string]string {
	verrs := map[string]string{}
	if ve, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range ve {
			verrs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return verrs
}

type scoringPointDTO struct {
	Order             int      `json:"order"`
	Content           string   `json:"content" validate:"required,max=2000"`
	MaxScore          float64  `json:"max_score" validate:"gte=0"`
	Keywords          []string `json:"keywords"`
	Synonyms          []string `json:"synonyms"`
	MustContain       []string `json:"must_contain"`
	SemanticThreshold float64  `json:"semantic_threshold" validate:"gte=0,lte=1"`
}

func (d scoringPointDTO) toDomain() domain.ScoringPoint {
	return domain.ScoringPoint{
		Order:             d.Order,
		Content:           d.Content,
		MaxScore:          d.MaxScore,
		Keywords:          d.Keywords,
		Synonyms:          d.Synonyms,
		MustContain:       d.MustContain,
		SemanticThreshold: d.SemanticThreshold,
	}
}

// SubmitHandler accepts an answer for asynchronous grading and returns the
// job id immediately.
func (s *Server) SubmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
		var req struct {
			QuestionID string  `json:"question_id" validate:"required"`
			Content    string  `json:"content" validate:"required,max=50000"`
			TimeSpent  *int    `json:"time_spent"`
			UserID     *string `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		jobID, err := s.Grade.Submit(r.Context(), req.QuestionID, req.Content, req.TimeSpent, req.UserID)
		if err != nil {
			writeError(w, r, fmt.Errorf("submit: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID, "status": string(domain.JobPending)})
	}
}

// StatusHandler returns the job state machine view; completed jobs carry the
// full grading result. Unknown ids report an error status with 200 so simple
// pollers never have to special-case transport failures.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id missing", domain.ErrInvalidArgument), nil)
			return
		}
		view := s.Grade.Status(r.Context(), id)
		writeJSON(w, http.StatusOK, view)
	}
}

// CustomHandler grades an answer synchronously against a caller-supplied
// rubric. No job row is created.
func (s *Server) CustomHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
		var req struct {
			QuestionTitle   string            `json:"question_title" validate:"required,max=5000"`
			ReferenceAnswer string            `json:"reference_answer" validate:"max=50000"`
			Points          []scoringPointDTO `json:"points" validate:"dive"`
			Answer          string            `json:"answer" validate:"required,max=50000"`
			WordLimit       int               `json:"word_limit" validate:"gte=0"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		points := make([]domain.ScoringPoint, 0, len(req.Points))
		for _, p := range req.Points {
			points = append(points, p.toDomain())
		}
		res, err := s.Grade.Custom(r.Context(), req.QuestionTitle, req.ReferenceAnswer, points, req.Answer, req.WordLimit)
		if err != nil {
			writeError(w, r, fmt.Errorf("custom grade: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// CreateQuestionHandler registers a question together with its rubric.
func (s *Server) CreateQuestionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
		var req struct {
			ID              string            `json:"id"`
			Prompt          string            `json:"prompt" validate:"required,max=10000"`
			MaxScore        float64           `json:"max_score" validate:"gt=0"`
			WordLimit       int               `json:"word_limit" validate:"gte=0"`
			Type            string            `json:"type" validate:"max=64"`
			ExamLevel       string            `json:"exam_level" validate:"max=64"`
			ReferenceAnswer string            `json:"reference_answer" validate:"max=50000"`
			Points          []scoringPointDTO `json:"points" validate:"dive"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		ctx := r.Context()
		qID, err := s.Questions.Create(ctx, domain.Question{
			ID:        req.ID,
			Prompt:    req.Prompt,
			MaxScore:  req.MaxScore,
			WordLimit: req.WordLimit,
			Type:      req.Type,
			ExamLevel: req.ExamLevel,
		})
		if err != nil {
			writeError(w, r, fmt.Errorf("create question: %w", err), nil)
			return
		}
		points := make([]domain.ScoringPoint, 0, len(req.Points))
		for i, p := range req.Points {
			sp := p.toDomain()
			if sp.Order == 0 {
				sp.Order = i + 1
			}
			points = append(points, sp)
		}
		if _, err := s.Rubrics.Create(ctx, domain.Rubric{
			QuestionID:      qID,
			ReferenceAnswer: req.ReferenceAnswer,
			Points:          points,
			Source:          "api",
		}); err != nil {
			writeError(w, r, fmt.Errorf("create rubric: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": qID})
	}
}

// HealthzHandler is a trivial liveness probe.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes the DB and Redis.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
