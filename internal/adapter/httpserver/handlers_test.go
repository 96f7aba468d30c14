package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	httpserver "github.com/hanyue-dev/ai-essay-grader/internal/adapter/httpserver"
	"github.com/hanyue-dev/ai-essay-grader/internal/config"
	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
	"github.com/hanyue-dev/ai-essay-grader/internal/domain/mocks"
	"github.com/hanyue-dev/ai-essay-grader/internal/grading"
	"github.com/hanyue-dev/ai-essay-grader/internal/usecase"
)

type serverMocks struct {
	jobs      *mocks.MockJobRepository
	oracle    *mocks.MockOracleClient
	questions *mocks.MockQuestionRepository
	rubrics   *mocks.MockRubricRepository
}

func newTestServer() (*httpserver.Server, *serverMocks) {
	m := &serverMocks{
		jobs:      &mocks.MockJobRepository{},
		oracle:    &mocks.MockOracleClient{},
		questions: &mocks.MockQuestionRepository{},
		rubrics:   &mocks.MockRubricRepository{},
	}
	sem := grading.NewSemanticEvaluator(m.oracle, 0, 0.85)
	hol := grading.NewHolisticGenerator(m.oracle, 0.3, 4096)
	orch := grading.NewOrchestrator(m.questions, m.rubrics, sem, hol, grading.ReconcileConfig{})
	svc := usecase.NewGradeService(m.jobs, orch, time.Minute)
	srv := httpserver.NewServer(config.Config{}, svc, m.questions, m.rubrics, nil, nil)
	return srv, m
}

func TestSubmitHandler_Accepted(t *testing.T) {
	t.Parallel()
	srv, m := newTestServer()
	m.jobs.On("Create", mock.Anything, mock.Anything).Return("job-1", nil)
	// Background run begins immediately; tolerate its repo calls.
	m.jobs.On("UpdateStatus", mock.Anything, "job-1", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.questions.On("Get", mock.Anything, "q1").Return(domain.Question{}, domain.ErrNotFound).Maybe()

	body := `{"question_id": "q1", "content": "基层治理需要群众参与。"}`
	rec := httptest.NewRecorder()
	srv.SubmitHandler()(rec, httptest.NewRequest(http.MethodPost, "/v1/grade", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp["id"])
	assert.Equal(t, "pending", resp["status"])
}

func TestSubmitHandler_ValidationError(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer()
	rec := httptest.NewRecorder()
	srv.SubmitHandler()(rec, httptest.NewRequest(http.MethodPost, "/v1/grade", strings.NewReader(`{"content": "x"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_ARGUMENT")
}

func TestSubmitHandler_MalformedJSON(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer()
	rec := httptest.NewRecorder()
	srv.SubmitHandler()(rec, httptest.NewRequest(http.MethodPost, "/v1/grade", strings.NewReader("{not json")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func statusRequest(id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/grade/"+id, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestStatusHandler_CompletedJobCarriesResult(t *testing.T) {
	t.Parallel()
	srv, m := newTestServer()
	m.jobs.On("Get", mock.Anything, "done").Return(domain.GradingJob{
		ID: "done", Status: domain.JobCompleted,
		Result: &domain.GradingResult{TotalScore: 9, MaxScore: 10},
	}, nil)

	rec := httptest.NewRecorder()
	srv.StatusHandler()(rec, statusRequest("done"))

	require.Equal(t, http.StatusOK, rec.Code)
	var view usecase.JobStatusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, domain.JobCompleted, view.Status)
	assert.Equal(t, 100, view.Progress)
	require.NotNil(t, view.Result)
	assert.Equal(t, 9.0, view.Result.TotalScore)
}

func TestStatusHandler_UnknownIDReportsErrorStatusWith200(t *testing.T) {
	t.Parallel()
	srv, m := newTestServer()
	m.jobs.On("Get", mock.Anything, "nope").Return(domain.GradingJob{}, domain.ErrNotFound)

	rec := httptest.NewRecorder()
	srv.StatusHandler()(rec, statusRequest("nope"))

	require.Equal(t, http.StatusOK, rec.Code)
	var view usecase.JobStatusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, domain.JobFailed, view.Status)
	assert.Equal(t, "job not found", view.Message)
}

func TestCustomHandler_GradesSynchronously(t *testing.T) {
	t.Parallel()
	srv, m := newTestServer()
	m.oracle.On("Complete", mock.Anything, mock.Anything, 0.3, 4096, true).Return(`{"overall_comment": "ok"}`, nil)

	body := `{
		"question_title": "论述题",
		"reference_answer": "参考答案",
		"points": [{"content": "要点一", "max_score": 6, "keywords": ["协同"]}],
		"answer": "协同治理是关键。"
	}`
	rec := httptest.NewRecorder()
	srv.CustomHandler()(rec, httptest.NewRequest(http.MethodPost, "/v1/grade/custom", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var res domain.GradingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 6.0, res.TotalScore)
	assert.Equal(t, 6.0, res.MaxScore)
}

func TestCustomHandler_MissingAnswer(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer()
	rec := httptest.NewRecorder()
	srv.CustomHandler()(rec, httptest.NewRequest(http.MethodPost, "/v1/grade/custom", strings.NewReader(`{"question_title": "t"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateQuestionHandler_CreatesQuestionAndRubric(t *testing.T) {
	t.Parallel()
	srv, m := newTestServer()
	m.questions.On("Create", mock.Anything, mock.MatchedBy(func(q domain.Question) bool {
		return q.Prompt == "论述基层治理" && q.MaxScore == 20
	})).Return("q-9", nil)
	m.rubrics.On("Create", mock.Anything, mock.MatchedBy(func(r domain.Rubric) bool {
		return r.QuestionID == "q-9" && len(r.Points) == 1 && r.Points[0].Order == 1
	})).Return("r-9", nil)

	body := `{
		"prompt": "论述基层治理",
		"max_score": 20,
		"reference_answer": "参考",
		"points": [{"content": "要点", "max_score": 20}]
	}`
	rec := httptest.NewRecorder()
	srv.CreateQuestionHandler()(rec, httptest.NewRequest(http.MethodPost, "/v1/questions", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	m.questions.AssertExpectations(t)
	m.rubrics.AssertExpectations(t)
}

func TestCreateQuestionHandler_RejectsZeroMaxScore(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer()
	rec := httptest.NewRecorder()
	srv.CreateQuestionHandler()(rec, httptest.NewRequest(http.MethodPost, "/v1/questions", strings.NewReader(`{"prompt": "p", "max_score": 0}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadyzHandler_FailingDependency(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer()
	srv.DBCheck = func(context.Context) error { return nil }
	srv.RedisCheck = func(context.Context) error { return domain.ErrInternal }

	rec := httptest.NewRecorder()
	srv.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis"`)
}

func TestHealthzHandler(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer()
	rec := httptest.NewRecorder()
	srv.HealthzHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
