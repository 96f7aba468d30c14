// Package mocks provides testify mocks for the domain ports.
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
)

// MockQuestionRepository mocks domain.QuestionRepository.
type MockQuestionRepository struct{ mock.Mock }

// Get mocks QuestionRepository.Get.
func (m *MockQuestionRepository) Get(ctx domain.Context, id string) (domain.Question, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Question), args.Error(1)
}

// Create mocks QuestionRepository.Create.
func (m *MockQuestionRepository) Create(ctx domain.Context, q domain.Question) (string, error) {
	args := m.Called(ctx, q)
	return args.String(0), args.Error(1)
}

// MockRubricRepository mocks domain.RubricRepository.
type MockRubricRepository struct{ mock.Mock }

// GetByQuestionID mocks RubricRepository.GetByQuestionID.
func (m *MockRubricRepository) GetByQuestionID(ctx domain.Context, questionID string) (domain.Rubric, error) {
	args := m.Called(ctx, questionID)
	return args.Get(0).(domain.Rubric), args.Error(1)
}

// Create mocks RubricRepository.Create.
func (m *MockRubricRepository) Create(ctx domain.Context, r domain.Rubric) (string, error) {
	args := m.Called(ctx, r)
	return args.String(0), args.Error(1)
}

// MockJobRepository mocks domain.JobRepository.
type MockJobRepository struct{ mock.Mock }

// Create mocks JobRepository.Create.
func (m *MockJobRepository) Create(ctx domain.Context, j domain.GradingJob) (string, error) {
	args := m.Called(ctx, j)
	return args.String(0), args.Error(1)
}

// UpdateStatus mocks JobRepository.UpdateStatus.
func (m *MockJobRepository) UpdateStatus(ctx domain.Context, id string, status domain.JobStatus, jobErr *domain.JobError) error {
	args := m.Called(ctx, id, status, jobErr)
	return args.Error(0)
}

// SaveResult mocks JobRepository.SaveResult.
func (m *MockJobRepository) SaveResult(ctx domain.Context, id string, res domain.GradingResult) error {
	args := m.Called(ctx, id, res)
	return args.Error(0)
}

// Get mocks JobRepository.Get.
func (m *MockJobRepository) Get(ctx domain.Context, id string) (domain.GradingJob, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.GradingJob), args.Error(1)
}

// MockOracleClient mocks domain.OracleClient.
type MockOracleClient struct{ mock.Mock }

// Complete mocks OracleClient.Complete.
func (m *MockOracleClient) Complete(ctx domain.Context, messages []domain.Message, temperature float64, maxTokens int, jsonMode bool) (string, error) {
	args := m.Called(ctx, messages, temperature, maxTokens, jsonMode)
	return args.String(0), args.Error(1)
}
