package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quiz-forge/internal/adapter/retrieval"
	"quiz-forge/internal/domain"
	"quiz-forge/internal/dto"
	"quiz-forge/internal/handler"
	"quiz-forge/internal/middleware"
	"quiz-forge/internal/service"
	"quiz-forge/internal/util"
	"quiz-forge/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MockQuizJobService struct {
	mock.Mock
}

func (m *MockQuizJobService) Submit(ctx context.Context, req domain.QuizRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockQuizJobService) Poll(ctx context.Context, id string) (*domain.Job, error) {
	args := m.Called(ctx, id)
	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}

func (m *MockQuizJobService) Cancel(ctx context.Context, id string) (*domain.Job, error) {
	args := m.Called(ctx, id)
	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}

func (m *MockQuizJobService) Reap(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type MockAssistantService struct {
	mock.Mock
}

func (m *MockAssistantService) Grade(ctx context.Context, question, reference, answer, language string) (*domain.GradeResult, error) {
	args := m.Called(ctx, question, reference, answer, language)
	res, _ := args.Get(0).(*domain.GradeResult)
	return res, args.Error(1)
}

func (m *MockAssistantService) Regenerate(ctx context.Context, question, instruction, language string, maxOptions int) (*domain.QuestionRecord, error) {
	args := m.Called(ctx, question, instruction, language, maxOptions)
	rec, _ := args.Get(0).(*domain.QuestionRecord)
	return rec, args.Error(1)
}

func (m *MockAssistantService) Chat(ctx context.Context, message, language string) (*service.ChatReply, error) {
	args := m.Called(ctx, message, language)
	reply, _ := args.Get(0).(*service.ChatReply)
	return reply, args.Error(1)
}

type MockModels struct {
	mock.Mock
}

func (m *MockModels) Bind(ctx context.Context, key string) (domain.TextGenerator, domain.ModelSpec, error) {
	args := m.Called(ctx, key)
	gen, _ := args.Get(0).(domain.TextGenerator)
	return gen, args.Get(1).(domain.ModelSpec), args.Error(2)
}

func (m *MockModels) Switch(ctx context.Context, key string) (domain.ModelSpec, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(domain.ModelSpec), args.Error(1)
}

func (m *MockModels) Active() domain.ModelSpec {
	return m.Called().Get(0).(domain.ModelSpec)
}

func (m *MockModels) Catalog() []domain.ModelSpec {
	return m.Called().Get(0).([]domain.ModelSpec)
}

type MockContextLoader struct {
	mock.Mock
}

func (m *MockContextLoader) Load(ctx context.Context, filenames []string) (retrieval.Status, error) {
	args := m.Called(ctx, filenames)
	return args.Get(0).(retrieval.Status), args.Error(1)
}

func (m *MockContextLoader) Status() retrieval.Status {
	return m.Called().Get(0).(retrieval.Status)
}

func (m *MockContextLoader) LibraryFiles() ([]string, error) {
	args := m.Called()
	files, _ := args.Get(0).([]string)
	return files, args.Error(1)
}

// --- helpers ---

type testServer struct {
	app       *fiber.App
	jobs      *MockQuizJobService
	assistant *MockAssistantService
	models    *MockModels
	index     *MockContextLoader
}

func newTestServer() *testServer {
	v := validation.NewValidator()
	s := &testServer{
		app:       fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()}),
		jobs:      new(MockQuizJobService),
		assistant: new(MockAssistantService),
		models:    new(MockModels),
		index:     new(MockContextLoader),
	}
	handler.SetupRoutes(s.app, handler.Handlers{
		Jobs:       handler.NewQuizJobHandler(s.jobs, v),
		Assistant:  handler.NewAssistantHandler(s.assistant, v),
		System:     handler.NewSystemHandler(s.models, s.index, v),
		Validation: middleware.NewValidationMiddleware(v),
	})
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

// --- quiz jobs ---

func TestSubmitJob(t *testing.T) {
	s := newTestServer()
	expected := domain.QuizRequest{NumQuestions: 10, QuestionType: domain.ModeMixed, MaxOptions: 4, Language: "English"}
	s.jobs.On("Submit", mock.Anything, expected).Return("01JOB", nil).Once()

	resp, body := s.do(t, http.MethodPost, "/api/quiz/jobs", map[string]interface{}{
		"num_questions": 10, "question_type": "mixed", "max_options": 4, "language": "English",
	})

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	var out dto.SubmitQuizResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "01JOB", out.JobID)
	s.jobs.AssertExpectations(t)
}

func TestSubmitJob_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  map[string]interface{}
		field string
	}{
		{name: "missing count", body: map[string]interface{}{"question_type": "mixed"}, field: "num_questions"},
		{name: "too many", body: map[string]interface{}{"num_questions": 500}, field: "num_questions"},
		{name: "bad type", body: map[string]interface{}{"num_questions": 5, "question_type": "essay"}, field: "question_type"},
		{name: "one option", body: map[string]interface{}{"num_questions": 5, "max_options": 1}, field: "max_options"},
		{name: "bad strategy", body: map[string]interface{}{"num_questions": 5, "strategy": "magic"}, field: "strategy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			resp, body := s.do(t, http.MethodPost, "/api/quiz/jobs", tt.body)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var out middleware.ValidationErrorResponse
			require.NoError(t, json.Unmarshal(body, &out))
			require.NotEmpty(t, out.Errors)
			assert.Equal(t, tt.field, out.Errors[0].Field)
			s.jobs.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmitJob_MalformedBody(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/quiz/jobs", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPollJob_States(t *testing.T) {
	now := time.Now()
	records := []domain.QuestionRecord{{Question: "Q?", Type: domain.TypeOpenEnded, CorrectAnswer: "A", SourceFile: "A.pdf"}}
	tests := []struct {
		name      string
		job       domain.Job
		wantState string
	}{
		{name: "pending", job: domain.Job{Status: domain.JobPending, Total: 1}, wantState: dto.StateRunning},
		{name: "processing", job: domain.Job{Status: domain.JobProcessing, Total: 1}, wantState: dto.StateRunning},
		{name: "completed", job: domain.Job{Status: domain.JobCompleted, Total: 1, Result: records}, wantState: dto.StateCompleted},
		{name: "partial", job: domain.Job{Status: domain.JobCompleted, Total: 3, Result: records}, wantState: dto.StatePartial},
		{name: "failed", job: domain.Job{Status: domain.JobFailed, Total: 1, Error: "No documents"}, wantState: dto.StateFailed},
		{name: "cancelled", job: domain.Job{Status: domain.JobCancelled, Total: 1}, wantState: dto.StateCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			id := util.NewULID()
			job := tt.job
			job.ID, job.CreatedAt, job.UpdatedAt = id, now, now
			s.jobs.On("Poll", mock.Anything, id).Return(&job, nil).Once()

			resp, body := s.do(t, http.MethodGet, "/api/quiz/jobs/"+id, nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			var out dto.JobResponse
			require.NoError(t, json.Unmarshal(body, &out))
			assert.Equal(t, tt.wantState, out.State)
			assert.Equal(t, string(tt.job.Status), out.Status)
			assert.NotNil(t, out.Result)
		})
	}
}

func TestPollJob_NotFound(t *testing.T) {
	s := newTestServer()
	id := util.NewULID()
	s.jobs.On("Poll", mock.Anything, id).Return(nil, domain.NewJobNotFoundError(id)).Once()

	resp, body := s.do(t, http.MethodGet, "/api/quiz/jobs/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "JOB_NOT_FOUND")
}

func TestPollJob_InvalidID(t *testing.T) {
	s := newTestServer()
	resp, _ := s.do(t, http.MethodGet, "/api/quiz/jobs/nope", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	s.jobs.AssertNotCalled(t, "Poll", mock.Anything, mock.Anything)
}

func TestCancelAndReapJob(t *testing.T) {
	s := newTestServer()
	id := util.NewULID()
	s.jobs.On("Cancel", mock.Anything, id).Return(&domain.Job{ID: id, Status: domain.JobCancelled, Total: 5}, nil).Once()
	s.jobs.On("Reap", mock.Anything, id).Return(nil).Once()

	resp, body := s.do(t, http.MethodPost, "/api/quiz/jobs/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out dto.JobResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, dto.StateCancelled, out.State)

	resp, _ = s.do(t, http.MethodDelete, "/api/quiz/jobs/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	s.jobs.AssertExpectations(t)
}

// --- assistant ---

func TestGrade(t *testing.T) {
	s := newTestServer()
	s.assistant.On("Grade", mock.Anything, "What is ATP?", "Energy carrier", "energy", "").
		Return(&domain.GradeResult{Score: 75, Feedback: "Close.", IdealAnswer: "Energy carrier"}, nil).Once()

	resp, body := s.do(t, http.MethodPost, "/api/quiz/grade", dto.GradeRequest{
		Question: "What is ATP?", ReferenceAnswer: "Energy carrier", UserAnswer: "energy",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out domain.GradeResult
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 75, out.Score)
}

func TestGrade_MissingAnswer(t *testing.T) {
	s := newTestServer()
	resp, _ := s.do(t, http.MethodPost, "/api/quiz/grade", dto.GradeRequest{Question: "Q?", ReferenceAnswer: "R"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegenerate_MalformedOutput(t *testing.T) {
	s := newTestServer()
	s.assistant.On("Regenerate", mock.Anything, "Old?", "harder", "", 0).
		Return(nil, domain.NewMalformedOutputError("regenerated question is not usable", nil)).Once()

	resp, body := s.do(t, http.MethodPost, "/api/quiz/regenerate", dto.RegenerateRequest{Question: "Old?", Instruction: "harder"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "MALFORMED_OUTPUT")
}

func TestChat(t *testing.T) {
	s := newTestServer()
	s.assistant.On("Chat", mock.Anything, "Where is ATP made?", "English").
		Return(&service.ChatReply{Answer: "In mitochondria.", Sources: []string{"bio.pdf"}}, nil).Once()

	resp, body := s.do(t, http.MethodPost, "/api/chat", dto.ChatRequest{Message: "Where is ATP made?", Language: "English"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out service.ChatReply
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, []string{"bio.pdf"}, out.Sources)
}

func TestChat_NoDocuments(t *testing.T) {
	s := newTestServer()
	s.assistant.On("Chat", mock.Anything, "anything", "").
		Return(nil, domain.NewRetrievalUnavailableError("No documents are loaded.")).Once()

	resp, _ := s.do(t, http.MethodPost, "/api/chat", dto.ChatRequest{Message: "anything"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

// --- system ---

func TestSystemStatus(t *testing.T) {
	s := newTestServer()
	pro := domain.ModelSpec{Key: "pro", ID: "llama3.1", ContextWindow: 8192}
	s.models.On("Active").Return(pro)
	s.models.On("Catalog").Return([]domain.ModelSpec{pro})
	s.index.On("Status").Return(retrieval.Status{Loaded: true, Files: []string{"bio.pdf"}, Chunks: 12, LoadedAt: time.Now()})
	s.index.On("LibraryFiles").Return([]string{"bio.pdf", "chem.pdf"}, nil)

	resp, body := s.do(t, http.MethodGet, "/api/system/status", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out dto.SystemStatusResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "pro", out.ActiveModel.Key)
	assert.True(t, out.Context.Loaded)
	assert.NotNil(t, out.Context.LoadedAt)
	assert.Equal(t, []string{"bio.pdf", "chem.pdf"}, out.LibraryFiles)
}

func TestSwitchModel(t *testing.T) {
	s := newTestServer()
	s.models.On("Switch", mock.Anything, "eco").Return(domain.ModelSpec{Key: "eco", ID: "llama3.2:1b"}, nil).Once()

	resp, body := s.do(t, http.MethodPost, "/api/system/model", dto.SwitchModelRequest{Model: "eco"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "llama3.2:1b")
}

func TestSwitchModel_Unavailable(t *testing.T) {
	s := newTestServer()
	s.models.On("Switch", mock.Anything, "pro").
		Return(domain.ModelSpec{}, domain.NewModelUnavailableError("pro", errors.New("connection refused"))).Once()

	resp, _ := s.do(t, http.MethodPost, "/api/system/model", dto.SwitchModelRequest{Model: "pro"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestLoadContext(t *testing.T) {
	s := newTestServer()
	s.index.On("Load", mock.Anything, []string{"bio.pdf"}).
		Return(retrieval.Status{Loaded: true, Files: []string{"bio.pdf"}, Chunks: 3, LoadedAt: time.Now()}, nil).Once()

	resp, body := s.do(t, http.MethodPost, "/api/system/load-context", dto.LoadContextRequest{Files: []string{"bio.pdf"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out dto.ContextStatus
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 3, out.Chunks)
}

func TestLoadContext_RejectsPaths(t *testing.T) {
	s := newTestServer()
	resp, _ := s.do(t, http.MethodPost, "/api/system/load-context", dto.LoadContextRequest{Files: []string{"../etc/passwd"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	s.index.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}
