package dto

import (
	"time"

	"quiz-forge/internal/domain"
)

// SubmitQuizRequest is the body of POST /api/quiz/jobs.
type SubmitQuizRequest struct {
	NumQuestions int    `json:"num_questions" validate:"required,min=1,max=200"`
	CustomPrompt string `json:"custom_prompt" validate:"max=2000"`
	Language     string `json:"language" validate:"max=40"`
	QuestionType string `json:"question_type" validate:"omitempty,oneof=open multiple mixed"`
	MaxOptions   int    `json:"max_options" validate:"omitempty,min=2,max=10"`
	Model        string `json:"model" validate:"max=40"`
	Strategy     string `json:"strategy" validate:"omitempty,oneof=window topic"`
}

func (r SubmitQuizRequest) ToDomain() domain.QuizRequest {
	return domain.QuizRequest{
		NumQuestions: r.NumQuestions,
		CustomPrompt: r.CustomPrompt,
		Language:     r.Language,
		QuestionType: domain.QuestionMode(r.QuestionType),
		MaxOptions:   r.MaxOptions,
		Model:        r.Model,
		Strategy:     r.Strategy,
	}
}

type SubmitQuizResponse struct {
	JobID string `json:"job_id"`
}

// Job states reported to clients. Pending and processing jobs are both "running".
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StatePartial   = "partial"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

// JobResponse is the poll snapshot of a job.
type JobResponse struct {
	ID        string                  `json:"id"`
	Status    string                  `json:"status"`
	State     string                  `json:"state"`
	Phase     string                  `json:"phase,omitempty"`
	Progress  int                     `json:"progress"`
	Total     int                     `json:"total"`
	Result    []domain.QuestionRecord `json:"result"`
	Error     string                  `json:"error,omitempty"`
	Model     string                  `json:"model,omitempty"`
	Strategy  string                  `json:"strategy,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

func NewJobResponse(job *domain.Job) JobResponse {
	result := job.Result
	if result == nil {
		result = []domain.QuestionRecord{}
	}
	return JobResponse{
		ID:        job.ID,
		Status:    string(job.Status),
		State:     jobState(job),
		Phase:     job.Phase,
		Progress:  job.Progress,
		Total:     job.Total,
		Result:    result,
		Error:     job.Error,
		Model:     job.Model,
		Strategy:  job.Strategy,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}

func jobState(job *domain.Job) string {
	switch job.Status {
	case domain.JobCompleted:
		if job.Partial() {
			return StatePartial
		}
		return StateCompleted
	case domain.JobFailed:
		return StateFailed
	case domain.JobCancelled:
		return StateCancelled
	}
	return StateRunning
}

// GradeRequest is the body of POST /api/quiz/grade.
type GradeRequest struct {
	Question        string `json:"question" validate:"required,max=2000"`
	ReferenceAnswer string `json:"reference_answer" validate:"required,max=4000"`
	UserAnswer      string `json:"user_answer" validate:"required,max=4000"`
	Language        string `json:"language" validate:"max=40"`
}

// RegenerateRequest is the body of POST /api/quiz/regenerate.
type RegenerateRequest struct {
	Question    string `json:"question" validate:"required,max=2000"`
	Instruction string `json:"instruction" validate:"required,max=1000"`
	Language    string `json:"language" validate:"max=40"`
	MaxOptions  int    `json:"max_options" validate:"omitempty,min=2,max=10"`
}

type ChatRequest struct {
	Message  string `json:"message" validate:"required,max=4000"`
	Language string `json:"language" validate:"max=40"`
}

type SwitchModelRequest struct {
	Model string `json:"model" validate:"required,max=40"`
}

// LoadContextRequest lists library files to index. An empty list clears the index.
type LoadContextRequest struct {
	Files []string `json:"files" validate:"max=100,dive,basename"`
}

// ContextStatus mirrors the document index state.
type ContextStatus struct {
	Loaded   bool       `json:"loaded"`
	Files    []string   `json:"files"`
	Chunks   int        `json:"chunks"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
}

type SystemStatusResponse struct {
	ActiveModel  domain.ModelSpec   `json:"active_model"`
	Models       []domain.ModelSpec `json:"models"`
	Context      ContextStatus      `json:"context"`
	LibraryFiles []string           `json:"library_files"`
}
