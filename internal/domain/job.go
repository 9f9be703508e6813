package domain

import (
	"context"
	"time"
)

// JobStatus is the state of a generation job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// CanTransitionTo encodes pending -> processing -> {completed, failed, cancelled}.
// A pending job may also be cancelled before the pipeline picks it up.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobProcessing || next == JobCancelled || next == JobFailed
	case JobProcessing:
		return next == JobCompleted || next == JobFailed || next == JobCancelled
	}
	return false
}

// Phase labels reported while a job is processing.
const (
	PhaseRetrieving = "retrieving context"
	PhaseTopics     = "extracting topics"
	PhaseGenerating = "generating questions"
	PhaseFinalizing = "finalizing"
)

// Job is the state of one generation request.
type Job struct {
	ID        string           `json:"id"`
	Status    JobStatus        `json:"status"`
	Phase     string           `json:"phase,omitempty"`
	Progress  int              `json:"progress"`
	Total     int              `json:"total"`
	Result    []QuestionRecord `json:"result"`
	Error     string           `json:"error,omitempty"`
	Model     string           `json:"model,omitempty"`
	Strategy  string           `json:"strategy,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewJob creates a pending job for req.
func NewJob(id string, req QuizRequest, now time.Time) *Job {
	return &Job{
		ID:        id,
		Status:    JobPending,
		Total:     req.NumQuestions,
		Result:    []QuestionRecord{},
		Model:     req.Model,
		Strategy:  req.Strategy,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Partial reports a completed job that produced fewer questions than requested.
func (j *Job) Partial() bool {
	return j.Status == JobCompleted && len(j.Result) < j.Total
}

// Clone returns a deep copy safe to hand to readers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Result = make([]QuestionRecord, len(j.Result))
	for i, q := range j.Result {
		q.Options = append([]string(nil), q.Options...)
		c.Result[i] = q
	}
	return &c
}

// JobStore is the process-wide mapping from job identifier to job state.
// Update applies fn atomically to the stored job; returning an error from fn aborts the
// update and leaves the stored job untouched.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, id string, fn func(job *Job) error) (*Job, error)
	Delete(ctx context.Context, id string) error
}

// QuizArchive persists finished jobs.
type QuizArchive interface {
	SaveJob(ctx context.Context, job *Job) error
}
