package repository

import (
	"context"
	"fmt"
	"time"

	"quiz-forge/internal/domain"
	"quiz-forge/internal/repository/models"
	"quiz-forge/internal/util"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// QuizArchiveAdapter stores finished jobs and their questions in Oracle.
type QuizArchiveAdapter struct {
	db     *sqlx.DB
	tx     *TransactionManager
	logger *zap.Logger
	now    func() time.Time
}

func NewQuizArchiveAdapter(db *sqlx.DB, logger *zap.Logger) *QuizArchiveAdapter {
	return &QuizArchiveAdapter{
		db:     db,
		tx:     NewTransactionManager(db, logger),
		logger: logger,
		now:    time.Now,
	}
}

// SaveJob inserts the job and all its questions in one transaction.
func (a *QuizArchiveAdapter) SaveJob(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return domain.NewInvalidInputError("cannot archive nil job")
	}
	finishedAt := a.now()
	row := toModelQuizJob(job, finishedAt)

	err := a.tx.WithTransaction(ctx, func(ctx context.Context) error {
		exec := GetExecutor(ctx, a.db)
		query := `INSERT INTO quiz_jobs (
			id, status, model, strategy, requested, produced, error_message, created_at, finished_at
		) VALUES (
			:1, :2, :3, :4, :5, :6, :7, :8, :9
		)`
		if _, err := exec.ExecContext(ctx, query,
			row.ID, row.Status, row.Model, row.Strategy, row.Requested, row.Produced,
			row.ErrorMessage, row.CreatedAt, row.FinishedAt,
		); err != nil {
			return fmt.Errorf("failed to insert quiz job %s: %w", job.ID, err)
		}

		for i, q := range toModelQuizQuestions(job, finishedAt) {
			query := `INSERT INTO quiz_questions (
				id, job_id, position, question, question_type, options,
				correct_answer, explanation, source_file, created_at
			) VALUES (
				:1, :2, :3, :4, :5, :6, :7, :8, :9, :10
			)`
			if _, err := exec.ExecContext(ctx, query,
				q.ID, q.JobID, q.Position, q.Question, q.QuestionType, q.Options,
				q.CorrectAnswer, q.Explanation, q.SourceFile, q.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to insert question %d of job %s: %w", i, job.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.logger.Info("Quiz job archived", zap.String("job_id", job.ID), zap.Int("questions", len(job.Result)))
	return nil
}

func toModelQuizJob(job *domain.Job, finishedAt time.Time) *models.QuizJob {
	return &models.QuizJob{
		ID:           job.ID,
		Status:       string(job.Status),
		Model:        util.StringToNullString(job.Model),
		Strategy:     util.StringToNullString(job.Strategy),
		Requested:    job.Total,
		Produced:     len(job.Result),
		ErrorMessage: util.StringToNullString(job.Error),
		CreatedAt:    job.CreatedAt,
		FinishedAt:   finishedAt,
	}
}

func toModelQuizQuestions(job *domain.Job, createdAt time.Time) []models.QuizQuestion {
	rows := make([]models.QuizQuestion, len(job.Result))
	for i, q := range job.Result {
		rows[i] = models.QuizQuestion{
			ID:            util.NewULID(),
			JobID:         job.ID,
			Position:      i + 1,
			Question:      q.Question,
			QuestionType:  string(q.Type),
			Options:       models.StringSlice(q.Options),
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   util.StringToNullString(q.Explanation),
			SourceFile:    q.SourceFile,
			CreatedAt:     createdAt,
		}
	}
	return rows
}
