package handler

import (
	"context"

	"quiz-forge/internal/adapter/retrieval"
	"quiz-forge/internal/domain"
	"quiz-forge/internal/service"
	"quiz-forge/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// QuizJobService is the job pipeline as seen by the HTTP layer.
type QuizJobService interface {
	Submit(ctx context.Context, req domain.QuizRequest) (string, error)
	Poll(ctx context.Context, id string) (*domain.Job, error)
	Cancel(ctx context.Context, id string) (*domain.Job, error)
	Reap(ctx context.Context, id string) error
}

// AssistantService is the grading, regeneration and chat surface.
type AssistantService interface {
	Grade(ctx context.Context, question, reference, answer, language string) (*domain.GradeResult, error)
	Regenerate(ctx context.Context, question, instruction, language string, maxOptions int) (*domain.QuestionRecord, error)
	Chat(ctx context.Context, message, language string) (*service.ChatReply, error)
}

// ContextLoader manages the document index.
type ContextLoader interface {
	Load(ctx context.Context, filenames []string) (retrieval.Status, error)
	Status() retrieval.Status
	LibraryFiles() ([]string, error)
}

// parseBody decodes the JSON body into req and validates it.
func parseBody(c *fiber.Ctx, v *validation.Validator, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return domain.ValidationErrors{domain.NewInvalidFormatError("body", err.Error())}
	}
	if errs := v.Struct(req); len(errs) > 0 {
		return errs
	}
	return nil
}
