package handler

import (
	"quiz-forge/internal/dto"
	"quiz-forge/internal/middleware"
	"quiz-forge/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// QuizJobHandler exposes submit, poll, cancel and reap of generation jobs.
type QuizJobHandler struct {
	jobs      QuizJobService
	validator *validation.Validator
}

func NewQuizJobHandler(jobs QuizJobService, v *validation.Validator) *QuizJobHandler {
	return &QuizJobHandler{jobs: jobs, validator: v}
}

// Submit godoc
// @Summary Submit a quiz generation job
// @Description Creates a pending job and returns its id immediately
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body dto.SubmitQuizRequest true "Quiz request"
// @Success 202 {object} dto.SubmitQuizResponse
// @Failure 400 {object} middleware.ValidationErrorResponse
// @Failure 503 {object} middleware.ErrorResponse
// @Router /api/quiz/jobs [post]
func (h *QuizJobHandler) Submit(c *fiber.Ctx) error {
	var req dto.SubmitQuizRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}
	id, err := h.jobs.Submit(c.UserContext(), req.ToDomain())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.SubmitQuizResponse{JobID: id})
}

// Poll godoc
// @Summary Get job progress
// @Description Returns the job snapshot with its state, progress and questions accepted so far
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} dto.JobResponse
// @Failure 400 {object} middleware.ValidationErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /api/quiz/jobs/{id} [get]
func (h *QuizJobHandler) Poll(c *fiber.Ctx) error {
	job, err := h.jobs.Poll(c.UserContext(), jobID(c))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewJobResponse(job))
}

// Cancel godoc
// @Summary Cancel a job
// @Description Stops a running job; questions accepted so far are kept. Cancelling a finished job changes nothing
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} dto.JobResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /api/quiz/jobs/{id}/cancel [post]
func (h *QuizJobHandler) Cancel(c *fiber.Ctx) error {
	job, err := h.jobs.Cancel(c.UserContext(), jobID(c))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewJobResponse(job))
}

// Reap godoc
// @Summary Delete a job
// @Description Cancels the job if needed and removes it
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Success 204
// @Failure 404 {object} middleware.ErrorResponse
// @Router /api/quiz/jobs/{id} [delete]
func (h *QuizJobHandler) Reap(c *fiber.Ctx) error {
	if err := h.jobs.Reap(c.UserContext(), jobID(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func jobID(c *fiber.Ctx) string {
	if id, ok := c.Locals(middleware.LocalJobID).(string); ok {
		return id
	}
	return c.Params("id")
}
