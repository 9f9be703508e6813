package handler

import (
	"quiz-forge/internal/dto"
	"quiz-forge/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type AssistantHandler struct {
	assistant AssistantService
	validator *validation.Validator
}

func NewAssistantHandler(assistant AssistantService, v *validation.Validator) *AssistantHandler {
	return &AssistantHandler{assistant: assistant, validator: v}
}

// Grade godoc
// @Summary Grade an open answer
// @Description Scores a free-text answer against the reference answer
// @Tags assistant
// @Accept json
// @Produce json
// @Param request body dto.GradeRequest true "Answer to grade"
// @Success 200 {object} domain.GradeResult
// @Failure 400 {object} middleware.ValidationErrorResponse
// @Failure 503 {object} middleware.ErrorResponse
// @Router /api/quiz/grade [post]
func (h *AssistantHandler) Grade(c *fiber.Ctx) error {
	var req dto.GradeRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}
	result, err := h.assistant.Grade(c.UserContext(), req.Question, req.ReferenceAnswer, req.UserAnswer, req.Language)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// Regenerate godoc
// @Summary Regenerate a question
// @Description Rewrites one question following the instruction
// @Tags assistant
// @Accept json
// @Produce json
// @Param request body dto.RegenerateRequest true "Question and instruction"
// @Success 200 {object} domain.QuestionRecord
// @Failure 400 {object} middleware.ValidationErrorResponse
// @Failure 503 {object} middleware.ErrorResponse
// @Router /api/quiz/regenerate [post]
func (h *AssistantHandler) Regenerate(c *fiber.Ctx) error {
	var req dto.RegenerateRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}
	rec, err := h.assistant.Regenerate(c.UserContext(), req.Question, req.Instruction, req.Language, req.MaxOptions)
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

// Chat godoc
// @Summary Ask about the documents
// @Description Answers a question from the loaded documents and lists the sources used
// @Tags assistant
// @Accept json
// @Produce json
// @Param request body dto.ChatRequest true "Message"
// @Success 200 {object} service.ChatReply
// @Failure 400 {object} middleware.ValidationErrorResponse
// @Failure 503 {object} middleware.ErrorResponse
// @Router /api/chat [post]
func (h *AssistantHandler) Chat(c *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}
	reply, err := h.assistant.Chat(c.UserContext(), req.Message, req.Language)
	if err != nil {
		return err
	}
	return c.JSON(reply)
}
