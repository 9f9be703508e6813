package handler

import (
	"quiz-forge/internal/adapter/retrieval"
	"quiz-forge/internal/domain"
	"quiz-forge/internal/dto"
	"quiz-forge/internal/logger"
	"quiz-forge/internal/validation"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SystemHandler reports and changes the active model and the loaded documents.
type SystemHandler struct {
	models    domain.ModelProvider
	index     ContextLoader
	validator *validation.Validator
}

func NewSystemHandler(models domain.ModelProvider, index ContextLoader, v *validation.Validator) *SystemHandler {
	return &SystemHandler{models: models, index: index, validator: v}
}

// Status godoc
// @Summary Get system status
// @Description Returns the active model, the catalog, the index status and the library files
// @Tags system
// @Accept json
// @Produce json
// @Success 200 {object} dto.SystemStatusResponse
// @Failure 500 {object} middleware.ErrorResponse
// @Router /api/system/status [get]
func (h *SystemHandler) Status(c *fiber.Ctx) error {
	files, err := h.index.LibraryFiles()
	if err != nil {
		return err
	}
	return c.JSON(dto.SystemStatusResponse{
		ActiveModel:  h.models.Active(),
		Models:       h.models.Catalog(),
		Context:      toContextStatus(h.index.Status()),
		LibraryFiles: files,
	})
}

// SwitchModel godoc
// @Summary Switch the active model
// @Description Running jobs keep the model they were submitted with
// @Tags system
// @Accept json
// @Produce json
// @Param request body dto.SwitchModelRequest true "Model key"
// @Success 200 {object} domain.ModelSpec
// @Failure 400 {object} middleware.ValidationErrorResponse
// @Failure 503 {object} middleware.ErrorResponse
// @Router /api/system/model [post]
func (h *SystemHandler) SwitchModel(c *fiber.Ctx) error {
	var req dto.SwitchModelRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}
	spec, err := h.models.Switch(c.UserContext(), req.Model)
	if err != nil {
		return err
	}
	logger.Get().Info("Active model switched", zap.String("requested", req.Model), zap.String("model", spec.ID))
	return c.JSON(spec)
}

// LoadContext godoc
// @Summary Rebuild the document index
// @Description Rebuilds the index from the given library files; an empty list clears it
// @Tags system
// @Accept json
// @Produce json
// @Param request body dto.LoadContextRequest true "Files to load"
// @Success 200 {object} dto.ContextStatus
// @Failure 400 {object} middleware.ValidationErrorResponse
// @Failure 503 {object} middleware.ErrorResponse
// @Router /api/system/load-context [post]
func (h *SystemHandler) LoadContext(c *fiber.Ctx) error {
	var req dto.LoadContextRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}
	status, err := h.index.Load(c.UserContext(), req.Files)
	if err != nil {
		return err
	}
	return c.JSON(toContextStatus(status))
}

func toContextStatus(s retrieval.Status) dto.ContextStatus {
	out := dto.ContextStatus{Loaded: s.Loaded, Files: s.Files, Chunks: s.Chunks}
	if out.Files == nil {
		out.Files = []string{}
	}
	if !s.LoadedAt.IsZero() {
		loadedAt := s.LoadedAt
		out.LoadedAt = &loadedAt
	}
	return out
}
