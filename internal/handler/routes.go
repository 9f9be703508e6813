package handler

import (
	"quiz-forge/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// Handlers groups everything SetupRoutes mounts.
type Handlers struct {
	Jobs       *QuizJobHandler
	Assistant  *AssistantHandler
	System     *SystemHandler
	Validation *middleware.ValidationMiddleware
}

// SetupRoutes registers the /api routes on app.
func SetupRoutes(app *fiber.App, h Handlers) {
	api := app.Group("/api")

	quiz := api.Group("/quiz")
	quiz.Post("/jobs", h.Jobs.Submit)
	quiz.Get("/jobs/:id", h.Validation.ValidateJobID(), h.Jobs.Poll)
	quiz.Post("/jobs/:id/cancel", h.Validation.ValidateJobID(), h.Jobs.Cancel)
	quiz.Delete("/jobs/:id", h.Validation.ValidateJobID(), h.Jobs.Reap)
	quiz.Post("/grade", h.Assistant.Grade)
	quiz.Post("/regenerate", h.Assistant.Regenerate)

	api.Post("/chat", h.Assistant.Chat)

	system := api.Group("/system")
	system.Get("/status", h.System.Status)
	system.Post("/model", h.System.SwitchModel)
	system.Post("/load-context", h.System.LoadContext)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
