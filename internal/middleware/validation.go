package middleware

import (
	"quiz-forge/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// LocalJobID is the fiber.Locals key holding the validated job id.
const LocalJobID = "validated_job_id"

// ValidationMiddleware provides request validation middleware
type ValidationMiddleware struct {
	validator *validation.Validator
}

func NewValidationMiddleware(v *validation.Validator) *ValidationMiddleware {
	return &ValidationMiddleware{validator: v}
}

// ValidateJobID rejects malformed :id path parameters before they reach the job handlers.
func (vm *ValidationMiddleware) ValidateJobID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if errs := vm.validator.ValidateJobID(id); len(errs) > 0 {
			return errs
		}
		c.Locals(LocalJobID, id)
		return c.Next()
	}
}
