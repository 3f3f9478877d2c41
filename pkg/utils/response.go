package utils

import "github.com/gofiber/fiber/v2"

func Success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// FormError re-renders a form-level validation failure. The request is
// answered 200 so the client keeps its context and can correct the
// input; only the envelope carries the failure.
func FormError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusOK, message)
}
