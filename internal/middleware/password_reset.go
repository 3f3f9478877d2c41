package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/shifter/server/internal/routes"
	"github.com/shifter/server/pkg/logger"
)

// EnsurePasswordReset intercepts every request from a user flagged for
// a forced password change and redirects it to the settings view. The
// settings and logout paths stay reachable, otherwise the user could
// never clear the flag or leave. Anonymous requests pass through.
func EnsurePasswordReset() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetCurrentUser(c)
		if user == nil || !user.ChangePasswordOnLogin {
			return c.Next()
		}

		switch c.Path() {
		case routes.Settings, routes.Logout:
			return c.Next()
		}

		logger.InfoWithUser(user.ID.String(), "forced_password_reset_redirect", map[string]interface{}{
			"from": c.Path(),
		})
		return c.Redirect(routes.Settings, fiber.StatusFound)
	}
}
