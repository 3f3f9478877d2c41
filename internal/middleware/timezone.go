package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	// TimezoneCookieName holds an IANA zone name, e.g. "Asia/Kolkata".
	TimezoneCookieName = "timezone"

	locationKey = "renderLocation"
)

// Timezone activates the viewer's timezone for the current request.
// It only affects how instants are rendered; stored timestamps stay
// canonical. Missing or unknown zone names fall back to the server
// default.
func Timezone(defaultLocation *time.Location) fiber.Handler {
	if defaultLocation == nil {
		defaultLocation = time.UTC
	}

	return func(c *fiber.Ctx) error {
		location := defaultLocation
		if name := c.Cookies(TimezoneCookieName); name != "" {
			if loc, err := time.LoadLocation(name); err == nil {
				location = loc
			}
		}
		c.Locals(locationKey, location)
		return c.Next()
	}
}

// GetLocation returns the active rendering timezone for the request.
func GetLocation(c *fiber.Ctx) *time.Location {
	if value := c.Locals(locationKey); value != nil {
		if loc, ok := value.(*time.Location); ok {
			return loc
		}
	}
	return time.UTC
}
