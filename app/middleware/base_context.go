package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// BaseContext makes ctx the user context of every request, so streams
// started by a handler end when ctx is cancelled.
func BaseContext(ctx context.Context) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.SetUserContext(ctx)
		return c.Next()
	}
}
