package api

import (
	"context"
	"iter"

	"mnemora/app/agent"
	"mnemora/types"

	"github.com/gofiber/fiber/v2"
)

// Asker answers a question as a stream of query events.
type Asker interface {
	Ask(ctx context.Context, params types.QueryParams) iter.Seq[agent.Event]
}

type RequestHandler struct {
	agent Asker
}

func NewRequestHandler(a Asker) *RequestHandler {
	return &RequestHandler{
		agent: a,
	}
}

// HandleQuery streams sources, answer tokens and a final done or error event.
func (h *RequestHandler) HandleQuery(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	return streamEvents(c, func(ctx context.Context) iter.Seq[fiber.Map] {
		return encoded(h.agent.Ask(ctx, params), queryPayload)
	})
}
