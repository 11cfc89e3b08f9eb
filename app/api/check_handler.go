package api

import (
	"context"
	"iter"
	"log/slog"

	"mnemora/model"
	"mnemora/types"

	"github.com/gofiber/fiber/v2"
)

const ollamaDownloadURL = "https://ollama.ai/download"

// OllamaChecker is what the health and setup endpoints need from Ollama.
type OllamaChecker interface {
	Health(ctx context.Context) bool
	ListModels(ctx context.Context) ([]model.ModelInfo, error)
	RequiredModelsStatus(ctx context.Context) (model.ModelStatus, error)
	PullModel(ctx context.Context, name string) iter.Seq2[model.PullProgress, error]
}

// ChunkCounter reports how many chunks are indexed.
type ChunkCounter interface {
	Count(ctx context.Context) (int, error)
}

type CheckHandler struct {
	ollama OllamaChecker
	chunks ChunkCounter
}

func NewCheckHandler(ollama OllamaChecker, chunks ChunkCounter) *CheckHandler {
	return &CheckHandler{
		ollama: ollama,
		chunks: chunks,
	}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

func (h CheckHandler) HandleHealth(c *fiber.Ctx) error {
	status := "disconnected"
	if h.ollama.Health(c.UserContext()) {
		status = "connected"
	}
	resp := fiber.Map{"status": "healthy", "ollama_status": status}
	if n, err := h.chunks.Count(c.UserContext()); err == nil {
		resp["documents"] = n
	} else {
		slog.Warn("cannot count chunks", "error", err)
	}
	return c.JSON(resp)
}

// HandleModels lists installed models; an unreachable Ollama lists none.
func (h CheckHandler) HandleModels(c *fiber.Ctx) error {
	models, err := h.ollama.ListModels(c.UserContext())
	if err != nil {
		slog.Warn("failed to list models", "error", err)
	}
	if models == nil {
		models = []model.ModelInfo{}
	}
	return c.JSON(fiber.Map{"models": models})
}

func (h CheckHandler) HandleSetupStatus(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if !h.ollama.Health(ctx) {
		return c.JSON(fiber.Map{
			"ollama_installed": false,
			"ollama_running":   false,
			"ready":            false,
			"message":          "Ollama is not running. Please install and start Ollama.",
			"install_url":      ollamaDownloadURL,
		})
	}

	status, err := h.ollama.RequiredModelsStatus(ctx)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"ollama_installed":      true,
		"ollama_running":        true,
		"ready":                 status.Ready,
		"has_llm":               status.HasLLM,
		"has_embedding":         status.HasEmbedding,
		"installed_llm":         status.InstalledLLM,
		"installed_embedding":   status.InstalledEmbedding,
		"recommended_llm":       status.RecommendedLLM,
		"recommended_embedding": status.RecommendedEmbedding,
	})
}

// HandlePullModel relays Ollama's pull progress as server-sent events.
func (h CheckHandler) HandlePullModel(c *fiber.Ctx) error {
	var params types.PullParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	return streamEvents(c, func(ctx context.Context) iter.Seq[fiber.Map] {
		return func(yield func(fiber.Map) bool) {
			for p, err := range h.ollama.PullModel(ctx, params.ModelName) {
				if err != nil {
					slog.Error("model pull failed", "model", params.ModelName, "error", err)
					yield(fiber.Map{"status": "error", "message": err.Error()})
					return
				}
				payload := fiber.Map{"status": p.Status}
				if p.Digest != "" {
					payload["digest"] = p.Digest
				}
				if p.Total > 0 {
					payload["total"] = p.Total
					payload["completed"] = p.Completed
				}
				if p.Error != "" {
					payload["error"] = p.Error
				}
				if !yield(payload) {
					return
				}
			}
		}
	})
}
