package api

import (
	"context"
	"iter"
	"os"

	loadertypes "mnemora/loader/types"
	"mnemora/types"

	"github.com/gofiber/fiber/v2"
)

// Indexer runs folder indexing and removal.
type Indexer interface {
	IndexFolder(ctx context.Context, folder string) iter.Seq[loadertypes.ProgressEvent]
	RemoveFolder(ctx context.Context, folder string) (int, error)
}

type IndexHandler struct {
	indexer Indexer
}

func NewIndexHandler(indexer Indexer) *IndexHandler {
	return &IndexHandler{
		indexer: indexer,
	}
}

// HandleIndex re-indexes a folder and streams its progress. The folder is
// checked before the stream starts so a bad path gets a plain 400.
func (h *IndexHandler) HandleIndex(c *fiber.Ctx) error {
	var params types.IndexParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	folder := params.FolderPath
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		return ErrInvalidFolder(folder)
	}

	return streamEvents(c, func(ctx context.Context) iter.Seq[fiber.Map] {
		return func(yield func(fiber.Map) bool) {
			if !yield(fiber.Map{"type": "start", "folder": folder}) {
				return
			}
			for ev := range h.indexer.IndexFolder(ctx, folder) {
				if !yield(progressPayload(ev)) {
					return
				}
			}
		}
	})
}
