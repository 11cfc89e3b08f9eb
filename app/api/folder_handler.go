package api

import (
	"fmt"

	"mnemora/types"

	"github.com/gofiber/fiber/v2"
)

// FolderLister lists the folders indexed so far.
type FolderLister interface {
	Folders() ([]types.FolderRecord, error)
}

type FolderHandler struct {
	indexer Indexer
	folders FolderLister
}

func NewFolderHandler(indexer Indexer, folders FolderLister) *FolderHandler {
	return &FolderHandler{
		indexer: indexer,
		folders: folders,
	}
}

func (h *FolderHandler) HandleListFolders(c *fiber.Ctx) error {
	folders, err := h.folders.Folders()
	if err != nil {
		return err
	}
	if folders == nil {
		folders = []types.FolderRecord{}
	}
	return c.JSON(fiber.Map{"folders": folders})
}

// HandleRemoveFolder drops everything indexed from ?path=. Unknown folders
// succeed with nothing removed.
func (h *FolderHandler) HandleRemoveFolder(c *fiber.Ctx) error {
	folder := c.Query("path")
	if folder == "" {
		return NewValidationError(map[string]string{"path": "failed on 'required' tag"})
	}

	removed, err := h.indexer.RemoveFolder(c.UserContext(), folder)
	if err != nil {
		return NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"status":  "success",
		"message": fmt.Sprintf("Removed %s from index", folder),
		"removed": removed,
	})
}
