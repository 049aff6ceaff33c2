package handlers

import (
	"github.com/gofiber/fiber/v2"

	"resusboard/internal/models"
	"resusboard/internal/services"
)

// ArchiveHandler handles archived episode HTTP requests
type ArchiveHandler struct {
	store    *services.EpisodeStore
	episodes *services.EpisodeService
	bus      *services.EventBus
}

// NewArchiveHandler creates a new archive handler
func NewArchiveHandler(store *services.EpisodeStore, episodes *services.EpisodeService, bus *services.EventBus) *ArchiveHandler {
	return &ArchiveHandler{store: store, episodes: episodes, bus: bus}
}

// List returns all archived episodes, newest first
// GET /api/archive
func (h *ArchiveHandler) List(c *fiber.Ctx) error {
	archive := h.store.LoadArchive(c.Context())
	if archive == nil {
		archive = []models.ArchivedEpisode{}
	}
	return c.JSON(archive)
}

// Get returns one archived episode with its full state
// GET /api/archive/:id
func (h *ArchiveHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	for _, entry := range h.store.LoadArchive(c.Context()) {
		if entry.ID == id {
			return c.JSON(entry)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Archived episode not found"})
}

// Restore copies an archived episode back into the current slot for review
// POST /api/archive/:id/restore
func (h *ArchiveHandler) Restore(c *fiber.Ctx) error {
	id := c.Params("id")
	for _, entry := range h.store.LoadArchive(c.Context()) {
		if entry.ID == id {
			episode, err := h.episodes.Restore(c.Context(), entry.State)
			if err != nil {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
			}
			return c.JSON(episode)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Archived episode not found"})
}

// Delete removes one archived episode
// DELETE /api/archive/:id
func (h *ArchiveHandler) Delete(c *fiber.Ctx) error {
	archive, found, err := h.store.RemoveArchived(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Archived episode not found"})
	}
	h.bus.Publish(models.Event{Type: models.EventArchiveUpdated, Payload: archive})
	return c.JSON(archive)
}

// Clear removes every archived episode
// DELETE /api/archive
func (h *ArchiveHandler) Clear(c *fiber.Ctx) error {
	if err := h.store.ClearArchive(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	h.bus.Publish(models.Event{Type: models.EventArchiveUpdated, Payload: []models.ArchivedEpisode{}})
	return c.JSON(fiber.Map{"status": "cleared"})
}
