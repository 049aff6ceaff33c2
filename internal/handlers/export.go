package handlers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"resusboard/internal/export"
	"resusboard/internal/models"
	"resusboard/internal/services"
)

// ExportHandler serves episode spreadsheets
type ExportHandler struct {
	episodes *services.EpisodeService
	store    *services.EpisodeStore
}

// NewExportHandler creates a new export handler
func NewExportHandler(episodes *services.EpisodeService, store *services.EpisodeStore) *ExportHandler {
	return &ExportHandler{episodes: episodes, store: store}
}

// Episode downloads the current episode as an xlsx workbook
// GET /api/export/episode
func (h *ExportHandler) Episode(c *fiber.Ctx) error {
	episode := h.episodes.Current()
	if episode == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No episode"})
	}
	return h.send(c, episode)
}

// Archived downloads an archived episode as an xlsx workbook
// GET /api/export/archive/:id
func (h *ExportHandler) Archived(c *fiber.Ctx) error {
	id := c.Params("id")
	for _, entry := range h.store.LoadArchive(c.Context()) {
		if entry.ID != id {
			continue
		}
		var episode models.Episode
		if err := json.Unmarshal(entry.State, &episode); err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Corrupt archived state"})
		}
		return h.send(c, &episode)
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Archived episode not found"})
}

func (h *ExportHandler) send(c *fiber.Ctx, episode *models.Episode) error {
	data, err := export.EpisodeWorkbook(episode)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	filename := fmt.Sprintf("resuscitation-%s.xlsx", time.UnixMilli(episode.StartTime).Format("2006-01-02-150405"))
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return c.Send(data)
}
