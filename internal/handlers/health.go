package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"resusboard/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	connManager *services.ConnectionManager
	episodes    *services.EpisodeService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(connManager *services.ConnectionManager, episodes *services.EpisodeService) *HealthHandler {
	return &HealthHandler{connManager: connManager, episodes: episodes}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "healthy",
		"connections": h.connManager.Count(),
		"episode":     h.episodes.Status(),
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}
