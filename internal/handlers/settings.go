package handlers

import (
	"github.com/gofiber/fiber/v2"

	"resusboard/internal/models"
	"resusboard/internal/services"
)

// SettingsHandler handles alert settings HTTP requests
type SettingsHandler struct {
	settings *services.SettingsService
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// Get returns the active alert settings
// GET /api/settings
func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	return c.JSON(h.settings.Get())
}

// Update replaces the alert settings
// PUT /api/settings
func (h *SettingsHandler) Update(c *fiber.Ctx) error {
	var req models.AlertSettings
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	updated, err := h.settings.Update(c.Context(), req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(updated)
}

// Reset restores the default alert settings
// POST /api/settings/reset
func (h *SettingsHandler) Reset(c *fiber.Ctx) error {
	settings, err := h.settings.Reset(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(settings)
}
