package handlers

import (
	"github.com/gofiber/fiber/v2"

	"resusboard/internal/services"
)

// LogHandler handles episode log HTTP requests
type LogHandler struct {
	logs *services.LogService
}

// NewLogHandler creates a new log handler
func NewLogHandler(logs *services.LogService) *LogHandler {
	return &LogHandler{logs: logs}
}

// List returns the episode log
// GET /api/log
func (h *LogHandler) List(c *fiber.Ctx) error {
	entries := h.logs.Entries()
	if entries == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No episode"})
	}
	return c.JSON(entries)
}

// Add appends a log entry
// POST /api/log
func (h *LogHandler) Add(c *fiber.Ctx) error {
	var req struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		IsImportant bool   `json:"isImportant"`
		Time        int64  `json:"time"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	entry, err := h.logs.Add(c.Context(), req.Type, req.Text, req.IsImportant, req.Time)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// Update edits an entry's text and importance
// PUT /api/log/:id
func (h *LogHandler) Update(c *fiber.Ctx) error {
	var req struct {
		Text        string `json:"text"`
		IsImportant bool   `json:"isImportant"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	entry, err := h.logs.Update(c.Context(), c.Params("id"), req.Text, req.IsImportant)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(entry)
}

// Delete removes an entry
// DELETE /api/log/:id
func (h *LogHandler) Delete(c *fiber.Ctx) error {
	if err := h.logs.Delete(c.Context(), c.Params("id")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

// SetPatient attaches the patient identifier to the log
// PUT /api/log/patient
func (h *LogHandler) SetPatient(c *fiber.Ctx) error {
	var req struct {
		PatientID string `json:"patientId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.logs.SetPatientID(c.Context(), req.PatientID); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
