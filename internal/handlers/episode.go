package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"resusboard/internal/services"
)

// EpisodeHandler handles episode lifecycle and timer HTTP requests
type EpisodeHandler struct {
	episodes *services.EpisodeService
}

// NewEpisodeHandler creates a new episode handler
func NewEpisodeHandler(episodes *services.EpisodeService) *EpisodeHandler {
	return &EpisodeHandler{episodes: episodes}
}

// Get returns the current episode and lifecycle status
// GET /api/episode
func (h *EpisodeHandler) Get(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  h.episodes.Status(),
		"episode": h.episodes.Current(),
	})
}

// Start begins a new episode
// POST /api/episode/start
func (h *EpisodeHandler) Start(c *fiber.Ctx) error {
	episode, err := h.episodes.Start(c.Context())
	if err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(episode)
}

// End finishes the running episode. The confirmed end time may be supplied
// by the client; when absent the server clock is used.
// POST /api/episode/end
func (h *EpisodeHandler) End(c *fiber.Ctx) error {
	var req struct {
		Outcome string `json:"outcome"`
		Time    int64  `json:"time"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	episode, err := h.episodes.End(c.Context(), req.Outcome, req.Time)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(episode)
}

// Reset returns the board to the idle state
// POST /api/episode/reset
func (h *EpisodeHandler) Reset(c *fiber.Ctx) error {
	if err := h.episodes.Reset(c.Context()); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "reset"})
}

// Adrenaline records an adrenaline dose
// POST /api/episode/adrenaline
func (h *EpisodeHandler) Adrenaline(c *fiber.Ctx) error {
	episode, err := h.episodes.IncrementAdrenaline(c.Context())
	if err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(episode)
}

// Shock records a defibrillation shock
// POST /api/episode/shock
func (h *EpisodeHandler) Shock(c *fiber.Ctx) error {
	var req struct {
		Detail string `json:"detail"`
	}
	// Body is optional
	_ = c.BodyParser(&req)

	episode, err := h.episodes.IncrementShock(c.Context(), req.Detail)
	if err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(episode)
}

// RearmMassager resets the compressor rotation countdown
// POST /api/episode/massager/rearm
func (h *EpisodeHandler) RearmMassager(c *fiber.Ctx) error {
	var req struct {
		Acknowledged bool `json:"acknowledged"`
	}
	_ = c.BodyParser(&req)

	timers, err := h.episodes.RearmMassager(c.Context(), req.Acknowledged)
	if err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(timers)
}

// RearmAdrenaline resets the adrenaline countdown without logging a dose
// POST /api/episode/adrenaline/rearm
func (h *EpisodeHandler) RearmAdrenaline(c *fiber.Ctx) error {
	timers, err := h.episodes.RearmAdrenaline(c.Context())
	if err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(timers)
}

// UpdateSections merges clinical form sections into the episode
// PUT /api/episode/sections
func (h *EpisodeHandler) UpdateSections(c *fiber.Ctx) error {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(c.Body(), &sections); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if len(sections) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No sections provided"})
	}

	episode, err := h.episodes.UpdateSections(c.Context(), sections)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(episode)
}
