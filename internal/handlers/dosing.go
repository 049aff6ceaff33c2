package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"resusboard/internal/dosing"
	"resusboard/internal/refdata"
)

// DosingHandler handles dose computation and reference data HTTP requests
type DosingHandler struct {
	guide     *refdata.GuideService
	hospitals *refdata.HospitalService
}

// NewDosingHandler creates a new dosing handler
func NewDosingHandler(guide *refdata.GuideService, hospitals *refdata.HospitalService) *DosingHandler {
	return &DosingHandler{guide: guide, hospitals: hospitals}
}

// parseWeight reads the optional weight query parameter. Absent or empty
// means the patient has not been weighed.
func parseWeight(c *fiber.Ctx) (*float64, error) {
	raw := c.Query("weight")
	if raw == "" {
		return nil, nil
	}
	weight, err := strconv.ParseFloat(raw, 64)
	if err != nil || weight < 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid weight")
	}
	return &weight, nil
}

// Sheet returns the full dose sheet for a weight and protocol
// GET /api/dosing/sheet?weight=12.5&protocol=cpr
func (h *DosingHandler) Sheet(c *fiber.Ctx) error {
	weight, err := parseWeight(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid weight"})
	}
	return c.JSON(h.guide.DoseSheet(weight, c.Query("protocol")))
}

// Drug returns one computed bolus dose
// GET /api/dosing/drug/:id?weight=12.5
func (h *DosingHandler) Drug(c *fiber.Ctx) error {
	drug, ok := h.guide.Drug(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Drug not found"})
	}

	weight, err := parseWeight(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid weight"})
	}

	result, err := dosing.Bolus(drug, weight)
	if err != nil {
		// Definition errors surface loudly, a wrong number must never render
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"drug": drug, "result": result})
}

// Drip returns one computed drip dose
// GET /api/dosing/drip/:id?weight=12.5
func (h *DosingHandler) Drip(c *fiber.Ctx) error {
	drip, ok := h.guide.Drip(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Drip not found"})
	}

	weight, err := parseWeight(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid weight"})
	}

	switch drip.CalcType {
	case refdata.CalcTypeDilution:
		result, err := dosing.Dilution(drip, weight)
		if err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"drip": drip, "dilution": result})
	case refdata.CalcTypeExisting:
		result, err := dosing.InfusionSpeed(drip, weight)
		if err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"drip": drip, "infusion": result})
	}
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Unknown drip calc_type"})
}

// Guide returns the raw reference data
// GET /api/refdata/guide
func (h *DosingHandler) Guide(c *fiber.Ctx) error {
	return c.JSON(h.guide.Guide())
}

// Hospitals returns the hospital directory
// GET /api/refdata/hospitals
func (h *DosingHandler) Hospitals(c *fiber.Ctx) error {
	return c.JSON(h.hospitals.All())
}

// SelectedHospital returns the active hospital, if any
// GET /api/refdata/hospital
func (h *DosingHandler) SelectedHospital(c *fiber.Ctx) error {
	hospital, ok := h.hospitals.Selected()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No hospital configured"})
	}
	return c.JSON(hospital)
}
