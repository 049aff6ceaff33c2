// Package dosing computes weight-based medication and defibrillation doses.
// All functions are pure: definitions and weight in, numbers out. A nil
// weight means the patient has not been weighed yet and yields inert zero
// results, never an error. Broken definitions (bad ratios, unit mismatches,
// weight outside every band) are definition errors and always surface.
package dosing

import (
	"fmt"
	"strconv"
	"strings"
)

// maxDefiJoules is the hard device ceiling regardless of weight
const maxDefiJoules = 200

// Drug is a bolus medication definition
type Drug struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	HowToGive             string   `json:"howToGive,omitempty"`
	DosePerKg             float64  `json:"dose_per_kg"`
	DoseUnit              string   `json:"dose_unit"`
	Concentration         string   `json:"concentration,omitempty"`
	ConcentrationDoseUnit string   `json:"concentration_dose_unit,omitempty"`
	MaxDose               *float64 `json:"maxDose,omitempty"`
	MinDose               *float64 `json:"minDose,omitempty"`
	DoseRange             string   `json:"dose_range,omitempty"`
	PrepareInstructions   string   `json:"prepare_instructions,omitempty"`
	Comment               string   `json:"comment,omitempty"`
	WarnText              string   `json:"warnText,omitempty"`
}

// WeightBand maps a weight range [MinKg, MaxKg) to a target infusion volume
type WeightBand struct {
	MinKg                 float64 `json:"min_kg"`
	MaxKg                 float64 `json:"max_kg"`
	TargetVolumeMlPerHour float64 `json:"target_volume_ml_per_hour"`
}

// Drip is a continuous infusion definition. CalcType selects between
// "DilutionInstructions" (mix X into a bag) and "ExistingConcentration"
// (set the pump speed against a stock solution).
type Drip struct {
	ID                        string       `json:"id"`
	Name                      string       `json:"name"`
	HowToGive                 string       `json:"howToGive,omitempty"`
	DoseUnit                  string       `json:"dose_unit"`
	AllowedDoseRange          string       `json:"allowed_dose_range,omitempty"`
	CalcType                  string       `json:"calc_type"`
	DefaultDilutionVolumeMl   float64      `json:"default_dilution_volume_ml,omitempty"`
	DosePerKgPerMin           float64      `json:"dose_per_kg_per_min,omitempty"`
	DosePerKgPerHour          float64      `json:"dose_per_kg_per_hour,omitempty"`
	ExistingConcentration     string       `json:"existing_dilution_concentration,omitempty"`
	ExistingConcentrationUnit string       `json:"existing_dilution_concentration_dose_unit,omitempty"`
	DefinitionByWeights       []WeightBand `json:"definition_by_weights,omitempty"`
	TargetVolumeMlPerHour     float64      `json:"target_volume_ml_per_hour,omitempty"`
}

// DefiAction is one defibrillation protocol step
type DefiAction struct {
	Name       string  `json:"name"`
	JoulePerKg float64 `json:"joulePerKg"`
}

// BolusResult is a computed bolus dose. Volume is nil when the definition
// carries no concentration (dose is drawn up by mass, not volume).
type BolusResult struct {
	Dose        float64  `json:"dose"`
	DoseUnit    string   `json:"doseUnit"`
	DoseText    string   `json:"doseText"`
	VolumeMl    *float64 `json:"volumeMl,omitempty"`
	VolumeText  string   `json:"volumeText,omitempty"`
	WeightKnown bool     `json:"weightKnown"`
}

// DilutionResult describes how to mix a dilution bag
type DilutionResult struct {
	DosePerHour     float64 `json:"dosePerHour"`
	DosePerHourText string  `json:"dosePerHourText"`
	DosePerHourUnit string  `json:"dosePerHourUnit"`
	DoseToAdd       float64 `json:"doseToAdd"`
	DoseToAddText   string  `json:"doseToAddText"`
	DoseToAddUnit   string  `json:"doseToAddUnit"`
	DilutionMl      float64 `json:"dilutionMl"`
	TargetMlPerHour float64 `json:"targetMlPerHour"`
}

// InfusionResult is a pump speed against an existing concentration
type InfusionResult struct {
	SpeedMlPerHour float64 `json:"speedMlPerHour"`
	SpeedText      string  `json:"speedText"`
	Concentration  string  `json:"concentration"`
	DoseUnit       string  `json:"doseUnit"`
}

// FormatNumber renders to at most 2 decimal digits with trailing zeros
// stripped, so 2.50 shows as "2.5" and 5.00 as "5".
func FormatNumber(num float64) string {
	formatted := strconv.FormatFloat(num, 'f', 2, 64)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")
	if formatted == "" || formatted == "-" {
		return "0"
	}
	return formatted
}

// PrettifyUnits re-expresses doses of 1000 mcg or more in mg for display.
// Raw values are unaffected, this is presentation only.
func PrettifyUnits(dose float64, unit string) (float64, string) {
	if dose >= 1000 && unit == "mcg" {
		return dose / 1000, "mg"
	}
	return dose, unit
}

// ParseRatio parses a concentration ratio string "numerator/denominator"
// (dose units per ml) into a single dose-per-ml value.
func ParseRatio(ratio string) (float64, error) {
	parts := strings.Split(ratio, "/")
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed concentration ratio %q", ratio)
	}
	numerator, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed concentration numerator %q", parts[0])
	}
	denominator, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed concentration denominator %q", parts[1])
	}
	if denominator == 0 {
		return 0, fmt.Errorf("zero denominator in concentration ratio %q", ratio)
	}
	return numerator / denominator, nil
}

// Bolus computes a weight-based bolus dose, clamped to the definition's
// max and then min. The clamp order matters: a min dose above the
// max-clamped value wins, matching established protocol tables.
func Bolus(drug Drug, weightKg *float64) (BolusResult, error) {
	if weightKg == nil {
		return BolusResult{DoseUnit: drug.DoseUnit, DoseText: "0", WeightKnown: false}, nil
	}

	dose := drug.DosePerKg * *weightKg
	if drug.MaxDose != nil && dose > *drug.MaxDose {
		dose = *drug.MaxDose
	}
	if drug.MinDose != nil && dose < *drug.MinDose {
		dose = *drug.MinDose
	}

	prettyDose, prettyUnit := PrettifyUnits(dose, drug.DoseUnit)
	result := BolusResult{
		Dose:        dose,
		DoseUnit:    prettyUnit,
		DoseText:    FormatNumber(prettyDose),
		WeightKnown: true,
	}

	if drug.Concentration == "" {
		return result, nil
	}
	if drug.ConcentrationDoseUnit != "" && drug.ConcentrationDoseUnit != drug.DoseUnit {
		return BolusResult{}, fmt.Errorf("dose unit %q does not match concentration unit %q for drug %s",
			drug.DoseUnit, drug.ConcentrationDoseUnit, drug.Name)
	}

	concentration, err := ParseRatio(drug.Concentration)
	if err != nil {
		return BolusResult{}, fmt.Errorf("drug %s: %w", drug.Name, err)
	}
	if concentration == 0 {
		return BolusResult{}, fmt.Errorf("zero concentration for drug %s", drug.Name)
	}

	volume := dose / concentration
	result.VolumeMl = &volume
	result.VolumeText = FormatNumber(volume)
	return result, nil
}

// Defi computes the defibrillation energy: joules per kg times weight,
// capped at the 200 J device ceiling. Unknown weight yields 0.
func Defi(joulePerKg float64, weightKg *float64) float64 {
	if weightKg == nil {
		return 0
	}
	joules := joulePerKg * *weightKg
	if joules > maxDefiJoules {
		return maxDefiJoules
	}
	return joules
}

// dosePerHour converts a drip's per-minute or per-hour rate to dose per
// hour for the given weight. Zero when the weight is unknown.
func dosePerHour(drip Drip, weightKg *float64) (float64, error) {
	if weightKg == nil {
		return 0, nil
	}
	var perHour float64
	switch {
	case drip.DosePerKgPerMin != 0:
		perHour = drip.DosePerKgPerMin * 60
	case drip.DosePerKgPerHour != 0:
		perHour = drip.DosePerKgPerHour
	default:
		return 0, fmt.Errorf("neither per-minute nor per-hour rate provided for drip %s", drip.Name)
	}
	return perHour * *weightKg, nil
}

// targetVolumePerHour looks up the weight-banded target infusion volume.
// Bands are [MinKg, MaxKg); a weight outside every band is a definition
// error. With no weight the first band applies.
func targetVolumePerHour(drip Drip, weightKg *float64) (float64, error) {
	if len(drip.DefinitionByWeights) == 0 {
		if drip.TargetVolumeMlPerHour > 0 {
			return drip.TargetVolumeMlPerHour, nil
		}
		return 0, fmt.Errorf("no weight bands or target volume defined for drip %s", drip.Name)
	}
	if weightKg == nil {
		return drip.DefinitionByWeights[0].TargetVolumeMlPerHour, nil
	}
	for _, band := range drip.DefinitionByWeights {
		if *weightKg >= band.MinKg && *weightKg < band.MaxKg {
			return band.TargetVolumeMlPerHour, nil
		}
	}
	return 0, fmt.Errorf("weight %.1f kg outside defined bands for drip %s", *weightKg, drip.Name)
}

// Dilution computes the mass to add to the dilution bag so the banded
// target rate delivers the per-hour dose.
func Dilution(drip Drip, weightKg *float64) (DilutionResult, error) {
	perHour, err := dosePerHour(drip, weightKg)
	if err != nil {
		return DilutionResult{}, err
	}
	target, err := targetVolumePerHour(drip, weightKg)
	if err != nil {
		return DilutionResult{}, err
	}
	if target == 0 {
		return DilutionResult{}, fmt.Errorf("zero target volume per hour for drip %s", drip.Name)
	}

	doseToAdd := drip.DefaultDilutionVolumeMl / target * perHour
	prettyAdd, prettyAddUnit := PrettifyUnits(doseToAdd, drip.DoseUnit)
	prettyHour, prettyHourUnit := PrettifyUnits(perHour, drip.DoseUnit)

	return DilutionResult{
		DosePerHour:     perHour,
		DosePerHourText: FormatNumber(prettyHour),
		DosePerHourUnit: prettyHourUnit,
		DoseToAdd:       doseToAdd,
		DoseToAddText:   FormatNumber(prettyAdd),
		DoseToAddUnit:   prettyAddUnit,
		DilutionMl:      drip.DefaultDilutionVolumeMl,
		TargetMlPerHour: target,
	}, nil
}

// InfusionSpeed computes the pump speed (ml/hr) against an existing stock
// concentration. The drip's dose unit must match the concentration's dose
// unit, a mismatch is a definition error.
func InfusionSpeed(drip Drip, weightKg *float64) (InfusionResult, error) {
	if drip.DoseUnit != drip.ExistingConcentrationUnit {
		return InfusionResult{}, fmt.Errorf("dose unit %q does not match concentration unit %q for drip %s",
			drip.DoseUnit, drip.ExistingConcentrationUnit, drip.Name)
	}
	if drip.ExistingConcentration == "" {
		return InfusionResult{}, fmt.Errorf("missing existing dilution concentration for drip %s", drip.Name)
	}

	perHour, err := dosePerHour(drip, weightKg)
	if err != nil {
		return InfusionResult{}, err
	}
	concentration, err := ParseRatio(drip.ExistingConcentration)
	if err != nil {
		return InfusionResult{}, fmt.Errorf("drip %s: %w", drip.Name, err)
	}
	if concentration == 0 {
		return InfusionResult{}, fmt.Errorf("zero concentration for drip %s", drip.Name)
	}

	speed := perHour / concentration
	return InfusionResult{
		SpeedMlPerHour: speed,
		SpeedText:      FormatNumber(speed),
		Concentration:  drip.ExistingConcentration,
		DoseUnit:       drip.DoseUnit,
	}, nil
}
