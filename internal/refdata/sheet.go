package refdata

import (
	"fmt"

	"resusboard/internal/dosing"
)

// resusSectionName is the always-shown drug group of the guide
const resusSectionName = "Resus Drugs"

// Drip calculation types
const (
	CalcTypeDilution = "DilutionInstructions"
	CalcTypeExisting = "ExistingConcentration"
)

// DrugDose pairs a bolus definition with its computed result. A definition
// error is carried per row so one broken entry cannot take down the sheet,
// the row shows an error state instead of a wrong number.
type DrugDose struct {
	Drug   dosing.Drug         `json:"drug"`
	Result *dosing.BolusResult `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// DripDose pairs a drip definition with its computed result
type DripDose struct {
	Drip     dosing.Drip            `json:"drip"`
	Dilution *dosing.DilutionResult `json:"dilution,omitempty"`
	Infusion *dosing.InfusionResult `json:"infusion,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// DefiDose is one computed defibrillation step
type DefiDose struct {
	Name       string  `json:"name"`
	JoulePerKg float64 `json:"joulePerKg"`
	Joules     float64 `json:"joules"`
}

// DoseSheet is everything the bedside UI shows for one weight and protocol
type DoseSheet struct {
	WeightKg      *float64   `json:"weightKg"`
	ProtocolID    string     `json:"protocolId,omitempty"`
	ResusDrugs    []DrugDose `json:"resusDrugs"`
	ProtocolDrugs []DrugDose `json:"protocolDrugs,omitempty"`
	Drips         []DripDose `json:"drips,omitempty"`
	Defi          []DefiDose `json:"defi,omitempty"`
}

// DoseSheet computes (or returns the cached) full dose sheet for a weight
// and protocol.
func (s *GuideService) DoseSheet(weightKg *float64, protocolID string) *DoseSheet {
	key := sheetKey(weightKg, protocolID)
	if cached, ok := s.sheets.Get(key); ok {
		return cached.(*DoseSheet)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sheet := &DoseSheet{WeightKg: weightKg, ProtocolID: protocolID}
	sheet.ResusDrugs = s.computeDrugs(s.sectionDrugIDs(resusSectionName), weightKg)

	for _, p := range s.guide.Protocols {
		if p.ProtocolID != protocolID {
			continue
		}
		sheet.ProtocolDrugs = s.computeDrugs(p.Drugs, weightKg)
		sheet.Drips = s.computeDrips(p.Drips, weightKg)
		for _, action := range p.Defi {
			sheet.Defi = append(sheet.Defi, DefiDose{
				Name:       action.Name,
				JoulePerKg: action.JoulePerKg,
				Joules:     dosing.Defi(action.JoulePerKg, weightKg),
			})
		}
		break
	}

	s.sheets.SetDefault(key, sheet)
	return sheet
}

func sheetKey(weightKg *float64, protocolID string) string {
	if weightKg == nil {
		return "w=nil|p=" + protocolID
	}
	return fmt.Sprintf("w=%g|p=%s", *weightKg, protocolID)
}

func (s *GuideService) computeDrugs(ids []string, weightKg *float64) []DrugDose {
	doses := make([]DrugDose, 0, len(ids))
	for _, id := range ids {
		drug, ok := s.drugByID[id]
		if !ok {
			doses = append(doses, DrugDose{
				Drug:  dosing.Drug{ID: id},
				Error: fmt.Sprintf("drug %q not defined in guide", id),
			})
			continue
		}
		result, err := dosing.Bolus(drug, weightKg)
		if err != nil {
			doses = append(doses, DrugDose{Drug: drug, Error: err.Error()})
			continue
		}
		doses = append(doses, DrugDose{Drug: drug, Result: &result})
	}
	return doses
}

func (s *GuideService) computeDrips(ids []string, weightKg *float64) []DripDose {
	doses := make([]DripDose, 0, len(ids))
	for _, id := range ids {
		drip, ok := s.dripByID[id]
		if !ok {
			doses = append(doses, DripDose{
				Drip:  dosing.Drip{ID: id},
				Error: fmt.Sprintf("drip %q not defined in guide", id),
			})
			continue
		}

		dose := DripDose{Drip: drip}
		switch drip.CalcType {
		case CalcTypeDilution:
			result, err := dosing.Dilution(drip, weightKg)
			if err != nil {
				dose.Error = err.Error()
			} else {
				dose.Dilution = &result
			}
		case CalcTypeExisting:
			result, err := dosing.InfusionSpeed(drip, weightKg)
			if err != nil {
				dose.Error = err.Error()
			} else {
				dose.Infusion = &result
			}
		default:
			dose.Error = fmt.Sprintf("unknown calc_type %q for drip %s", drip.CalcType, drip.Name)
		}
		doses = append(doses, dose)
	}
	return doses
}
