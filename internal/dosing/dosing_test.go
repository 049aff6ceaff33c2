package dosing

import (
	"strings"
	"testing"
)

func ptr(f float64) *float64 { return &f }

func TestFormatNumber(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0.05, "0.05"},
		{0.5, "0.5"},
		{2.50, "2.5"},
		{5.00, "5"},
		{0.166666, "0.17"},
		{1.6666, "1.67"},
		{125, "125"},
		{0, "0"},
	}
	for _, c := range cases {
		if got := FormatNumber(c.in); got != c.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPrettifyUnits(t *testing.T) {
	dose, unit := PrettifyUnits(1500, "mcg")
	if dose != 1.5 || unit != "mg" {
		t.Errorf("expected 1.5 mg, got %v %s", dose, unit)
	}

	dose, unit = PrettifyUnits(999, "mcg")
	if dose != 999 || unit != "mcg" {
		t.Errorf("expected 999 mcg unchanged, got %v %s", dose, unit)
	}

	// Only mcg is re-expressed, large mg doses stay as they are
	dose, unit = PrettifyUnits(2000, "mg")
	if dose != 2000 || unit != "mg" {
		t.Errorf("expected 2000 mg unchanged, got %v %s", dose, unit)
	}
}

func TestParseRatio(t *testing.T) {
	value, err := ParseRatio("1/10")
	if err != nil {
		t.Fatalf("ParseRatio failed: %v", err)
	}
	if value != 0.1 {
		t.Errorf("expected 0.1, got %v", value)
	}

	for _, bad := range []string{"", "1", "a/b", "1/0", "1/2/3"} {
		if _, err := ParseRatio(bad); err == nil {
			t.Errorf("ParseRatio(%q) should fail", bad)
		}
	}
}

func TestBolusGoldenCases(t *testing.T) {
	cases := []struct {
		name       string
		drug       Drug
		weight     float64
		wantDose   string
		wantVolume string
	}{
		{
			name: "adrenaline 5kg",
			drug: Drug{
				Name: "Adrenaline 1:10,000", DosePerKg: 0.01, DoseUnit: "mg",
				Concentration: "1/10", ConcentrationDoseUnit: "mg", MaxDose: ptr(1),
			},
			weight: 5, wantDose: "0.05", wantVolume: "0.5",
		},
		{
			name: "adrenaline 25kg",
			drug: Drug{
				Name: "Adrenaline 1:10,000", DosePerKg: 0.01, DoseUnit: "mg",
				Concentration: "1/10", ConcentrationDoseUnit: "mg", MaxDose: ptr(1),
			},
			weight: 25, wantDose: "0.25", wantVolume: "2.5",
		},
		{
			name: "adrenaline max dose 101kg",
			drug: Drug{
				Name: "Adrenaline 1:10,000", DosePerKg: 0.01, DoseUnit: "mg",
				Concentration: "1/10", ConcentrationDoseUnit: "mg", MaxDose: ptr(1),
			},
			weight: 101, wantDose: "1", wantVolume: "10",
		},
		{
			name: "amiodarone 5kg",
			drug: Drug{
				Name: "Amiodarone", DosePerKg: 5, DoseUnit: "mg",
				Concentration: "50/1", ConcentrationDoseUnit: "mg", MaxDose: ptr(300),
			},
			weight: 5, wantDose: "25", wantVolume: "0.5",
		},
		{
			name: "amiodarone max dose 61kg",
			drug: Drug{
				Name: "Amiodarone", DosePerKg: 5, DoseUnit: "mg",
				Concentration: "50/1", ConcentrationDoseUnit: "mg", MaxDose: ptr(300),
			},
			weight: 61, wantDose: "300", wantVolume: "6",
		},
		{
			name: "adenosine rounding 5kg",
			drug: Drug{
				Name: "Adenosine 1st", DosePerKg: 0.1, DoseUnit: "mg",
				Concentration: "3/1", ConcentrationDoseUnit: "mg", MaxDose: ptr(6),
			},
			weight: 5, wantDose: "0.5", wantVolume: "0.17",
		},
		{
			name: "adenosine rounding 25kg",
			drug: Drug{
				Name: "Adenosine 2nd", DosePerKg: 0.2, DoseUnit: "mg",
				Concentration: "3/1", ConcentrationDoseUnit: "mg", MaxDose: ptr(12),
			},
			weight: 25, wantDose: "5", wantVolume: "1.67",
		},
		{
			name: "magnesium max dose 41kg",
			drug: Drug{
				Name: "Magnesium Sulfate", DosePerKg: 50, DoseUnit: "mg",
				Concentration: "500/1", ConcentrationDoseUnit: "mg", MaxDose: ptr(2000),
			},
			weight: 41, wantDose: "2000", wantVolume: "4",
		},
		{
			name: "adrenaline IM max dose 51kg",
			drug: Drug{
				Name: "Adrenaline 1:1000", DosePerKg: 0.01, DoseUnit: "mg",
				Concentration: "1/1", ConcentrationDoseUnit: "mg", MaxDose: ptr(0.5),
			},
			weight: 51, wantDose: "0.5", wantVolume: "0.5",
		},
		{
			name: "no concentration yields no volume",
			drug: Drug{
				Name: "Hydrocortisone", DosePerKg: 4, DoseUnit: "mg", MaxDose: ptr(100),
			},
			weight: 5, wantDose: "20", wantVolume: "",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			result, err := Bolus(c.drug, &c.weight)
			if err != nil {
				t.Fatalf("Bolus failed: %v", err)
			}
			if result.DoseText != c.wantDose {
				t.Errorf("dose = %q, want %q", result.DoseText, c.wantDose)
			}
			if result.VolumeText != c.wantVolume {
				t.Errorf("volume = %q, want %q", result.VolumeText, c.wantVolume)
			}
		})
	}
}

func TestBolusClampOrderMaxThenMin(t *testing.T) {
	// A min dose above the max-clamped value wins
	drug := Drug{
		Name: "Atropine", DosePerKg: 0.02, DoseUnit: "mg",
		MaxDose: ptr(1), MinDose: ptr(0.1),
	}

	weight := 2.0 // raw dose 0.04, below the min
	result, err := Bolus(drug, &weight)
	if err != nil {
		t.Fatalf("Bolus failed: %v", err)
	}
	if result.Dose != 0.1 {
		t.Errorf("expected min clamp to 0.1, got %v", result.Dose)
	}

	weight = 80 // raw dose 1.6, above the max
	result, err = Bolus(drug, &weight)
	if err != nil {
		t.Fatalf("Bolus failed: %v", err)
	}
	if result.Dose != 1 {
		t.Errorf("expected max clamp to 1, got %v", result.Dose)
	}
}

func TestBolusNilWeight(t *testing.T) {
	drug := Drug{Name: "Adrenaline", DosePerKg: 0.01, DoseUnit: "mg", Concentration: "1/10"}
	result, err := Bolus(drug, nil)
	if err != nil {
		t.Fatalf("nil weight must not error: %v", err)
	}
	if result.WeightKnown {
		t.Error("WeightKnown should be false")
	}
	if result.Dose != 0 || result.VolumeMl != nil {
		t.Errorf("expected inert zero result, got %+v", result)
	}
}

func TestBolusUnitMismatch(t *testing.T) {
	drug := Drug{
		Name: "Broken", DosePerKg: 1, DoseUnit: "mg",
		Concentration: "1/1", ConcentrationDoseUnit: "mcg",
	}
	weight := 5.0
	if _, err := Bolus(drug, &weight); err == nil {
		t.Fatal("unit mismatch must surface as an error")
	}
}

func TestDefi(t *testing.T) {
	weight := 10.0
	if got := Defi(4, &weight); got != 40 {
		t.Errorf("expected 40 J, got %v", got)
	}

	// Hard 200 J device ceiling
	weight = 80
	if got := Defi(4, &weight); got != 200 {
		t.Errorf("expected 200 J ceiling, got %v", got)
	}

	if got := Defi(4, nil); got != 0 {
		t.Errorf("expected 0 for unknown weight, got %v", got)
	}
}

func TestInfusionSpeed(t *testing.T) {
	drip := Drip{
		Name: "Adrenaline drip", DoseUnit: "mcg",
		CalcType:                  "ExistingConcentration",
		DosePerKgPerMin:           0.1,
		ExistingConcentration:     "20/1",
		ExistingConcentrationUnit: "mcg",
	}

	weight := 10.0
	result, err := InfusionSpeed(drip, &weight)
	if err != nil {
		t.Fatalf("InfusionSpeed failed: %v", err)
	}
	// 0.1 mcg/kg/min * 60 * 10 kg = 60 mcg/hr at 20 mcg/ml = 3 ml/hr
	if result.SpeedText != "3" {
		t.Errorf("expected 3 ml/hr, got %q", result.SpeedText)
	}
}

func TestInfusionSpeedUnitMismatch(t *testing.T) {
	drip := Drip{
		Name: "Broken drip", DoseUnit: "mcg",
		DosePerKgPerMin:           0.1,
		ExistingConcentration:     "20/1",
		ExistingConcentrationUnit: "mg",
	}
	weight := 10.0
	_, err := InfusionSpeed(drip, &weight)
	if err == nil || !strings.Contains(err.Error(), "does not match") {
		t.Fatalf("expected unit mismatch error, got %v", err)
	}
}

func TestDilution(t *testing.T) {
	drip := Drip{
		Name: "Dopamine drip", DoseUnit: "mcg",
		CalcType:                "DilutionInstructions",
		DefaultDilutionVolumeMl: 50,
		DosePerKgPerMin:         10,
		DefinitionByWeights: []WeightBand{
			{MinKg: 0, MaxKg: 5, TargetVolumeMlPerHour: 2},
			{MinKg: 5, MaxKg: 20, TargetVolumeMlPerHour: 5},
			{MinKg: 20, MaxKg: 250, TargetVolumeMlPerHour: 10},
		},
	}

	weight := 10.0
	result, err := Dilution(drip, &weight)
	if err != nil {
		t.Fatalf("Dilution failed: %v", err)
	}
	// 10 mcg/kg/min * 60 * 10 kg = 6000 mcg/hr; 50 ml / 5 ml/hr * 6000 = 60000 mcg = 60 mg
	if result.DosePerHour != 6000 {
		t.Errorf("expected 6000 mcg/hr, got %v", result.DosePerHour)
	}
	if result.DoseToAddText != "60" || result.DoseToAddUnit != "mg" {
		t.Errorf("expected 60 mg to add, got %s %s", result.DoseToAddText, result.DoseToAddUnit)
	}
	if result.TargetMlPerHour != 5 {
		t.Errorf("expected 5 ml/hr target, got %v", result.TargetMlPerHour)
	}
}

func TestDilutionWeightBands(t *testing.T) {
	drip := Drip{
		Name: "Banded drip", DoseUnit: "mcg",
		DefaultDilutionVolumeMl: 50,
		DosePerKgPerMin:         1,
		DefinitionByWeights: []WeightBand{
			{MinKg: 0, MaxKg: 5, TargetVolumeMlPerHour: 2},
			{MinKg: 5, MaxKg: 20, TargetVolumeMlPerHour: 5},
		},
	}

	// Band boundaries are [min, max): exactly 5 kg falls in the second band
	weight := 5.0
	result, err := Dilution(drip, &weight)
	if err != nil {
		t.Fatalf("Dilution failed: %v", err)
	}
	if result.TargetMlPerHour != 5 {
		t.Errorf("expected second band at 5 kg, got target %v", result.TargetMlPerHour)
	}

	// Outside every band is a definition error
	weight = 40
	if _, err := Dilution(drip, &weight); err == nil {
		t.Fatal("weight outside all bands must error")
	}

	// Unknown weight uses the first band
	result, err = Dilution(drip, nil)
	if err != nil {
		t.Fatalf("Dilution with nil weight failed: %v", err)
	}
	if result.TargetMlPerHour != 2 {
		t.Errorf("expected first band for nil weight, got %v", result.TargetMlPerHour)
	}
	if result.DosePerHour != 0 {
		t.Errorf("expected zero dose for nil weight, got %v", result.DosePerHour)
	}
}

func TestDripMissingRate(t *testing.T) {
	drip := Drip{Name: "No rate", DoseUnit: "mcg", ExistingConcentration: "1/1", ExistingConcentrationUnit: "mcg"}
	weight := 5.0
	if _, err := InfusionSpeed(drip, &weight); err == nil {
		t.Fatal("missing rate must error")
	}
}
