package models

// Timer display modes for the main clock. One countdown (or none) is shown
// as the primary timer; "total" shows the elapsed time instead.
const (
	TimerDisplayNone       = "none"
	TimerDisplayMassager   = "massager"
	TimerDisplayAdrenaline = "adrenaline"
	TimerDisplayTotal      = "total"
)

// AlertSettings controls the two interval alerts and the main timer display.
// Interval values are in seconds.
type AlertSettings struct {
	MassagerAlertSeconds   int    `json:"massagerAlertSeconds"`
	MassagerAlertEnabled   bool   `json:"massagerAlertEnabled"`
	AdrenalineAlertSeconds int    `json:"adrenalineAlertSeconds"`
	AdrenalineAlertEnabled bool   `json:"adrenalineAlertEnabled"`
	TimerDisplay           string `json:"timerDisplay"`
}

// DefaultAlertSettings returns the out-of-the-box alert configuration:
// compressor rotation every 2 minutes, adrenaline reminder every 3 minutes.
func DefaultAlertSettings() AlertSettings {
	return AlertSettings{
		MassagerAlertSeconds:   120,
		MassagerAlertEnabled:   true,
		AdrenalineAlertSeconds: 180,
		AdrenalineAlertEnabled: true,
		TimerDisplay:           TimerDisplayMassager,
	}
}
