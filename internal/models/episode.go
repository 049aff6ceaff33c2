package models

import "encoding/json"

// Episode status values
const (
	StatusNone   = "NONE"
	StatusActive = "ACTIVE"
	StatusEnded  = "ENDED"
)

// Outcome values for an ended episode
const (
	OutcomeROSC  = "ROSC"
	OutcomeDeath = "DEATH"
)

// EndState captures how and when an episode finished.
// Status is StatusNone while no episode exists, StatusActive while running.
type EndState struct {
	Status  string `json:"status"`
	EndTime int64  `json:"endTime,omitempty"`
	Outcome string `json:"outcome,omitempty"`
}

// Timers holds the second-resolution clocks driven by the tick loop.
// ElapsedTime counts up while running. MassagerTime and AdrenalineTime are
// countdowns: they start at the configured alert interval, tick down to 0
// and are re-armed when their action is acknowledged.
type Timers struct {
	ElapsedTime    int `json:"elapsedTime"`
	MassagerTime   int `json:"massagerTime"`
	AdrenalineTime int `json:"adrenalineTime"`
}

// Counters tracks cumulative intervention counts for the running episode
type Counters struct {
	AdrenalineCount int `json:"adrenalineCount"`
	ShockCount      int `json:"shockCount"`
}

// LogEntry is one timestamped line of the episode log.
// Type is one of "patientDetails", "medication" or "action".
type LogEntry struct {
	ID          string `json:"id"`
	Time        int64  `json:"time"`
	Type        string `json:"type"`
	Text        string `json:"text"`
	IsImportant bool   `json:"isImportant,omitempty"`
}

// EpisodeLog is the ordered record of everything that happened in an episode
type EpisodeLog struct {
	PatientID string     `json:"patientId,omitempty"`
	Entries   []LogEntry `json:"entries"`
}

// Episode is the full state of one resuscitation, persisted as a single
// document. Clinical form sections (airways, vital signs, ...) are opaque
// to the backend: the frontend owns their shape, the store merges them by
// section key without inspecting the contents.
type Episode struct {
	ID        string   `json:"id"`
	IsRunning bool     `json:"isRunning"`
	StartTime int64    `json:"startTime,omitempty"`
	End       EndState `json:"end"`
	Timers    Timers   `json:"timers"`
	Counters  Counters `json:"counters"`

	Patient       json.RawMessage `json:"patient,omitempty"`
	Airways       json.RawMessage `json:"airways,omitempty"`
	Defibrillator json.RawMessage `json:"defibrillator,omitempty"`
	VitalSigns    json.RawMessage `json:"vitalSigns,omitempty"`
	Procedures    json.RawMessage `json:"procedures,omitempty"`
	Medications   json.RawMessage `json:"medications,omitempty"`

	Log EpisodeLog `json:"log"`
}

// NewEpisode returns a fresh episode started at the given wall-clock time
// (unix milliseconds). Countdown timers start at the configured intervals.
func NewEpisode(id string, startTime int64, massagerSeconds, adrenalineSeconds int) *Episode {
	return &Episode{
		ID:        id,
		IsRunning: true,
		StartTime: startTime,
		End:       EndState{Status: StatusActive},
		Timers: Timers{
			MassagerTime:   massagerSeconds,
			AdrenalineTime: adrenalineSeconds,
		},
		Log: EpisodeLog{Entries: []LogEntry{}},
	}
}

// ArchivedEpisode is a completed episode kept in the bounded archive.
// State holds the full episode snapshot so a restore is byte-for-byte.
type ArchivedEpisode struct {
	ID         string          `json:"id"`
	ArchivedAt int64           `json:"archivedAt"`
	StartTime  int64           `json:"startTime"`
	EndTime    int64           `json:"endTime"`
	Outcome    string          `json:"outcome,omitempty"`
	PatientID  string          `json:"patientId,omitempty"`
	State      json.RawMessage `json:"state"`
}
