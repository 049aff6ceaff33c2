package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"resusboard/internal/models"
)

// Log entry types
const (
	LogTypePatientDetails = "patientDetails"
	LogTypeMedication     = "medication"
	LogTypeAction         = "action"
)

var logEntryTypes = map[string]bool{
	LogTypePatientDetails: true,
	LogTypeMedication:     true,
	LogTypeAction:         true,
}

// LogService manages the episode log entries. All mutations run through the
// episode service so log writes share the episode mutex and persistence path.
type LogService struct {
	episodes *EpisodeService
}

// NewLogService creates a log service bound to the episode service
func NewLogService(episodes *EpisodeService) *LogService {
	return &LogService{episodes: episodes}
}

// Entries returns the current episode log, or nil when no episode exists
func (s *LogService) Entries() *models.EpisodeLog {
	ep := s.episodes.Current()
	if ep == nil {
		return nil
	}
	return &ep.Log
}

// Add appends a new entry. The timestamp defaults to now (unix milliseconds)
// when the caller passes zero, so backdated entries stay possible.
func (s *LogService) Add(ctx context.Context, entryType, text string, isImportant bool, at int64) (*models.LogEntry, error) {
	if !logEntryTypes[entryType] {
		return nil, fmt.Errorf("unknown log entry type %q", entryType)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("log entry text is required")
	}
	if at == 0 {
		at = time.Now().UnixMilli()
	}

	entry := models.LogEntry{
		ID:          uuid.New().String(),
		Time:        at,
		Type:        entryType,
		Text:        text,
		IsImportant: isImportant,
	}

	_, err := s.episodes.MutateLog(ctx, func(l *models.EpisodeLog) error {
		l.Entries = append(l.Entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Update edits the text and importance flag of an existing entry.
// Timestamps and types are immutable, the log is a clinical record.
func (s *LogService) Update(ctx context.Context, id, text string, isImportant bool) (*models.LogEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("log entry text is required")
	}

	var updated models.LogEntry
	_, err := s.episodes.MutateLog(ctx, func(l *models.EpisodeLog) error {
		for i := range l.Entries {
			if l.Entries[i].ID == id {
				l.Entries[i].Text = text
				l.Entries[i].IsImportant = isImportant
				updated = l.Entries[i]
				return nil
			}
		}
		return fmt.Errorf("log entry %s not found", id)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes an entry by ID
func (s *LogService) Delete(ctx context.Context, id string) error {
	_, err := s.episodes.MutateLog(ctx, func(l *models.EpisodeLog) error {
		for i := range l.Entries {
			if l.Entries[i].ID == id {
				l.Entries = append(l.Entries[:i], l.Entries[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("log entry %s not found", id)
	})
	return err
}

// SetPatientID attaches the patient identifier to the log and records the
// change as a patientDetails entry.
func (s *LogService) SetPatientID(ctx context.Context, patientID string) error {
	patientID = strings.TrimSpace(patientID)
	_, err := s.episodes.MutateLog(ctx, func(l *models.EpisodeLog) error {
		l.PatientID = patientID
		if patientID != "" {
			l.Entries = append(l.Entries, models.LogEntry{
				ID:   uuid.New().String(),
				Time: time.Now().UnixMilli(),
				Type: LogTypePatientDetails,
				Text: fmt.Sprintf("Patient ID set to %s", patientID),
			})
		}
		return nil
	})
	return err
}
