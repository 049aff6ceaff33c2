package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"resusboard/internal/models"
)

// SettingsService handles the alert settings: cached in memory for the tick
// loop, persisted through the store, broadcast on change.
type SettingsService struct {
	store *EpisodeStore
	bus   *EventBus

	mu      sync.RWMutex
	current models.AlertSettings
}

// NewSettingsService loads the persisted settings (or defaults) and returns
// the service.
func NewSettingsService(store *EpisodeStore, bus *EventBus) *SettingsService {
	return &SettingsService{
		store:   store,
		bus:     bus,
		current: store.LoadSettings(context.Background()),
	}
}

// Get returns the active alert settings
func (s *SettingsService) Get() models.AlertSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates, persists and broadcasts new alert settings
func (s *SettingsService) Update(ctx context.Context, settings models.AlertSettings) (models.AlertSettings, error) {
	if settings.MassagerAlertSeconds <= 0 {
		return models.AlertSettings{}, fmt.Errorf("massagerAlertSeconds must be positive")
	}
	if settings.AdrenalineAlertSeconds <= 0 {
		return models.AlertSettings{}, fmt.Errorf("adrenalineAlertSeconds must be positive")
	}
	switch settings.TimerDisplay {
	case models.TimerDisplayNone, models.TimerDisplayMassager,
		models.TimerDisplayAdrenaline, models.TimerDisplayTotal:
	default:
		return models.AlertSettings{}, fmt.Errorf("timerDisplay must be %q, %q, %q or %q",
			models.TimerDisplayNone, models.TimerDisplayMassager,
			models.TimerDisplayAdrenaline, models.TimerDisplayTotal)
	}

	s.mu.Lock()
	s.current = settings
	s.mu.Unlock()

	if err := s.store.SaveSettings(ctx, settings); err != nil {
		log.Printf("⚠️ [SETTINGS] Failed to persist alert settings: %v", err)
	}

	log.Printf("⚙️ [SETTINGS] Updated: massager=%ds(%t) adrenaline=%ds(%t) display=%s",
		settings.MassagerAlertSeconds, settings.MassagerAlertEnabled,
		settings.AdrenalineAlertSeconds, settings.AdrenalineAlertEnabled,
		settings.TimerDisplay)
	s.bus.Publish(models.Event{Type: models.EventSettingsUpdated, Payload: settings})
	return settings, nil
}

// Reset restores the default settings
func (s *SettingsService) Reset(ctx context.Context) (models.AlertSettings, error) {
	return s.Update(ctx, models.DefaultAlertSettings())
}
