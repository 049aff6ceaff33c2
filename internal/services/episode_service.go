package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"resusboard/internal/models"
)

// Section keys accepted by UpdateSections. The backend never inspects the
// payloads, the frontend owns their shape.
var sectionKeys = map[string]bool{
	"patient":       true,
	"airways":       true,
	"defibrillator": true,
	"vitalSigns":    true,
	"procedures":    true,
	"medications":   true,
}

// EpisodeService is the state machine for the single resuscitation episode.
// All mutations go through its mutex, get persisted as section-scoped merges
// and are broadcast on the event bus.
//
// Lifecycle: NONE → ACTIVE (Start) → ENDED (End) → NONE (Reset) or straight
// back to ACTIVE (Start again). An ENDED episode stays in memory for review,
// but the persisted current-episode slot is cleared the moment it is
// archived, so a crash after END can never resurrect a finished episode as
// active.
type EpisodeService struct {
	store    *EpisodeStore
	bus      *EventBus
	settings *SettingsService

	mu       sync.Mutex
	current  *models.Episode
	lastTick time.Time
}

// NewEpisodeService creates the episode service and rehydrates any episode
// persisted by a previous process. A rehydrated running episode resumes
// ticking from its persisted timers without a fresh start log entry.
func NewEpisodeService(store *EpisodeStore, bus *EventBus, settings *SettingsService) *EpisodeService {
	s := &EpisodeService{store: store, bus: bus, settings: settings}

	if ep := store.LoadEpisode(context.Background()); ep != nil {
		s.current = ep
		if ep.IsRunning {
			s.lastTick = time.Now()
			log.Printf("🔄 [EPISODE] Rehydrated running episode (elapsed=%ds, adrenaline=%d, shocks=%d)",
				ep.Timers.ElapsedTime, ep.Counters.AdrenalineCount, ep.Counters.ShockCount)
		} else {
			log.Printf("🔄 [EPISODE] Rehydrated episode in state %s", ep.End.Status)
		}
	}

	return s
}

// Current returns a deep snapshot of the episode, or nil when none exists
func (s *EpisodeService) Current() *models.Episode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *EpisodeService) snapshotLocked() *models.Episode {
	if s.current == nil {
		return nil
	}
	snap := *s.current
	snap.Log.Entries = append([]models.LogEntry(nil), s.current.Log.Entries...)
	return &snap
}

// Status returns the lifecycle state: NONE, ACTIVE or ENDED
func (s *EpisodeService) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return models.StatusNone
	}
	return s.current.End.Status
}

// Start begins a new episode. Valid from the idle state or over an ended
// episode (restart discards the reviewed one, it is already archived).
// Fails while an episode is running.
func (s *EpisodeService) Start(ctx context.Context) (*models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.IsRunning {
		return nil, fmt.Errorf("episode already running")
	}

	now := time.Now()
	settings := s.settings.Get()
	s.current = models.NewEpisode(uuid.New().String(), now.UnixMilli(),
		settings.MassagerAlertSeconds, settings.AdrenalineAlertSeconds)
	s.lastTick = now

	s.appendLogLocked(models.LogEntry{Type: LogTypeAction, Text: "Resuscitation started", IsImportant: true})

	if err := s.store.SaveEpisode(ctx, s.current); err != nil {
		log.Printf("⚠️ [EPISODE] Failed to persist new episode: %v", err)
	}

	log.Printf("🫀 [EPISODE] Started at %d", s.current.StartTime)
	snap := s.snapshotLocked()
	s.bus.Publish(models.Event{Type: models.EventEpisodeStarted, Payload: snap})
	return snap, nil
}

// End finishes the running episode with the given outcome, archives a full
// snapshot and clears the persisted current slot. endedAt is the confirmed
// wall-clock time in unix millis; 0 means now. Ending an already ended
// episode is a no-op.
func (s *EpisodeService) End(ctx context.Context, outcome string, endedAt int64) (*models.Episode, error) {
	if outcome != models.OutcomeROSC && outcome != models.OutcomeDeath {
		return nil, fmt.Errorf("invalid outcome %q", outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, fmt.Errorf("no episode to end")
	}
	if s.current.End.Status == models.StatusEnded {
		return s.snapshotLocked(), nil
	}

	endTime := endedAt
	if endTime == 0 {
		endTime = time.Now().UnixMilli()
	}
	s.current.IsRunning = false
	s.current.End = models.EndState{
		Status:  models.StatusEnded,
		EndTime: endTime,
		Outcome: outcome,
	}
	s.appendLogLocked(models.LogEntry{
		Type:        LogTypeAction,
		Text:        fmt.Sprintf("Resuscitation ended (%s)", outcome),
		IsImportant: true,
	})

	state, err := json.Marshal(s.current)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal episode for archive: %w", err)
	}
	entry := models.ArchivedEpisode{
		ID:         uuid.New().String(),
		ArchivedAt: time.Now().UnixMilli(),
		StartTime:  s.current.StartTime,
		EndTime:    endTime,
		Outcome:    outcome,
		PatientID:  s.current.Log.PatientID,
		State:      state,
	}

	// Archive first, clear second. A crash between the two leaves a
	// duplicate in the archive, never a lost episode.
	archive, err := s.store.Archive(ctx, entry)
	if err != nil {
		log.Printf("⚠️ [EPISODE] Failed to archive episode: %v", err)
	}
	if err := s.store.ClearEpisode(ctx); err != nil {
		log.Printf("⚠️ [EPISODE] Failed to clear episode slot: %v", err)
	}

	log.Printf("🏁 [EPISODE] Ended after %ds (outcome=%s)", s.current.Timers.ElapsedTime, outcome)
	snap := s.snapshotLocked()
	s.bus.Publish(models.Event{Type: models.EventEpisodeEnded, Payload: snap})
	if archive != nil {
		s.bus.Publish(models.Event{Type: models.EventArchiveUpdated, Payload: archive})
	}
	return snap, nil
}

// Reset discards the in-memory episode and any persisted current slot,
// returning the board to the idle state. Collaborating clients clear their
// cached section state on the broadcast.
func (s *EpisodeService) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.IsRunning {
		return fmt.Errorf("cannot reset a running episode, end it first")
	}

	s.current = nil
	if err := s.store.ClearEpisode(ctx); err != nil {
		log.Printf("⚠️ [EPISODE] Failed to clear episode slot: %v", err)
	}

	log.Println("🧹 [EPISODE] Reset to idle")
	s.bus.Publish(models.Event{Type: models.EventEpisodeReset})
	return nil
}

// Restore copies an archived snapshot back into the current slot for
// review. The restored episode is never running.
func (s *EpisodeService) Restore(ctx context.Context, state json.RawMessage) (*models.Episode, error) {
	var ep models.Episode
	if err := json.Unmarshal(state, &ep); err != nil {
		return nil, fmt.Errorf("corrupt archived state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.IsRunning {
		return nil, fmt.Errorf("cannot restore while an episode is running")
	}

	ep.IsRunning = false
	if ep.End.Status != models.StatusEnded {
		ep.End.Status = models.StatusEnded
	}
	s.current = &ep

	if err := s.store.SaveEpisode(ctx, s.current); err != nil {
		log.Printf("⚠️ [EPISODE] Failed to persist restored episode: %v", err)
	}

	snap := s.snapshotLocked()
	s.bus.Publish(models.Event{Type: models.EventEpisodeRestored, Payload: snap})
	return snap, nil
}

// Advance moves the timers forward based on wall-clock time. Each whole
// second since the last tick is credited, so a stalled ticker or a
// throttled host catches up in one call instead of drifting. The
// sub-second remainder carries over to keep long-run totals aligned with
// the clock.
//
// Elapsed counts up, the two alert countdowns tick down and floor at 0.
// A disabled channel's countdown is frozen.
//
// Returns the updated timers and whether the episode is running.
func (s *EpisodeService) Advance(ctx context.Context, now time.Time) (models.Timers, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || !s.current.IsRunning {
		return models.Timers{}, false
	}

	delta := now.Sub(s.lastTick)
	if delta < time.Second {
		return s.current.Timers, true
	}

	seconds := int(delta / time.Second)
	s.lastTick = now.Add(-(delta % time.Second))

	settings := s.settings.Get()
	s.current.Timers.ElapsedTime += seconds
	if settings.MassagerAlertEnabled {
		s.current.Timers.MassagerTime = floorSub(s.current.Timers.MassagerTime, seconds)
	}
	if settings.AdrenalineAlertEnabled {
		s.current.Timers.AdrenalineTime = floorSub(s.current.Timers.AdrenalineTime, seconds)
	}

	s.persistSectionsLocked(ctx, map[string]interface{}{"timers": s.current.Timers})
	s.bus.Publish(models.Event{Type: models.EventTick, Payload: s.current.Timers})
	return s.current.Timers, true
}

func floorSub(value, delta int) int {
	if value <= delta {
		return 0
	}
	return value - delta
}

// ordinal renders 1 → "1st", 2 → "2nd" and so on for log text
func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

// IncrementAdrenaline records an adrenaline dose: bumps the counter, logs
// it and re-arms the adrenaline countdown to the configured interval.
// Silently invalid unless the episode is running, an ended episode's
// counts are final.
func (s *EpisodeService) IncrementAdrenaline(ctx context.Context) (*models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || !s.current.IsRunning {
		return nil, fmt.Errorf("no running episode")
	}

	s.current.Counters.AdrenalineCount++
	s.current.Timers.AdrenalineTime = s.settings.Get().AdrenalineAlertSeconds
	s.appendLogLocked(models.LogEntry{
		Type:        LogTypeMedication,
		Text:        fmt.Sprintf("Adrenaline given (%s dose)", ordinal(s.current.Counters.AdrenalineCount)),
		IsImportant: true,
	})

	s.persistSectionsLocked(ctx, map[string]interface{}{
		"counters": s.current.Counters,
		"timers":   s.current.Timers,
		"log":      s.current.Log,
	})
	snap := s.snapshotLocked()
	s.bus.Publish(models.Event{Type: models.EventCountersUpdated, Payload: snap})
	return snap, nil
}

// IncrementShock records a defibrillation shock. The optional detail names
// the protocol step and energy for the log.
func (s *EpisodeService) IncrementShock(ctx context.Context, detail string) (*models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || !s.current.IsRunning {
		return nil, fmt.Errorf("no running episode")
	}

	s.current.Counters.ShockCount++
	text := fmt.Sprintf("Defibrillation (%s shock)", ordinal(s.current.Counters.ShockCount))
	if detail != "" {
		text = fmt.Sprintf("%s: %s", text, detail)
	}
	s.appendLogLocked(models.LogEntry{Type: LogTypeAction, Text: text, IsImportant: true})

	s.persistSectionsLocked(ctx, map[string]interface{}{
		"counters": s.current.Counters,
		"log":      s.current.Log,
	})
	snap := s.snapshotLocked()
	s.bus.Publish(models.Event{Type: models.EventCountersUpdated, Payload: snap})
	return snap, nil
}

// RearmMassager resets the compressor rotation countdown to the configured
// interval. When acknowledged (the team actually rotated), the rotation is
// logged as well.
func (s *EpisodeService) RearmMassager(ctx context.Context, acknowledged bool) (models.Timers, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || !s.current.IsRunning {
		return models.Timers{}, fmt.Errorf("no running episode")
	}

	s.current.Timers.MassagerTime = s.settings.Get().MassagerAlertSeconds
	sections := map[string]interface{}{"timers": s.current.Timers}
	if acknowledged {
		s.appendLogLocked(models.LogEntry{Type: LogTypeAction, Text: "Compressors switched"})
		sections["log"] = s.current.Log
	}

	s.persistSectionsLocked(ctx, sections)
	s.bus.Publish(models.Event{Type: models.EventTick, Payload: s.current.Timers})
	return s.current.Timers, nil
}

// RearmAdrenaline resets the adrenaline countdown without recording a dose
// (the "not needed" answer to the reminder).
func (s *EpisodeService) RearmAdrenaline(ctx context.Context) (models.Timers, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || !s.current.IsRunning {
		return models.Timers{}, fmt.Errorf("no running episode")
	}

	s.current.Timers.AdrenalineTime = s.settings.Get().AdrenalineAlertSeconds

	s.persistSectionsLocked(ctx, map[string]interface{}{"timers": s.current.Timers})
	s.bus.Publish(models.Event{Type: models.EventTick, Payload: s.current.Timers})
	return s.current.Timers, nil
}

// UpdateSections replaces the named clinical form sections. Unknown keys
// are rejected so a client typo cannot silently grow the document.
func (s *EpisodeService) UpdateSections(ctx context.Context, sections map[string]json.RawMessage) (*models.Episode, error) {
	for key := range sections {
		if !sectionKeys[key] {
			return nil, fmt.Errorf("unknown section %q", key)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, fmt.Errorf("no episode")
	}

	for key, value := range sections {
		switch key {
		case "patient":
			s.current.Patient = value
		case "airways":
			s.current.Airways = value
		case "defibrillator":
			s.current.Defibrillator = value
		case "vitalSigns":
			s.current.VitalSigns = value
		case "procedures":
			s.current.Procedures = value
		case "medications":
			s.current.Medications = value
		}
	}

	if s.current.End.Status != models.StatusEnded {
		if _, err := s.store.MergeSections(ctx, sections); err != nil {
			log.Printf("⚠️ [EPISODE] Failed to persist section update: %v", err)
		}
	}

	snap := s.snapshotLocked()
	s.bus.Publish(models.Event{Type: models.EventSectionsUpdated, Payload: snap})
	return snap, nil
}

// MutateLog runs fn against the episode log under the service mutex, then
// persists and broadcasts the result. Used by the log service for entry CRUD.
func (s *EpisodeService) MutateLog(ctx context.Context, fn func(*models.EpisodeLog) error) (*models.EpisodeLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, fmt.Errorf("no episode")
	}

	if err := fn(&s.current.Log); err != nil {
		return nil, err
	}

	s.persistSectionsLocked(ctx, map[string]interface{}{"log": s.current.Log})
	logCopy := s.current.Log
	logCopy.Entries = append([]models.LogEntry(nil), s.current.Log.Entries...)
	s.bus.Publish(models.Event{Type: models.EventLogUpdated, Payload: logCopy})
	return &logCopy, nil
}

// appendLogLocked adds an entry with a fresh ID and timestamp
func (s *EpisodeService) appendLogLocked(entry models.LogEntry) {
	entry.ID = uuid.New().String()
	entry.Time = time.Now().UnixMilli()
	s.current.Log.Entries = append(s.current.Log.Entries, entry)
}

// persistSectionsLocked persists the given typed sections as a scoped
// merge. Skipped once ENDED, the current slot is already cleared and must
// stay clear.
func (s *EpisodeService) persistSectionsLocked(ctx context.Context, sections map[string]interface{}) {
	if s.current.End.Status == models.StatusEnded {
		return
	}

	raw := make(map[string]json.RawMessage, len(sections))
	for key, value := range sections {
		data, err := json.Marshal(value)
		if err != nil {
			log.Printf("⚠️ [EPISODE] Failed to marshal section %s: %v", key, err)
			return
		}
		raw[key] = data
	}
	if _, err := s.store.MergeSections(ctx, raw); err != nil {
		log.Printf("⚠️ [EPISODE] Failed to persist sections: %v", err)
	}
}
