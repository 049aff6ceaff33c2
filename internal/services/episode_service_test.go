package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"resusboard/internal/models"
)

// setupTestEpisodeService wires a full episode service over a throwaway store
func setupTestEpisodeService(t *testing.T) (*EpisodeService, *EpisodeStore, *SettingsService, *EventBus) {
	t.Helper()
	store := setupTestStore(t, 5)
	bus := NewEventBus()
	settings := NewSettingsService(store, bus)
	svc := NewEpisodeService(store, bus, settings)
	return svc, store, settings, bus
}

// drainEvents empties a subscription channel without blocking
func drainEvents(ch <-chan models.Event) []models.Event {
	var events []models.Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventsOfType(events []models.Event, eventType string) []models.Event {
	var matched []models.Event
	for _, ev := range events {
		if ev.Type == eventType {
			matched = append(matched, ev)
		}
	}
	return matched
}

func TestEpisodeService_Lifecycle(t *testing.T) {
	svc, _, _, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	if svc.Status() != models.StatusNone {
		t.Fatalf("Expected NONE, got %s", svc.Status())
	}

	ep, err := svc.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if svc.Status() != models.StatusActive {
		t.Errorf("Expected ACTIVE, got %s", svc.Status())
	}
	if ep.ID == "" || !ep.IsRunning {
		t.Errorf("Expected running episode with an ID, got %+v", ep)
	}
	if len(ep.Log.Entries) != 1 || ep.Log.Entries[0].Text != "Resuscitation started" {
		t.Errorf("Expected start log entry, got %+v", ep.Log.Entries)
	}

	ep, err = svc.End(ctx, models.OutcomeROSC, 0)
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if svc.Status() != models.StatusEnded {
		t.Errorf("Expected ENDED, got %s", svc.Status())
	}
	if ep.End.Outcome != models.OutcomeROSC || ep.IsRunning {
		t.Errorf("Expected stopped ROSC episode, got %+v", ep)
	}
	last := ep.Log.Entries[len(ep.Log.Entries)-1]
	if last.Text != "Resuscitation ended (ROSC)" {
		t.Errorf("Expected end log entry, got %q", last.Text)
	}
}

func TestEpisodeService_StartWhileRunningFails(t *testing.T) {
	svc, _, _, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	if _, err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := svc.Start(ctx); err == nil {
		t.Fatal("Second Start should fail while running")
	}
}

func TestEpisodeService_RestartAfterEnd(t *testing.T) {
	svc, _, _, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	first, _ := svc.Start(ctx)
	svc.End(ctx, models.OutcomeDeath, 0)

	second, err := svc.Start(ctx)
	if err != nil {
		t.Fatalf("Start over an ended episode should succeed: %v", err)
	}
	if second.ID == first.ID {
		t.Error("Restart must mint a new episode ID")
	}
	if second.Counters.AdrenalineCount != 0 || len(second.Log.Entries) != 1 {
		t.Errorf("Restart must begin fresh, got %+v", second)
	}
}

func TestEpisodeService_EndValidation(t *testing.T) {
	svc, _, _, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	if _, err := svc.End(ctx, models.OutcomeROSC, 0); err == nil {
		t.Fatal("End without an episode should fail")
	}

	svc.Start(ctx)
	if _, err := svc.End(ctx, "LEFT_EARLY", 0); err == nil {
		t.Fatal("Invalid outcome should be rejected")
	}

	svc.End(ctx, models.OutcomeROSC, 0)
	// Ending twice is a no-op, not an error
	ep, err := svc.End(ctx, models.OutcomeDeath, 0)
	if err != nil {
		t.Fatalf("Second End should be a no-op: %v", err)
	}
	if ep.End.Outcome != models.OutcomeROSC {
		t.Errorf("Second End must not change the outcome, got %s", ep.End.Outcome)
	}
}

func TestEpisodeService_EndUsesSuppliedTime(t *testing.T) {
	svc, store, _, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	svc.Start(ctx)
	const confirmed = int64(1700000000000)
	ep, err := svc.End(ctx, models.OutcomeROSC, confirmed)
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if ep.End.EndTime != confirmed {
		t.Errorf("Expected confirmed end time %d, got %d", confirmed, ep.End.EndTime)
	}

	archive := store.LoadArchive(ctx)
	if len(archive) != 1 {
		t.Fatalf("Expected 1 archived episode, got %d", len(archive))
	}
	if archive[0].EndTime != confirmed {
		t.Errorf("Expected archived end time %d, got %d", confirmed, archive[0].EndTime)
	}
	if archive[0].ArchivedAt == confirmed {
		t.Error("ArchivedAt must be the archive time, not the confirmed end time")
	}
}

func TestEpisodeService_EndArchivesAndClearsSlot(t *testing.T) {
	svc, store, _, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	svc.Start(ctx)
	svc.End(ctx, models.OutcomeROSC, 0)

	if ep := store.LoadEpisode(ctx); ep != nil {
		t.Error("Current slot must be cleared after END")
	}

	archive := store.LoadArchive(ctx)
	if len(archive) != 1 {
		t.Fatalf("Expected 1 archived episode, got %d", len(archive))
	}
	if archive[0].Outcome != models.OutcomeROSC {
		t.Errorf("Expected ROSC outcome in archive, got %s", archive[0].Outcome)
	}

	var state models.Episode
	if err := json.Unmarshal(archive[0].State, &state); err != nil {
		t.Fatalf("Archived state is not a valid episode: %v", err)
	}
	if state.End.Status != models.StatusEnded {
		t.Errorf("Archived state should be ENDED, got %s", state.End.Status)
	}
}

func TestEpisodeService_ResetRequiresEnded(t *testing.T) {
	svc, store, _, bus := setupTestEpisodeService(t)
	ctx := context.Background()
	ch := bus.Subscribe("test", 100)
	defer bus.Unsubscribe("test")

	svc.Start(ctx)
	if err := svc.Reset(ctx); err == nil {
		t.Fatal("Reset of a running episode should fail")
	}

	svc.End(ctx, models.OutcomeROSC, 0)
	drainEvents(ch)
	if err := svc.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if svc.Status() != models.StatusNone {
		t.Errorf("Expected NONE after reset, got %s", svc.Status())
	}
	if ep := store.LoadEpisode(ctx); ep != nil {
		t.Error("Slot must be empty after reset")
	}
	if got := eventsOfType(drainEvents(ch), models.EventEpisodeReset); len(got) != 1 {
		t.Errorf("Expected one reset broadcast, got %d", len(got))
	}
}

func TestEpisodeService_AdvanceCountsUpAndDown(t *testing.T) {
	svc, _, _, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	svc.Start(ctx)
	start := svc.Current()
	base := time.Now()

	timers, running := svc.Advance(ctx, base.Add(3*time.Second))
	if !running {
		t.Fatal("Expected running")
	}
	if timers.ElapsedTime < 2 || timers.ElapsedTime > 3 {
		t.Errorf("Expected roughly 3s elapsed, got %d", timers.ElapsedTime)
	}
	if timers.MassagerTime >= start.Timers.MassagerTime {
		t.Errorf("Massager countdown should decrease, got %d from %d",
			timers.MassagerTime, start.Timers.MassagerTime)
	}
	if timers.AdrenalineTime >= start.Timers.AdrenalineTime {
		t.Errorf("Adrenaline countdown should decrease, got %d from %d",
			timers.AdrenalineTime, start.Timers.AdrenalineTime)
	}
}

func TestEpisodeService_AdvanceFloorsAtZero(t *testing.T) {
	svc, _, _, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	svc.Start(ctx)
	timers, _ := svc.Advance(ctx, time.Now().Add(time.Hour))
	if timers.MassagerTime != 0 || timers.AdrenalineTime != 0 {
		t.Errorf("Countdowns must floor at 0, got %+v", timers)
	}
	if timers.ElapsedTime < 3599 {
		t.Errorf("Elapsed should keep counting, got %d", timers.ElapsedTime)
	}
}

func TestEpisodeService_AdvanceIdleIsNoop(t *testing.T) {
	svc, _, _, _ := setupTestEpisodeService(t)

	if _, running := svc.Advance(context.Background(), time.Now().Add(time.Second)); running {
		t.Error("Advance without an episode should report not running")
	}
}

func TestEpisodeService_DisabledCountdownIsFrozen(t *testing.T) {
	svc, _, settings, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	current := settings.Get()
	current.MassagerAlertEnabled = false
	if _, err := settings.Update(ctx, current); err != nil {
		t.Fatalf("Settings update failed: %v", err)
	}

	svc.Start(ctx)
	start := svc.Current()
	timers, _ := svc.Advance(ctx, time.Now().Add(10*time.Second))

	if timers.MassagerTime != start.Timers.MassagerTime {
		t.Errorf("Disabled massager countdown must stay frozen, got %d from %d",
			timers.MassagerTime, start.Timers.MassagerTime)
	}
	if timers.AdrenalineTime >= start.Timers.AdrenalineTime {
		t.Error("Enabled adrenaline countdown should still decrease")
	}
}

func TestEpisodeService_RehydrateResumesTimers(t *testing.T) {
	store := setupTestStore(t, 5)
	bus := NewEventBus()
	settings := NewSettingsService(store, bus)
	ctx := context.Background()

	persisted := models.NewEpisode("ep-1", time.Now().UnixMilli(), 120, 180)
	persisted.Timers.ElapsedTime = 42
	persisted.Timers.MassagerTime = 30
	if err := store.SaveEpisode(ctx, persisted); err != nil {
		t.Fatalf("SaveEpisode failed: %v", err)
	}

	svc := NewEpisodeService(store, bus, settings)
	if svc.Status() != models.StatusActive {
		t.Fatalf("Expected rehydrated ACTIVE episode, got %s", svc.Status())
	}

	timers, running := svc.Advance(ctx, time.Now().Add(time.Second))
	if !running {
		t.Fatal("Rehydrated episode should be running")
	}
	if timers.ElapsedTime != 43 {
		t.Errorf("Expected elapsed 43 after one tick, got %d", timers.ElapsedTime)
	}
	if timers.MassagerTime != 29 {
		t.Errorf("Expected massager countdown 29, got %d", timers.MassagerTime)
	}
}

func TestEpisodeService_IncrementAdrenaline(t *testing.T) {
	svc, _, settings, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	svc.Start(ctx)
	svc.Advance(ctx, time.Now().Add(10*time.Second))

	var ep *models.Episode
	var err error
	for i := 0; i < 3; i++ {
		ep, err = svc.IncrementAdrenaline(ctx)
		if err != nil {
			t.Fatalf("IncrementAdrenaline failed: %v", err)
		}
	}

	if ep.Counters.AdrenalineCount != 3 {
		t.Errorf("Expected 3 doses, got %d", ep.Counters.AdrenalineCount)
	}
	if ep.Timers.AdrenalineTime != settings.Get().AdrenalineAlertSeconds {
		t.Errorf("Dose must re-arm the countdown to %d, got %d",
			settings.Get().AdrenalineAlertSeconds, ep.Timers.AdrenalineTime)
	}

	var medEntries []models.LogEntry
	for _, entry := range ep.Log.Entries {
		if entry.Type == LogTypeMedication {
			medEntries = append(medEntries, entry)
		}
	}
	if len(medEntries) != 3 {
		t.Fatalf("Expected 3 medication entries, got %d", len(medEntries))
	}
	wantTexts := []string{
		"Adrenaline given (1st dose)",
		"Adrenaline given (2nd dose)",
		"Adrenaline given (3rd dose)",
	}
	for i, want := range wantTexts {
		if medEntries[i].Text != want {
			t.Errorf("Entry %d: expected %q, got %q", i, want, medEntries[i].Text)
		}
	}
}

func TestEpisodeService_IncrementShock(t *testing.T) {
	svc, _, _, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	svc.Start(ctx)
	ep, err := svc.IncrementShock(ctx, "4 J/kg, 48 J")
	if err != nil {
		t.Fatalf("IncrementShock failed: %v", err)
	}
	if ep.Counters.ShockCount != 1 {
		t.Errorf("Expected 1 shock, got %d", ep.Counters.ShockCount)
	}
	last := ep.Log.Entries[len(ep.Log.Entries)-1]
	if last.Text != "Defibrillation (1st shock): 4 J/kg, 48 J" {
		t.Errorf("Unexpected shock log text %q", last.Text)
	}

	ep, _ = svc.IncrementShock(ctx, "")
	last = ep.Log.Entries[len(ep.Log.Entries)-1]
	if last.Text != "Defibrillation (2nd shock)" {
		t.Errorf("Unexpected shock log text %q", last.Text)
	}
}

func TestEpisodeService_CountersFinalAfterEnd(t *testing.T) {
	svc, _, _, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	svc.Start(ctx)
	svc.End(ctx, models.OutcomeROSC, 0)

	if _, err := svc.IncrementAdrenaline(ctx); err == nil {
		t.Error("Adrenaline after END should fail")
	}
	if _, err := svc.IncrementShock(ctx, ""); err == nil {
		t.Error("Shock after END should fail")
	}
}

func TestEpisodeService_RearmResetsCountdowns(t *testing.T) {
	svc, _, settings, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	svc.Start(ctx)
	svc.Advance(ctx, time.Now().Add(time.Hour))

	timers, err := svc.RearmMassager(ctx, true)
	if err != nil {
		t.Fatalf("RearmMassager failed: %v", err)
	}
	if timers.MassagerTime != settings.Get().MassagerAlertSeconds {
		t.Errorf("Expected massager re-armed to %d, got %d",
			settings.Get().MassagerAlertSeconds, timers.MassagerTime)
	}

	ep := svc.Current()
	last := ep.Log.Entries[len(ep.Log.Entries)-1]
	if last.Text != "Compressors switched" {
		t.Errorf("Acknowledged rotation should be logged, got %q", last.Text)
	}
	entryCount := len(ep.Log.Entries)

	timers, err = svc.RearmAdrenaline(ctx)
	if err != nil {
		t.Fatalf("RearmAdrenaline failed: %v", err)
	}
	if timers.AdrenalineTime != settings.Get().AdrenalineAlertSeconds {
		t.Errorf("Expected adrenaline re-armed to %d, got %d",
			settings.Get().AdrenalineAlertSeconds, timers.AdrenalineTime)
	}

	// Unacknowledged rearms do not write log entries
	svc.RearmMassager(ctx, false)
	if got := len(svc.Current().Log.Entries); got != entryCount {
		t.Errorf("Expected %d log entries, got %d", entryCount, got)
	}
}

func TestEpisodeService_UpdateSections(t *testing.T) {
	svc, store, _, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	svc.Start(ctx)

	ep, err := svc.UpdateSections(ctx, map[string]json.RawMessage{
		"airways":    json.RawMessage(`{"intubated":true}`),
		"vitalSigns": json.RawMessage(`{"hr":140}`),
	})
	if err != nil {
		t.Fatalf("UpdateSections failed: %v", err)
	}
	if string(ep.Airways) != `{"intubated":true}` {
		t.Errorf("Airways not updated: %s", ep.Airways)
	}

	loaded := store.LoadEpisode(ctx)
	if string(loaded.VitalSigns) != `{"hr":140}` {
		t.Errorf("Sections not persisted: %s", loaded.VitalSigns)
	}

	if _, err := svc.UpdateSections(ctx, map[string]json.RawMessage{
		"bogus": json.RawMessage(`{}`),
	}); err == nil {
		t.Error("Unknown section key should be rejected")
	}
}

func TestEpisodeService_UpdateSectionsAfterEndStaysUnpersisted(t *testing.T) {
	svc, store, _, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	svc.Start(ctx)
	svc.End(ctx, models.OutcomeROSC, 0)

	// Editing the reviewed episode works in memory but must not resurrect
	// the cleared slot
	ep, err := svc.UpdateSections(ctx, map[string]json.RawMessage{
		"procedures": json.RawMessage(`{"ivAccess":true}`),
	})
	if err != nil {
		t.Fatalf("UpdateSections failed: %v", err)
	}
	if string(ep.Procedures) != `{"ivAccess":true}` {
		t.Errorf("In-memory update missing: %s", ep.Procedures)
	}
	if stored := store.LoadEpisode(ctx); stored != nil {
		t.Error("Slot must stay clear after END")
	}
}

func TestEpisodeService_RestoreArchived(t *testing.T) {
	svc, store, _, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	svc.Start(ctx)
	svc.IncrementAdrenaline(ctx)
	svc.End(ctx, models.OutcomeROSC, 0)
	svc.Reset(ctx)

	archive := store.LoadArchive(ctx)
	if len(archive) != 1 {
		t.Fatalf("Expected 1 archived episode, got %d", len(archive))
	}

	restored, err := svc.Restore(ctx, archive[0].State)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.IsRunning {
		t.Error("Restored episode must not be running")
	}
	if restored.Counters.AdrenalineCount != 1 {
		t.Errorf("Expected restored count 1, got %d", restored.Counters.AdrenalineCount)
	}

	// Restore writes the snapshot back into the current slot
	if stored := store.LoadEpisode(ctx); stored == nil || stored.ID != restored.ID {
		t.Error("Restore must persist into the current slot")
	}
}

func TestEpisodeService_RestoreWhileRunningFails(t *testing.T) {
	svc, _, _, _ := setupTestEpisodeService(t)
	ctx := context.Background()

	svc.Start(ctx)
	if _, err := svc.Restore(ctx, json.RawMessage(`{"id":"x"}`)); err == nil {
		t.Fatal("Restore over a running episode should fail")
	}
}

func TestOrdinal(t *testing.T) {
	cases := map[int]string{
		1: "1st", 2: "2nd", 3: "3rd", 4: "4th",
		11: "11th", 12: "12th", 13: "13th",
		21: "21st", 22: "22nd", 103: "103rd",
	}
	for n, want := range cases {
		if got := ordinal(n); got != want {
			t.Errorf("ordinal(%d) = %q, want %q", n, got, want)
		}
	}
}
