package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"resusboard/internal/database"
	"resusboard/internal/models"
)

// Storage slot keys. Versioned so a future schema change can migrate by key.
const (
	slotCurrentEpisode = "current_episode_v1"
	slotEpisodeArchive = "episode_archive_v1"
	slotAlertSettings  = "alert_settings_v1"
)

// EpisodeStore persists the current episode, the bounded archive and the
// alert settings as JSON documents in the slots table.
//
// Load errors are absorbed: a missing or corrupt slot reads as "nothing
// stored" with a warning log, never as a failure surfaced to the caller.
// The board must keep working off in-memory state even when the disk copy
// is unreadable.
type EpisodeStore struct {
	db           *database.DB
	archiveLimit int
	mu           sync.Mutex
}

// NewEpisodeStore creates an episode store. archiveLimit caps how many
// finished episodes the archive keeps (oldest evicted first).
func NewEpisodeStore(db *database.DB, archiveLimit int) *EpisodeStore {
	if archiveLimit <= 0 {
		archiveLimit = 5
	}
	return &EpisodeStore{db: db, archiveLimit: archiveLimit}
}

// readSlot returns the raw JSON stored under key, or nil if absent
func (s *EpisodeStore) readSlot(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM slots WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// writeSlot upserts raw JSON under key
func (s *EpisodeStore) writeSlot(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO slots (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		key, string(value), time.Now().UnixMilli(),
	)
	return err
}

// deleteSlot removes a slot if present
func (s *EpisodeStore) deleteSlot(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM slots WHERE key = ?", key)
	return err
}

// LoadEpisode returns the persisted current episode, or nil when none is
// stored. A corrupt document is treated as absent.
func (s *EpisodeStore) LoadEpisode(ctx context.Context) *models.Episode {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.readSlot(ctx, slotCurrentEpisode)
	if err != nil {
		log.Printf("⚠️ [STORE] Failed to read current episode: %v", err)
		return nil
	}
	if raw == nil {
		return nil
	}

	var ep models.Episode
	if err := json.Unmarshal(raw, &ep); err != nil {
		log.Printf("⚠️ [STORE] Corrupt current episode slot, ignoring: %v", err)
		return nil
	}
	return &ep
}

// SaveEpisode overwrites the persisted current episode with a full snapshot
func (s *EpisodeStore) SaveEpisode(ctx context.Context, ep *models.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("failed to marshal episode: %w", err)
	}
	return s.writeSlot(ctx, slotCurrentEpisode, raw)
}

// MergeSections overlays the given top-level sections onto the stored
// episode document and writes it back. Sections not named in the update are
// left untouched, so two writers touching different sections cannot clobber
// each other's fields. The merge is shallow: a named section is replaced
// wholesale.
//
// Returns the merged document so callers can rebroadcast it.
func (s *EpisodeStore) MergeSections(ctx context.Context, sections map[string]json.RawMessage) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.readSlot(ctx, slotCurrentEpisode)
	if err != nil {
		return nil, fmt.Errorf("failed to read current episode: %w", err)
	}

	doc := make(map[string]json.RawMessage)
	if raw != nil {
		if err := json.Unmarshal(raw, &doc); err != nil {
			log.Printf("⚠️ [STORE] Corrupt current episode slot, rebuilding from update: %v", err)
			doc = make(map[string]json.RawMessage)
		}
	}

	for key, value := range sections {
		doc[key] = value
	}

	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged episode: %w", err)
	}
	if err := s.writeSlot(ctx, slotCurrentEpisode, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// ClearEpisode removes the persisted current episode
func (s *EpisodeStore) ClearEpisode(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteSlot(ctx, slotCurrentEpisode)
}

// LoadArchive returns the archived episodes, newest first.
// A missing or corrupt archive reads as empty.
func (s *EpisodeStore) LoadArchive(ctx context.Context) []models.ArchivedEpisode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadArchiveLocked(ctx)
}

func (s *EpisodeStore) loadArchiveLocked(ctx context.Context) []models.ArchivedEpisode {
	raw, err := s.readSlot(ctx, slotEpisodeArchive)
	if err != nil {
		log.Printf("⚠️ [STORE] Failed to read archive: %v", err)
		return nil
	}
	if raw == nil {
		return nil
	}

	var archive []models.ArchivedEpisode
	if err := json.Unmarshal(raw, &archive); err != nil {
		log.Printf("⚠️ [STORE] Corrupt archive slot, ignoring: %v", err)
		return nil
	}
	return archive
}

func (s *EpisodeStore) saveArchiveLocked(ctx context.Context, archive []models.ArchivedEpisode) error {
	raw, err := json.Marshal(archive)
	if err != nil {
		return fmt.Errorf("failed to marshal archive: %w", err)
	}
	return s.writeSlot(ctx, slotEpisodeArchive, raw)
}

// Archive prepends the given entry and trims the archive to its limit.
// Returns the updated archive, newest first.
func (s *EpisodeStore) Archive(ctx context.Context, entry models.ArchivedEpisode) ([]models.ArchivedEpisode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	archive := append([]models.ArchivedEpisode{entry}, s.loadArchiveLocked(ctx)...)
	if len(archive) > s.archiveLimit {
		archive = archive[:s.archiveLimit]
	}
	if err := s.saveArchiveLocked(ctx, archive); err != nil {
		return nil, err
	}
	return archive, nil
}

// TrimArchive re-applies the archive limit, dropping the oldest entries.
// Returns how many were removed. Used by the maintenance job to shrink an
// archive written under a larger configured limit.
func (s *EpisodeStore) TrimArchive(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	archive := s.loadArchiveLocked(ctx)
	if len(archive) <= s.archiveLimit {
		return 0, nil
	}
	removed := len(archive) - s.archiveLimit
	if err := s.saveArchiveLocked(ctx, archive[:s.archiveLimit]); err != nil {
		return 0, err
	}
	return removed, nil
}

// RemoveArchived deletes one archived episode by ID. Returns the updated
// archive and whether the ID was found.
func (s *EpisodeStore) RemoveArchived(ctx context.Context, id string) ([]models.ArchivedEpisode, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	archive := s.loadArchiveLocked(ctx)
	found := false
	kept := archive[:0]
	for _, entry := range archive {
		if entry.ID == id {
			found = true
			continue
		}
		kept = append(kept, entry)
	}
	if !found {
		return archive, false, nil
	}
	if err := s.saveArchiveLocked(ctx, kept); err != nil {
		return nil, false, err
	}
	return kept, true, nil
}

// ClearArchive removes every archived episode
func (s *EpisodeStore) ClearArchive(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteSlot(ctx, slotEpisodeArchive)
}

// LoadSettings returns the persisted alert settings, falling back to the
// defaults when nothing valid is stored.
func (s *EpisodeStore) LoadSettings(ctx context.Context) models.AlertSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	defaults := models.DefaultAlertSettings()

	raw, err := s.readSlot(ctx, slotAlertSettings)
	if err != nil {
		log.Printf("⚠️ [STORE] Failed to read alert settings: %v", err)
		return defaults
	}
	if raw == nil {
		return defaults
	}

	if err := json.Unmarshal(raw, &defaults); err != nil {
		log.Printf("⚠️ [STORE] Corrupt settings slot, using defaults: %v", err)
		return models.DefaultAlertSettings()
	}
	return defaults
}

// SaveSettings persists the alert settings
func (s *EpisodeStore) SaveSettings(ctx context.Context, settings models.AlertSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	return s.writeSlot(ctx, slotAlertSettings, raw)
}
