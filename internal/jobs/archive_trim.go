package jobs

import (
	"context"
	"log"
	"time"

	"resusboard/internal/services"
)

// ArchiveTrimJob re-applies the archive bound nightly. The bound is already
// enforced on every write; this job only matters after the configured limit
// was lowered while older episodes were still stored.
type ArchiveTrimJob struct {
	store *services.EpisodeStore
}

// NewArchiveTrimJob creates a new archive trim job
func NewArchiveTrimJob(store *services.EpisodeStore) *ArchiveTrimJob {
	return &ArchiveTrimJob{store: store}
}

// Run trims the archive down to its configured limit
func (j *ArchiveTrimJob) Run(ctx context.Context) error {
	removed, err := j.store.TrimArchive(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Printf("🗑️  [ARCHIVE-TRIM] Evicted %d episodes beyond the archive bound", removed)
	}
	return nil
}

// GetNextRunTime returns the next run at 3 AM local time
func (j *ArchiveTrimJob) GetNextRunTime() time.Time {
	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
	if next.Before(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
