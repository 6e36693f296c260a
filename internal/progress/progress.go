// Package progress persists per-attempt sync checkpoints
// (SyncProgress) and the per-entity last-sync mark (SyncStatus).
package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status of one sync attempt.
type Status string

const (
	StatusInProgress       Status = "in_progress"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusErrorRecoverable Status = "error_recoverable"
	StatusAbandoned        Status = "abandoned"
)

// Progress is one sync attempt's checkpoint. It is created at sync
// start, mutated only by the engine owning it, and immutable once
// completed.
type Progress struct {
	SyncID         string     `json:"syncId"`
	Entity         string     `json:"entityType"`
	Mode           string     `json:"mode,omitempty"`
	CurrentOffset  int        `json:"currentOffset"`
	BatchNumber    int        `json:"batchNumber"`
	ItemsProcessed int        `json:"itemsProcessed"`
	TotalItems     *int       `json:"totalItems,omitempty"`
	TotalBatches   *int       `json:"totalBatches,omitempty"`
	Status         Status     `json:"status"`
	StartedAt      time.Time  `json:"startedAt"`
	LastUpdated    time.Time  `json:"lastUpdated"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`

	// Transient marks a sentinel progress created while the store was
	// unreachable. Updates then live only in memory; the sync still
	// makes forward progress but cannot resume across restarts.
	Transient bool `json:"-"`
}

// Patch is a partial update of a progress row. Nil fields are left
// untouched; last_updated always refreshes.
type Patch struct {
	CurrentOffset  *int
	BatchNumber    *int
	ItemsProcessed *int
	TotalItems     *int
	TotalBatches   *int
	Status         *Status
}

// NewSyncID mints a sync id carrying the entity kind as its prefix:
// "<entity>-<unix>-<uuid8>".
func NewSyncID(entity string) string {
	return fmt.Sprintf("%s-%d-%s", entity, time.Now().UTC().Unix(), uuid.NewString()[:8])
}

// EntityFromSyncID recovers the entity kind from a sync id prefix.
func EntityFromSyncID(syncID string) (string, bool) {
	i := strings.IndexByte(syncID, '-')
	if i <= 0 {
		return "", false
	}
	return syncID[:i], true
}
