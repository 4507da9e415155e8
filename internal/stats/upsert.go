// Package stats tracks insert-versus-update counts for upsert-heavy
// tables, so periodic log summaries can show how much of the location
// write traffic creates new rows.
package stats

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// UpsertStats counts inserts and updates. Safe for concurrent use.
type UpsertStats struct {
	inserted atomic.Int64
	updated  atomic.Int64
}

// NewUpsertStats returns zeroed counters.
func NewUpsertStats() *UpsertStats {
	return &UpsertStats{}
}

// RecordInsert counts one upsert that created a row.
func (s *UpsertStats) RecordInsert() {
	s.inserted.Add(1)
}

// RecordUpdate counts one upsert that replaced a row.
func (s *UpsertStats) RecordUpdate() {
	s.updated.Add(1)
}

// Inserted returns the insert count.
func (s *UpsertStats) Inserted() int64 {
	return s.inserted.Load()
}

// Updated returns the update count.
func (s *UpsertStats) Updated() int64 {
	return s.updated.Load()
}

// Total returns inserts plus updates.
func (s *UpsertStats) Total() int64 {
	return s.Inserted() + s.Updated()
}

// Reset zeroes both counters.
func (s *UpsertStats) Reset() {
	s.inserted.Store(0)
	s.updated.Store(0)
}

func (s *UpsertStats) String() string {
	return fmt.Sprintf("inserted=%d updated=%d total=%d", s.Inserted(), s.Updated(), s.Total())
}

// LogSummary emits the counters at INFO level for the named table.
func (s *UpsertStats) LogSummary(logger *slog.Logger, entity string) {
	logger.Info("upsert statistics",
		"entity", entity,
		"inserted", s.Inserted(),
		"updated", s.Updated(),
		"total", s.Total(),
	)
}
