// Package sweeper purges Deleted records once they outlive the retention window.
package sweeper

import (
	"context"
	"time"

	"orphanscan/internal/logger"
	"orphanscan/internal/metrics"
	"orphanscan/internal/orphans"
	"orphanscan/internal/store"
)

// Sweeper removes expired Deleted records. Records in any other status are
// never touched.
type Sweeper struct {
	store     *store.Store
	retention time.Duration
}

func New(st *store.Store, retention time.Duration) *Sweeper {
	return &Sweeper{store: st, retention: retention}
}

// Cutoff is the newest time_modified that is old enough to purge.
func (s *Sweeper) Cutoff() time.Time {
	return s.store.Now().Add(-s.retention)
}

// Sweep counts then deletes every Deleted record last modified at or before
// the cutoff, and returns how many were deleted.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.Cutoff()
	n, err := s.store.CountWhere(ctx, orphans.StatusDeleted, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.LastSweepEligible.Set(float64(n))
	logger.Infof(ctx, "Deleting %d records.", n)
	if n == 0 {
		return 0, nil
	}
	deleted, err := s.store.DeleteWhere(ctx, orphans.StatusDeleted, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.RecordsSwept.Add(float64(deleted))
	return deleted, nil
}
