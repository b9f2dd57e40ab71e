package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orphanscan/internal/db"
	_ "orphanscan/internal/db/extractors"
	"orphanscan/internal/orphans"
	"orphanscan/internal/store"
)

func TestSweep(t *testing.T) {
	ctx := context.Background()
	c, err := db.Open("sqlite", ":memory:", 5, "")
	require.NoError(t, err)
	c.DB.SetMaxOpenConns(1)
	defer c.Close()

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	st := store.New(c, "orphaned_records").WithClock(func() time.Time { return now })
	require.NoError(t, st.EnsureTable(ctx))

	statuses := []orphans.Status{
		orphans.StatusDeleted, orphans.StatusDeleted, orphans.StatusPending,
		orphans.StatusIgnored, orphans.StatusRestored, orphans.StatusDeleted,
	}
	var recs []orphans.Record
	for i := range statuses {
		recs = append(recs, st.NewPending("course", int64(i+1), orphans.ReasonMissingCourse, "", ""))
	}
	require.NoError(t, st.InsertBatch(ctx, recs))
	for i, s := range statuses {
		r, err := st.Get(ctx, int64(i+1))
		require.NoError(t, err)
		r.Status = s
		require.NoError(t, st.Update(ctx, &r))
	}

	// Record 6 is modified a day later so it is still inside the window.
	now = now.Add(24 * time.Hour)
	r, err := st.Get(ctx, 6)
	require.NoError(t, err)
	require.NoError(t, st.Update(ctx, &r))

	now = now.Add(29 * 24 * time.Hour)
	sw := New(st, 30*24*time.Hour)

	n, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "second sweep must delete nothing")

	left, err := st.Find(ctx, orphans.Filter{})
	require.NoError(t, err)
	var ids []int64
	for _, r := range left {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{3, 4, 5, 6}, ids)
}
