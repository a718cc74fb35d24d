package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/job-scraper/internal/jobs"
)

func storedJob(id, owner string, added time.Time) jobs.StoredJob {
	return jobs.StoredJob{
		ID:        id,
		OwnerID:   owner,
		Record:    jobs.NewRecord("https://example.com/" + id),
		Tracking:  jobs.TrackingSaved,
		DateAdded: added,
		UpdatedAt: added,
	}
}

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateJob(ctx, storedJob("job-1", "alice", base)))
	require.Error(t, store.CreateJob(ctx, storedJob("job-1", "alice", base)), "duplicate id")
	require.Error(t, store.CreateJob(ctx, storedJob("", "alice", base)))

	got, err := store.GetJob(ctx, "alice", "job-1")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/job-1", got.Record.SourceURL)

	status := jobs.TrackingInterview
	notes := "phone screen on friday"
	later := base.Add(time.Hour)
	updated, err := store.UpdateJob(ctx, "alice", "job-1", jobs.JobUpdate{Tracking: &status, Notes: &notes}, later)
	require.NoError(t, err)
	require.Equal(t, jobs.TrackingInterview, updated.Tracking)
	require.Equal(t, notes, updated.Notes)
	require.Equal(t, later, updated.UpdatedAt)
	require.Equal(t, base, updated.DateAdded)

	onlyNotes := ""
	updated, err = store.UpdateJob(ctx, "alice", "job-1", jobs.JobUpdate{Notes: &onlyNotes}, later)
	require.NoError(t, err)
	require.Equal(t, jobs.TrackingInterview, updated.Tracking, "nil fields stay untouched")
	require.Empty(t, updated.Notes)

	require.NoError(t, store.DeleteJob(ctx, "alice", "job-1"))
	_, err = store.GetJob(ctx, "alice", "job-1")
	require.ErrorIs(t, err, jobs.ErrNotFound)
	require.ErrorIs(t, store.DeleteJob(ctx, "alice", "job-1"), jobs.ErrNotFound)
}

func TestJobStoreOwnerScoping(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.CreateJob(ctx, storedJob("job-1", "alice", now)))

	_, err := store.GetJob(ctx, "bob", "job-1")
	require.ErrorIs(t, err, jobs.ErrNotFound)
	_, err = store.UpdateJob(ctx, "bob", "job-1", jobs.JobUpdate{}, now)
	require.ErrorIs(t, err, jobs.ErrNotFound)
	require.ErrorIs(t, store.DeleteJob(ctx, "bob", "job-1"), jobs.ErrNotFound)

	list, err := store.ListJobs(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestJobStoreListNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateJob(ctx, storedJob("a", "alice", base)))
	require.NoError(t, store.CreateJob(ctx, storedJob("c", "alice", base.Add(2*time.Hour))))
	require.NoError(t, store.CreateJob(ctx, storedJob("b", "alice", base.Add(time.Hour))))
	require.NoError(t, store.CreateJob(ctx, storedJob("z", "bob", base.Add(3*time.Hour))))

	list, err := store.ListJobs(ctx, "alice")
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, j := range list {
		ids = append(ids, j.ID)
	}
	require.Equal(t, []string{"c", "b", "a"}, ids)
}
