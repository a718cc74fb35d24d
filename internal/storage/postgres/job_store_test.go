package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/job-scraper/internal/jobs"
)

func newMockStore(t *testing.T) (*JobStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewJobStoreWithPool(mock, "jobs")
	require.NoError(t, err)
	return store, mock
}

func sampleJob() jobs.StoredJob {
	added := time.Unix(1700000000, 0).UTC()
	return jobs.StoredJob{
		ID:      "0190c1a2-0000-7000-8000-000000000001",
		OwnerID: "alice",
		Record: jobs.JobRecord{
			Title:       "Backend Engineer",
			Company:     "Acme Inc",
			Location:    "Denver, CO",
			Salary:      jobs.NotAvailable,
			Experience:  "Senior",
			Description: "Own the ingestion pipeline.",
			SourceURL:   "https://acme.example/jobs/42",
			Status:      jobs.StatusActive,
		},
		Tracking:    jobs.TrackingSaved,
		SnapshotURI: "gs://bucket/snapshots/acme.example/abc.html",
		DateAdded:   added,
		UpdatedAt:   added,
	}
}

func jobRow(mock pgxmock.PgxPoolIface, job jobs.StoredJob) *pgxmock.Rows {
	rec := job.Record
	return mock.NewRows(jobColumns).AddRow(
		job.ID, job.OwnerID, rec.Title, rec.Company, rec.Location, rec.Salary, rec.Experience,
		rec.Description, rec.SourceURL, string(rec.Status), string(job.Tracking), job.Notes,
		job.SnapshotURI, job.DateAdded, job.UpdatedAt,
	)
}

func TestNewJobStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewJobStoreWithPool(nil, "jobs")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewJobStoreWithPool(mock, "jobs; DROP TABLE users")
	require.Error(t, err)

	store, err := NewJobStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, defaultTable, store.table)
}

func TestCreateJobInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	job := sampleJob()
	rec := job.Record

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(
			job.ID, job.OwnerID, rec.Title, rec.Company, rec.Location, rec.Salary, rec.Experience,
			rec.Description, rec.SourceURL, "ACTIVE", "Saved", "", job.SnapshotURI, job.DateAdded, job.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobRequiresID(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	job := sampleJob()
	job.ID = ""
	require.Error(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	job := sampleJob()

	mock.ExpectQuery("SELECT .* FROM jobs WHERE owner_id = \\$1 AND id = \\$2").
		WithArgs("alice", job.ID).
		WillReturnRows(jobRow(mock, job))
	got, err := store.GetJob(context.Background(), "alice", job.ID)
	require.NoError(t, err)
	require.Equal(t, job, got)

	mock.ExpectQuery("SELECT .* FROM jobs").
		WithArgs("bob", job.ID).
		WillReturnError(pgx.ErrNoRows)
	_, err = store.GetJob(context.Background(), "bob", job.ID)
	require.ErrorIs(t, err, jobs.ErrNotFound)

	boom := errors.New("connection reset")
	mock.ExpectQuery("SELECT .* FROM jobs").
		WithArgs("alice", job.ID).
		WillReturnError(boom)
	_, err = store.GetJob(context.Background(), "alice", job.ID)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, jobs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	newer := sampleJob()
	newer.ID = "0190c1a2-0000-7000-8000-000000000002"
	newer.DateAdded = newer.DateAdded.Add(time.Hour)
	older := sampleJob()

	rows := jobRow(mock, newer)
	rec := older.Record
	rows.AddRow(
		older.ID, older.OwnerID, rec.Title, rec.Company, rec.Location, rec.Salary, rec.Experience,
		rec.Description, rec.SourceURL, string(rec.Status), string(older.Tracking), older.Notes,
		older.SnapshotURI, older.DateAdded, older.UpdatedAt,
	)
	mock.ExpectQuery("SELECT .* FROM jobs WHERE owner_id = \\$1 ORDER BY date_added DESC").
		WithArgs("alice").
		WillReturnRows(rows)

	list, err := store.ListJobs(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, []jobs.StoredJob{newer, older}, list)

	mock.ExpectQuery("SELECT .* FROM jobs").
		WithArgs("nobody").
		WillReturnRows(mock.NewRows(jobColumns))
	list, err = store.ListJobs(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, list)
	require.NotNil(t, list)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	job := sampleJob()
	at := job.DateAdded.Add(2 * time.Hour)
	status := jobs.TrackingApplied
	tracking := string(status)

	updated := job
	updated.Tracking = status
	updated.UpdatedAt = at

	mock.ExpectQuery("UPDATE jobs SET").
		WithArgs("alice", job.ID, &tracking, (*string)(nil), at).
		WillReturnRows(jobRow(mock, updated))

	got, err := store.UpdateJob(context.Background(), "alice", job.ID, jobs.JobUpdate{Tracking: &status}, at)
	require.NoError(t, err)
	require.Equal(t, updated, got)

	mock.ExpectQuery("UPDATE jobs SET").
		WithArgs("bob", job.ID, (*string)(nil), (*string)(nil), at).
		WillReturnError(pgx.ErrNoRows)
	_, err = store.UpdateJob(context.Background(), "bob", job.ID, jobs.JobUpdate{}, at)
	require.ErrorIs(t, err, jobs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM jobs").
		WithArgs("alice", "job-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, store.DeleteJob(context.Background(), "alice", "job-1"))

	mock.ExpectExec("DELETE FROM jobs").
		WithArgs("bob", "job-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, store.DeleteJob(context.Background(), "bob", "job-1"), jobs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobs").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
