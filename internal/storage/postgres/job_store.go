// Package postgres persists scraped jobs in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/job-scraper/internal/jobs"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "jobs"

// JobStoreConfig controls the Postgres connection pool.
type JobStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

type scanner interface {
	Scan(dest ...any) error
}

var jobColumns = []string{
	"id",
	"owner_id",
	"title",
	"company",
	"location",
	"salary",
	"experience",
	"description",
	"source_url",
	"posting_status",
	"tracking_status",
	"notes",
	"snapshot_uri",
	"date_added",
	"updated_at",
}

// JobStore implements jobs.JobStore.
type JobStore struct {
	pool    querier
	table   string
	columns string
}

// NewJobStore connects a pool using cfg.
func NewJobStore(ctx context.Context, cfg JobStoreConfig) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewJobStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(pool querier, table string) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &JobStore{pool: pool, table: table, columns: strings.Join(jobColumns, ", ")}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the jobs table and its owner index when missing.
func (s *JobStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema(s.table)); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

func schema(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title TEXT NOT NULL,
	company TEXT NOT NULL,
	location TEXT NOT NULL,
	salary TEXT NOT NULL,
	experience TEXT NOT NULL,
	description TEXT NOT NULL,
	source_url TEXT NOT NULL,
	posting_status TEXT NOT NULL,
	tracking_status TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	snapshot_uri TEXT NOT NULL DEFAULT '',
	date_added TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_owner_added_idx ON %[1]s (owner_id, date_added DESC);`, table)
}

// CreateJob inserts a job row.
func (s *JobStore) CreateJob(ctx context.Context, job jobs.StoredJob) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)`, s.table, s.columns)

	rec := job.Record
	args := []any{
		job.ID,
		job.OwnerID,
		rec.Title,
		rec.Company,
		rec.Location,
		rec.Salary,
		rec.Experience,
		rec.Description,
		rec.SourceURL,
		string(rec.Status),
		string(job.Tracking),
		job.Notes,
		job.SnapshotURI,
		job.DateAdded,
		job.UpdatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches one of the owner's jobs.
func (s *JobStore) GetJob(ctx context.Context, ownerID, id string) (jobs.StoredJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE owner_id = $1 AND id = $2`, s.columns, s.table)
	job, err := scanJob(s.pool.QueryRow(ctx, query, ownerID, id))
	if err != nil {
		return jobs.StoredJob{}, notFound(err, "get job")
	}
	return job, nil
}

// ListJobs returns the owner's jobs, most recently added first.
func (s *JobStore) ListJobs(ctx context.Context, ownerID string) ([]jobs.StoredJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE owner_id = $1 ORDER BY date_added DESC, id DESC`, s.columns, s.table)
	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := make([]jobs.StoredJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

// UpdateJob applies the non-nil fields of update and returns the stored row.
func (s *JobStore) UpdateJob(
	ctx context.Context,
	ownerID, id string,
	update jobs.JobUpdate,
	at time.Time,
) (jobs.StoredJob, error) {
	var tracking *string
	if update.Tracking != nil {
		v := string(*update.Tracking)
		tracking = &v
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	tracking_status = COALESCE($3, tracking_status),
	notes = COALESCE($4, notes),
	updated_at = $5
WHERE owner_id = $1 AND id = $2
RETURNING %s`, s.table, s.columns)

	job, err := scanJob(s.pool.QueryRow(ctx, query, ownerID, id, tracking, update.Notes, at))
	if err != nil {
		return jobs.StoredJob{}, notFound(err, "update job")
	}
	return job, nil
}

// DeleteJob removes one of the owner's jobs.
func (s *JobStore) DeleteJob(ctx context.Context, ownerID, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE owner_id = $1 AND id = $2`, s.table)
	tag, err := s.pool.Exec(ctx, query, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobs.ErrNotFound
	}
	return nil
}

func scanJob(row scanner) (jobs.StoredJob, error) {
	var (
		job            jobs.StoredJob
		postingStatus  string
		trackingStatus string
	)
	rec := &job.Record
	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&rec.Title,
		&rec.Company,
		&rec.Location,
		&rec.Salary,
		&rec.Experience,
		&rec.Description,
		&rec.SourceURL,
		&postingStatus,
		&trackingStatus,
		&job.Notes,
		&job.SnapshotURI,
		&job.DateAdded,
		&job.UpdatedAt,
	)
	if err != nil {
		return jobs.StoredJob{}, err
	}
	rec.Status = jobs.Status(postingStatus)
	job.Tracking = jobs.TrackingStatus(trackingStatus)
	return job, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return jobs.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
