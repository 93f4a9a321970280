package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/ilcdirac/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	source string
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// One connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"journal_mode=WAL", "foreign_keys=ON", "busy_timeout=5000"} {
		if _, err := db.Exec("PRAGMA " + pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("open %s: PRAGMA %s: %w", dbPath, pragma, err)
		}
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
		source: "Job",
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate brings the schema up to SchemaVersion.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate", "target_version", SchemaVersion)
	return migrate(ctx, s.db)
}

// upsertJob makes sure jobID has a jobs row and bumps its update time.
func upsertJob(ctx context.Context, tx *sql.Tx, jobID, status, now string) error {
	if status != "" {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
			jobID, status, now, now)
		return err
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO jobs (id, status, created_at, updated_at) VALUES (?, '', ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		jobID, now, now)
	return err
}

// SetApplicationStatus appends status to the job's history and makes it
// the current status.
func (s *SQLiteStore) SetApplicationStatus(ctx context.Context, jobID, status string) error {
	return s.SetApplicationStatusFrom(ctx, jobID, status, s.source)
}

// SetApplicationStatusFrom is SetApplicationStatus with an explicit source.
func (s *SQLiteStore) SetApplicationStatusFrom(ctx context.Context, jobID, status, source string) error {
	s.logger.Debug("sql", "op", "insert", "table", "job_status", "job_id", jobID)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertJob(ctx, tx, jobID, status, now); err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO job_status (job_id, status, source, created_at) VALUES (?, ?, ?, ?)`,
		jobID, status, source, now); err != nil {
		return fmt.Errorf("insert status: %w", err)
	}
	return tx.Commit()
}

// SetJobParameter sets a named job parameter, replacing any earlier value.
func (s *SQLiteStore) SetJobParameter(ctx context.Context, jobID, name, value string) error {
	s.logger.Debug("sql", "op", "upsert", "table", "job_parameters", "job_id", jobID, "name", name)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertJob(ctx, tx, jobID, "", now); err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO job_parameters (job_id, name, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(job_id, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		jobID, name, value, now); err != nil {
		return fmt.Errorf("upsert parameter: %w", err)
	}
	return tx.Commit()
}

// GetJob returns everything reported for jobID, or nil when nothing was.
func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	s.logger.Debug("sql", "op", "select", "table", "jobs", "id", jobID)

	var job model.Job
	var updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, updated_at FROM jobs WHERE id = ?`, jobID,
	).Scan(&job.ID, &job.Status, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	job.UpdatedAt = parseTime(updatedAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, source, created_at FROM job_status WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	job.History = []model.JobStatusRecord{}
	for rows.Next() {
		rec := model.JobStatusRecord{JobID: jobID}
		var createdAt string
		if err := rows.Scan(&rec.Status, &rec.Source, &createdAt); err != nil {
			return nil, err
		}
		rec.CreatedAt = parseTime(createdAt)
		job.History = append(job.History, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.db.QueryContext(ctx,
		`SELECT name, value, updated_at FROM job_parameters WHERE job_id = ? ORDER BY name`, jobID)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	job.Parameters = []model.JobParameter{}
	for prows.Next() {
		var p model.JobParameter
		var ts string
		if err := prows.Scan(&p.Name, &p.Value, &ts); err != nil {
			return nil, err
		}
		p.UpdatedAt = parseTime(ts)
		job.Parameters = append(job.Parameters, p)
	}
	return &job, prows.Err()
}

// ListJobs returns a page of jobs, most recently updated first, and the
// total number of matching jobs.
func (s *SQLiteStore) ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.JobSummary, int, error) {
	opts.Clamp()
	s.logger.Debug("sql", "op", "list", "table", "jobs", "limit", opts.Limit, "offset", opts.Offset)

	var (
		conds []string
		args  []any
	)
	if opts.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, opts.Status)
	}
	if !opts.Since.IsZero() {
		conds = append(conds, "julianday(updated_at) >= julianday(?)")
		args = append(args, opts.Since.UTC().Format(time.RFC3339Nano))
	}
	whereSQL := ""
	if len(conds) > 0 {
		whereSQL = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, updated_at FROM jobs`+whereSQL+` ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	jobs := []*model.JobSummary{}
	for rows.Next() {
		var j model.JobSummary
		var updatedAt string
		if err := rows.Scan(&j.ID, &j.Status, &updatedAt); err != nil {
			return nil, 0, err
		}
		j.UpdatedAt = parseTime(updatedAt)
		jobs = append(jobs, &j)
	}
	return jobs, total, rows.Err()
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
