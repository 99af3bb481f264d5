package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrJobNotFound = errors.New("job not found")

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusDead      JobStatus = "dead"
)

type Job struct {
	ID          string
	Name        string
	Payload     json.RawMessage
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	NextRunAt   time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *Store) EnqueueJob(ctx context.Context, name string, payload any, maxAttempts int) (Job, error) {
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal job payload: %w", err)
	}
	now := time.Now().UTC()
	job := Job{
		ID:          uuid.NewString(),
		Name:        name,
		Payload:     payloadJSON,
		Status:      JobStatusQueued,
		MaxAttempts: maxAttempts,
		NextRunAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (id, name, payload_json, status, attempts, max_attempts, next_run_unix, created_at_unix, updated_at_unix)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		job.ID, job.Name, string(payloadJSON), string(job.Status), job.MaxAttempts,
		now.Unix(), now.Unix(), now.Unix(),
	)
	if err != nil {
		return Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// ClaimDueJobs marks up to limit due jobs as running and returns them.
func (s *Store) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, name, payload_json, status, attempts, max_attempts, next_run_unix,
		        COALESCE(last_error, ''), created_at_unix, updated_at_unix
		 FROM jobs
		 WHERE status = ? AND next_run_unix <= ?
		 ORDER BY next_run_unix ASC
		 LIMIT ?`,
		string(JobStatusQueued), now.Unix(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	claimed := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		result, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs SET status = ?, attempts = attempts + 1, updated_at_unix = ?
			 WHERE id = ? AND status = ?`,
			string(JobStatusRunning), now.Unix(), job.ID, string(JobStatusQueued),
		)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 1 {
			job.Status = JobStatusRunning
			job.Attempts++
			claimed = append(claimed, job)
		}
	}
	return claimed, nil
}

func (s *Store) MarkJobSucceeded(ctx context.Context, id string) error {
	return s.finishJob(ctx, id, JobStatusSucceeded, "", time.Time{})
}

// MarkJobFailed requeues the job with the given next attempt time, or
// moves it to the dead-letter state once attempts are exhausted.
func (s *Store) MarkJobFailed(ctx context.Context, id string, jobErr error, nextRun time.Time) error {
	var job Job
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, payload_json, status, attempts, max_attempts, next_run_unix,
		        COALESCE(last_error, ''), created_at_unix, updated_at_unix
		 FROM jobs WHERE id = ?`,
		id,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return err
	}

	message := ""
	if jobErr != nil {
		message = jobErr.Error()
	}
	if job.Attempts >= job.MaxAttempts {
		return s.finishJob(ctx, id, JobStatusDead, message, time.Time{})
	}
	return s.finishJob(ctx, id, JobStatusQueued, message, nextRun)
}

func (s *Store) finishJob(ctx context.Context, id string, status JobStatus, lastError string, nextRun time.Time) error {
	now := time.Now().UTC()
	nextRunUnix := now.Unix()
	if !nextRun.IsZero() {
		nextRunUnix = nextRun.UTC().Unix()
	}
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, last_error = ?, next_run_unix = ?, updated_at_unix = ? WHERE id = ?`,
		string(status), nullIfEmpty(lastError), nextRunUnix, now.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

func (s *Store) CountJobsByStatus(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[JobStatus(status)] = count
	}
	return counts, rows.Err()
}

// PruneFinishedJobs deletes succeeded jobs older than the cutoff.
func (s *Store) PruneFinishedJobs(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(
		ctx,
		`DELETE FROM jobs WHERE status = ? AND updated_at_unix < ?`,
		string(JobStatusSucceeded), before.UTC().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return result.RowsAffected()
}

func scanJob(row rowScanner) (Job, error) {
	var job Job
	var payloadJSON, status string
	var nextRunUnix, createdUnix, updatedUnix int64
	err := row.Scan(
		&job.ID, &job.Name, &payloadJSON, &status, &job.Attempts, &job.MaxAttempts,
		&nextRunUnix, &job.LastError, &createdUnix, &updatedUnix,
	)
	if err != nil {
		return Job{}, err
	}
	job.Payload = json.RawMessage(payloadJSON)
	job.Status = JobStatus(status)
	job.NextRunAt = time.Unix(nextRunUnix, 0).UTC()
	job.CreatedAt = time.Unix(createdUnix, 0).UTC()
	job.UpdatedAt = time.Unix(updatedUnix, 0).UTC()
	return job, nil
}
