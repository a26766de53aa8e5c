package dispatch

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Job kinds.
const (
	KindOnce = "once"
	KindCron = "cron"
)

// Job is a durable unit of deferred work. Handlers are referenced by
// registered name, since a callable cannot be persisted across restarts.
type Job struct {
	ID        string
	Handler   string
	Args      json.RawMessage
	Kind      string
	CronSpec  *string
	NextRun   time.Time
	Running   bool
	CreatedAt time.Time
}

// Execution is one entry in the execution log.
type Execution struct {
	ID         int64
	JobID      string
	Status     string
	Error      *string
	StartedAt  time.Time
	FinishedAt time.Time
	DurationMS int64
}

// JobStore persists jobs and their execution history.
type JobStore struct {
	db *sql.DB
}

func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

const jobCols = `id, handler, args, kind, cron_spec, next_run, running, created_at`

func scanJob(scanner interface{ Scan(...any) error }) (*Job, error) {
	var j Job
	var args string
	var cronSpec sql.NullString
	err := scanner.Scan(&j.ID, &j.Handler, &args, &j.Kind, &cronSpec, &j.NextRun, &j.Running, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	j.Args = json.RawMessage(args)
	if cronSpec.Valid {
		j.CronSpec = &cronSpec.String
	}
	return &j, nil
}

// InsertOnce registers a one-shot job. With replace false a colliding id is
// silently dropped; the caller cannot tell and is not meant to.
func (s *JobStore) InsertOnce(id, handler string, args json.RawMessage, runAt time.Time, replace bool) error {
	if args == nil {
		args = json.RawMessage(`{}`)
	}
	verb := `INSERT OR IGNORE`
	if replace {
		verb = `INSERT OR REPLACE`
	}
	_, err := s.db.Exec(
		verb+` INTO jobs (id, handler, args, kind, next_run) VALUES (?, ?, ?, ?, ?)`,
		id, handler, string(args), KindOnce, runAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpsertCron registers a recurring job, replacing any previous definition so
// redeploys don't duplicate schedules.
func (s *JobStore) UpsertCron(id, handler, spec string, nextRun time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO jobs (id, handler, args, kind, cron_spec, next_run) VALUES (?, ?, '{}', ?, ?, ?)`,
		id, handler, KindCron, spec, nextRun.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert cron job: %w", err)
	}
	return nil
}

func (s *JobStore) Get(id string) (*Job, error) {
	row := s.db.QueryRow(`SELECT `+jobCols+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ListDue returns jobs whose next run has arrived and that nothing has
// claimed yet.
func (s *JobStore) ListDue(now time.Time) ([]*Job, error) {
	rows, err := s.db.Query(
		`SELECT `+jobCols+` FROM jobs WHERE next_run <= ? AND running = 0 ORDER BY next_run`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Claim marks a job running. Returns false if another claim won; at most one
// instance of a job id can ever be executing.
func (s *JobStore) Claim(id string) (bool, error) {
	result, err := s.db.Exec(`UPDATE jobs SET running = 1 WHERE id = ? AND running = 0`, id)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Complete finishes a one-off job by deleting its row.
func (s *JobStore) Complete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Reschedule releases a cron job with its next run time.
func (s *JobStore) Reschedule(id string, nextRun time.Time) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET running = 0, next_run = ? WHERE id = ?`, nextRun.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("reschedule job: %w", err)
	}
	return nil
}

// ReleaseAll clears stale running flags. Called once at startup: a crash
// mid-execution would otherwise leave jobs claimed forever.
func (s *JobStore) ReleaseAll() error {
	if _, err := s.db.Exec(`UPDATE jobs SET running = 0`); err != nil {
		return fmt.Errorf("release jobs: %w", err)
	}
	return nil
}

// RecordExecution appends to the execution log.
func (s *JobStore) RecordExecution(jobID, status string, execErr error, started, finished time.Time) error {
	var errText sql.NullString
	if execErr != nil {
		errText = sql.NullString{String: execErr.Error(), Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO job_executions (job_id, status, error, started_at, finished_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		jobID, status, errText, started.UTC(), finished.UTC(), finished.Sub(started).Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// PruneExecutions deletes log entries older than maxAge.
func (s *JobStore) PruneExecutions(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	result, err := s.db.Exec(`DELETE FROM job_executions WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune executions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

// ListExecutions returns the log for a job, newest first.
func (s *JobStore) ListExecutions(jobID string) ([]*Execution, error) {
	rows, err := s.db.Query(
		`SELECT id, job_id, status, error, started_at, finished_at, duration_ms
		 FROM job_executions WHERE job_id = ? ORDER BY id DESC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		var e Execution
		var errText sql.NullString
		if err := rows.Scan(&e.ID, &e.JobID, &e.Status, &errText, &e.StartedAt, &e.FinishedAt, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if errText.Valid {
			e.Error = &errText.String
		}
		execs = append(execs, &e)
	}
	return execs, rows.Err()
}
