package jobs

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/jobstack/resume-parser/constants"
)

// ErrNotFound marks lookups for unknown job IDs. Handlers map it to 404.
var ErrNotFound = errors.New("job not found")

const jobSchema = `
CREATE TABLE IF NOT EXISTS parse_jobs (
	id           TEXT PRIMARY KEY,
	owner_id     TEXT NOT NULL DEFAULT '',
	filename     TEXT NOT NULL,
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL,
	fresh        INTEGER NOT NULL DEFAULT 0,
	result       TEXT,
	error        TEXT,
	submitted_at TIMESTAMP NOT NULL,
	started_at   TIMESTAMP,
	completed_at TIMESTAMP,
	updated_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_parse_jobs_status ON parse_jobs(status);
CREATE INDEX IF NOT EXISTS idx_parse_jobs_submitted_at ON parse_jobs(submitted_at);
`

// Store persists jobs in sqlite. Document payloads stay in memory with the
// queue; only metadata and outcomes are written through.
type Store struct {
	db *sql.DB
}

func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, jobSchema); err != nil {
		return nil, errors.Wrap(err, "create parse_jobs schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Insert(ctx context.Context, job *Job) error {
	result := sql.NullString{String: string(job.Result), Valid: len(job.Result) > 0}
	fresh := 0
	if job.Fresh {
		fresh = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parse_jobs (id, owner_id, filename, kind, status, fresh, result, error, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.OwnerID, job.Filename, string(job.Kind), string(job.Status),
		fresh, result, job.Error, job.SubmittedAt, job.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "insert job")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, filename, kind, status, fresh, result, error,
		       submitted_at, started_at, completed_at, updated_at
		FROM parse_jobs WHERE id = ?`, id.String())

	var (
		job                    Job
		rawID, kind, status    string
		fresh                  int
		result, errMsg         sql.NullString
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(&rawID, &job.OwnerID, &job.Filename, &kind, &status, &fresh,
		&result, &errMsg, &job.SubmittedAt, &startedAt, &completedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("job %s", id), ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get job")
	}

	job.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, errors.Wrap(err, "parse stored job id")
	}
	job.Kind = constants.Kind(kind)
	job.Status = constants.JobStatus(status)
	job.Fresh = fresh != 0
	if result.Valid {
		job.Result = []byte(result.String)
	}
	job.Error = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM parse_jobs WHERE id = ?`, id.String())
	return errors.Wrap(err, "delete job")
}

// MarkProcessing moves a queued job to processing. Returns false without
// error when the job already left the queued state.
func (s *Store) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE parse_jobs SET status = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(constants.JobStatusProcessing), now, now, id.String(), string(constants.JobStatusQueued))
	if err != nil {
		return false, errors.Wrap(err, "mark job processing")
	}
	return changedOneRow(res)
}

// Complete moves a processing job to completed with its result. A job
// already in a terminal state is left untouched and reported as unchanged.
func (s *Store) Complete(ctx context.Context, id uuid.UUID, result []byte) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE parse_jobs SET status = ?, result = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(constants.JobStatusCompleted), string(result), now, now,
		id.String(), string(constants.JobStatusProcessing))
	if err != nil {
		return false, errors.Wrap(err, "complete job")
	}
	return changedOneRow(res)
}

// Fail moves a queued or processing job to failed. Terminal jobs are left
// untouched.
func (s *Store) Fail(ctx context.Context, id uuid.UUID, message string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE parse_jobs SET status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(constants.JobStatusFailed), message, now, now, id.String(),
		string(constants.JobStatusQueued), string(constants.JobStatusProcessing))
	if err != nil {
		return false, errors.Wrap(err, "fail job")
	}
	return changedOneRow(res)
}

// RequeueStale resets processing jobs back to queued, used on startup to
// recover jobs orphaned by an unclean shutdown.
func (s *Store) RequeueStale(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE parse_jobs SET status = ?, started_at = NULL, updated_at = ?
		WHERE status = ?`,
		string(constants.JobStatusQueued), now, string(constants.JobStatusProcessing))
	if err != nil {
		return 0, errors.Wrap(err, "requeue stale jobs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "requeue stale jobs rows affected")
	}
	return n, nil
}

// CountByStatus returns job counts grouped by status.
func (s *Store) CountByStatus(ctx context.Context) (map[constants.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM parse_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "count jobs by status")
	}
	defer rows.Close()

	out := make(map[constants.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "scan job count row")
		}
		out[constants.JobStatus(status)] = n
	}
	return out, rows.Err()
}

func changedOneRow(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n == 1, nil
}
