package postgres

import (
	"context"
	"database/sql"

	"github.com/resalt-bridge/resalt/internal/model"
)

// CreateJob is idempotent on jid: replaying the same job-new event replaces
// the row rather than erroring, so the final state is identical.
func (s *Store) CreateJob(ctx context.Context, job *model.Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, "timestamp", jid, "user", event_id) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (jid) DO UPDATE SET "timestamp" = EXCLUDED."timestamp",
			"user" = EXCLUDED."user", event_id = EXCLUDED.event_id`,
		job.ID, job.Timestamp, job.Jid, job.User, job.EventID)
	return dbErr(err)
}

func (s *Store) GetJobByJid(ctx context.Context, jid string) (*model.Job, error) {
	var j model.Job
	err := s.db.QueryRowContext(ctx,
		`SELECT id, "timestamp", jid, "user", event_id FROM jobs WHERE jid = $1`, jid).
		Scan(&j.ID, &j.Timestamp, &j.Jid, &j.User, &j.EventID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err)
	}
	return &j, nil
}

// ListJobs loads the full job set and sorts/paginates in Go; filters is
// accepted for interface parity but job filtering (by user, by function)
// is not yet part of the documented minion filter vocabulary.
func (s *Store) ListJobs(ctx context.Context, filters []model.Filter, sortKey model.Sort, page model.Paginate) ([]model.Job, error) {
	order := `"timestamp" DESC`
	switch sortKey {
	case model.SortJobIDAsc:
		order = `id ASC`
	case model.SortJobTimestampAsc:
		order = `"timestamp" ASC`
	case model.SortJobJidAsc:
		order = `jid ASC`
	case model.SortJobUserAsc:
		order = `"user" ASC NULLS FIRST`
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, "timestamp", jid, "user", event_id FROM jobs ORDER BY `+order)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var all []model.Job
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(&j.ID, &j.Timestamp, &j.Jid, &j.User, &j.EventID); err != nil {
			return nil, dbErr(err)
		}
		all = append(all, j)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err)
	}
	return paginateJobsSlice(all, page), nil
}

func (s *Store) CountJobs(ctx context.Context, filters []model.Filter) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&count)
	return count, dbErr(err)
}

func (s *Store) CreateJobReturn(ctx context.Context, jobReturn *model.JobReturn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_returns (id, "timestamp", jid, job_id, event_id, minion_id) VALUES ($1, $2, $3, $4, $5, $6)`,
		jobReturn.ID, jobReturn.Timestamp, jobReturn.Jid, jobReturn.JobID, jobReturn.EventID, jobReturn.MinionID)
	return dbErr(err)
}

func (s *Store) ListJobReturnsByJid(ctx context.Context, jid string) ([]model.JobReturn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, "timestamp", jid, job_id, event_id, minion_id FROM job_returns WHERE jid = $1 ORDER BY "timestamp" ASC`, jid)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var out []model.JobReturn
	for rows.Next() {
		var jr model.JobReturn
		if err := rows.Scan(&jr.ID, &jr.Timestamp, &jr.Jid, &jr.JobID, &jr.EventID, &jr.MinionID); err != nil {
			return nil, dbErr(err)
		}
		out = append(out, jr)
	}
	return out, dbErr(rows.Err())
}
