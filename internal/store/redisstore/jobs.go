package redisstore

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/model"
)

type jobRecord struct {
	ID        string  `json:"id"`
	Timestamp int64   `json:"timestamp"`
	Jid       string  `json:"jid"`
	User      *string `json:"user,omitempty"`
	EventID   *string `json:"eventId,omitempty"`
}

func (s *Store) CreateJob(ctx context.Context, job *model.Job) error {
	r := jobRecord{ID: job.ID, Timestamp: job.Timestamp.Unix(), Jid: job.Jid, User: job.User, EventID: job.EventID}
	data, err := json.Marshal(r)
	if err != nil {
		return apperr.InternalError("failed to encode job")
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyJob+job.Jid, data, 0)
	pipe.SAdd(ctx, keyJobsSet, job.Jid)
	_, err = pipe.Exec(ctx)
	return dbErr(err)
}

func (s *Store) GetJobByJid(ctx context.Context, jid string) (*model.Job, error) {
	val, err := s.client.Get(ctx, keyJob+jid).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err)
	}
	var r jobRecord
	if err := json.Unmarshal([]byte(val), &r); err != nil {
		return nil, apperr.InternalError("failed to decode job")
	}
	return &model.Job{ID: r.ID, Timestamp: unixToTime(r.Timestamp), Jid: r.Jid, User: r.User, EventID: r.EventID}, nil
}

func (s *Store) ListJobs(ctx context.Context, filters []model.Filter, sortKey model.Sort, page model.Paginate) ([]model.Job, error) {
	jids, err := s.client.SMembers(ctx, keyJobsSet).Result()
	if err != nil {
		return nil, dbErr(err)
	}
	all := make([]model.Job, 0, len(jids))
	for _, jid := range jids {
		j, err := s.GetJobByJid(ctx, jid)
		if err != nil {
			return nil, err
		}
		if j != nil {
			all = append(all, *j)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		switch sortKey {
		case model.SortJobIDAsc:
			return all[i].ID < all[j].ID
		case model.SortJobTimestampAsc:
			return all[i].Timestamp.Before(all[j].Timestamp)
		case model.SortJobJidAsc:
			return all[i].Jid < all[j].Jid
		case model.SortJobUserAsc:
			return jobUser(all[i]) < jobUser(all[j])
		default:
			return all[i].Timestamp.After(all[j].Timestamp)
		}
	})
	return paginateJobsSlice(all, page), nil
}

func (s *Store) CountJobs(ctx context.Context, filters []model.Filter) (int64, error) {
	count, err := s.client.SCard(ctx, keyJobsSet).Result()
	return count, dbErr(err)
}

func (s *Store) CreateJobReturn(ctx context.Context, jobReturn *model.JobReturn) error {
	data, err := json.Marshal(jobReturn)
	if err != nil {
		return apperr.InternalError("failed to encode job return")
	}
	key := keyJobReturn + jobReturn.Jid + ":" + jobReturn.ID
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, "job_returns_by_jid:"+jobReturn.Jid, jobReturn.ID)
	_, err = pipe.Exec(ctx)
	return dbErr(err)
}

func (s *Store) ListJobReturnsByJid(ctx context.Context, jid string) ([]model.JobReturn, error) {
	ids, err := s.client.SMembers(ctx, "job_returns_by_jid:"+jid).Result()
	if err != nil {
		return nil, dbErr(err)
	}
	out := make([]model.JobReturn, 0, len(ids))
	for _, id := range ids {
		val, err := s.client.Get(ctx, keyJobReturn+jid+":"+id).Result()
		if err != nil {
			continue
		}
		var jr model.JobReturn
		if err := json.Unmarshal([]byte(val), &jr); err != nil {
			return nil, apperr.InternalError("failed to decode job return")
		}
		out = append(out, jr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// jobUser treats a missing user as the empty string for sorting.
func jobUser(j model.Job) string {
	if j.User == nil {
		return ""
	}
	return *j.User
}
