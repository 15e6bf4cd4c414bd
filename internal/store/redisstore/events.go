package redisstore

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/model"
)

type eventRecord struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Tag       string `json:"tag"`
	Data      string `json:"data"`
}

func (s *Store) CreateEvent(ctx context.Context, event *model.Event) error {
	r := eventRecord{ID: event.ID, Timestamp: event.Timestamp.Unix(), Tag: event.Tag, Data: event.Data}
	data, err := json.Marshal(r)
	if err != nil {
		return apperr.InternalError("failed to encode event")
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyEvent+event.ID, data, 0)
	pipe.SAdd(ctx, keyEventsSet, event.ID)
	_, err = pipe.Exec(ctx)
	return dbErr(err)
}

func (s *Store) allEvents(ctx context.Context) ([]model.Event, error) {
	ids, err := s.client.SMembers(ctx, keyEventsSet).Result()
	if err != nil {
		return nil, dbErr(err)
	}
	out := make([]model.Event, 0, len(ids))
	for _, id := range ids {
		val, err := s.client.Get(ctx, keyEvent+id).Result()
		if err != nil {
			continue
		}
		var r eventRecord
		if err := json.Unmarshal([]byte(val), &r); err != nil {
			return nil, apperr.InternalError("failed to decode event")
		}
		out = append(out, model.Event{ID: r.ID, Timestamp: unixToTime(r.Timestamp), Tag: r.Tag, Data: r.Data})
	}
	return out, nil
}

func (s *Store) ListEvents(ctx context.Context, page model.Paginate) ([]model.Event, error) {
	all, err := s.allEvents(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
	return paginateEvents(all, page), nil
}

func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	count, err := s.client.SCard(ctx, keyEventsSet).Result()
	return count, dbErr(err)
}
