package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resalt-bridge/resalt/internal/filter"
	"github.com/resalt-bridge/resalt/internal/model"
)

type minionRecord struct {
	ID         string  `json:"id"`
	LastSeen   int64   `json:"lastSeen"`
	OSType     *string `json:"osType,omitempty"`
	Grains     *string `json:"grains,omitempty"`
	Pillars    *string `json:"pillars,omitempty"`
	Pkgs       *string `json:"pkgs,omitempty"`
	Conformity *string `json:"conformity,omitempty"`

	ConformitySuccess   *int32 `json:"conformitySuccess,omitempty"`
	ConformityIncorrect *int32 `json:"conformityIncorrect,omitempty"`
	ConformityError     *int32 `json:"conformityError,omitempty"`

	LastUpdatedGrains     *int64 `json:"lastUpdatedGrains,omitempty"`
	LastUpdatedPillars    *int64 `json:"lastUpdatedPillars,omitempty"`
	LastUpdatedPkgs       *int64 `json:"lastUpdatedPkgs,omitempty"`
	LastUpdatedConformity *int64 `json:"lastUpdatedConformity,omitempty"`
}

func (r minionRecord) toModel() model.Minion {
	m := model.Minion{
		ID: r.ID, LastSeen: unixToTime(r.LastSeen), OSType: r.OSType,
		Grains: r.Grains, Pillars: r.Pillars, Pkgs: r.Pkgs, Conformity: r.Conformity,
		ConformitySuccess: r.ConformitySuccess, ConformityIncorrect: r.ConformityIncorrect, ConformityError: r.ConformityError,
	}
	if r.LastUpdatedGrains != nil {
		t := unixToTime(*r.LastUpdatedGrains)
		m.LastUpdatedGrains = &t
	}
	if r.LastUpdatedPillars != nil {
		t := unixToTime(*r.LastUpdatedPillars)
		m.LastUpdatedPillars = &t
	}
	if r.LastUpdatedPkgs != nil {
		t := unixToTime(*r.LastUpdatedPkgs)
		m.LastUpdatedPkgs = &t
	}
	if r.LastUpdatedConformity != nil {
		t := unixToTime(*r.LastUpdatedConformity)
		m.LastUpdatedConformity = &t
	}
	return m
}

func (s *Store) getMinionRecord(ctx context.Context, id string) (*minionRecord, error) {
	val, err := s.client.Get(ctx, keyMinion+id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err)
	}
	var r minionRecord
	if err := json.Unmarshal([]byte(val), &r); err != nil {
		return nil, dbErr(err)
	}
	return &r, nil
}

func (s *Store) putMinionRecord(ctx context.Context, r minionRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return dbErr(err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyMinion+r.ID, data, 0)
	pipe.SAdd(ctx, keyMinionsSet, r.ID)
	_, err = pipe.Exec(ctx)
	return dbErr(err)
}

func (s *Store) UpsertMinionSeen(ctx context.Context, id string, lastSeen time.Time, osType *string) error {
	r, err := s.getMinionRecord(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		r = &minionRecord{ID: id}
	}
	r.LastSeen = lastSeen.Unix()
	if osType != nil {
		r.OSType = osType
	}
	return s.putMinionRecord(ctx, *r)
}

func (s *Store) GetMinion(ctx context.Context, id string) (*model.Minion, error) {
	r, err := s.getMinionRecord(ctx, id)
	if err != nil || r == nil {
		return nil, err
	}
	m := r.toModel()
	return &m, nil
}

func (s *Store) allMinions(ctx context.Context) ([]model.Minion, error) {
	ids, err := s.client.SMembers(ctx, keyMinionsSet).Result()
	if err != nil {
		return nil, dbErr(err)
	}
	out := make([]model.Minion, 0, len(ids))
	for _, id := range ids {
		m, err := s.GetMinion(ctx, id)
		if err != nil {
			return nil, err
		}
		if m != nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *Store) ListMinions(ctx context.Context, filters []model.Filter, sortKey model.Sort, page model.Paginate) ([]model.Minion, error) {
	all, err := s.allMinions(ctx)
	if err != nil {
		return nil, err
	}
	matched := filter.FilterMinions(all, filters)
	sortMinionsSlice(matched, sortKey)
	return paginateMinions(matched, page), nil
}

func (s *Store) CountMinions(ctx context.Context, filters []model.Filter) (int64, error) {
	all, err := s.allMinions(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(filter.FilterMinions(all, filters))), nil
}

func (s *Store) DeleteMinion(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keyMinion+id)
	pipe.SRem(ctx, keyMinionsSet, id)
	_, err := pipe.Exec(ctx)
	return dbErr(err)
}

func (s *Store) PruneMinions(ctx context.Context, knownIDs []string) error {
	known := make(map[string]bool, len(knownIDs))
	for _, id := range knownIDs {
		known[id] = true
	}
	ids, err := s.client.SMembers(ctx, keyMinionsSet).Result()
	if err != nil {
		return dbErr(err)
	}
	for _, id := range ids {
		if !known[id] {
			if err := s.DeleteMinion(ctx, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// guardedUpdate mirrors the memory backend's out-of-order-event guard: the
// field update only applies if observedAt is not older than the existing
// stamp.
func guardedUpdate(stamp *int64, observedAt int64, apply func()) {
	if stamp != nil && *stamp != 0 && observedAt < *stamp {
		return
	}
	apply()
}

func (s *Store) UpdateMinionGrains(ctx context.Context, id string, grains string, observedAt time.Time) error {
	r, err := s.getMinionRecord(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		r = &minionRecord{ID: id, LastSeen: observedAt.Unix()}
	}
	ts := observedAt.Unix()
	var existing int64
	if r.LastUpdatedGrains != nil {
		existing = *r.LastUpdatedGrains
	}
	guardedUpdate(&existing, ts, func() {
		r.Grains = &grains
		r.LastUpdatedGrains = &ts
	})
	return s.putMinionRecord(ctx, *r)
}

func (s *Store) UpdateMinionPillars(ctx context.Context, id string, pillars string, observedAt time.Time) error {
	r, err := s.getMinionRecord(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		r = &minionRecord{ID: id, LastSeen: observedAt.Unix()}
	}
	ts := observedAt.Unix()
	var existing int64
	if r.LastUpdatedPillars != nil {
		existing = *r.LastUpdatedPillars
	}
	guardedUpdate(&existing, ts, func() {
		r.Pillars = &pillars
		r.LastUpdatedPillars = &ts
	})
	return s.putMinionRecord(ctx, *r)
}

func (s *Store) UpdateMinionPkgs(ctx context.Context, id string, pkgs string, observedAt time.Time) error {
	r, err := s.getMinionRecord(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		r = &minionRecord{ID: id, LastSeen: observedAt.Unix()}
	}
	ts := observedAt.Unix()
	var existing int64
	if r.LastUpdatedPkgs != nil {
		existing = *r.LastUpdatedPkgs
	}
	guardedUpdate(&existing, ts, func() {
		r.Pkgs = &pkgs
		r.LastUpdatedPkgs = &ts
	})
	return s.putMinionRecord(ctx, *r)
}

func (s *Store) UpdateMinionConformity(ctx context.Context, id string, conformity string, success, incorrect, errorCount int32, observedAt time.Time) error {
	r, err := s.getMinionRecord(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		r = &minionRecord{ID: id, LastSeen: observedAt.Unix()}
	}
	ts := observedAt.Unix()
	var existing int64
	if r.LastUpdatedConformity != nil {
		existing = *r.LastUpdatedConformity
	}
	guardedUpdate(&existing, ts, func() {
		r.Conformity = &conformity
		r.ConformitySuccess = &success
		r.ConformityIncorrect = &incorrect
		r.ConformityError = &errorCount
		r.LastUpdatedConformity = &ts
	})
	return s.putMinionRecord(ctx, *r)
}
