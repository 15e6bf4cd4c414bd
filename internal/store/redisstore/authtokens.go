package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/model"
)

type authTokenRecord struct {
	ID            string               `json:"id"`
	UserID        string               `json:"userId"`
	IssuedAt      int64                `json:"issuedAt"`
	UpstreamToken *model.UpstreamToken `json:"upstreamToken,omitempty"`
}

func (s *Store) CreateAuthToken(ctx context.Context, token *model.AuthToken) error {
	r := authTokenRecord{ID: token.ID, UserID: token.UserID, IssuedAt: token.IssuedAt.Unix(), UpstreamToken: token.UpstreamToken}
	data, err := json.Marshal(r)
	if err != nil {
		return apperr.InternalError("failed to encode auth token")
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyAuthToken+token.ID, data, 0)
	pipe.SAdd(ctx, keyAuthTokensSet, token.ID)
	_, err = pipe.Exec(ctx)
	return dbErr(err)
}

func (s *Store) getAuthTokenRecord(ctx context.Context, id string) (*authTokenRecord, error) {
	val, err := s.client.Get(ctx, keyAuthToken+id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err)
	}
	var r authTokenRecord
	if err := json.Unmarshal([]byte(val), &r); err != nil {
		return nil, apperr.InternalError("failed to decode auth token")
	}
	return &r, nil
}

func (s *Store) GetAuthToken(ctx context.Context, id string) (*model.AuthToken, error) {
	r, err := s.getAuthTokenRecord(ctx, id)
	if err != nil || r == nil {
		return nil, err
	}
	return &model.AuthToken{ID: r.ID, UserID: r.UserID, IssuedAt: unixToTime(r.IssuedAt), UpstreamToken: r.UpstreamToken}, nil
}

func (s *Store) UpdateAuthTokenUpstream(ctx context.Context, id string, upstream *model.UpstreamToken) error {
	r, err := s.getAuthTokenRecord(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		return apperr.NotFound("auth token")
	}
	r.UpstreamToken = upstream
	data, err := json.Marshal(r)
	if err != nil {
		return apperr.InternalError("failed to encode auth token")
	}
	return dbErr(s.client.Set(ctx, keyAuthToken+id, data, 0).Err())
}

func (s *Store) DeleteAuthToken(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keyAuthToken+id)
	pipe.SRem(ctx, keyAuthTokensSet, id)
	_, err := pipe.Exec(ctx)
	return dbErr(err)
}

func (s *Store) DeleteExpiredAuthTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	ids, err := s.client.SMembers(ctx, keyAuthTokensSet).Result()
	if err != nil {
		return 0, dbErr(err)
	}
	var count int64
	for _, id := range ids {
		r, err := s.getAuthTokenRecord(ctx, id)
		if err != nil {
			return count, err
		}
		if r == nil {
			continue
		}
		if r.UpstreamToken != nil && unixToTime(r.UpstreamToken.Expire).Before(cutoff) {
			if err := s.DeleteAuthToken(ctx, id); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}
