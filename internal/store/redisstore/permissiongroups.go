package redisstore

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/model"
)

func (s *Store) CreatePermissionGroup(ctx context.Context, group *model.PermissionGroup) error {
	exists, err := s.client.Exists(ctx, keyGroupsByName+group.Name).Result()
	if err != nil {
		return dbErr(err)
	}
	if exists > 0 {
		return apperr.New(apperr.CodeInvalidRequest, "group name already taken")
	}
	data, err := json.Marshal(group)
	if err != nil {
		return apperr.InternalError("failed to encode permission group")
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyPermissionGroup+group.ID, data, 0)
	pipe.Set(ctx, keyGroupsByName+group.Name, group.ID, 0)
	pipe.SAdd(ctx, keyPermissionGroupsSet, group.ID)
	_, err = pipe.Exec(ctx)
	return dbErr(err)
}

func (s *Store) GetPermissionGroup(ctx context.Context, id string) (*model.PermissionGroup, error) {
	val, err := s.client.Get(ctx, keyPermissionGroup+id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err)
	}
	var g model.PermissionGroup
	if err := json.Unmarshal([]byte(val), &g); err != nil {
		return nil, apperr.InternalError("failed to decode permission group")
	}
	return &g, nil
}

func (s *Store) GetPermissionGroupByName(ctx context.Context, name string) (*model.PermissionGroup, error) {
	id, err := s.client.Get(ctx, keyGroupsByName+name).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err)
	}
	return s.GetPermissionGroup(ctx, id)
}

func (s *Store) ListPermissionGroups(ctx context.Context) ([]model.PermissionGroup, error) {
	ids, err := s.client.SMembers(ctx, keyPermissionGroupsSet).Result()
	if err != nil {
		return nil, dbErr(err)
	}
	out := make([]model.PermissionGroup, 0, len(ids))
	for _, id := range ids {
		g, err := s.GetPermissionGroup(ctx, id)
		if err != nil {
			return nil, err
		}
		if g != nil {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *Store) UpdatePermissionGroupPerms(ctx context.Context, id string, perms string) error {
	g, err := s.GetPermissionGroup(ctx, id)
	if err != nil {
		return err
	}
	if g == nil {
		return apperr.NotFound("permission group")
	}
	g.Perms = perms
	data, err := json.Marshal(g)
	if err != nil {
		return apperr.InternalError("failed to encode permission group")
	}
	return dbErr(s.client.Set(ctx, keyPermissionGroup+id, data, 0).Err())
}

func (s *Store) DeletePermissionGroup(ctx context.Context, id string) error {
	g, err := s.GetPermissionGroup(ctx, id)
	if err != nil || g == nil {
		return nil
	}
	memberships, err := s.scanKeys(ctx, keyPermissionGroupUser+"*:"+id)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keyPermissionGroup+id)
	pipe.Del(ctx, keyGroupsByName+g.Name)
	pipe.SRem(ctx, keyPermissionGroupsSet, id)
	for _, k := range memberships {
		pipe.Del(ctx, k)
	}
	_, err = pipe.Exec(ctx)
	return dbErr(err)
}
