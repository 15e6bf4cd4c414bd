package redisstore

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/model"
)

func (s *Store) CreateMinionPreset(ctx context.Context, preset *model.MinionPreset) error {
	exists, err := s.client.Exists(ctx, keyPresetsByName+preset.Name).Result()
	if err != nil {
		return dbErr(err)
	}
	if exists > 0 {
		return apperr.New(apperr.CodeInvalidRequest, "preset name already taken")
	}
	data, err := json.Marshal(preset)
	if err != nil {
		return apperr.InternalError("failed to encode minion preset")
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyMinionPreset+preset.ID, data, 0)
	pipe.Set(ctx, keyPresetsByName+preset.Name, preset.ID, 0)
	pipe.SAdd(ctx, keyMinionPresetsSet, preset.ID)
	_, err = pipe.Exec(ctx)
	return dbErr(err)
}

func (s *Store) GetMinionPreset(ctx context.Context, id string) (*model.MinionPreset, error) {
	val, err := s.client.Get(ctx, keyMinionPreset+id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err)
	}
	var p model.MinionPreset
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return nil, apperr.InternalError("failed to decode minion preset")
	}
	return &p, nil
}

func (s *Store) ListMinionPresets(ctx context.Context) ([]model.MinionPreset, error) {
	ids, err := s.client.SMembers(ctx, keyMinionPresetsSet).Result()
	if err != nil {
		return nil, dbErr(err)
	}
	out := make([]model.MinionPreset, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetMinionPreset(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *Store) UpdateMinionPreset(ctx context.Context, id, name, filterJSON string) error {
	p, err := s.GetMinionPreset(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return apperr.NotFound("minion preset")
	}
	oldName := p.Name
	p.Name = name
	p.Filter = filterJSON
	data, err := json.Marshal(p)
	if err != nil {
		return apperr.InternalError("failed to encode minion preset")
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyMinionPreset+id, data, 0)
	if oldName != name {
		pipe.Del(ctx, keyPresetsByName+oldName)
		pipe.Set(ctx, keyPresetsByName+name, id, 0)
	}
	_, err = pipe.Exec(ctx)
	return dbErr(err)
}

func (s *Store) DeleteMinionPreset(ctx context.Context, id string) error {
	p, err := s.GetMinionPreset(ctx, id)
	if err != nil || p == nil {
		return nil
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keyMinionPreset+id)
	pipe.Del(ctx, keyPresetsByName+p.Name)
	pipe.SRem(ctx, keyMinionPresetsSet, id)
	_, err = pipe.Exec(ctx)
	return dbErr(err)
}
