package redisstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/model"
)

type userRecord struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash *string    `json:"passwordHash,omitempty"`
	Perms        string     `json:"perms"`
	LastLogin    *int64     `json:"lastLogin,omitempty"`
	Email        *string    `json:"email,omitempty"`
}

func toUserRecord(u *model.User) userRecord {
	r := userRecord{ID: u.ID, Username: u.Username, PasswordHash: u.PasswordHash, Perms: u.Perms, Email: u.Email}
	if u.LastLogin != nil {
		ts := u.LastLogin.Unix()
		r.LastLogin = &ts
	}
	return r
}

func (r userRecord) toModel() model.User {
	u := model.User{ID: r.ID, Username: r.Username, PasswordHash: r.PasswordHash, Perms: r.Perms, Email: r.Email}
	if r.LastLogin != nil {
		t := unixToTime(*r.LastLogin)
		u.LastLogin = &t
	}
	return u
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	exists, err := s.client.Exists(ctx, keyUsersByName+user.Username).Result()
	if err != nil {
		return dbErr(err)
	}
	if exists > 0 {
		return apperr.New(apperr.CodeInvalidRequest, "username already taken")
	}
	data, err := json.Marshal(toUserRecord(user))
	if err != nil {
		return apperr.InternalError("failed to encode user")
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyUser+user.ID, data, 0)
	pipe.Set(ctx, keyUsersByName+user.Username, user.ID, 0)
	pipe.SAdd(ctx, keyUsersSet, user.ID)
	_, err = pipe.Exec(ctx)
	return dbErr(err)
}

func (s *Store) getUserRecord(ctx context.Context, id string) (*userRecord, error) {
	val, err := s.client.Get(ctx, keyUser+id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err)
	}
	var r userRecord
	if err := json.Unmarshal([]byte(val), &r); err != nil {
		return nil, apperr.InternalError("failed to decode user")
	}
	return &r, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	r, err := s.getUserRecord(ctx, id)
	if err != nil || r == nil {
		return nil, err
	}
	u := r.toModel()
	return &u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	id, err := s.client.Get(ctx, keyUsersByName+username).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err)
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	ids, err := s.client.SMembers(ctx, keyUsersSet).Result()
	if err != nil {
		return nil, dbErr(err)
	}
	out := make([]model.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.GetUserByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u != nil {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *Store) updateUser(ctx context.Context, id string, mutate func(r *userRecord)) error {
	r, err := s.getUserRecord(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		return apperr.NotFound("user")
	}
	mutate(r)
	data, err := json.Marshal(r)
	if err != nil {
		return apperr.InternalError("failed to encode user")
	}
	return dbErr(s.client.Set(ctx, keyUser+id, data, 0).Err())
}

func (s *Store) UpdateUserPasswordHash(ctx context.Context, id string, passwordHash string) error {
	return s.updateUser(ctx, id, func(r *userRecord) { r.PasswordHash = &passwordHash })
}

func (s *Store) UpdateUserEmail(ctx context.Context, id string, email *string) error {
	return s.updateUser(ctx, id, func(r *userRecord) { r.Email = email })
}

func (s *Store) UpdateUserPerms(ctx context.Context, id string, perms string) error {
	return s.updateUser(ctx, id, func(r *userRecord) { r.Perms = perms })
}

func (s *Store) UpdateUserLastLogin(ctx context.Context, id string, at time.Time) error {
	ts := at.Unix()
	return s.updateUser(ctx, id, func(r *userRecord) { r.LastLogin = &ts })
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	u, err := s.GetUserByID(ctx, id)
	if err != nil || u == nil {
		return nil
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keyUser+id)
	pipe.Del(ctx, keyUsersByName+u.Username)
	pipe.SRem(ctx, keyUsersSet, id)
	_, err = pipe.Exec(ctx)
	return dbErr(err)
}

func (s *Store) AddUserToGroup(ctx context.Context, userID, groupID string) error {
	return dbErr(s.client.Set(ctx, keyPermissionGroupUser+userID+":"+groupID, "1", 0).Err())
}

func (s *Store) RemoveUserFromGroup(ctx context.Context, userID, groupID string) error {
	return dbErr(s.client.Del(ctx, keyPermissionGroupUser+userID+":"+groupID).Err())
}

func (s *Store) IsUserMemberOfGroup(ctx context.Context, userID, groupID string) (bool, error) {
	exists, err := s.client.Exists(ctx, keyPermissionGroupUser+userID+":"+groupID).Result()
	if err != nil {
		return false, dbErr(err)
	}
	return exists > 0, nil
}

func (s *Store) ListUsersByGroupID(ctx context.Context, groupID string) ([]model.User, error) {
	keys, err := s.scanKeys(ctx, keyPermissionGroupUser+"*:"+groupID)
	if err != nil {
		return nil, err
	}
	suffix := ":" + groupID
	out := make([]model.User, 0, len(keys))
	for _, k := range keys {
		userID := strings.TrimSuffix(strings.TrimPrefix(k, keyPermissionGroupUser), suffix)
		u, err := s.GetUserByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if u != nil {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) ListUserGroupIDs(ctx context.Context, userID string) ([]string, error) {
	keys, err := s.scanKeys(ctx, keyPermissionGroupUser+userID+":*")
	if err != nil {
		return nil, err
	}
	prefix := keyPermissionGroupUser + userID + ":"
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k[len(prefix):])
	}
	return out, nil
}

func (s *Store) ListGroupPermsForUser(ctx context.Context, userID string) ([]string, error) {
	groupIDs, err := s.ListUserGroupIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(groupIDs))
	for _, gid := range groupIDs {
		g, err := s.GetPermissionGroup(ctx, gid)
		if err != nil {
			return nil, err
		}
		if g != nil {
			out = append(out, g.Perms)
		}
	}
	return out, nil
}

func (s *Store) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	var out []string
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, dbErr(err)
	}
	return out, nil
}
