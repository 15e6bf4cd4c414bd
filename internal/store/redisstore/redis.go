// Package redisstore is the DATABASE_TYPE=redis Store backend: every
// entity is a JSON blob at a single key, named exactly as spec.md's
// key-value layout describes (user:<id>, authtoken:<id>, event:<id>,
// job:<jid>, job_return:<jid>:<id>, minion:<id>, permission_group:<id>,
// permission_group_user:<user>:<group>, minion_preset:<id>), with a
// parallel Redis Set per family tracking membership for list/count
// operations, the way the teacher's cache package tracks keys by pattern
// for DeletePattern but here the membership set is authoritative rather
// than a SCAN.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resalt-bridge/resalt/internal/apperr"
)

// Config holds connection parameters for the redis backend.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Store is a redis-backed store.Store implementation.
type Store struct {
	client *redis.Client
}

// New opens a connection to redis, pinging it before returning.
func New(cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:        25,
		MinIdleConns:    5,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Store{client: client}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.client.Close() }

func dbErr(err error) error {
	if err == nil || err == redis.Nil {
		return nil
	}
	return apperr.DatabaseError(err)
}

// Key family prefixes, matching spec.md's documented key-value layout.
const (
	keyUser                = "user:"
	keyUsersByName         = "users_by_username:"
	keyUsersSet            = "users"
	keyAuthToken           = "authtoken:"
	keyAuthTokensSet       = "authtokens"
	keyEvent               = "event:"
	keyEventsSet           = "events"
	keyJob                 = "job:"
	keyJobsSet             = "jobs"
	keyJobReturn           = "job_return:"
	keyPermissionGroup     = "permission_group:"
	keyGroupsByName        = "permission_groups_by_name:"
	keyPermissionGroupsSet = "permission_groups"
	keyPermissionGroupUser = "permission_group_user:"
	keyMinion              = "minion:"
	keyMinionsSet          = "minions"
	keyMinionPreset        = "minion_preset:"
	keyPresetsByName       = "minion_presets_by_name:"
	keyMinionPresetsSet    = "minion_presets"
)
