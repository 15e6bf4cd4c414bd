// Package store defines the persistence contract for the control plane.
// Concrete backends (postgres, memory, redisstore) implement Store; callers
// throughout the rest of the module depend only on this interface, never on
// a specific backend, the way the rest of the module depends on database/sql
// rather than a specific driver.
package store

import (
	"context"
	"time"

	"github.com/resalt-bridge/resalt/internal/model"
	"github.com/resalt-bridge/resalt/internal/permission"
)

// UserStore manages local accounts and their group membership.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUserPasswordHash(ctx context.Context, id string, passwordHash string) error
	UpdateUserEmail(ctx context.Context, id string, email *string) error
	UpdateUserPerms(ctx context.Context, id string, perms string) error
	UpdateUserLastLogin(ctx context.Context, id string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error

	AddUserToGroup(ctx context.Context, userID, groupID string) error
	RemoveUserFromGroup(ctx context.Context, userID, groupID string) error
	IsUserMemberOfGroup(ctx context.Context, userID, groupID string) (bool, error)
	ListUserGroupIDs(ctx context.Context, userID string) ([]string, error)
	ListUsersByGroupID(ctx context.Context, groupID string) ([]model.User, error)
	ListGroupPermsForUser(ctx context.Context, userID string) ([]string, error)
}

// AuthTokenStore manages locally issued bearer tokens, each carrying the
// upstream master login it is bridged to.
type AuthTokenStore interface {
	CreateAuthToken(ctx context.Context, token *model.AuthToken) error
	GetAuthToken(ctx context.Context, id string) (*model.AuthToken, error)
	UpdateAuthTokenUpstream(ctx context.Context, id string, upstream *model.UpstreamToken) error
	DeleteAuthToken(ctx context.Context, id string) error
	// DeleteExpiredAuthTokens removes tokens whose upstream credential expired
	// before cutoff, returning the count removed.
	DeleteExpiredAuthTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// MinionStore manages minions and their materialised per-family state.
type MinionStore interface {
	UpsertMinionSeen(ctx context.Context, id string, lastSeen time.Time, osType *string) error
	GetMinion(ctx context.Context, id string) (*model.Minion, error)
	ListMinions(ctx context.Context, filters []model.Filter, sort model.Sort, page model.Paginate) ([]model.Minion, error)
	CountMinions(ctx context.Context, filters []model.Filter) (int64, error)
	DeleteMinion(ctx context.Context, id string) error
	// PruneMinions deletes every minion whose id is not in knownIDs,
	// reconciling the materialised view against the master's key list.
	PruneMinions(ctx context.Context, knownIDs []string) error

	// UpdateMinionGrains applies the update only if observedAt is not older
	// than the minion's current last-updated-grains stamp (or that stamp is
	// unset), guarding against out-of-order upstream events.
	UpdateMinionGrains(ctx context.Context, id string, grains string, observedAt time.Time) error
	UpdateMinionPillars(ctx context.Context, id string, pillars string, observedAt time.Time) error
	UpdateMinionPkgs(ctx context.Context, id string, pkgs string, observedAt time.Time) error
	UpdateMinionConformity(ctx context.Context, id string, conformity string, success, incorrect, errorCount int32, observedAt time.Time) error
}

// EventStore is the append-only log of raw upstream events.
type EventStore interface {
	CreateEvent(ctx context.Context, event *model.Event) error
	ListEvents(ctx context.Context, page model.Paginate) ([]model.Event, error)
	CountEvents(ctx context.Context) (int64, error)
}

// JobStore manages jobs and the per-minion returns they accumulate.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJobByJid(ctx context.Context, jid string) (*model.Job, error)
	ListJobs(ctx context.Context, filters []model.Filter, sort model.Sort, page model.Paginate) ([]model.Job, error)
	CountJobs(ctx context.Context, filters []model.Filter) (int64, error)

	CreateJobReturn(ctx context.Context, jobReturn *model.JobReturn) error
	ListJobReturnsByJid(ctx context.Context, jid string) ([]model.JobReturn, error)
}

// PermissionGroupStore manages named permission groups.
type PermissionGroupStore interface {
	CreatePermissionGroup(ctx context.Context, group *model.PermissionGroup) error
	GetPermissionGroup(ctx context.Context, id string) (*model.PermissionGroup, error)
	GetPermissionGroupByName(ctx context.Context, name string) (*model.PermissionGroup, error)
	ListPermissionGroups(ctx context.Context) ([]model.PermissionGroup, error)
	UpdatePermissionGroupPerms(ctx context.Context, id string, perms string) error
	DeletePermissionGroup(ctx context.Context, id string) error
}

// MinionPresetStore manages saved named filter lists.
type MinionPresetStore interface {
	CreateMinionPreset(ctx context.Context, preset *model.MinionPreset) error
	GetMinionPreset(ctx context.Context, id string) (*model.MinionPreset, error)
	ListMinionPresets(ctx context.Context) ([]model.MinionPreset, error)
	UpdateMinionPreset(ctx context.Context, id, name, filter string) error
	DeleteMinionPreset(ctx context.Context, id string) error
}

// Store is the full persistence contract. Every backend must satisfy all
// eight families plus lifecycle management.
type Store interface {
	UserStore
	AuthTokenStore
	MinionStore
	EventStore
	JobStore
	PermissionGroupStore
	MinionPresetStore

	// Bootstrap ensures the $superadmins group and an initial admin user
	// exist, creating them (and logging the generated password once) the
	// first time it runs against an empty store.
	Bootstrap(ctx context.Context) error

	// Close releases any underlying connection or file handles.
	Close() error
}

// RefreshUserPermissions recomputes and persists a user's effective
// permission document as the concatenation of every group they belong to.
// Called after group membership or group permission changes.
func RefreshUserPermissions(ctx context.Context, s Store, userID string) error {
	groupPerms, err := s.ListGroupPermsForUser(ctx, userID)
	if err != nil {
		return err
	}
	combined := permission.ConcatGroupPerms(groupPerms)
	return s.UpdateUserPerms(ctx, userID, combined)
}
