package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resalt-bridge/resalt/internal/model"
	"github.com/resalt-bridge/resalt/internal/permission"
)

func TestBootstrapCreatesAdminAndSuperadmins(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Bootstrap(ctx))

	admin, err := s.GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	require.NotNil(t, admin)
	require.NotNil(t, admin.PasswordHash)

	group, err := s.GetPermissionGroupByName(ctx, model.ReservedSuperadminsGroup)
	require.NoError(t, err)
	require.NotNil(t, group)

	member, err := s.IsUserMemberOfGroup(ctx, admin.ID, group.ID)
	require.NoError(t, err)
	assert.True(t, member)

	// The admin's effective perms grant everything through the superadmin
	// shortcut.
	assert.True(t, permission.HasResaltPermission(json.RawMessage(admin.Perms), permission.SaltkeyDelete))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1, "exactly one user after bootstrap")
}

func TestBootstrapIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Bootstrap(ctx))
	require.NoError(t, s.Bootstrap(ctx))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	groups, err := s.ListPermissionGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestGenerateBootstrapPasswordShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		pw, err := generateBootstrapPassword()
		require.NoError(t, err)
		assert.Len(t, pw, 15)
		for _, r := range pw {
			assert.True(t, (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'), "alphanumeric only: %q", pw)
		}
		assert.False(t, seen[pw], "passwords repeat")
		seen[pw] = true
	}
}

func TestGuardedMinionUpserts(t *testing.T) {
	s := New()
	ctx := context.Background()

	newer := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpdateMinionGrains(ctx, "m1", `{"v":"new"}`, newer))
	require.NoError(t, s.UpdateMinionGrains(ctx, "m1", `{"v":"stale"}`, older))

	minion, err := s.GetMinion(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, minion.Grains)
	assert.Contains(t, *minion.Grains, "new")
	assert.True(t, minion.LastUpdatedGrains.Equal(newer))

	// An equal stamp is applied (last writer wins on ties).
	require.NoError(t, s.UpdateMinionGrains(ctx, "m1", `{"v":"tie"}`, newer))
	minion, err = s.GetMinion(ctx, "m1")
	require.NoError(t, err)
	assert.Contains(t, *minion.Grains, "tie")
}

func TestMaterialisedFieldStampInvariant(t *testing.T) {
	s := New()
	ctx := context.Background()
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpdateMinionConformity(ctx, "m2", `{}`, 3, 2, 1, stamp))

	minion, err := s.GetMinion(ctx, "m2")
	require.NoError(t, err)
	require.NotNil(t, minion.Conformity)
	require.NotNil(t, minion.LastUpdatedConformity, "populated field implies populated stamp")
	assert.Nil(t, minion.Grains)
	assert.Nil(t, minion.LastUpdatedGrains, "untouched field implies nil stamp")
}

func TestPruneMinions(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"keep-1", "keep-2", "drop-1"} {
		require.NoError(t, s.UpsertMinionSeen(ctx, id, now, nil))
	}
	require.NoError(t, s.PruneMinions(ctx, []string{"keep-1", "keep-2"}))

	minions, err := s.ListMinions(ctx, nil, model.Sort(""), model.Paginate{})
	require.NoError(t, err)
	require.Len(t, minions, 2)
	assert.Equal(t, "keep-1", minions[0].ID)
	assert.Equal(t, "keep-2", minions[1].ID)
}

func TestListMinionsSortAndPaginate(t *testing.T) {
	s := New()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.UpsertMinionSeen(ctx, id, base.Add(time.Duration(i)*time.Hour), nil))
	}

	byID, err := s.ListMinions(ctx, nil, model.SortMinionIDAsc, model.Paginate{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, minionIDs(byID))

	bySeen, err := s.ListMinions(ctx, nil, model.SortMinionLastSeenDesc, model.Paginate{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, minionIDs(bySeen))

	page, err := s.ListMinions(ctx, nil, model.SortMinionIDAsc, model.Paginate{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, minionIDs(page))
}

func minionIDs(minions []model.Minion) []string {
	out := make([]string, len(minions))
	for i, m := range minions {
		out[i] = m.ID
	}
	return out
}

func TestRefreshUserPermissionsAcrossGroups(t *testing.T) {
	s := New()
	ctx := context.Background()

	user := &model.User{ID: "usr_1", Username: "alice", Perms: "[]"}
	require.NoError(t, s.CreateUser(ctx, user))

	g1 := &model.PermissionGroup{ID: "pg_1", Name: "ops", Perms: `[{"@resalt": ["minion.list"]}]`}
	g2 := &model.PermissionGroup{ID: "pg_2", Name: "audit", Perms: `[{"@resalt": ["event.list"]}]`}
	require.NoError(t, s.CreatePermissionGroup(ctx, g1))
	require.NoError(t, s.CreatePermissionGroup(ctx, g2))
	require.NoError(t, s.AddUserToGroup(ctx, user.ID, g1.ID))
	require.NoError(t, s.AddUserToGroup(ctx, user.ID, g2.ID))

	perms, err := s.ListGroupPermsForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, perms, 2)

	members, err := s.ListUsersByGroupID(ctx, g1.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].Username)
}
