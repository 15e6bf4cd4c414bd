// Package memory is an in-process Store backend: a set of mutex-guarded
// maps with no persistence. It backs DATABASE_TYPE=files quick-start
// deployments and the rest of the module's unit tests.
package memory

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/filter"
	"github.com/resalt-bridge/resalt/internal/logger"
	"github.com/resalt-bridge/resalt/internal/model"
	"github.com/resalt-bridge/resalt/internal/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	users            map[string]*model.User
	usersByUsername  map[string]string // username -> id
	userGroups       map[string]map[string]bool
	authTokens       map[string]*model.AuthToken
	minions          map[string]*model.Minion
	events           []model.Event
	jobs             map[string]*model.Job // keyed by jid
	jobReturns       map[string][]model.JobReturn
	permissionGroups map[string]*model.PermissionGroup
	groupsByName     map[string]string
	presets          map[string]*model.MinionPreset
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:            map[string]*model.User{},
		usersByUsername:  map[string]string{},
		userGroups:       map[string]map[string]bool{},
		authTokens:       map[string]*model.AuthToken{},
		minions:          map[string]*model.Minion{},
		jobs:             map[string]*model.Job{},
		jobReturns:       map[string][]model.JobReturn{},
		permissionGroups: map[string]*model.PermissionGroup{},
		groupsByName:     map[string]string{},
		presets:          map[string]*model.MinionPreset{},
	}
}

// Close is a no-op; there is nothing to release.
func (s *Store) Close() error { return nil }

// --- users ---

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[user.Username]; exists {
		return apperr.New(apperr.CodeInvalidRequest, "username already taken")
	}
	cp := *user
	s.users[user.ID] = &cp
	s.usersByUsername[user.Username] = user.ID
	s.userGroups[user.ID] = map[string]bool{}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByUsername[username]
	if !ok {
		return nil, nil
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateUserPasswordHash(ctx context.Context, id string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperr.NotFound("user")
	}
	u.PasswordHash = &passwordHash
	return nil
}

func (s *Store) UpdateUserEmail(ctx context.Context, id string, email *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperr.NotFound("user")
	}
	u.Email = email
	return nil
}

func (s *Store) UpdateUserPerms(ctx context.Context, id string, perms string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperr.NotFound("user")
	}
	u.Perms = perms
	return nil
}

func (s *Store) UpdateUserLastLogin(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperr.NotFound("user")
	}
	u.LastLogin = &at
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	delete(s.usersByUsername, u.Username)
	delete(s.users, id)
	delete(s.userGroups, id)
	return nil
}

func (s *Store) AddUserToGroup(ctx context.Context, userID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.userGroups[userID]; !ok {
		s.userGroups[userID] = map[string]bool{}
	}
	s.userGroups[userID][groupID] = true
	return nil
}

func (s *Store) RemoveUserFromGroup(ctx context.Context, userID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userGroups[userID], groupID)
	return nil
}

func (s *Store) IsUserMemberOfGroup(ctx context.Context, userID, groupID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userGroups[userID][groupID], nil
}

func (s *Store) ListUsersByGroupID(ctx context.Context, groupID string) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.User, 0)
	for uid, groups := range s.userGroups {
		if groups[groupID] {
			if u, ok := s.users[uid]; ok {
				out = append(out, *u)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) ListUserGroupIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.userGroups[userID]))
	for gid := range s.userGroups[userID] {
		out = append(out, gid)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ListGroupPermsForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.userGroups[userID]))
	for gid := range s.userGroups[userID] {
		if g, ok := s.permissionGroups[gid]; ok {
			out = append(out, g.Perms)
		}
	}
	return out, nil
}

// --- auth tokens ---

func (s *Store) CreateAuthToken(ctx context.Context, token *model.AuthToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *token
	s.authTokens[token.ID] = &cp
	return nil
}

func (s *Store) GetAuthToken(ctx context.Context, id string) (*model.AuthToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.authTokens[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *Store) UpdateAuthTokenUpstream(ctx context.Context, id string, upstream *model.UpstreamToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.authTokens[id]
	if !ok {
		return apperr.NotFound("auth token")
	}
	t.UpstreamToken = upstream
	return nil
}

func (s *Store) DeleteAuthToken(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.authTokens, id)
	return nil
}

func (s *Store) DeleteExpiredAuthTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, t := range s.authTokens {
		if t.UpstreamToken != nil && time.Unix(t.UpstreamToken.Expire, 0).Before(cutoff) {
			delete(s.authTokens, id)
			count++
		}
	}
	return count, nil
}

// --- minions ---

func (s *Store) UpsertMinionSeen(ctx context.Context, id string, lastSeen time.Time, osType *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.minions[id]
	if !ok {
		m = &model.Minion{ID: id}
		s.minions[id] = m
	}
	m.LastSeen = lastSeen
	if osType != nil {
		m.OSType = osType
	}
	return nil
}

func (s *Store) GetMinion(ctx context.Context, id string) (*model.Minion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.minions[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *Store) ListMinions(ctx context.Context, filters []model.Filter, sortKey model.Sort, page model.Paginate) ([]model.Minion, error) {
	s.mu.RLock()
	all := make([]model.Minion, 0, len(s.minions))
	for _, m := range s.minions {
		all = append(all, *m)
	}
	s.mu.RUnlock()

	matched := filter.FilterMinions(all, filters)
	sortMinions(matched, sortKey)
	return paginate(matched, page), nil
}

func (s *Store) CountMinions(ctx context.Context, filters []model.Filter) (int64, error) {
	s.mu.RLock()
	all := make([]model.Minion, 0, len(s.minions))
	for _, m := range s.minions {
		all = append(all, *m)
	}
	s.mu.RUnlock()
	return int64(len(filter.FilterMinions(all, filters))), nil
}

func (s *Store) DeleteMinion(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.minions, id)
	return nil
}

func (s *Store) PruneMinions(ctx context.Context, knownIDs []string) error {
	known := make(map[string]bool, len(knownIDs))
	for _, id := range knownIDs {
		known[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.minions {
		if !known[id] {
			delete(s.minions, id)
		}
	}
	return nil
}

// guardedUpdate applies mutate only if observedAt is not older than *stamp,
// mirroring the strict out-of-order guard used by the postgres backend.
func guardedUpdate(stamp **time.Time, observedAt time.Time, mutate func()) {
	if *stamp != nil && observedAt.Before(**stamp) {
		return
	}
	mutate()
	t := observedAt
	*stamp = &t
}

func (s *Store) UpdateMinionGrains(ctx context.Context, id string, grains string, observedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.minionOrCreate(id)
	guardedUpdate(&m.LastUpdatedGrains, observedAt, func() { m.Grains = &grains })
	return nil
}

func (s *Store) UpdateMinionPillars(ctx context.Context, id string, pillars string, observedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.minionOrCreate(id)
	guardedUpdate(&m.LastUpdatedPillars, observedAt, func() { m.Pillars = &pillars })
	return nil
}

func (s *Store) UpdateMinionPkgs(ctx context.Context, id string, pkgs string, observedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.minionOrCreate(id)
	guardedUpdate(&m.LastUpdatedPkgs, observedAt, func() { m.Pkgs = &pkgs })
	return nil
}

func (s *Store) UpdateMinionConformity(ctx context.Context, id string, conformity string, success, incorrect, errorCount int32, observedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.minionOrCreate(id)
	guardedUpdate(&m.LastUpdatedConformity, observedAt, func() {
		m.Conformity = &conformity
		m.ConformitySuccess = &success
		m.ConformityIncorrect = &incorrect
		m.ConformityError = &errorCount
	})
	return nil
}

func (s *Store) minionOrCreate(id string) *model.Minion {
	m, ok := s.minions[id]
	if !ok {
		m = &model.Minion{ID: id}
		s.minions[id] = m
	}
	return m
}

func sortMinions(minions []model.Minion, key model.Sort) {
	less := func(i, j int) bool { return false }
	switch key {
	case model.SortMinionIDAsc, "":
		less = func(i, j int) bool { return minions[i].ID < minions[j].ID }
	case model.SortMinionIDDesc:
		less = func(i, j int) bool { return minions[i].ID > minions[j].ID }
	case model.SortMinionLastSeenAsc:
		less = func(i, j int) bool { return minions[i].LastSeen.Before(minions[j].LastSeen) }
	case model.SortMinionLastSeenDesc:
		less = func(i, j int) bool { return minions[i].LastSeen.After(minions[j].LastSeen) }
	case model.SortMinionOSTypeAsc:
		less = func(i, j int) bool { return strPtr(minions[i].OSType) < strPtr(minions[j].OSType) }
	case model.SortMinionOSTypeDesc:
		less = func(i, j int) bool { return strPtr(minions[i].OSType) > strPtr(minions[j].OSType) }
	case model.SortMinionConformitySuccessAsc:
		less = func(i, j int) bool { return i32OrZero(minions[i].ConformitySuccess) < i32OrZero(minions[j].ConformitySuccess) }
	case model.SortMinionConformitySuccessDesc:
		less = func(i, j int) bool { return i32OrZero(minions[i].ConformitySuccess) > i32OrZero(minions[j].ConformitySuccess) }
	case model.SortMinionConformityIncorrectAsc:
		less = func(i, j int) bool { return i32OrZero(minions[i].ConformityIncorrect) < i32OrZero(minions[j].ConformityIncorrect) }
	case model.SortMinionConformityIncorrectDesc:
		less = func(i, j int) bool { return i32OrZero(minions[i].ConformityIncorrect) > i32OrZero(minions[j].ConformityIncorrect) }
	case model.SortMinionConformityErrorAsc:
		less = func(i, j int) bool { return i32OrZero(minions[i].ConformityError) < i32OrZero(minions[j].ConformityError) }
	case model.SortMinionConformityErrorDesc:
		less = func(i, j int) bool { return i32OrZero(minions[i].ConformityError) > i32OrZero(minions[j].ConformityError) }
	}
	sort.SliceStable(minions, less)
}

// i32OrZero treats a missing count as zero for sorting.
func i32OrZero(p *int32) int32 {
	if p == nil {
		return 0
	}
	return *p
}

func strPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func paginate(minions []model.Minion, page model.Paginate) []model.Minion {
	if page.Limit <= 0 {
		if page.Offset <= 0 {
			return minions
		}
		if int(page.Offset) >= len(minions) {
			return []model.Minion{}
		}
		return minions[page.Offset:]
	}
	start := int(page.Offset)
	if start >= len(minions) {
		return []model.Minion{}
	}
	end := start + int(page.Limit)
	if end > len(minions) {
		end = len(minions)
	}
	return minions[start:end]
}

// --- events ---

func (s *Store) CreateEvent(ctx context.Context, event *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *Store) ListEvents(ctx context.Context, page model.Paginate) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Event, len(s.events))
	copy(out, s.events)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return paginateEvents(out, page), nil
}

func paginateEvents(events []model.Event, page model.Paginate) []model.Event {
	start := int(page.Offset)
	if start >= len(events) {
		return []model.Event{}
	}
	if page.Limit <= 0 {
		return events[start:]
	}
	end := start + int(page.Limit)
	if end > len(events) {
		end = len(events)
	}
	return events[start:end]
}

func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events)), nil
}

// --- jobs ---

func (s *Store) CreateJob(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.Jid] = &cp
	return nil
}

func (s *Store) GetJobByJid(ctx context.Context, jid string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jid]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *Store) ListJobs(ctx context.Context, filters []model.Filter, sortKey model.Sort, page model.Paginate) ([]model.Job, error) {
	s.mu.RLock()
	all := make([]model.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		all = append(all, *j)
	}
	s.mu.RUnlock()

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
	return paginateJobs(all, page), nil
}

func paginateJobs(jobs []model.Job, page model.Paginate) []model.Job {
	start := int(page.Offset)
	if start >= len(jobs) {
		return []model.Job{}
	}
	if page.Limit <= 0 {
		return jobs[start:]
	}
	end := start + int(page.Limit)
	if end > len(jobs) {
		end = len(jobs)
	}
	return jobs[start:end]
}

func (s *Store) CountJobs(ctx context.Context, filters []model.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.jobs)), nil
}

func (s *Store) CreateJobReturn(ctx context.Context, jobReturn *model.JobReturn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobReturns[jobReturn.Jid] = append(s.jobReturns[jobReturn.Jid], *jobReturn)
	return nil
}

func (s *Store) ListJobReturnsByJid(ctx context.Context, jid string) ([]model.JobReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.JobReturn, len(s.jobReturns[jid]))
	copy(out, s.jobReturns[jid])
	return out, nil
}

// --- permission groups ---

func (s *Store) CreatePermissionGroup(ctx context.Context, group *model.PermissionGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groupsByName[group.Name]; exists {
		return apperr.New(apperr.CodeInvalidRequest, "group name already taken")
	}
	cp := *group
	s.permissionGroups[group.ID] = &cp
	s.groupsByName[group.Name] = group.ID
	return nil
}

func (s *Store) GetPermissionGroup(ctx context.Context, id string) (*model.PermissionGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.permissionGroups[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (s *Store) GetPermissionGroupByName(ctx context.Context, name string) (*model.PermissionGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.groupsByName[name]
	if !ok {
		return nil, nil
	}
	cp := *s.permissionGroups[id]
	return &cp, nil
}

func (s *Store) ListPermissionGroups(ctx context.Context) ([]model.PermissionGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PermissionGroup, 0, len(s.permissionGroups))
	for _, g := range s.permissionGroups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdatePermissionGroupPerms(ctx context.Context, id string, perms string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.permissionGroups[id]
	if !ok {
		return apperr.NotFound("permission group")
	}
	g.Perms = perms
	return nil
}

func (s *Store) DeletePermissionGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.permissionGroups[id]
	if !ok {
		return nil
	}
	delete(s.groupsByName, g.Name)
	delete(s.permissionGroups, id)
	for uid := range s.userGroups {
		delete(s.userGroups[uid], id)
	}
	return nil
}

// --- minion presets ---

func (s *Store) CreateMinionPreset(ctx context.Context, preset *model.MinionPreset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *preset
	s.presets[preset.ID] = &cp
	return nil
}

func (s *Store) GetMinionPreset(ctx context.Context, id string) (*model.MinionPreset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListMinionPresets(ctx context.Context) ([]model.MinionPreset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.MinionPreset, 0, len(s.presets))
	for _, p := range s.presets {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdateMinionPreset(ctx context.Context, id, name, filterJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.presets[id]
	if !ok {
		return apperr.NotFound("minion preset")
	}
	p.Name = name
	p.Filter = filterJSON
	return nil
}

func (s *Store) DeleteMinionPreset(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presets, id)
	return nil
}

// Bootstrap creates the $superadmins group and an initial admin user the
// first time it runs against an empty store. The generated password is
// logged once at warn level and never stored in plaintext, following the
// same "print it once, never again" convention as the upstream admin
// bootstrap flow.
func (s *Store) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	_, hasAdmins := s.groupsByName[model.ReservedSuperadminsGroup]
	s.mu.Unlock()
	if hasAdmins {
		return nil
	}

	group := &model.PermissionGroup{
		ID:    "pg_" + uuid.NewString(),
		Name:  model.ReservedSuperadminsGroup,
		Perms: `[{"@resalt": ["admin.superadmin"]}]`,
	}
	if err := s.CreatePermissionGroup(ctx, group); err != nil {
		return err
	}

	s.mu.RLock()
	_, hasAdminUser := s.usersByUsername["admin"]
	s.mu.RUnlock()
	if hasAdminUser {
		return nil
	}

	password, err := generateBootstrapPassword()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash bootstrap admin password: %w", err)
	}
	hashStr := string(hash)

	admin := &model.User{
		ID:           "usr_" + uuid.NewString(),
		Username:     "admin",
		PasswordHash: &hashStr,
		Perms:        "[]",
	}
	if err := s.CreateUser(ctx, admin); err != nil {
		return err
	}
	if err := s.AddUserToGroup(ctx, admin.ID, group.ID); err != nil {
		return err
	}
	if err := store.RefreshUserPermissions(ctx, s, admin.ID); err != nil {
		return err
	}

	log := logger.Storage()
	log.Warn().Msg("════════════════════════════════════════════════")
	log.Warn().Msg("no admin user existed - one was just created")
	log.Warn().Str("username", "admin").Str("password", password).Msg("bootstrap admin credentials (shown once)")
	log.Warn().Msg("════════════════════════════════════════════════")
	return nil
}

const bootstrapPasswordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// generateBootstrapPassword returns a 15-character alphanumeric password.
func generateBootstrapPassword() (string, error) {
	raw := make([]byte, 15)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate bootstrap password: %w", err)
	}
	out := make([]byte, len(raw))
	for i, b := range raw {
		out[i] = bootstrapPasswordAlphabet[int(b)%len(bootstrapPasswordAlphabet)]
	}
	return string(out), nil
}

var _ store.Store = (*Store)(nil)

// jobUser treats a missing user as the empty string for sorting.
func jobUser(j model.Job) string {
	if j.User == nil {
		return ""
	}
	return *j.User
}
