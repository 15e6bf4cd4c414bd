// Package model defines the core data structures persisted and exchanged by
// the control plane: users, permission groups, auth tokens, minions, events,
// jobs, job returns, and minion presets.
//
// These types are used for:
//   - Storage persistence (via the store package's backends)
//   - JSON serialization on the HTTP surface
//   - Permission and filter evaluation
//
// Database-facing field names use snake_case in the postgres backend and
// camelCase over JSON, mirroring the convention documented in the upstream
// wire protocol (spec section 6).
package model

import "time"

// User is a local account. Users created via an external identity source
// (e.g. LDAP) have no PasswordHash.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash *string    `json:"-"`
	Perms        string     `json:"perms"` // serialised JSON rule array, see permission package
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	Email        *string    `json:"email,omitempty"`
}

// UpstreamToken is the bearer token issued by the master for a login.
type UpstreamToken struct {
	Token  string `json:"token"`
	Start  int64  `json:"start"`  // seconds epoch
	Expire int64  `json:"expire"` // seconds epoch
	User   string `json:"user"`
	EAuth  string `json:"eauth"`
	Perms  string `json:"perms"` // serialised JSON rule array
}

// Expired reports whether the token should be treated as expired, with a
// 5-second safety margin so a request in flight doesn't race the master's
// own expiry check.
func (t UpstreamToken) Expired(now time.Time) bool {
	return now.Unix() > t.Expire-5
}

// Matured reports whether enough time has passed since the token was issued
// that an Unauthorized response from the master should be treated as a
// genuine expiry rather than a credential that was rejected outright.
func (t UpstreamToken) Matured(now time.Time) bool {
	return now.Unix() > t.Start+600
}

// AuthToken is the local bearer token handed to API clients. The token ID
// itself doubles as the "password" presented back to the upstream master
// during the session's login (see spec section 4.F) so it is stored, not
// hashed.
type AuthToken struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	IssuedAt      time.Time      `json:"issuedAt"`
	UpstreamToken *UpstreamToken `json:"-"`
}

// PermissionGroup is a named bundle of permission rules. Users inherit the
// concatenation of every group they belong to.
type PermissionGroup struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Perms string `json:"perms"` // serialised JSON rule array
}

// ReservedSuperadminsGroup is the name of the group created at bootstrap
// and granted unconditional access via the "admin.superadmin" permission.
const ReservedSuperadminsGroup = "$superadmins"

// Minion is a managed host and its materialised derived state.
type Minion struct {
	ID         string     `json:"id"`
	LastSeen   time.Time  `json:"lastSeen"`
	OSType     *string    `json:"osType,omitempty"`
	Grains     *string    `json:"grains,omitempty"`
	Pillars    *string    `json:"pillars,omitempty"`
	Pkgs       *string    `json:"pkgs,omitempty"`
	Conformity *string    `json:"conformity,omitempty"`

	ConformitySuccess   *int32 `json:"conformitySuccess,omitempty"`
	ConformityIncorrect *int32 `json:"conformityIncorrect,omitempty"`
	ConformityError     *int32 `json:"conformityError,omitempty"`

	LastUpdatedGrains     *time.Time `json:"lastUpdatedGrains,omitempty"`
	LastUpdatedPillars    *time.Time `json:"lastUpdatedPillars,omitempty"`
	LastUpdatedPkgs       *time.Time `json:"lastUpdatedPkgs,omitempty"`
	LastUpdatedConformity *time.Time `json:"lastUpdatedConformity,omitempty"`
}

// Event is an append-only record of a raw upstream SSE event.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Tag       string    `json:"tag"`
	Data      string    `json:"data"`
}

// Job is a master-assigned job, keyed on its JID.
type Job struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Jid       string    `json:"jid"`
	User      *string   `json:"user,omitempty"`
	EventID   *string   `json:"eventId,omitempty"`
}

// JobReturn is one minion's response to a job.
type JobReturn struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Jid       string    `json:"jid"`
	JobID     string    `json:"jobId"`
	EventID   string    `json:"eventId"`
	MinionID  string    `json:"minionId"`
}

// MinionPreset is a saved named filter list.
type MinionPreset struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Filter string `json:"filter"` // serialised JSON []Filter
}
