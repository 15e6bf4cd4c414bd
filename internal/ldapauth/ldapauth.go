// Package ldapauth authenticates users against a directory service. It is
// an authentication source only: a successful bind yields an opaque
// identity (username plus optional email), and the caller owns creating or
// updating the local user record. Directory users carry no local password
// hash.
package ldapauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/logger"
	"github.com/resalt-bridge/resalt/internal/store"
)

// Config holds the directory connection settings.
type Config struct {
	Enabled      bool
	URL          string // ldap:// or ldaps://
	BindDN       string // service account used to search
	BindPassword string
	BaseDN       string
}

// Identity is the opaque result of a successful directory login.
type Identity struct {
	Username string
	Email    *string
	DN       string
}

// Authenticator validates credentials against the configured directory.
type Authenticator struct {
	cfg Config
}

// New builds an Authenticator. A disabled config yields a valid
// Authenticator whose Enabled reports false; callers gate on that rather
// than on nil.
func New(cfg Config) *Authenticator {
	return &Authenticator{cfg: cfg}
}

// Enabled reports whether directory login is configured.
func (a *Authenticator) Enabled() bool { return a.cfg.Enabled }

func (a *Authenticator) dialAndBind() (*ldap.Conn, error) {
	conn, err := ldap.DialURL(a.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("ldap dial: %w", err)
	}
	if a.cfg.BindDN != "" {
		if err := conn.Bind(a.cfg.BindDN, a.cfg.BindPassword); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ldap service bind: %w", err)
		}
	}
	return conn, nil
}

func (a *Authenticator) searchUser(conn *ldap.Conn, username string) (*ldap.Entry, error) {
	req := ldap.NewSearchRequest(
		a.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
		fmt.Sprintf("(|(uid=%s)(sAMAccountName=%s))", ldap.EscapeFilter(username), ldap.EscapeFilter(username)),
		[]string{"dn", "uid", "mail"},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("ldap search: %w", err)
	}
	if len(res.Entries) == 0 {
		return nil, nil
	}
	return res.Entries[0], nil
}

// Authenticate binds as the service account, locates the user, and rebinds
// with the user's own credentials. Returns nil without error when the user
// does not exist or the password is wrong.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*Identity, error) {
	if !a.cfg.Enabled {
		return nil, nil
	}
	if password == "" {
		// An empty password would turn the user bind into an anonymous
		// bind, which most directories accept.
		return nil, nil
	}

	conn, err := a.dialAndBind()
	if err != nil {
		return nil, apperr.LdapError(err)
	}
	defer conn.Close()

	entry, err := a.searchUser(conn, username)
	if err != nil {
		return nil, apperr.LdapError(err)
	}
	if entry == nil {
		return nil, nil
	}

	if err := conn.Bind(entry.DN, password); err != nil {
		logger.Session().Debug().Str("user", username).Msg("ldap user bind rejected")
		return nil, nil
	}

	identity := &Identity{Username: strings.ToLower(username), DN: entry.DN}
	if mail := entry.GetAttributeValue("mail"); mail != "" {
		identity.Email = &mail
	}
	return identity, nil
}

// SyncUsers refreshes the email of every directory-backed local user (those
// without a password hash). Run periodically by the scheduler when
// directory login is enabled.
func (a *Authenticator) SyncUsers(ctx context.Context, s store.Store) error {
	if !a.cfg.Enabled {
		return nil
	}
	log := logger.Session()

	conn, err := a.dialAndBind()
	if err != nil {
		return apperr.LdapError(err)
	}
	defer conn.Close()

	users, err := s.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.PasswordHash != nil {
			continue
		}
		entry, err := a.searchUser(conn, u.Username)
		if err != nil {
			log.Warn().Err(err).Str("user", u.Username).Msg("ldap sync lookup failed")
			continue
		}
		if entry == nil {
			continue
		}
		email := entry.GetAttributeValue("mail")
		if email == "" || (u.Email != nil && *u.Email == email) {
			continue
		}
		if err := s.UpdateUserEmail(ctx, u.ID, &email); err != nil {
			return err
		}
		log.Info().Str("user", u.Username).Msg("synced email from directory")
	}
	return nil
}
