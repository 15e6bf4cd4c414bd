package postgres

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"

	"github.com/resalt-bridge/resalt/internal/logger"
	"github.com/resalt-bridge/resalt/internal/model"
	"github.com/resalt-bridge/resalt/internal/store"
)

// Bootstrap ensures the $superadmins group and an admin user exist. The
// admin password follows the same priority order the upstream admin
// bootstrap flow uses: an operator-supplied ADMIN_PASSWORD environment
// variable first, otherwise a freshly generated password logged once.
func (s *Store) Bootstrap(ctx context.Context) error {
	group, err := s.GetPermissionGroupByName(ctx, model.ReservedSuperadminsGroup)
	if err != nil {
		return err
	}
	if group == nil {
		group = &model.PermissionGroup{
			ID:    "pg_" + uuid.NewString(),
			Name:  model.ReservedSuperadminsGroup,
			Perms: `[{"@resalt": ["admin.superadmin"]}]`,
		}
		if err := s.CreatePermissionGroup(ctx, group); err != nil {
			return err
		}
	}

	admin, err := s.GetUserByUsername(ctx, "admin")
	if err != nil {
		return err
	}
	if admin != nil {
		return nil
	}

	hashStr, password, err := adminPasswordHash()
	if err != nil {
		return err
	}

	admin = &model.User{
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
	if password != "" {
		log.Warn().Msg("════════════════════════════════════════════════")
		log.Warn().Msg("no admin user existed - one was just created")
		log.Warn().Str("username", "admin").Str("password", password).Msg("bootstrap admin credentials (shown once)")
		log.Warn().Msg("════════════════════════════════════════════════")
	} else {
		log.Info().Msg("admin user created using ADMIN_PASSWORD from environment")
	}
	return nil
}

// adminPasswordHash returns the bcrypt hash to store for the new admin user,
// and the plaintext password to log (empty if it came from the environment
// and should not be echoed back).
func adminPasswordHash() (hash string, plaintext string, err error) {
	if envPassword := os.Getenv("ADMIN_PASSWORD"); envPassword != "" {
		if len(envPassword) < 8 {
			return "", "", fmt.Errorf("ADMIN_PASSWORD must be at least 8 characters long")
		}
		h, err := bcrypt.GenerateFromPassword([]byte(envPassword), bcrypt.DefaultCost)
		if err != nil {
			return "", "", fmt.Errorf("failed to hash admin password: %w", err)
		}
		return string(h), "", nil
	}

	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	raw := make([]byte, 15)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate bootstrap password: %w", err)
	}
	buf := make([]byte, len(raw))
	for i, b := range raw {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	password := string(buf)
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash bootstrap admin password: %w", err)
	}
	return string(h), password, nil
}
