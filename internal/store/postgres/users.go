package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/model"
)

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	perms := nullOrEmptyJSON(user.Perms)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, perms, email, last_login) VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Username, user.PasswordHash, perms, user.Email, user.LastLogin)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.CodeInvalidRequest, "username already taken")
		}
		return dbErr(err)
	}
	return nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Perms, &u.Email, &u.LastLogin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err)
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, perms, email, last_login FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, perms, email, last_login FROM users WHERE username = $1`, username)
	return scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, password_hash, perms, email, last_login FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Perms, &u.Email, &u.LastLogin); err != nil {
			return nil, dbErr(err)
		}
		out = append(out, u)
	}
	return out, dbErr(rows.Err())
}

func (s *Store) UpdateUserPasswordHash(ctx context.Context, id string, passwordHash string) error {
	return s.mustAffectUser(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, id)
}

func (s *Store) UpdateUserEmail(ctx context.Context, id string, email *string) error {
	return s.mustAffectUser(ctx, `UPDATE users SET email = $1 WHERE id = $2`, email, id)
}

func (s *Store) UpdateUserPerms(ctx context.Context, id string, perms string) error {
	return s.mustAffectUser(ctx, `UPDATE users SET perms = $1 WHERE id = $2`, nullOrEmptyJSON(perms), id)
}

func (s *Store) UpdateUserLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.mustAffectUser(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, id)
}

func (s *Store) mustAffectUser(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return dbErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr(err)
	}
	if n == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return dbErr(err)
}

func (s *Store) AddUserToGroup(ctx context.Context, userID, groupID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_permission_groups (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, groupID)
	return dbErr(err)
}

func (s *Store) RemoveUserFromGroup(ctx context.Context, userID, groupID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_permission_groups WHERE user_id = $1 AND group_id = $2`, userID, groupID)
	return dbErr(err)
}

func (s *Store) IsUserMemberOfGroup(ctx context.Context, userID, groupID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM user_permission_groups WHERE user_id = $1 AND group_id = $2`, userID, groupID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, dbErr(err)
	}
	return true, nil
}

func (s *Store) ListUsersByGroupID(ctx context.Context, groupID string) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.password_hash, u.perms, u.email, u.last_login
		 FROM users u JOIN user_permission_groups upg ON upg.user_id = u.id
		 WHERE upg.group_id = $1 ORDER BY u.username ASC`, groupID)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Perms, &u.Email, &u.LastLogin); err != nil {
			return nil, dbErr(err)
		}
		out = append(out, u)
	}
	return out, dbErr(rows.Err())
}

func (s *Store) ListUserGroupIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id FROM user_permission_groups WHERE user_id = $1 ORDER BY group_id ASC`, userID)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var gid string
		if err := rows.Scan(&gid); err != nil {
			return nil, dbErr(err)
		}
		out = append(out, gid)
	}
	return out, dbErr(rows.Err())
}

func (s *Store) ListGroupPermsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pg.perms FROM permission_groups pg
		 JOIN user_permission_groups upg ON upg.group_id = pg.id
		 WHERE upg.user_id = $1`, userID)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var perms string
		if err := rows.Scan(&perms); err != nil {
			return nil, dbErr(err)
		}
		out = append(out, perms)
	}
	return out, dbErr(rows.Err())
}

// --- permission groups ---

func (s *Store) CreatePermissionGroup(ctx context.Context, group *model.PermissionGroup) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO permission_groups (id, name, perms) VALUES ($1, $2, $3)`,
		group.ID, group.Name, nullOrEmptyJSON(group.Perms))
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.CodeInvalidRequest, "group name already taken")
		}
		return dbErr(err)
	}
	return nil
}

func (s *Store) GetPermissionGroup(ctx context.Context, id string) (*model.PermissionGroup, error) {
	return scanGroup(s.db.QueryRowContext(ctx, `SELECT id, name, perms FROM permission_groups WHERE id = $1`, id))
}

func (s *Store) GetPermissionGroupByName(ctx context.Context, name string) (*model.PermissionGroup, error) {
	return scanGroup(s.db.QueryRowContext(ctx, `SELECT id, name, perms FROM permission_groups WHERE name = $1`, name))
}

func scanGroup(row *sql.Row) (*model.PermissionGroup, error) {
	var g model.PermissionGroup
	err := row.Scan(&g.ID, &g.Name, &g.Perms)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err)
	}
	return &g, nil
}

func (s *Store) ListPermissionGroups(ctx context.Context) ([]model.PermissionGroup, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, perms FROM permission_groups ORDER BY name ASC`)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var out []model.PermissionGroup
	for rows.Next() {
		var g model.PermissionGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Perms); err != nil {
			return nil, dbErr(err)
		}
		out = append(out, g)
	}
	return out, dbErr(rows.Err())
}

func (s *Store) UpdatePermissionGroupPerms(ctx context.Context, id string, perms string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE permission_groups SET perms = $1 WHERE id = $2`, nullOrEmptyJSON(perms), id)
	if err != nil {
		return dbErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr(err)
	}
	if n == 0 {
		return apperr.NotFound("permission group")
	}
	return nil
}

func (s *Store) DeletePermissionGroup(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM permission_groups WHERE id = $1`, id)
	return dbErr(err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
