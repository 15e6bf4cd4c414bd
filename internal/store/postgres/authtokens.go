package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/resalt-bridge/resalt/internal/model"
)

func (s *Store) CreateAuthToken(ctx context.Context, token *model.AuthToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_tokens (id, user_id, issued_at) VALUES ($1, $2, $3)`,
		token.ID, token.UserID, token.IssuedAt)
	return dbErr(err)
}

func (s *Store) GetAuthToken(ctx context.Context, id string) (*model.AuthToken, error) {
	var t model.AuthToken
	var upstreamToken, upstreamUser, upstreamEAuth, upstreamPerms sql.NullString
	var upstreamStart, upstreamExpire sql.NullInt64

	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, issued_at, upstream_token, upstream_start, upstream_expire, upstream_user, upstream_eauth, upstream_perms
		 FROM auth_tokens WHERE id = $1`, id)
	err := row.Scan(&t.ID, &t.UserID, &t.IssuedAt, &upstreamToken, &upstreamStart, &upstreamExpire, &upstreamUser, &upstreamEAuth, &upstreamPerms)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err)
	}
	if upstreamToken.Valid {
		t.UpstreamToken = &model.UpstreamToken{
			Token:  upstreamToken.String,
			Start:  upstreamStart.Int64,
			Expire: upstreamExpire.Int64,
			User:   upstreamUser.String,
			EAuth:  upstreamEAuth.String,
			Perms:  upstreamPerms.String,
		}
	}
	return &t, nil
}

func (s *Store) UpdateAuthTokenUpstream(ctx context.Context, id string, upstream *model.UpstreamToken) error {
	if upstream == nil {
		_, err := s.db.ExecContext(ctx,
			`UPDATE auth_tokens SET upstream_token = NULL, upstream_start = NULL, upstream_expire = NULL,
				upstream_user = NULL, upstream_eauth = NULL, upstream_perms = NULL WHERE id = $1`, id)
		return dbErr(err)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_tokens SET upstream_token = $1, upstream_start = $2, upstream_expire = $3, upstream_user = $4, upstream_eauth = $5, upstream_perms = $6
		 WHERE id = $7`,
		upstream.Token, upstream.Start, upstream.Expire, upstream.User, upstream.EAuth, nullOrEmptyJSON(upstream.Perms), id)
	return dbErr(err)
}

func (s *Store) DeleteAuthToken(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE id = $1`, id)
	return dbErr(err)
}

func (s *Store) DeleteExpiredAuthTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM auth_tokens WHERE upstream_expire IS NOT NULL AND to_timestamp(upstream_expire) < $1`, cutoff)
	if err != nil {
		return 0, dbErr(err)
	}
	n, err := res.RowsAffected()
	return n, dbErr(err)
}
