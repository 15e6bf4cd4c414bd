// Package session bridges the control plane's own bearer tokens to the
// upstream master's per-session login. An AuthToken's ID doubles as the
// password presented back to the master on login, so a session carries
// both identities at once.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/logger"
	"github.com/resalt-bridge/resalt/internal/model"
	"github.com/resalt-bridge/resalt/internal/store"
	"github.com/resalt-bridge/resalt/internal/upstream"
)

// minTokenLength below which a presented bearer token is rejected outright,
// without even touching storage.
const minTokenLength = 20

// Bridge mints and validates local AuthTokens and keeps their upstream login
// fresh.
type Bridge struct {
	store    store.Store
	client   *upstream.Client
	lifespan time.Duration
}

// New builds a Bridge. lifespan bounds how long an AuthToken is honoured
// after issuance, independent of the upstream token's own expiry.
func New(s store.Store, client *upstream.Client, lifespan time.Duration) *Bridge {
	return &Bridge{store: s, client: client, lifespan: lifespan}
}

// generateTokenID mints an opaque bearer in the service's prefixed-uuid
// identifier format; at 41 characters it comfortably clears the minimum
// presented-token length.
func generateTokenID() string {
	return "auth_" + uuid.NewString()
}

// Mint creates a new AuthToken for userID and logs it in to the upstream
// master immediately, using the token's own ID as the login password.
func (b *Bridge) Mint(ctx context.Context, userID, username string) (*model.AuthToken, error) {
	id := generateTokenID()

	authToken := &model.AuthToken{
		ID:       id,
		UserID:   userID,
		IssuedAt: time.Now(),
	}
	if err := b.store.CreateAuthToken(ctx, authToken); err != nil {
		return nil, err
	}

	upstreamToken, err := b.loginUpstream(ctx, username, id)
	if err != nil {
		logger.Session().Warn().Err(err).Str("user", username).Msg("upstream login failed during mint")
		return authToken, nil
	}
	authToken.UpstreamToken = upstreamToken
	if err := b.store.UpdateAuthTokenUpstream(ctx, id, upstreamToken); err != nil {
		return nil, err
	}
	return authToken, nil
}

func (b *Bridge) loginUpstream(ctx context.Context, username, tokenID string) (*model.UpstreamToken, error) {
	tok, err := b.client.Login(ctx, username, tokenID)
	if err != nil {
		return nil, err
	}
	return &model.UpstreamToken{
		Token:  tok.Token,
		Start:  int64(tok.Start),
		Expire: int64(tok.Expire),
		User:   tok.User,
		EAuth:  tok.EAuth,
		Perms:  string(tok.Perms),
	}, nil
}

// Validate looks up token, rejecting it if too short, unknown, or past the
// session lifespan measured from issuance.
func (b *Bridge) Validate(ctx context.Context, tokenValue string) (*model.AuthToken, error) {
	if len(tokenValue) < minTokenLength {
		return nil, nil
	}
	authToken, err := b.store.GetAuthToken(ctx, tokenValue)
	if err != nil {
		return nil, apperr.DatabaseError(err)
	}
	if authToken == nil {
		return nil, nil
	}
	if time.Since(authToken.IssuedAt) > b.lifespan {
		return nil, nil
	}
	return authToken, nil
}

// RenewUpstream re-logs-in to the master for an existing AuthToken, the way
// a middleware refreshes a session whose upstream token has expired.
func (b *Bridge) RenewUpstream(ctx context.Context, username string, authToken *model.AuthToken) error {
	upstreamToken, err := b.loginUpstream(ctx, username, authToken.ID)
	if err != nil {
		return err
	}
	authToken.UpstreamToken = upstreamToken
	return b.store.UpdateAuthTokenUpstream(ctx, authToken.ID, upstreamToken)
}

// EnsureFresh renews the upstream login if it is missing or expired,
// returning the (possibly refreshed) AuthToken.
func (b *Bridge) EnsureFresh(ctx context.Context, username string, authToken *model.AuthToken) (*model.AuthToken, error) {
	now := time.Now()
	if authToken.UpstreamToken != nil && !authToken.UpstreamToken.Expired(now) {
		return authToken, nil
	}
	logger.Session().Warn().Str("user", username).Msg("upstream token expired, renewing")
	if err := b.RenewUpstream(ctx, username, authToken); err != nil {
		return authToken, err
	}
	return authToken, nil
}

// WithRetry runs fn once; if fn fails with an upstream Unauthorized error
// and the token has matured past the grace window, it renews the upstream
// login and retries fn exactly once more. An Unauthorized on a token still
// inside the grace window means the credential itself was rejected, which
// is an internal fault rather than a routine expiry.
func WithRetry[T any](ctx context.Context, b *Bridge, username string, authToken *model.AuthToken, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil {
		return result, nil
	}
	upstreamErr, ok := err.(*upstream.Error)
	if !ok || upstreamErr.Kind != upstream.ErrUnauthorized {
		return result, err
	}
	if authToken.UpstreamToken != nil && !authToken.UpstreamToken.Matured(time.Now()) {
		return result, apperr.InternalError("upstream rejected a freshly issued session token")
	}
	if renewErr := b.RenewUpstream(ctx, username, authToken); renewErr != nil {
		return result, err
	}
	return fn()
}
