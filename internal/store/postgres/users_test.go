package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resalt-bridge/resalt/internal/model"
)

var jobFixture = model.Job{
	ID:        "job_1",
	Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	Jid:       "20240101",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{db: db}, mock
}

func userColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "username", "password_hash", "perms", "email", "last_login"})
}

func TestGetUserByUsername(t *testing.T) {
	s, mock := newMockStore(t)

	hash := "bcrypt-hash"
	mock.ExpectQuery("SELECT id, username, password_hash, perms, email, last_login FROM users WHERE username").
		WithArgs("alice").
		WillReturnRows(userColumns().AddRow("usr_1", "alice", &hash, "[]", nil, nil))

	user, err := s.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "usr_1", user.ID)
	require.NotNil(t, user.PasswordHash)
	assert.Equal(t, hash, *user.PasswordHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByUsernameNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, username, password_hash, perms, email, last_login FROM users WHERE username").
		WithArgs("ghost").
		WillReturnRows(userColumns())

	user, err := s.GetUserByUsername(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, user, "missing rows map to nil, not an error")
}

func TestIsUserMemberOfGroup(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT 1 FROM user_permission_groups").
		WithArgs("usr_1", "pg_1").
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	member, err := s.IsUserMemberOfGroup(context.Background(), "usr_1", "pg_1")
	require.NoError(t, err)
	assert.True(t, member)

	mock.ExpectQuery("SELECT 1 FROM user_permission_groups").
		WithArgs("usr_1", "pg_2").
		WillReturnRows(sqlmock.NewRows([]string{"one"}))
	member, err = s.IsUserMemberOfGroup(context.Background(), "usr_1", "pg_2")
	require.NoError(t, err)
	assert.False(t, member)
}

func TestCreateJobUpsertsOnJid(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs("job_1", sqlmock.AnyArg(), "20240101", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CreateJob(context.Background(), &jobFixture)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMinionGrainsCarriesStampGuard(t *testing.T) {
	s, mock := newMockStore(t)
	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO minions").
		WithArgs("m1", stamp, `{"os":"Linux"}`, stamp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.UpdateMinionGrains(context.Background(), "m1", `{"os":"Linux"}`, stamp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpiredAuthTokens(t *testing.T) {
	s, mock := newMockStore(t)
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("DELETE FROM auth_tokens").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.DeleteExpiredAuthTokens(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
