// Package postgres is the production Store backend: database/sql over
// lib/pq, one table per model family, JSON columns for the free-form
// documents (grains, pillars, pkgs, conformity, permission rules), and the
// same strict out-of-order-timestamp guard the memory backend uses,
// enforced here via a WHERE clause instead of an in-process comparison.
package postgres

import (
	"database/sql"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/logger"
	"github.com/resalt-bridge/resalt/internal/store"
)

// Config holds the connection parameters, validated before use to keep
// unsanitized operator input out of the DSN string.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Store is a postgres-backed store.Store implementation.
type Store struct {
	db *sql.DB
}

var (
	hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-\.]{0,253}[a-zA-Z0-9])?$`)
	identRegex    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

func validateConfig(cfg Config) error {
	if cfg.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if net.ParseIP(cfg.Host) == nil && !hostnameRegex.MatchString(cfg.Host) {
		return fmt.Errorf("invalid database host: %s", cfg.Host)
	}
	if cfg.Port == "" {
		return fmt.Errorf("database port cannot be empty")
	}
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid database port: %s", cfg.Port)
	}
	if cfg.User == "" || !identRegex.MatchString(cfg.User) {
		return fmt.Errorf("invalid database user: %s", cfg.User)
	}
	if cfg.DBName == "" || !identRegex.MatchString(cfg.DBName) {
		return fmt.Errorf("invalid database name: %s", cfg.DBName)
	}
	validModes := map[string]bool{"disable": true, "allow": true, "prefer": true, "require": true, "verify-ca": true, "verify-full": true}
	if cfg.SSLMode != "" && !validModes[cfg.SSLMode] {
		return fmt.Errorf("invalid SSL mode: %s", cfg.SSLMode)
	}
	return nil
}

// New opens a connection pool to postgres, validating cfg first and running
// migrations before returning.
func New(cfg Config) (*Store, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.SSLMode == "disable" {
		logger.Storage().Warn().Msg("database SSL is disabled, set DB_SSL_MODE=require for production")
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(255) PRIMARY KEY,
			username VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255),
			perms JSONB NOT NULL DEFAULT '[]',
			email VARCHAR(255),
			last_login TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS permission_groups (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) UNIQUE NOT NULL,
			perms JSONB NOT NULL DEFAULT '[]'
		)`,
		`CREATE TABLE IF NOT EXISTS user_permission_groups (
			user_id VARCHAR(255) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			group_id VARCHAR(255) NOT NULL REFERENCES permission_groups(id) ON DELETE CASCADE,
			PRIMARY KEY (user_id, group_id)
		)`,
		`CREATE TABLE IF NOT EXISTS auth_tokens (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			issued_at TIMESTAMPTZ NOT NULL,
			upstream_token TEXT,
			upstream_start BIGINT,
			upstream_expire BIGINT,
			upstream_user VARCHAR(255),
			upstream_eauth VARCHAR(255),
			upstream_perms JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_auth_tokens_upstream_expire ON auth_tokens(upstream_expire)`,
		`CREATE TABLE IF NOT EXISTS minions (
			id VARCHAR(255) PRIMARY KEY,
			last_seen TIMESTAMPTZ NOT NULL,
			os_type VARCHAR(255),
			grains JSONB,
			pillars JSONB,
			pkgs JSONB,
			conformity JSONB,
			conformity_success INT,
			conformity_incorrect INT,
			conformity_error INT,
			last_updated_grains TIMESTAMPTZ,
			last_updated_pillars TIMESTAMPTZ,
			last_updated_pkgs TIMESTAMPTZ,
			last_updated_conformity TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_minions_last_seen ON minions(last_seen)`,
		`CREATE INDEX IF NOT EXISTS idx_minions_os_type ON minions(os_type)`,
		`CREATE TABLE IF NOT EXISTS events (
			id VARCHAR(255) PRIMARY KEY,
			"timestamp" TIMESTAMPTZ NOT NULL,
			tag VARCHAR(255) NOT NULL,
			data JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events("timestamp")`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id VARCHAR(255) PRIMARY KEY,
			"timestamp" TIMESTAMPTZ NOT NULL,
			jid VARCHAR(255) UNIQUE NOT NULL,
			"user" VARCHAR(255),
			event_id VARCHAR(255) REFERENCES events(id) ON DELETE SET NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_timestamp ON jobs("timestamp")`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_jid ON jobs(jid)`,
		`CREATE TABLE IF NOT EXISTS job_returns (
			id VARCHAR(255) PRIMARY KEY,
			"timestamp" TIMESTAMPTZ NOT NULL,
			jid VARCHAR(255) NOT NULL,
			job_id VARCHAR(255) NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			event_id VARCHAR(255) NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			minion_id VARCHAR(255) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_returns_jid ON job_returns(jid)`,
		`CREATE TABLE IF NOT EXISTS minion_presets (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) UNIQUE NOT NULL,
			filter JSONB NOT NULL DEFAULT '[]'
		)`,
	}
	for i, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}

func dbErr(err error) error {
	if err == nil {
		return nil
	}
	return apperr.DatabaseError(err)
}

func nullOrEmptyJSON(s string) string {
	if strings.TrimSpace(s) == "" {
		return "[]"
	}
	return s
}

var _ store.Store = (*Store)(nil)
