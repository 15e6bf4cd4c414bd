// Package config loads the control plane's configuration from environment
// variables, grouped into one Config struct the way the teacher's
// cmd/main.go gathers its getEnv/getEnvInt calls before wiring components.
package config

import (
	"os"
	"strconv"
)

// Config holds every environment-driven setting enumerated by the external
// interfaces design.
type Config struct {
	SaltAPIURL                string
	SaltAPITLSSkipVerify      bool
	SaltAPISystemServiceToken string

	AuthSessionLifespanSeconds int64
	AuthLdapEnabled            bool
	AuthLdapURL                string
	AuthLdapBindDN             string
	AuthLdapBindPassword       string
	AuthLdapBaseDN             string

	HTTPPort                 string
	HTTPFrontendProxyEnabled bool
	HTTPFrontendProxyTarget  string
	SubPath                  string

	DatabaseType string // files | redis | mysql | postgres

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	LogLevel  string
	LogPretty bool
}

// Load reads Config from the process environment, applying the defaults
// documented alongside each variable in the external interfaces design.
func Load() Config {
	return Config{
		SaltAPIURL:                getEnv("SALT_API_URL", "https://localhost:8080"),
		SaltAPITLSSkipVerify:      getEnvBool("SALT_API_TLS_SKIPVERIFY", false),
		SaltAPISystemServiceToken: getEnv("SALT_API_SYSTEM_SERVICE_TOKEN", ""),

		AuthSessionLifespanSeconds: getEnvInt64("AUTH_SESSION_LIFESPAN", 3600),
		AuthLdapEnabled:            getEnvBool("AUTH_LDAP_ENABLED", false),
		AuthLdapURL:                getEnv("AUTH_LDAP_URL", ""),
		AuthLdapBindDN:             getEnv("AUTH_LDAP_BIND_DN", ""),
		AuthLdapBindPassword:       getEnv("AUTH_LDAP_BIND_PASSWORD", ""),
		AuthLdapBaseDN:             getEnv("AUTH_LDAP_BASE_DN", ""),

		HTTPPort:                 getEnv("HTTP_PORT", "8000"),
		HTTPFrontendProxyEnabled: getEnvBool("HTTP_FRONTEND_PROXY_ENABLED", false),
		HTTPFrontendProxyTarget:  getEnv("HTTP_FRONTEND_PROXY_TARGET", ""),
		SubPath:                  getEnv("SUB_PATH", ""),

		DatabaseType: getEnv("DATABASE_TYPE", "files"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "resalt"),
		DBPassword: getEnv("DB_PASSWORD", "resalt"),
		DBName:     getEnv("DB_NAME", "resalt"),
		DBSSLMode:  getEnv("DB_SSL_MODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
