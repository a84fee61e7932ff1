package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dmitrijs2005/gatekeeper/internal/flagx"
	"github.com/joho/godotenv"
)

// EnvConfig lists the environment variables the server understands.
// Unset variables keep whatever the defaults or JSON file provided.
type EnvConfig struct {
	EndpointAddrGRPC        string        `env:"GATEKEEPER_GRPC_ADDR"`
	DatabaseDSN             string        `env:"GATEKEEPER_DATABASE_DSN"`
	SecretKey               string        `env:"GATEKEEPER_SECRET_KEY"`
	TokenValidityDuration   time.Duration `env:"GATEKEEPER_TOKEN_VALIDITY"`
	SessionValidityDuration time.Duration `env:"GATEKEEPER_SESSION_VALIDITY"`
	TokenLeeway             time.Duration `env:"GATEKEEPER_TOKEN_LEEWAY"`
	BcryptCost              int           `env:"GATEKEEPER_BCRYPT_COST"`
	StatementTimeout        time.Duration `env:"GATEKEEPER_STATEMENT_TIMEOUT"`
	AuditQueryMaxLimit      int           `env:"GATEKEEPER_AUDIT_QUERY_MAX_LIMIT"`
	LogLevel                string        `env:"GATEKEEPER_LOG_LEVEL"`
	S3RootUser              string        `env:"GATEKEEPER_S3_ROOT_USER"`
	S3RootPassword          string        `env:"GATEKEEPER_S3_ROOT_PASSWORD"`
	S3Bucket                string        `env:"GATEKEEPER_S3_BUCKET"`
	S3Region                string        `env:"GATEKEEPER_S3_REGION"`
	S3BaseEndpoint          string        `env:"GATEKEEPER_S3_BASE_ENDPOINT"`
	AuditArchiveInterval    time.Duration `env:"GATEKEEPER_AUDIT_ARCHIVE_INTERVAL"`
}

// parseEnv overlays GATEKEEPER_* variables onto config. When -envfile/-E is
// given the file is loaded first; variables already set in the process
// environment win over the file.
func parseEnv(config *Config) error {
	if path := flagx.EnvFileFlags(); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	var c EnvConfig
	if err := env.Parse(&c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.TokenValidityDuration, c.TokenValidityDuration)
	setDuration(&config.SessionValidityDuration, c.SessionValidityDuration)
	setDuration(&config.TokenLeeway, c.TokenLeeway)
	setInt(&config.BcryptCost, c.BcryptCost)
	setDuration(&config.StatementTimeout, c.StatementTimeout)
	setInt(&config.AuditQueryMaxLimit, c.AuditQueryMaxLimit)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.AuditArchiveInterval, c.AuditArchiveInterval)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
