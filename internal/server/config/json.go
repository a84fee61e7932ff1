package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gatekeeper/internal/flagx"
	"github.com/dmitrijs2005/gatekeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Duration fields accept
// "24h"-style strings or integer nanoseconds. Absent keys leave the current
// value untouched.
type JsonConfig struct {
	EndpointAddrGRPC        string         `json:"endpoint_addr_grpc"`
	DatabaseDSN             string         `json:"database_dsn"`
	SecretKey               string         `json:"secret_key"`
	TokenValidityDuration   timex.Duration `json:"token_validity_duration"`
	SessionValidityDuration timex.Duration `json:"session_validity_duration"`
	TokenLeeway             timex.Duration `json:"token_leeway"`
	BcryptCost              int            `json:"bcrypt_cost"`
	StatementTimeout        timex.Duration `json:"statement_timeout"`
	AuditQueryMaxLimit      int            `json:"audit_query_max_limit"`
	LogLevel                string         `json:"log_level"`
	S3RootUser              string         `json:"s3_root_user"`
	S3RootPassword          string         `json:"s3_root_password"`
	S3Bucket                string         `json:"s3_bucket"`
	S3Region                string         `json:"s3_region"`
	S3BaseEndpoint          string         `json:"s3_base_endpoint"`
	AuditArchiveInterval    timex.Duration `json:"audit_archive_interval"`
}

// parseJson loads the file named by -c/-config into config. Without the
// flag nothing happens. An unreadable file or invalid JSON panics: a broken
// config must stop the process at startup.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.TokenValidityDuration, c.TokenValidityDuration.Duration)
	setDuration(&config.SessionValidityDuration, c.SessionValidityDuration.Duration)
	setDuration(&config.TokenLeeway, c.TokenLeeway.Duration)
	setInt(&config.BcryptCost, c.BcryptCost)
	setDuration(&config.StatementTimeout, c.StatementTimeout.Duration)
	setInt(&config.AuditQueryMaxLimit, c.AuditQueryMaxLimit)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.AuditArchiveInterval, c.AuditArchiveInterval.Duration)
}
