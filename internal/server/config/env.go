package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

const (
	EnvDatabaseDSN      = "FIELDSEAL_DATABASE_DSN"
	EnvJWTSecret        = "FIELDSEAL_JWT_SECRET"
	EnvS3RootPassword   = "FIELDSEAL_S3_ROOT_PASSWORD"
	EnvLegacyHMACSecret = "FIELDSEAL_LEGACY_HMAC_SECRET"
)

// parseEnv loads dotenv (if it exists) and copies secrets into cfg.
func parseEnv(cfg *Config, dotenv string, getenv func(string) string) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
	}
	setString(&cfg.DatabaseDSN, getenv(EnvDatabaseDSN))
	setString(&cfg.SecretKey, getenv(EnvJWTSecret))
	setString(&cfg.S3RootPassword, getenv(EnvS3RootPassword))
	setString(&cfg.LegacyHMACSecret, getenv(EnvLegacyHMACSecret))
}
