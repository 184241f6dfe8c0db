package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

const (
	EnvDeviceToken      = "FIELDSEAL_DEVICE_TOKEN"
	EnvLegacyHMACSecret = "FIELDSEAL_LEGACY_HMAC_SECRET"
	EnvAMQPURL          = "FIELDSEAL_AMQP_URL"
)

// parseEnv loads dotenv (if it exists) into the process environment and
// copies the secrets into cfg. Variables already set in the environment win
// over the file.
func parseEnv(cfg *Config, dotenv string, getenv func(string) string) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
	}
	setString(&cfg.DeviceToken, getenv(EnvDeviceToken))
	setString(&cfg.LegacyHMACSecret, getenv(EnvLegacyHMACSecret))
	setString(&cfg.AMQPURL, getenv(EnvAMQPURL))
}
