package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/domain"
)

// Config holds runtime settings for the device.
type Config struct {
	ServerAddr          string
	DatabasePath        string
	RescueDir           string
	WorkspaceID         string
	DeviceID            string
	DeviceToken         string
	MaxRetries          int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	CallTimeout         time.Duration
	ProcessInterval     time.Duration
	OnlineCheckInterval time.Duration
	ArchiveRetention    time.Duration
	ArchiveInterval     time.Duration
	SealableStatuses    []string
	SealPublicKeyPath   string
	LegacyHMACSecret    string
	LogLevel            string
	LogFormat           string
	AMQPURL             string
	AMQPExchange        string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerAddr = "127.0.0.1:50051"
	c.DatabasePath = "fieldseal.db"
	c.MaxRetries = 5
	c.RetryBaseDelay = 2 * time.Second
	c.RetryMaxDelay = 5 * time.Minute
	c.CallTimeout = 15 * time.Second
	c.ProcessInterval = 30 * time.Second
	c.OnlineCheckInterval = 5 * time.Second
	c.ArchiveRetention = 180 * 24 * time.Hour
	c.ArchiveInterval = time.Hour
	c.SealableStatuses = []string{domain.StatusSubmitted.String()}
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.AMQPExchange = "fieldseal.events"
}

// LoadConfig applies defaults, then the config file, the environment and
// flags found in args. Later sources take precedence over earlier ones.
// Malformed input panics.
func LoadConfig(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg, args)
	parseEnv(cfg, ".env", os.Getenv)
	parseFlags(cfg, args)
	return cfg
}

// Sealable converts SealableStatuses to job statuses.
func (c *Config) Sealable() ([]domain.JobStatus, error) {
	out := make([]domain.JobStatus, 0, len(c.SealableStatuses))
	for _, s := range c.SealableStatuses {
		st, err := domain.ParseJobStatus(s)
		if err != nil {
			return nil, err
		}
		if st.Terminal() {
			return nil, fmt.Errorf("status %s cannot be sealed", st)
		}
		out = append(out, st)
	}
	return out, nil
}

// Validate reports semantic problems that parsing cannot catch.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerAddr == "" {
		errs = append(errs, errors.New("server address is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries must not be negative"))
	}
	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		errs = append(errs, errors.New("retry delays must be positive and max must not be below base"))
	}
	for name, d := range map[string]time.Duration{
		"call timeout":          c.CallTimeout,
		"process interval":      c.ProcessInterval,
		"online check interval": c.OnlineCheckInterval,
		"archive retention":     c.ArchiveRetention,
		"archive interval":      c.ArchiveInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if _, err := c.Sealable(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
