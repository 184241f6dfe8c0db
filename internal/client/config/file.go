package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/flagx"
	"github.com/dmitrijs2005/fieldseal/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape. Zero values leave the current setting
// alone, so a file only needs the keys it changes.
type FileConfig struct {
	ServerAddr          string         `json:"server_addr" yaml:"server_addr"`
	DatabasePath        string         `json:"database_path" yaml:"database_path"`
	RescueDir           string         `json:"rescue_dir" yaml:"rescue_dir"`
	WorkspaceID         string         `json:"workspace_id" yaml:"workspace_id"`
	DeviceID            string         `json:"device_id" yaml:"device_id"`
	MaxRetries          *int           `json:"max_retries" yaml:"max_retries"`
	RetryBaseDelay      timex.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
	RetryMaxDelay       timex.Duration `json:"retry_max_delay" yaml:"retry_max_delay"`
	CallTimeout         timex.Duration `json:"call_timeout" yaml:"call_timeout"`
	ProcessInterval     timex.Duration `json:"process_interval" yaml:"process_interval"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval" yaml:"online_check_interval"`
	ArchiveRetention    timex.Duration `json:"archive_retention" yaml:"archive_retention"`
	ArchiveInterval     timex.Duration `json:"archive_interval" yaml:"archive_interval"`
	SealableStatuses    []string       `json:"sealable_statuses" yaml:"sealable_statuses"`
	SealPublicKeyPath   string         `json:"seal_public_key_path" yaml:"seal_public_key_path"`
	LogLevel            string         `json:"log_level" yaml:"log_level"`
	LogFormat           string         `json:"log_format" yaml:"log_format"`
	AMQPExchange        string         `json:"amqp_exchange" yaml:"amqp_exchange"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}

// parseFile overlays cfg with the file named by -c/-config in args. Read or
// decode errors panic.
func parseFile(cfg *Config, args []string) {
	path := flagx.ConfigFile(args)
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		panic(err)
	}

	setString(&cfg.ServerAddr, fc.ServerAddr)
	setString(&cfg.DatabasePath, fc.DatabasePath)
	setString(&cfg.RescueDir, fc.RescueDir)
	setString(&cfg.WorkspaceID, fc.WorkspaceID)
	setString(&cfg.DeviceID, fc.DeviceID)
	if fc.MaxRetries != nil {
		cfg.MaxRetries = *fc.MaxRetries
	}
	setDuration(&cfg.RetryBaseDelay, fc.RetryBaseDelay)
	setDuration(&cfg.RetryMaxDelay, fc.RetryMaxDelay)
	setDuration(&cfg.CallTimeout, fc.CallTimeout)
	setDuration(&cfg.ProcessInterval, fc.ProcessInterval)
	setDuration(&cfg.OnlineCheckInterval, fc.OnlineCheckInterval)
	setDuration(&cfg.ArchiveRetention, fc.ArchiveRetention)
	setDuration(&cfg.ArchiveInterval, fc.ArchiveInterval)
	if len(fc.SealableStatuses) > 0 {
		cfg.SealableStatuses = fc.SealableStatuses
	}
	setString(&cfg.SealPublicKeyPath, fc.SealPublicKeyPath)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	setString(&cfg.AMQPExchange, fc.AMQPExchange)
}
