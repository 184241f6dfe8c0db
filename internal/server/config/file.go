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

// FileConfig is the on-disk shape. Secrets are not read from files; they
// come from the environment.
type FileConfig struct {
	EndpointAddrGRPC    string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	EndpointAddrHTTP    string         `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	DatabaseDSN         string         `json:"database_dsn" yaml:"database_dsn"`
	DeviceTokenValidity timex.Duration `json:"device_token_validity" yaml:"device_token_validity"`
	ShareLinkValidity   timex.Duration `json:"share_link_validity" yaml:"share_link_validity"`
	S3RootUser          string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3Bucket            string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region            string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint      string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	PresignExpiry       timex.Duration `json:"presign_expiry" yaml:"presign_expiry"`
	EvidenceEndpoint    string         `json:"evidence_endpoint" yaml:"evidence_endpoint"`
	EvidenceBucket      string         `json:"evidence_bucket" yaml:"evidence_bucket"`
	EvidenceUseSSL      *bool          `json:"evidence_use_ssl" yaml:"evidence_use_ssl"`
	SigningKeyPath      string         `json:"signing_key_path" yaml:"signing_key_path"`
	SigningAlgorithm    string         `json:"signing_algorithm" yaml:"signing_algorithm"`
	SealAuthority       string         `json:"seal_authority" yaml:"seal_authority"`
	ArchiveRetention    timex.Duration `json:"archive_retention" yaml:"archive_retention"`
	ArchiveInterval     timex.Duration `json:"archive_interval" yaml:"archive_interval"`
	LogLevel            string         `json:"log_level" yaml:"log_level"`
	LogFormat           string         `json:"log_format" yaml:"log_format"`
	MigrateOnStart      *bool          `json:"migrate_on_start" yaml:"migrate_on_start"`
	ShutdownGracePeriod timex.Duration `json:"shutdown_grace_period" yaml:"shutdown_grace_period"`
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

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// parseFile overlays cfg with the file named by -c/-config in args.
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

	setString(&cfg.EndpointAddrGRPC, fc.EndpointAddrGRPC)
	setString(&cfg.EndpointAddrHTTP, fc.EndpointAddrHTTP)
	setString(&cfg.DatabaseDSN, fc.DatabaseDSN)
	setDuration(&cfg.DeviceTokenValidity, fc.DeviceTokenValidity)
	setDuration(&cfg.ShareLinkValidity, fc.ShareLinkValidity)
	setString(&cfg.S3RootUser, fc.S3RootUser)
	setString(&cfg.S3Bucket, fc.S3Bucket)
	setString(&cfg.S3Region, fc.S3Region)
	setString(&cfg.S3BaseEndpoint, fc.S3BaseEndpoint)
	setDuration(&cfg.PresignExpiry, fc.PresignExpiry)
	setString(&cfg.EvidenceEndpoint, fc.EvidenceEndpoint)
	setString(&cfg.EvidenceBucket, fc.EvidenceBucket)
	setBool(&cfg.EvidenceUseSSL, fc.EvidenceUseSSL)
	setString(&cfg.SigningKeyPath, fc.SigningKeyPath)
	setString(&cfg.SigningAlgorithm, fc.SigningAlgorithm)
	setString(&cfg.SealAuthority, fc.SealAuthority)
	setDuration(&cfg.ArchiveRetention, fc.ArchiveRetention)
	setDuration(&cfg.ArchiveInterval, fc.ArchiveInterval)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	setBool(&cfg.MigrateOnStart, fc.MigrateOnStart)
	setDuration(&cfg.ShutdownGracePeriod, fc.ShutdownGracePeriod)
}
