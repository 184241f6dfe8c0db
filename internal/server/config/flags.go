package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/flagx"
)

var valueFlags = []string{"-a", "-w", "-d", "-s", "-t", "-r", "-u", "-p", "-b", "-g", "-e", "-k", "-l"}

// Flags are the configuration flags, stripped from the arguments before the
// command tree sees them.
var Flags = append([]string{"-c", "-config"}, valueFlags...)

// parseFlags populates selected Config fields from command-line flags.
// Token validity flags are given in minutes.
func parseFlags(cfg *Config, args []string) {
	args = flagx.FilterArgs(args, valueFlags)
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&cfg.EndpointAddrGRPC, "a", cfg.EndpointAddrGRPC, "address and port of the gRPC endpoint")
	fs.StringVar(&cfg.EndpointAddrHTTP, "w", cfg.EndpointAddrHTTP, "address and port of the HTTP endpoint")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "JWT secret")
	tokenValidity := fs.Int("t", int(cfg.DeviceTokenValidity.Minutes()), "device token validity (in minutes)")
	shareValidity := fs.Int("r", int(cfg.ShareLinkValidity.Minutes()), "share link validity (in minutes)")
	fs.StringVar(&cfg.S3RootUser, "u", cfg.S3RootUser, "S3 root user")
	fs.StringVar(&cfg.S3RootPassword, "p", cfg.S3RootPassword, "S3 root password")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 photo bucket")
	fs.StringVar(&cfg.S3Region, "g", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3BaseEndpoint, "e", cfg.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&cfg.SigningKeyPath, "k", cfg.SigningKeyPath, "seal signing private key (PEM)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
	cfg.DeviceTokenValidity = time.Duration(*tokenValidity) * time.Minute
	cfg.ShareLinkValidity = time.Duration(*shareValidity) * time.Minute
}
