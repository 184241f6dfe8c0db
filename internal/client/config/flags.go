package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/flagx"
)

// Flags lists the flags parseFlags consumes, config file flags included.
// Everything else in the argument list belongs to the command line proper.
var Flags = []string{"-a", "-d", "-w", "-i", "-p", "-m", "-k", "-l", "-c", "-config"}

// parseFlags populates selected Config fields from command-line flags.
//
// Note: args are filtered with flagx.FilterArgs first, so subcommands and
// their own flags are ignored here.
func parseFlags(cfg *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-w", "-i", "-p", "-m", "-k", "-l"})
	fs := flag.NewFlagSet("fieldseal", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerAddr, "a", cfg.ServerAddr, "address and port of the backend")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path of the local store")
	fs.StringVar(&cfg.WorkspaceID, "w", cfg.WorkspaceID, "workspace id")
	onlineCheck := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	process := fs.Int("p", int(cfg.ProcessInterval.Seconds()), "queue processing interval (in seconds)")
	fs.IntVar(&cfg.MaxRetries, "m", cfg.MaxRetries, "max retries before escalation")
	fs.StringVar(&cfg.SealPublicKeyPath, "k", cfg.SealPublicKeyPath, "seal verification public key (PEM)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
	cfg.OnlineCheckInterval = time.Duration(*onlineCheck) * time.Second
	cfg.ProcessInterval = time.Duration(*process) * time.Second
}
