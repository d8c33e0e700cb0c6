package config

import (
	"flag"
	"os"
	"time"

	"github.com/akarpov87/taskhive/internal/flagx"
)

// parseFlags populates selected client Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   server base URL
//	-d string   local SQLite database path
//	-t string   bearer auth token
//	-i int      sync interval, seconds
//	-w          watch mode: keep syncing on a timer
//	-r          wipe local sync state before the first cycle
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-t", "-i", "-w", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ServerEndpointAddr, "a", config.ServerEndpointAddr, "server base URL")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "local database path")
	fs.StringVar(&config.AuthToken, "t", config.AuthToken, "bearer auth token")
	fs.BoolVar(&config.Watch, "w", config.Watch, "watch mode")
	fs.BoolVar(&config.Reset, "r", config.Reset, "reset local sync state")

	syncInterval := fs.Int("i", int(config.SyncInterval.Seconds()), "sync interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SyncInterval = time.Duration(*syncInterval) * time.Second
}
