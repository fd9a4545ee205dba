package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
)

// parseFlags overlays cfg with command-line flags:
//
//	-a string    server address
//	-d string    local session database
//	-l string    device label sent on login
//	-t duration  refresh timeout
//	-log string  log level
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-l", "-t", "-log"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.LocalDBPath, "d", cfg.LocalDBPath, "path to local session database")
	fs.StringVar(&cfg.DeviceLabel, "l", cfg.DeviceLabel, "device label")
	fs.DurationVar(&cfg.RefreshTimeout, "t", cfg.RefreshTimeout, "token refresh timeout")
	fs.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
