package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/refresh"
)

// Config holds runtime settings for the sessionkeeper CLI.
type Config struct {
	ServerEndpointAddr string
	// LocalDBPath is the SQLite file the session is kept in between runs.
	LocalDBPath    string
	DeviceLabel    string
	RefreshTimeout time.Duration
	LogLevel       string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.LocalDBPath = defaultDBPath()
	c.DeviceLabel = defaultDeviceLabel()
	c.RefreshTimeout = refresh.DefaultTimeout
	c.LogLevel = "warn"
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "sessionkeeper.db"
	}
	return filepath.Join(dir, "sessionkeeper", "session.db")
}

func defaultDeviceLabel() string {
	host, err := os.Hostname()
	if err != nil {
		return "cli"
	}
	return "cli@" + host
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
