package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the CLI config. Absent keys leave the
// current value alone.
type JsonConfig struct {
	ServerEndpointAddr *string         `json:"server_endpoint_addr"`
	LocalDBPath        *string         `json:"local_db_path"`
	DeviceLabel        *string         `json:"device_label"`
	RefreshTimeout     *timex.Duration `json:"refresh_timeout"`
	LogLevel           *string         `json:"log_level"`
}

// parseJson overlays cfg with the file named by -c/-config. Read and decode
// errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != nil {
		cfg.ServerEndpointAddr = *jc.ServerEndpointAddr
	}
	if jc.LocalDBPath != nil {
		cfg.LocalDBPath = *jc.LocalDBPath
	}
	if jc.DeviceLabel != nil {
		cfg.DeviceLabel = *jc.DeviceLabel
	}
	if jc.RefreshTimeout != nil {
		cfg.RefreshTimeout = time.Duration(jc.RefreshTimeout.Duration)
	}
	if jc.LogLevel != nil {
		cfg.LogLevel = *jc.LogLevel
	}
}
