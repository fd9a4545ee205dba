package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the server config file. Durations use
// timex.Duration so both "10s" and integer nanoseconds are accepted. Only
// keys present in the file override the current values.
type JsonConfig struct {
	EndpointAddrGRPC             *string         `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP             *string         `json:"endpoint_addr_http"`
	DatabaseDSN                  *string         `json:"database_dsn"`
	SigningMethod                *string         `json:"signing_method"`
	SecretKey                    *string         `json:"secret_key"`
	SigningKeyURI                *string         `json:"signing_key_uri"`
	Issuer                       *string         `json:"issuer"`
	Audience                     *string         `json:"audience"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	GraceWindow                  *timex.Duration `json:"grace_window"`
	LogoutGrace                  *bool           `json:"logout_grace"`
	SweepInterval                *timex.Duration `json:"sweep_interval"`
	RedisAddr                    *string         `json:"redis_addr"`
	RefreshRateLimit             *int            `json:"refresh_rate_limit"`
	RefreshRateWindow            *timex.Duration `json:"refresh_rate_window"`
	CORSAllowedOrigins           []string        `json:"cors_allowed_origins"`
	LogLevel                     *string         `json:"log_level"`
	S3RootUser                   *string         `json:"s3_root_user"`
	S3RootPassword               *string         `json:"s3_root_password"`
	S3Region                     *string         `json:"s3_region"`
	S3BaseEndpoint               *string         `json:"s3_base_endpoint"`
}

// parseJson loads the file named by -c/-config into config.
// If no flag is given nothing happens; unreadable or invalid files panic.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SigningMethod, c.SigningMethod)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.SigningKeyURI, c.SigningKeyURI)
	setString(&config.Issuer, c.Issuer)
	setString(&config.Audience, c.Audience)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.GraceWindow, c.GraceWindow)
	if c.LogoutGrace != nil {
		config.LogoutGrace = *c.LogoutGrace
	}
	setDuration(&config.SweepInterval, c.SweepInterval)
	setString(&config.RedisAddr, c.RedisAddr)
	if c.RefreshRateLimit != nil {
		config.RefreshRateLimit = *c.RefreshRateLimit
	}
	setDuration(&config.RefreshRateWindow, c.RefreshRateWindow)
	if c.CORSAllowedOrigins != nil {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
