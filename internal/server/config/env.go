package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by the server.
const EnvPrefix = "SESSIONKEEPER_"

// parseEnv loads an optional .env file (path from SESSIONKEEPER_ENV_FILE,
// default ".env") and overlays any SESSIONKEEPER_* variables onto config.
// Existing process variables win over the file. Malformed values panic,
// matching the JSON and flag layers.
func parseEnv(config *Config) {
	envFile := os.Getenv(EnvPrefix + "ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			panic(fmt.Errorf("load %s: %w", envFile, err))
		}
	}

	envString("GRPC_ADDR", &config.EndpointAddrGRPC)
	envString("HTTP_ADDR", &config.EndpointAddrHTTP)
	envString("DATABASE_DSN", &config.DatabaseDSN)
	envString("SIGNING_METHOD", &config.SigningMethod)
	envString("SECRET_KEY", &config.SecretKey)
	envString("SIGNING_KEY_URI", &config.SigningKeyURI)
	envString("ISSUER", &config.Issuer)
	envString("AUDIENCE", &config.Audience)
	envDuration("ACCESS_TOKEN_TTL", &config.AccessTokenValidityDuration)
	envDuration("REFRESH_TOKEN_TTL", &config.RefreshTokenValidityDuration)
	envDuration("GRACE_WINDOW", &config.GraceWindow)
	envBool("LOGOUT_GRACE", &config.LogoutGrace)
	envDuration("SWEEP_INTERVAL", &config.SweepInterval)
	envString("REDIS_ADDR", &config.RedisAddr)
	envInt("REFRESH_RATE_LIMIT", &config.RefreshRateLimit)
	envDuration("REFRESH_RATE_WINDOW", &config.RefreshRateWindow)
	if v, ok := lookupEnv("CORS_ALLOWED_ORIGINS"); ok {
		config.CORSAllowedOrigins = splitList(v)
	}
	envString("LOG_LEVEL", &config.LogLevel)
	envString("S3_ROOT_USER", &config.S3RootUser)
	envString("S3_ROOT_PASSWORD", &config.S3RootPassword)
	envString("S3_REGION", &config.S3Region)
	envString("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
}

func lookupEnv(key string) (string, bool) {
	return os.LookupEnv(EnvPrefix + key)
}

func envString(key string, dst *string) {
	if v, ok := lookupEnv(key); ok {
		*dst = v
	}
}

func envDuration(key string, dst *time.Duration) {
	v, ok := lookupEnv(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err))
	}
	*dst = d
}

func envInt(key string, dst *int) {
	v, ok := lookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err))
	}
	*dst = n
}

func envBool(key string, dst *bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic(fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err))
	}
	*dst = b
}
