package config

import (
	"os"
	"strings"
	"time"
)

const (
	appNameVar        = "APP_NAME"
	logLevelVar       = "LOG_LEVEL"
	apiURLVar         = "REMY_API_URL"
	requestTimeoutVar = "REMY_REQUEST_TIMEOUT"

	defaultAPIURL = "http://localhost:5001/api/v1"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "RemyCare")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetAPIBaseURL returns the REST base URL without a trailing slash,
// e.g. "http://localhost:5001/api/v1".
func (EnvVars) GetAPIBaseURL() string {
	return strings.TrimSuffix(GetEnv(apiURLVar, defaultAPIURL), "/")
}

func (EnvVars) GetRequestTimeout() time.Duration {
	return GetDuration(requestTimeoutVar, 15*time.Second)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDuration parses envVar with time.ParseDuration. Unset, malformed and
// non-positive values yield defaultValue.
func GetDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
