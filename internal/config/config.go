package config

import "time"

type Config interface {
	EnvConfig
	RealtimeConfig
	PollConfig
	ServerConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
}

type RealtimeConfig interface {
	GetRealtimeURL() string
	GetReconnectDelay() time.Duration
	GetReconnectDelayMax() time.Duration
}

type PollConfig interface {
	GetPollInterval() time.Duration
	GetOfflinePollInterval() time.Duration
}

type ServerConfig interface {
	GetPort() string
	GetJWTSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
}

type mainConfig struct {
	EnvVars
	Realtime
	Poll
	Server
}

func New() Config {
	return mainConfig{}
}
