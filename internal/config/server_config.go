package config

import (
	"fmt"
	"time"
)

type Server struct{}

var _ ServerConfig = Server{}

func (Server) GetPort() string {
	port := GetEnv("PORT", "5001")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (Server) GetJWTSecret() string {
	return GetEnv("REMY_JWT_SECRET", "remycare-dev-secret")
}

func (Server) GetAccessTokenExpiry() time.Duration {
	return GetDuration("REMY_ACCESS_TOKEN_EXPIRY", 15*time.Minute)
}

func (Server) GetRefreshTokenExpiry() time.Duration {
	return GetDuration("REMY_REFRESH_TOKEN_EXPIRY", 7*24*time.Hour) // 7 days
}
