package config

import (
	"strings"
	"time"
)

const (
	wsURLVar             = "REMY_WS_URL"
	reconnectDelayVar    = "REMY_RECONNECT_DELAY"
	reconnectDelayMaxVar = "REMY_RECONNECT_DELAY_MAX"

	apiPathSuffix = "/api/v1"
	wsPath        = "/ws"
)

type Realtime struct{}

var _ RealtimeConfig = Realtime{}

// GetRealtimeURL returns REMY_WS_URL when set, otherwise derives the socket
// endpoint from the API base URL: the scheme moves to ws/wss, the /api/v1
// suffix is dropped and /ws appended.
func (Realtime) GetRealtimeURL() string {
	if u := GetEnv(wsURLVar, ""); u != "" {
		return u
	}
	return DeriveRealtimeURL(EnvVars{}.GetAPIBaseURL())
}

func (Realtime) GetReconnectDelay() time.Duration {
	return GetDuration(reconnectDelayVar, time.Second)
}

func (Realtime) GetReconnectDelayMax() time.Duration {
	return GetDuration(reconnectDelayMaxVar, 30*time.Second)
}

func DeriveRealtimeURL(apiURL string) string {
	u := strings.TrimSuffix(strings.TrimSuffix(apiURL, "/"), apiPathSuffix)
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + wsPath
}
