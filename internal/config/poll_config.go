package config

import "time"

type Poll struct{}

var _ PollConfig = Poll{}

func (Poll) GetPollInterval() time.Duration {
	return GetDuration("REMY_POLL_INTERVAL", 30*time.Second)
}

// GetOfflinePollInterval is the slower cadence used while push delivery is down.
func (Poll) GetOfflinePollInterval() time.Duration {
	return GetDuration("REMY_OFFLINE_POLL_INTERVAL", 5*time.Minute)
}
