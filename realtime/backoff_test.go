package realtime_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/remycare-client/realtime"
	"github.com/stretchr/testify/require"
)

func TestBackoff_Delay(t *testing.T) {
	b := realtime.DefaultBackoff
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{12, 30 * time.Second},
		{1000, 30 * time.Second},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, b.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoff_ZeroValueUsesDefaults(t *testing.T) {
	require.Equal(t, time.Second, realtime.Backoff{}.Delay(0))
	require.Equal(t, 30*time.Second, realtime.Backoff{}.Delay(10))
	require.Equal(t, 5*time.Second, realtime.Backoff{Initial: 5 * time.Second}.Delay(0))
	require.Equal(t, 20*time.Second, realtime.Backoff{Max: 20 * time.Second}.Delay(6))
	require.Equal(t, 2*time.Second, realtime.Backoff{Initial: time.Minute, Max: 2 * time.Second}.Delay(0))
}

func TestStatus_String(t *testing.T) {
	require.Equal(t, "disconnected", realtime.Disconnected.String())
	require.Equal(t, "connecting", realtime.Connecting.String())
	require.Equal(t, "connected", realtime.Connected.String())
}
