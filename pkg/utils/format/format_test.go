package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSize(t *testing.T) {
	require.Equal(t, Unknown, Size(0))
	require.Equal(t, "2.0 kB", Size(2000))
	require.Equal(t, "1.5 GB", Size(1_500_000_000))
}

func TestElapsed(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{-time.Second, "00:00:00"},
		{90 * time.Second, "00:01:30"},
		{26*time.Hour + 5*time.Minute + 7*time.Second + 900*time.Millisecond, "26:05:07"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Elapsed(tt.in))
	}
}

func TestExpiry(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.Equal(t, "never", Expiry(time.Time{}, now))
	require.Equal(t, "expired", Expiry(now.Add(-time.Minute), now))
	require.Equal(t, "expires 1 day from now", Expiry(now.Add(24*time.Hour), now))
}

func TestJobDuration(t *testing.T) {
	require.Equal(t, "3.2 seconds", JobDuration(3200*time.Millisecond))
	require.Equal(t, "1.5 minutes", JobDuration(90*time.Second))
	require.Equal(t, "2.0 hours", JobDuration(2*time.Hour))
}

func TestNumberAndTruncate(t *testing.T) {
	require.Equal(t, "1,500", Number(1500))
	require.Equal(t, "abc...", Truncate("abcdefghij", 6))
	require.Equal(t, "abc", Truncate("abc", 6))
}
