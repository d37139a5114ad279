package media

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRowKey_Unique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]struct{}, 10000)
	for range 10000 {
		key := NewRowKey(now)
		_, dup := seen[key]
		require.False(t, dup, "duplicate key %s", key)
		seen[key] = struct{}{}
	}
}

func TestNewRowKey_NewestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	keys := []string{
		NewRowKey(base),
		NewRowKey(base.Add(time.Hour)),
		NewRowKey(base.Add(time.Nanosecond)),
	}
	sort.Strings(keys)

	require.Equal(t, NewRowKey(base.Add(time.Hour))[:19], keys[0][:19])
	require.Equal(t, NewRowKey(base)[:19], keys[2][:19])
}

func TestParseRecordKey(t *testing.T) {
	key, err := ParseRecordKey("interview;0123_abc;Thumbnails")
	require.NoError(t, err)
	require.Equal(t, RecordKey{Collection: "interview", Row: "0123_abc"}, key)
	require.Equal(t, "interview;0123_abc", key.String())

	for _, bad := range []string{"", "interview", ";row", "interview;"} {
		_, err := ParseRecordKey(bad)
		require.Error(t, err, bad)
	}
}

func TestSourceFile_Title(t *testing.T) {
	f := SourceFile{Name: "uploads/Board Meeting.final.mp4"}
	require.Equal(t, "Board Meeting.final.mp4", f.FileName())
	require.Equal(t, "Board Meeting.final", f.Title())
}

func TestParseProtectionCode(t *testing.T) {
	tests := map[string]Protection{
		"1":  ProtectionStorageEncrypted,
		"2":  ProtectionCommonEncryption,
		"3":  ProtectionEnvelopeEncryption,
		"0":  ProtectionNone,
		"":   ProtectionNone,
		"x":  ProtectionNone,
		" 3": ProtectionEnvelopeEncryption,
	}
	for code, want := range tests {
		require.Equal(t, want, ParseProtectionCode(code), code)
	}
	require.Equal(t, "Ultra-Violet DRM", ProtectionCommonEncryption.Description())
	require.Equal(t, "HTTPS & SAS", ProtectionNone.Description())
}

func TestJobState_UnitState(t *testing.T) {
	tests := []struct {
		in      JobState
		want    State
		stopped bool
	}{
		{JobQueued, StateQueued, false},
		{JobScheduled, StateQueued, false},
		{JobProcessing, StateProcessing, false},
		{JobFinished, StateProcessed, true},
		{JobCanceling, StateCanceled, false},
		{JobCanceled, StateCanceled, true},
		{JobError, StateCanceled, true},
	}
	for _, tc := range tests {
		got, ok := tc.in.UnitState()
		require.True(t, ok)
		require.Equal(t, tc.want, got, tc.in)
		require.Equal(t, tc.stopped, tc.in.Stopped(), tc.in)
	}

	_, ok := JobState("Paused").UnitState()
	require.False(t, ok)
}
