// Package encoding_api drives the encoding batch of the browser session.
package encoding_api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"thirdcoast.systems/mediaportal/cmd/web/internal/batches"
	"thirdcoast.systems/mediaportal/internal/media"
	"thirdcoast.systems/mediaportal/pkg/utils/format"
)

// StatusResponse is what the page polls for.
type StatusResponse struct {
	RefreshInterval int64  `json:"refreshInterval"`
	StatusMessage   string `json:"statusMessage"`
	Refresh         bool   `json:"refresh"`
	State           string `json:"state"`
}

func newStatusResponse(st media.Status) StatusResponse {
	return StatusResponse{
		RefreshInterval: st.PollInterval.Milliseconds(),
		StatusMessage:   st.Message,
		Refresh:         st.Refresh,
		State:           st.State.String(),
	}
}

func expiredStatus() media.Status {
	return media.Status{Message: media.MessageSessionExpired, PollInterval: media.DefaultRefreshInterval}
}

// refine adjusts a status that asks the page to reload its records. While
// records are still in progress the page polls faster and an empty message
// reports how many there are. A shorter interval suggested by the batch is
// kept.
func refine(ctx context.Context, b batches.Batch, st media.Status) media.Status {
	if !st.Refresh {
		return st
	}

	recs, err := b.AssetsInProgress(ctx, media.DefaultInProgressLimit)
	if err != nil {
		slog.Warn("failed to list media assets in progress", "error", err)
		return st
	}

	interval := media.DefaultRefreshInterval
	if len(recs) > 0 {
		interval = media.ProgressRefreshInterval
		if st.Message == "" {
			st.Message = inProgressMessage(len(recs))
		}
	}
	if st.PollInterval <= 0 || st.PollInterval > interval {
		st.PollInterval = interval
	}
	return st
}

func inProgressMessage(n int) string {
	if n == 1 {
		return "There is 1 encoding job still in progress..."
	}
	return fmt.Sprintf("There are %s encoding jobs still in progress...", format.Number(n))
}

var expirationLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
}

// ParseExpiration turns the expiry picked in the form into a duration from
// now. Empty, malformed or past values fall back to the default.
func ParseExpiration(raw string, now time.Time) time.Duration {
	if raw == "" {
		return media.DefaultExpiration
	}
	for _, layout := range expirationLayouts {
		t, err := time.ParseInLocation(layout, raw, now.Location())
		if err != nil {
			continue
		}
		if d := t.Sub(now); d > 0 {
			return d
		}
		return media.DefaultExpiration
	}
	return media.DefaultExpiration
}
