package format

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Unknown is shown for sizes that could not be determined.
const Unknown = "\u2014"

// Size returns a human-readable size (e.g. "1.5 GB").
func Size(b int64) string {
	if b <= 0 {
		return Unknown
	}
	return humanize.Bytes(uint64(b))
}

// Number formats an int with thousands separators (e.g. 1500 → "1,500").
func Number(n int) string {
	return humanize.Comma(int64(n))
}

// Truncate returns s truncated to max characters with "..." suffix.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// Expiry describes when a published asset expires relative to now.
func Expiry(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if !t.After(now) {
		return "expired"
	}
	return "expires " + humanize.RelTime(t, now, "ago", "from now")
}

// JobDuration formats a time.Duration as a human-readable string
// (e.g. "3.2 seconds", "1.5 minutes", "2.0 hours").
func JobDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1f seconds", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1f minutes", d.Minutes())
	}
	return fmt.Sprintf("%.1f hours", d.Hours())
}
