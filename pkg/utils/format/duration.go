package format

import (
	"fmt"
	"time"
)

// Elapsed formats a processing time as "HH:MM:SS".
func Elapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}
