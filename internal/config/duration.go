package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField reads a duration-valued config field such as
// "10s" or "1h30m". An empty or blank value means the field is unset
// and yields zero; negative durations are rejected. path names the
// field in error messages ("retention.max_age").
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}
