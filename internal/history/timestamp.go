package history

import (
	"regexp"
	"strings"
	"time"
)

var (
	utcSuffix  = regexp.MustCompile(`\+00(?::?00)?$`)
	hourOffset = regexp.MustCompile(`[+-]\d{2}$`)
	layouts    = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999Z0700",
		"2006-01-02T15:04Z07:00",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
	}
)

// NormalizeTimestamp parses the timestamp shapes the data store emits, such
// as "2024-05-01 10:00:00+00" or "2024-05-01T10:00:00-05", and returns the
// instant in UTC. Values without a zone are read as UTC. The second result is
// false for empty or unparseable input.
func NormalizeTimestamp(value string) (time.Time, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, false
	}
	if !strings.Contains(s, "T") {
		s = strings.Replace(s, " ", "T", 1)
	}
	s = utcSuffix.ReplaceAllString(s, "Z")
	if hourOffset.MatchString(s) {
		s += ":00"
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
