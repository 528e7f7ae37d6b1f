package common

import (
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

var millisRegexp = regexp.MustCompile(`^\d+$`)

// FormatTimestamp formats a timestamp as the number of milliseconds since the epoch.
func FormatTimestamp(timestamp time.Time) string {
	return strconv.FormatInt(timestamp.UnixMilli(), 10)
}

// ParseTimestamp parses a timestamp that is either expressed in milliseconds since the epoch or
// formatted according to RFC 3339. An empty string yields the zero time.
func ParseTimestamp(timestamp string) (time.Time, error) {
	if timestamp == "" {
		return time.Time{}, nil
	}

	if millisRegexp.MatchString(timestamp) {
		millis, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "invalid timestamp `%s`", timestamp)
		}
		return time.UnixMilli(millis), nil
	}

	parsed, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid timestamp `%s`", timestamp)
	}
	return parsed, nil
}

// FixTimestamp converts a timestamp in any format accepted by ParseTimestamp to milliseconds since
// the epoch. Empty strings are returned unchanged.
func FixTimestamp(timestamp string) (string, error) {
	if timestamp == "" || millisRegexp.MatchString(timestamp) {
		return timestamp, nil
	}

	parsed, err := ParseTimestamp(timestamp)
	if err != nil {
		return "", err
	}
	return FormatTimestamp(parsed), nil
}
