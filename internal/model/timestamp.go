package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CanonicalLayout renders an instant at full precision. Two timestamps
// share a canonical form iff they denote the same instant.
const CanonicalLayout = "2006-01-02T15:04:05.000000000Z"

// ErrInvalidTimestamp is returned by Timestamp.Time for unusable input.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Accepted string layouts, tried in order. Fractional seconds are accepted
// after the seconds field by every layout that has one.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp is either an unparsed string or a native time value.
// The zero value is invalid.
type Timestamp struct {
	raw     string
	t       time.Time
	hasText bool
	hasTime bool
}

// TimestampFromString wraps a string to be parsed on Time.
func TimestampFromString(s string) Timestamp {
	return Timestamp{raw: s, hasText: true}
}

// TimestampFromTime wraps an already parsed time.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp{t: t, hasTime: true}
}

// IsString reports whether the timestamp still needs parsing.
func (ts Timestamp) IsString() bool {
	return ts.hasText
}

// Time normalizes the timestamp to a time.Time.
func (ts Timestamp) Time() (time.Time, error) {
	switch {
	case ts.hasTime:
		return ts.t, nil
	case ts.hasText:
		return parseTimestamp(ts.raw)
	default:
		return time.Time{}, fmt.Errorf("%w: missing", ErrInvalidTimestamp)
	}
}

// String returns the raw text or the RFC 3339 form of the time.
func (ts Timestamp) String() string {
	switch {
	case ts.hasTime:
		return ts.t.Format(time.RFC3339Nano)
	case ts.hasText:
		return ts.raw
	default:
		return ""
	}
}

// UnmarshalJSON keeps JSON strings unparsed; null leaves the zero value.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*ts = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	*ts = TimestampFromString(s)
	return nil
}

// MarshalJSON writes the timestamp as a JSON string.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if !ts.hasText && !ts.hasTime {
		return []byte("null"), nil
	}
	return json.Marshal(ts.String())
}

// CanonicalString formats t in UTC with CanonicalLayout.
func CanonicalString(t time.Time) string {
	return t.UTC().Format(CanonicalLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}
