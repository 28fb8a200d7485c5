package hangfire

import "time"

// TimestampLayout is the wire encoding for every timestamp written to the
// registry. It is fixed-width (nanosecond fraction always present) so that
// lexical order equals chronological order; external tooling that inspects
// heartbeats depends on both properties. Timestamps are always UTC.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTimestamp encodes t for the registry.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp decodes a registry timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}
