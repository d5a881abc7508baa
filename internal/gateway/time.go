package gateway

import (
	"encoding/json"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Time decodes the backend's timestamps, which may lack a zone. Zone-less
// values are read as UTC. An unparsable value keeps Raw and a zero Time.
type Time struct {
	time.Time
	Raw string
}

func (t *Time) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*t = ParseTime(s)
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.Raw != "" {
		return json.Marshal(t.Raw)
	}
	if t.Time.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// ParseTime parses s with the known backend layouts.
func ParseTime(s string) Time {
	s = strings.TrimSpace(s)
	out := Time{Raw: s}
	for _, layout := range timeLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			out.Time = v
			return out
		}
	}
	return out
}
