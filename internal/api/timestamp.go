package api

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayouts are the ISO 8601 forms accepted on input. Seconds are optional.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
}

// Timestamp decodes an ISO 8601 date-time with or without seconds.
type Timestamp struct {
	time.Time
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	raw = strings.Trim(raw, `"`)

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			ts.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q: expected ISO 8601 date-time with offset", raw)
}
