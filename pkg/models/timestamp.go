package models

import (
	"fmt"
	"strings"
	"time"
)

// parseFlexibleTimestamp normalizes the fractional-second component of an
// upstream timestamp to exactly 6 digits (microseconds) before parsing,
// since detectors disagree on whether they emit milli-, micro-, or
// nanosecond fragments.
func parseFlexibleTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	// Accept a trailing 'Z' or an explicit offset; normalize to 'Z' form
	// for the fractional-second rewrite below, then let time.Parse handle
	// whichever offset form is actually present.
	body := raw
	suffix := "Z"
	if idx := strings.LastIndexAny(raw, "+-"); idx > 10 { // skip the date's '-' separators
		body = raw[:idx]
		suffix = raw[idx:]
	} else if strings.HasSuffix(raw, "Z") {
		body = strings.TrimSuffix(raw, "Z")
	}

	dot := strings.IndexByte(body, '.')
	if dot >= 0 {
		frac := body[dot+1:]
		switch {
		case len(frac) > 6:
			frac = frac[:6]
		case len(frac) < 6:
			frac = frac + strings.Repeat("0", 6-len(frac))
		}
		body = body[:dot+1] + frac
	} else {
		body = body + ".000000"
	}

	normalized := body + suffix
	t, err := time.Parse("2006-01-02T15:04:05.000000Z07:00", normalized)
	if err != nil {
		// Fall back to a handful of common layouts before giving up.
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if t2, err2 := time.Parse(layout, raw); err2 == nil {
				return t2.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}
