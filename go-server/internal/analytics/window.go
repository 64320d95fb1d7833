package analytics

import (
	"errors"
	"strings"
	"time"
)

const (
	RangeLast24Hours = "24h"
	RangeLast7Days   = "7d"
	RangeLast30Days  = "30d"
	RangeCustom      = "custom"

	// DefaultRange is used whenever the requested range can't be honoured.
	DefaultRange = RangeLast24Hours

	minWindow = time.Minute
)

var fixedRanges = map[string]time.Duration{
	RangeLast24Hours: 24 * time.Hour,
	RangeLast7Days:   7 * 24 * time.Hour,
	RangeLast30Days:  30 * 24 * time.Hour,
}

var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Window is a resolved, UTC-normalized query range.
type Window struct {
	Range string
	Start time.Time
	End   time.Time
}

// Duration is the length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// ResolveWindow turns the range selector and optional custom bounds into a
// concrete window. A custom range with a missing or unparsable bound, or an
// unknown selector, falls back to the last 24 hours. Degenerate windows are
// widened to one minute.
func ResolveWindow(selector, rawStart, rawEnd string, now time.Time, loc *time.Location) Window {
	selector = strings.ToLower(strings.TrimSpace(selector))
	if selector == "" {
		selector = DefaultRange
	}

	w := Window{Range: selector}
	if d, ok := fixedRanges[selector]; ok {
		w.Start, w.End = now.Add(-d), now
	} else if selector == RangeCustom && rawStart != "" && rawEnd != "" {
		start, errStart := ParseTimestamp(rawStart, loc)
		end, errEnd := ParseTimestamp(rawEnd, loc)
		if errStart != nil || errEnd != nil {
			w = fallbackWindow(now)
		} else {
			w.Start, w.End = start, end
		}
	} else {
		w = fallbackWindow(now)
	}

	w.Start, w.End = w.Start.UTC(), w.End.UTC()
	if !w.End.After(w.Start) {
		w.End = w.Start.Add(minWindow)
	}
	return w
}

func fallbackWindow(now time.Time) Window {
	return Window{Range: DefaultRange, Start: now.Add(-fixedRanges[DefaultRange]), End: now}
}

var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05-07",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts ISO-8601 timestamps with or without an offset.
// Offset-less values are interpreted in loc. The result is in UTC.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	raw = restorePlusOffset(strings.TrimSpace(raw))
	if raw == "" {
		return time.Time{}, ErrInvalidTimestamp
	}

	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}

// restorePlusOffset undoes query-string decoding of "+HH:MM" into " HH:MM".
func restorePlusOffset(raw string) string {
	n := len(raw)
	if n > 16 && raw[n-6] == ' ' && raw[n-3] == ':' {
		return raw[:n-6] + "+" + raw[n-5:]
	}
	return raw
}
