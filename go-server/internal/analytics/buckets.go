package analytics

import (
	"sort"
	"time"

	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

const (
	dateLayout = "2006-01-02"

	// HourlyDetailLimit is the longest window for which the hourly series is
	// returned to callers.
	HourlyDetailLimit = 48 * time.Hour
)

// HourBucket counts clicks within one UTC hour.
type HourBucket struct {
	Hour   time.Time
	Clicks int64
}

// HourlyBuckets groups events by their UTC hour, ascending.
func HourlyBuckets(events []model.ClickEvent) []HourBucket {
	counts := make(map[time.Time]int64)
	for _, e := range events {
		counts[truncateHour(e.OccurredAt)]++
	}

	buckets := make([]HourBucket, 0, len(counts))
	for h, c := range counts {
		buckets = append(buckets, HourBucket{Hour: h, Clicks: c})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Hour.Before(buckets[j].Hour) })
	return buckets
}

// HourlySeries renders hour buckets in loc.
func HourlySeries(buckets []HourBucket, loc *time.Location) []model.HourlyClicks {
	series := make([]model.HourlyClicks, 0, len(buckets))
	for _, b := range buckets {
		series = append(series, model.HourlyClicks{
			Hour:   b.Hour.In(loc).Format(time.RFC3339),
			Clicks: b.Clicks,
		})
	}
	return series
}

// DailySeries re-aggregates hour buckets into local calendar dates, ascending.
func DailySeries(buckets []HourBucket, loc *time.Location) []model.DailyClicks {
	counts := make(map[string]int64)
	for _, b := range buckets {
		counts[localDate(b.Hour, loc)] += b.Clicks
	}

	series := make([]model.DailyClicks, 0, len(counts))
	for d, c := range counts {
		series = append(series, model.DailyClicks{Date: d, Clicks: c})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date < series[j].Date })
	return series
}

func truncateHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

func localDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}
