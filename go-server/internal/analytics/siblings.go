package analytics

import (
	"sort"
	"time"

	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

// SiblingStats is the cross-link comparison for links sharing a destination.
type SiblingStats struct {
	Top    []model.SiblingClicks
	Daily  []model.SiblingDaily
	Hourly []model.SiblingHourly
}

type siblingHour struct {
	hour time.Time
	rank int
}

type siblingDay struct {
	date      string
	shortCode string
	title     string
}

// Siblings aggregates events across links. Links are ranked in the order
// given; that order breaks ties in Top and orders links within an hour.
// Events belonging to links not in the slice are ignored, and links without
// clicks in events do not appear.
func Siblings(links []model.Link, events []model.ClickEvent, loc *time.Location) SiblingStats {
	rankByID := make(map[int64]int, len(links))
	for i, l := range links {
		if _, dup := rankByID[l.ID]; !dup {
			rankByID[l.ID] = i
		}
	}

	totals := make([]int64, len(links))
	hourly := make(map[siblingHour]int64)
	for _, e := range events {
		rank, ok := rankByID[e.LinkID]
		if !ok {
			continue
		}
		totals[rank]++
		hourly[siblingHour{hour: truncateHour(e.OccurredAt), rank: rank}]++
	}

	stats := SiblingStats{
		Top:    []model.SiblingClicks{},
		Daily:  []model.SiblingDaily{},
		Hourly: []model.SiblingHourly{},
	}

	for rank, clicks := range totals {
		if clicks == 0 {
			continue
		}
		stats.Top = append(stats.Top, model.SiblingClicks{
			ShortCode: links[rank].ShortCode,
			Title:     links[rank].DisplayTitle(),
			Clicks:    clicks,
		})
	}
	sort.SliceStable(stats.Top, func(i, j int) bool { return stats.Top[i].Clicks > stats.Top[j].Clicks })

	keys := make([]siblingHour, 0, len(hourly))
	for k := range hourly {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].hour.Equal(keys[j].hour) {
			return keys[i].hour.Before(keys[j].hour)
		}
		return keys[i].rank < keys[j].rank
	})

	daily := make(map[siblingDay]int64)
	for _, k := range keys {
		link := links[k.rank]
		local := k.hour.In(loc)
		date := local.Format(dateLayout)
		stats.Hourly = append(stats.Hourly, model.SiblingHourly{
			Date:      date,
			Hour:      local.Hour(),
			ShortCode: link.ShortCode,
			Title:     link.DisplayTitle(),
			Clicks:    hourly[k],
		})
		daily[siblingDay{date: date, shortCode: link.ShortCode, title: link.DisplayTitle()}] += hourly[k]
	}

	for k, clicks := range daily {
		stats.Daily = append(stats.Daily, model.SiblingDaily{
			Date:      k.date,
			ShortCode: k.shortCode,
			Title:     k.title,
			Clicks:    clicks,
		})
	}
	sort.Slice(stats.Daily, func(i, j int) bool {
		a, b := stats.Daily[i], stats.Daily[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.ShortCode != b.ShortCode {
			return a.ShortCode < b.ShortCode
		}
		return a.Title < b.Title
	})

	return stats
}
