package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

func TestBuildReport_ShortRange(t *testing.T) {
	target := link(1, "abc123", "Launch")
	sibling := link(2, "xyz789", "")
	ref := "https://news.example"
	events := []model.ClickEvent{
		click(1, "2024-03-10T01:10:00Z"),
		click(1, "2024-03-10T01:40:00Z"),
		click(2, "2024-03-10T02:00:00Z"),
		click(1, "2024-03-08T00:00:00Z"),
	}
	events[1].Referer = &ref
	window := ResolveWindow("24h", "", "", testNow, time.UTC)

	report := BuildReport(ReportInput{
		Link:     &target,
		Siblings: []model.Link{target, sibling},
		Events:   events,
		Window:   window,
		Location: time.UTC,
	})

	assert.True(t, report.Success)
	assert.Equal(t, "abc123", report.ShortCode)
	assert.Equal(t, "https://example.com/x", report.OriginalURL)
	assert.Equal(t, "24h", report.Range)
	assert.Equal(t, "2024-03-09T12:30:00Z", report.Start)
	assert.Equal(t, "2024-03-10T12:30:00Z", report.End)
	assert.Equal(t, []model.HourlyClicks{{Hour: "2024-03-10T01:00:00Z", Clicks: 2}}, report.Hourly)
	assert.Equal(t, []model.DailyClicks{{Date: "2024-03-10", Clicks: 2}}, report.Daily)
	assert.Equal(t, []model.NamedClicks{{Name: DirectReferer, Clicks: 1}, {Name: ref, Clicks: 1}}, report.RefererTop)
	assert.Equal(t, []model.NamedClicks{{Name: UnknownUserAgent, Clicks: 2}}, report.UATop)
	assert.Equal(t, []model.SiblingClicks{
		{ShortCode: "abc123", Title: "Launch", Clicks: 2},
		{ShortCode: "xyz789", Title: "xyz789", Clicks: 1},
	}, report.SiblingsTop)
	assert.Len(t, report.SiblingsHourly, 2)
	assert.Len(t, report.SiblingsDaily, 2)
}

func TestBuildReport_LongRangeSuppressesHourly(t *testing.T) {
	target := link(1, "abc123", "")
	var events []model.ClickEvent
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10*24; i += 7 {
		events = append(events, model.ClickEvent{LinkID: 1, OccurredAt: start.Add(time.Duration(i) * time.Hour)})
	}
	window := ResolveWindow("custom", "2024-03-01T00:00:00Z", "2024-03-11T00:00:00Z", testNow, time.UTC)

	report := BuildReport(ReportInput{Link: &target, Siblings: []model.Link{target}, Events: events, Window: window})

	assert.Equal(t, []model.HourlyClicks{}, report.Hourly)
	assert.NotEmpty(t, report.Daily)
	var total int64
	for _, d := range report.Daily {
		total += d.Clicks
	}
	assert.Equal(t, int64(len(events)), total)
	assert.NotEmpty(t, report.SiblingsHourly)
}

func TestBuildReport_TwoDayBoundaryKeepsHourly(t *testing.T) {
	target := link(1, "abc123", "")
	window := ResolveWindow("custom", "2024-03-01T00:00:00Z", "2024-03-03T00:00:00Z", testNow, time.UTC)
	events := []model.ClickEvent{click(1, "2024-03-02T05:00:00Z")}

	report := BuildReport(ReportInput{Link: &target, Events: events, Window: window})

	assert.Len(t, report.Hourly, 1)
	assert.Equal(t, []model.SiblingClicks{{ShortCode: "abc123", Title: "abc123", Clicks: 1}}, report.SiblingsTop)
}

func TestBuildReport_UnparsableCustomMatches24h(t *testing.T) {
	target := link(1, "abc123", "")
	events := []model.ClickEvent{click(1, "2024-03-10T09:00:00Z"), click(1, "2024-03-01T09:00:00Z")}

	custom := BuildReport(ReportInput{
		Link:   &target,
		Events: events,
		Window: ResolveWindow("custom", "garbage", "also garbage", testNow, time.UTC),
	})
	day := BuildReport(ReportInput{
		Link:   &target,
		Events: events,
		Window: ResolveWindow("24h", "", "", testNow, time.UTC),
	})

	assert.Equal(t, day, custom)
	assert.Equal(t, "24h", custom.Range)
}
