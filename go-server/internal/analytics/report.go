package analytics

import (
	"time"

	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

// ReportInput carries everything needed to assemble a report. Events may
// include clicks of every sibling; only those of Link feed the per-link
// series.
type ReportInput struct {
	Link     *model.Link
	Siblings []model.Link
	Events   []model.ClickEvent
	Window   Window
	Location *time.Location
}

// BuildReport assembles the analytics report for one link.
func BuildReport(in ReportInput) *model.AnalyticsReport {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	own := make([]model.ClickEvent, 0, len(in.Events))
	for _, e := range in.Events {
		if e.LinkID == in.Link.ID && inWindow(e.OccurredAt, in.Window) {
			own = append(own, e)
		}
	}

	buckets := HourlyBuckets(own)
	hourly := []model.HourlyClicks{}
	if in.Window.Duration() <= HourlyDetailLimit {
		hourly = HourlySeries(buckets, loc)
	}

	siblings := in.Siblings
	if !containsLink(siblings, in.Link.ID) {
		siblings = append([]model.Link{*in.Link}, siblings...)
	}
	var siblingEvents []model.ClickEvent
	for _, e := range in.Events {
		if inWindow(e.OccurredAt, in.Window) {
			siblingEvents = append(siblingEvents, e)
		}
	}
	sib := Siblings(siblings, siblingEvents, loc)

	return &model.AnalyticsReport{
		Success:        true,
		ShortCode:      in.Link.ShortCode,
		OriginalURL:    in.Link.OriginalURL,
		Range:          in.Window.Range,
		Start:          in.Window.Start.UTC().Format(time.RFC3339),
		End:            in.Window.End.UTC().Format(time.RFC3339),
		Hourly:         hourly,
		Daily:          DailySeries(buckets, loc),
		SiblingsTop:    sib.Top,
		SiblingsDaily:  sib.Daily,
		SiblingsHourly: sib.Hourly,
		RefererTop:     TopReferers(own),
		UATop:          TopUserAgents(own),
	}
}

func inWindow(t time.Time, w Window) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func containsLink(links []model.Link, id int64) bool {
	for _, l := range links {
		if l.ID == id {
			return true
		}
	}
	return false
}
