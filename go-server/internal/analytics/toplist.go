package analytics

import (
	"sort"

	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

const (
	TopListSize   = 10
	MaxNameLength = 120

	DirectReferer    = "(direct)"
	UnknownUserAgent = "(unknown)"
)

// TopReferers ranks referers; clicks without one count as DirectReferer.
func TopReferers(events []model.ClickEvent) []model.NamedClicks {
	return topBy(events, func(e model.ClickEvent) *string { return e.Referer }, DirectReferer)
}

// TopUserAgents ranks user agents; clicks without one count as UnknownUserAgent.
func TopUserAgents(events []model.ClickEvent) []model.NamedClicks {
	return topBy(events, func(e model.ClickEvent) *string { return e.UserAgent }, UnknownUserAgent)
}

// topBy counts events per key, orders by descending count (ties keep first
// appearance) and caps the result at TopListSize entries.
func topBy(events []model.ClickEvent, key func(model.ClickEvent) *string, sentinel string) []model.NamedClicks {
	index := make(map[string]int)
	var ranked []model.NamedClicks
	for _, e := range events {
		name := sentinel
		if v := key(e); v != nil && *v != "" {
			name = *v
		}
		i, ok := index[name]
		if !ok {
			i = len(ranked)
			index[name] = i
			ranked = append(ranked, model.NamedClicks{Name: name})
		}
		ranked[i].Clicks++
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Clicks > ranked[j].Clicks })
	if len(ranked) > TopListSize {
		ranked = ranked[:TopListSize]
	}
	for i := range ranked {
		ranked[i].Name = truncateRunes(ranked[i].Name, MaxNameLength)
	}
	if ranked == nil {
		ranked = []model.NamedClicks{}
	}
	return ranked
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
