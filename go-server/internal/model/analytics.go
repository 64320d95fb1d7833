package model

// AnalyticsReport is the aggregated view of a link's clicks over a range
type AnalyticsReport struct {
	Success        bool            `json:"success"`
	ShortCode      string          `json:"short_code"`
	OriginalURL    string          `json:"original_url"`
	Range          string          `json:"range"`
	Start          string          `json:"start"`
	End            string          `json:"end"`
	Hourly         []HourlyClicks  `json:"hourly"`
	Daily          []DailyClicks   `json:"daily"`
	SiblingsTop    []SiblingClicks `json:"siblings_top"`
	SiblingsDaily  []SiblingDaily  `json:"siblings_daily"`
	SiblingsHourly []SiblingHourly `json:"siblings_hourly"`
	RefererTop     []NamedClicks   `json:"referer_top"`
	UATop          []NamedClicks   `json:"ua_top"`
}

type HourlyClicks struct {
	Hour   string `json:"hour"`
	Clicks int64  `json:"clicks"`
}

type DailyClicks struct {
	Date   string `json:"date"`
	Clicks int64  `json:"clicks"`
}

type NamedClicks struct {
	Name   string `json:"name"`
	Clicks int64  `json:"clicks"`
}

type SiblingClicks struct {
	ShortCode string `json:"short_code"`
	Title     string `json:"title"`
	Clicks    int64  `json:"clicks"`
}

type SiblingDaily struct {
	Date      string `json:"date"`
	ShortCode string `json:"short_code"`
	Title     string `json:"title"`
	Clicks    int64  `json:"clicks"`
}

type SiblingHourly struct {
	Date      string `json:"date"`
	Hour      int    `json:"hour"`
	ShortCode string `json:"short_code"`
	Title     string `json:"title"`
	Clicks    int64  `json:"clicks"`
}
