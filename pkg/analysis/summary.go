package analysis

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Summary is the list-view projection of an analysis.
type Summary struct {
	ID               string    `json:"id"`
	Filename         string    `json:"filename"`
	CreatedAt        time.Time `json:"createdAt"`
	Status           Status    `json:"status"`
	Score            *int      `json:"score,omitempty"`
	FillerWordsCount int       `json:"fillerWordsCount"`
	SpeechRate       float64   `json:"speechRate"`
	PausesCount      int       `json:"pausesCount"`
}

// Summarize projects a onto a [Summary]. Missing sub-analyses contribute
// zero counts.
func Summarize(a *Analysis) Summary {
	s := Summary{
		ID:        a.ID,
		Filename:  a.Filename,
		CreatedAt: a.CreatedAt,
		Status:    a.Status,
		Score:     a.Score,
	}
	if a.SpeechAnalysis != nil {
		s.FillerWordsCount = a.SpeechAnalysis.FillerWordsAnalysis.Total
		s.PausesCount = a.SpeechAnalysis.SilenceAnalysis.Pauses
	}
	if a.AudioAnalysis != nil {
		s.SpeechRate = a.AudioAnalysis.SpeechRate
	}
	return s
}

// ChartPoint is one bucket of the statistics chart.
type ChartPoint struct {
	Name     string `json:"name"`
	Analyses int    `json:"analyses"`
}

// Stats aggregates the completed analyses of one user over a [TimeRange].
type Stats struct {
	TotalAnalyses    int `json:"totalAnalyses"`
	TotalFillerWords int `json:"totalFillerWords"`
	// TotalDuration is in whole minutes.
	TotalDuration int          `json:"totalDuration"`
	ChartData     []ChartPoint `json:"chartData"`
}

// TimeRange selects the window for [Stats].
type TimeRange string

const (
	RangeDay   TimeRange = "day"
	RangeMonth TimeRange = "month"
	RangeYear  TimeRange = "year"
	RangeAll   TimeRange = "all"
)

// ParseTimeRange validates s. The empty string maps to [RangeAll].
func ParseTimeRange(s string) (TimeRange, error) {
	switch r := TimeRange(s); r {
	case RangeDay, RangeMonth, RangeYear, RangeAll:
		return r, nil
	case "":
		return RangeAll, nil
	default:
		return "", fmt.Errorf("analysis: invalid time range %q", s)
	}
}

// Since returns the lower bound of r relative to now. ok is false for
// [RangeAll].
func (r TimeRange) Since(now time.Time) (since time.Time, ok bool) {
	switch r {
	case RangeDay:
		return now.Add(-24 * time.Hour), true
	case RangeMonth:
		return now.Add(-30 * 24 * time.Hour), true
	case RangeYear:
		return now.Add(-365 * 24 * time.Hour), true
	default:
		return time.Time{}, false
	}
}

var monthNames = [...]string{"Jan", "Fev", "Mar", "Abr", "Mai", "Jun", "Jul", "Ago", "Set", "Out", "Nov", "Dez"}

// StatsInput is the slice of a completed analysis that [BuildStats] needs.
type StatsInput struct {
	CreatedAt   time.Time
	FillerWords int
	// Duration is the audio length in seconds.
	Duration float64
}

// BuildStats aggregates items for r. Chart buckets are hours ("14h") for
// [RangeDay], days ("3/7") for [RangeMonth] and month names otherwise,
// ordered chronologically. Items are expected to be pre-filtered to r.
func BuildStats(r TimeRange, items []StatsInput) Stats {
	st := Stats{ChartData: []ChartPoint{}}
	var seconds float64
	type bucket struct {
		key  time.Time
		name string
	}
	counts := map[time.Time]int{}
	var buckets []bucket
	for _, it := range items {
		st.TotalAnalyses++
		st.TotalFillerWords += it.FillerWords
		seconds += it.Duration

		t := it.CreatedAt.UTC()
		var b bucket
		switch r {
		case RangeDay:
			b.key = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
			b.name = fmt.Sprintf("%dh", t.Hour())
		case RangeMonth:
			b.key = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			b.name = fmt.Sprintf("%d/%d", t.Day(), int(t.Month()))
		default:
			b.key = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
			b.name = monthNames[t.Month()-1]
		}
		if _, seen := counts[b.key]; !seen {
			buckets = append(buckets, b)
		}
		counts[b.key]++
	}
	slices.SortFunc(buckets, func(a, b bucket) int { return a.key.Compare(b.key) })
	for _, b := range buckets {
		st.ChartData = append(st.ChartData, ChartPoint{Name: b.name, Analyses: counts[b.key]})
	}
	st.TotalDuration = int(math.Round(seconds / 60))
	return st
}

// Page is the pagination envelope returned by list queries.
type Page struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	Total    int  `json:"total"`
	HasMore  bool `json:"hasMore"`
}

// NewPage fills HasMore from the other fields. page is 1-based.
func NewPage(page, pageSize, total int) Page {
	return Page{
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		HasMore:  page*pageSize < total,
	}
}
