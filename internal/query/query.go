// Package query implements the paginated search protocol shared by the news sources.
package query

import (
	"net/url"
	"time"
)

// ResultCeiling is the observed maximum number of results a source returns for one query.
const ResultCeiling = 10000

// WindowDays is the width of the sub-ranges a date range is split into.
const WindowDays = 7

// Result is one article row returned by a source.
type Result struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	DateModified string `json:"date_modified"`
	Lead         string `json:"lead"`
}

// Params describes one scrape request.
type Params struct {
	Query   string
	From    time.Time
	To      time.Time
	Limit   int
	Delay   time.Duration
	Enabled []string
	Extra   map[string]any
}

// IsEnabled reports whether the named stage was requested.
func (p Params) IsEnabled(stage string) bool {
	for _, s := range p.Enabled {
		if s == stage {
			return true
		}
	}
	return false
}

// Window is a sub-range of the requested dates.
type Window struct {
	From time.Time
	To   time.Time
}

// Page identifies one request within a window.
type Page struct {
	Params Params
	Window Window
	Offset int
	Limit  int
}

// Request is what a source wants fetched for a page.
type Request struct {
	URL    string
	Query  url.Values
	Header map[string]string
}

// Source is one searchable news medium.
type Source interface {
	Name() string
	// MaxLimit is the page size used when the request does not set one.
	MaxLimit() int
	BuildRequest(p Page) (Request, error)
	ParsePage(p Page, body []byte) ([]Result, error)
}

// SplitWindows cuts [from, to) into week-long windows. The last window keeps
// the full width and may end after to.
func SplitWindows(from, to time.Time) []Window {
	var windows []Window
	for d := from; d.Before(to); d = d.AddDate(0, 0, WindowDays) {
		windows = append(windows, Window{From: d, To: d.AddDate(0, 0, WindowDays)})
	}
	return windows
}

// Dedupe drops rows whose URL was already seen, keeping the first.
func Dedupe(results []Result) []Result {
	seen := make(map[string]struct{}, len(results))
	out := results[:0:0]
	for _, r := range results {
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, r)
	}
	return out
}

const dateLayout = "2006-01-02"
