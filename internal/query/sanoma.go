package query

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// sanomaOffsetCeiling is the offset past which the Sanoma API stops returning results.
const sanomaOffsetCeiling = 9900

// Sanoma queries the search API shared by Helsingin Sanomat and Ilta-Sanomat.
type Sanoma struct {
	Medium   string
	BaseURL  string
	Endpoint string
	// SkipHosts lists link hosts that cannot be fetched as articles.
	SkipHosts []string
}

// NewHS returns the Helsingin Sanomat source.
func NewHS(endpoint string) Sanoma {
	return Sanoma{
		Medium:    "hs",
		BaseURL:   "https://www.hs.fi",
		Endpoint:  endpoint,
		SkipHosts: []string{"nakoislehti.hs.fi"},
	}
}

// NewIS returns the Ilta-Sanomat source.
func NewIS(endpoint string) Sanoma {
	return Sanoma{
		Medium:   "is",
		BaseURL:  "https://www.is.fi",
		Endpoint: endpoint,
	}
}

func (s Sanoma) Name() string { return s.Medium }
func (Sanoma) MaxLimit() int  { return 100 }

// BuildRequest encodes the query and the window bounds, in epoch
// milliseconds of local time, into the path.
func (s Sanoma) BuildRequest(p Page) (Request, error) {
	from := startOfDay(p.Window.From)
	to := startOfDay(p.Window.To).Add(24*time.Hour - time.Millisecond)
	return Request{
		URL: fmt.Sprintf("%s/%s/kaikki/custom/new/%d/%d/%d/%d",
			strings.TrimRight(s.Endpoint, "/"),
			url.PathEscape(p.Params.Query),
			p.Offset, p.Limit,
			from.UnixMilli(), to.UnixMilli(),
		),
	}, nil
}

type sanomaArticle struct {
	ID          flexString `json:"id"`
	Href        string     `json:"href"`
	Title       string     `json:"title"`
	DisplayDate string     `json:"displayDate"`
	Ingress     string     `json:"ingress"`
}

func (s Sanoma) ParsePage(p Page, body []byte) ([]Result, error) {
	if p.Offset >= sanomaOffsetCeiling {
		zap.L().Warn("query exceeds the sanoma result ceiling, some results are missing; use a shorter time span",
			zap.String("source", s.Medium),
			zap.Int("offset", p.Offset),
		)
	}

	var articles []sanomaArticle
	if err := json.Unmarshal(body, &articles); err != nil {
		return nil, eris.Wrapf(err, "%s: decode", s.Medium)
	}

	results := make([]Result, 0, len(articles))
	for _, a := range articles {
		if s.skip(a.Href) {
			continue
		}
		link := a.Href
		if !strings.HasPrefix(link, "http") {
			link = s.BaseURL + link
		}
		results = append(results, Result{
			ID:           string(a.ID),
			URL:          link,
			Title:        a.Title,
			DateModified: a.DisplayDate,
			Lead:         a.Ingress,
		})
	}
	return results, nil
}

func (s Sanoma) skip(href string) bool {
	for _, h := range s.SkipHosts {
		if strings.Contains(href, h) {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}
