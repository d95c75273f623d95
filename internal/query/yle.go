package query

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Yle queries the Yle news search API.
type Yle struct {
	Endpoint string
	AppID    string
	AppKey   string
}

func (Yle) Name() string  { return "yle" }
func (Yle) MaxLimit() int { return 10000 }

func (y Yle) BuildRequest(p Page) (Request, error) {
	return Request{
		URL: y.Endpoint,
		Query: url.Values{
			"app_id":     {y.AppID},
			"app_key":    {y.AppKey},
			"service":    {"uutiset"},
			"language":   {"fi"},
			"uiLanguage": {"fi"},
			"type":       {"article"},
			"time":       {"custom"},
			"timeFrom":   {p.Window.From.Format(dateLayout)},
			"timeTo":     {p.Window.To.Format(dateLayout)},
			"query":      {p.Params.Query},
			"offset":     {strconv.Itoa(p.Offset)},
			"limit":      {strconv.Itoa(p.Limit)},
		},
	}, nil
}

type yleResponse struct {
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
	Data []struct {
		ID  flexString `json:"id"`
		URL struct {
			Full string `json:"full"`
		} `json:"url"`
		Headline      string `json:"headline"`
		DatePublished string `json:"datePublished"`
		Lead          string `json:"lead"`
	} `json:"data"`
}

func (Yle) ParsePage(p Page, body []byte) ([]Result, error) {
	var r yleResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, eris.Wrap(err, "yle: decode")
	}

	if r.Meta.Count > ResultCeiling {
		zap.L().Warn("query exceeds the yle result ceiling, some results are missing; use a shorter time span",
			zap.Int("count", r.Meta.Count),
			zap.String("from", p.Window.From.Format(dateLayout)),
			zap.String("to", p.Window.To.Format(dateLayout)),
		)
	}

	results := make([]Result, 0, len(r.Data))
	for _, a := range r.Data {
		results = append(results, Result{
			ID:           string(a.ID),
			URL:          a.URL.Full,
			Title:        a.Headline,
			DateModified: a.DatePublished,
			Lead:         a.Lead,
		})
	}
	return results, nil
}
