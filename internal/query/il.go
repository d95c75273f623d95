package query

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
)

const ilBaseURL = "https://iltalehti.fi/"

// IL queries the Iltalehti article search API.
type IL struct {
	Endpoint string
}

func (IL) Name() string  { return "il" }
func (IL) MaxLimit() int { return 200 }

func (s IL) BuildRequest(p Page) (Request, error) {
	return Request{
		URL: s.Endpoint,
		Query: url.Values{
			"date_start": {p.Window.From.Format(dateLayout)},
			"date_end":   {p.Window.To.Format(dateLayout)},
			"q":          {p.Params.Query},
			"offset":     {strconv.Itoa(p.Offset)},
			"limit":      {strconv.Itoa(p.Limit)},
		},
	}, nil
}

type ilResponse struct {
	Response []struct {
		ArticleID   flexString `json:"article_id"`
		Title       string     `json:"title"`
		UpdatedAt   string     `json:"updated_at"`
		PublishedAt string     `json:"published_at"`
		Lead        string     `json:"lead"`
		Category    struct {
			CategoryName string `json:"category_name"`
		} `json:"category"`
	} `json:"response"`
}

func (IL) ParsePage(_ Page, body []byte) ([]Result, error) {
	var r ilResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, eris.Wrap(err, "il: decode")
	}

	results := make([]Result, 0, len(r.Response))
	for _, a := range r.Response {
		date := a.UpdatedAt
		if date == "" {
			date = a.PublishedAt
		}
		results = append(results, Result{
			ID:           string(a.ArticleID),
			URL:          ilBaseURL + a.Category.CategoryName + "/a/" + string(a.ArticleID),
			Title:        a.Title,
			DateModified: date,
			Lead:         a.Lead,
		})
	}
	return results, nil
}
