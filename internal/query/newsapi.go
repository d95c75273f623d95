package query

import (
	"encoding/json"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// NewsAPI queries the newsapi.org everything endpoint. It pages by page
// number, derived from the offset.
type NewsAPI struct {
	Endpoint string
	Language string
	apiKey   string
}

// NewNewsAPI creates a NewsAPI source reading its key from apiKeyEnv.
func NewNewsAPI(endpoint, apiKeyEnv, language string) *NewsAPI {
	return &NewsAPI{
		Endpoint: endpoint,
		Language: language,
		apiKey:   os.Getenv(apiKeyEnv),
	}
}

// IsConfigured returns whether the API key is available.
func (n *NewsAPI) IsConfigured() bool {
	return n.apiKey != ""
}

func (*NewsAPI) Name() string  { return "newsapi" }
func (*NewsAPI) MaxLimit() int { return 100 }

func (n *NewsAPI) BuildRequest(p Page) (Request, error) {
	if n.apiKey == "" {
		return Request{}, eris.New("newsapi: api key not configured")
	}
	q := url.Values{
		"q":        {p.Params.Query},
		"from":     {p.Window.From.Format(dateLayout)},
		"to":       {p.Window.To.Format(dateLayout)},
		"pageSize": {strconv.Itoa(p.Limit)},
		"page":     {strconv.Itoa(p.Offset/p.Limit + 1)},
		"sortBy":   {"publishedAt"},
	}
	if n.Language != "" {
		q.Set("language", n.Language)
	}
	return Request{
		URL:    n.Endpoint,
		Query:  q,
		Header: map[string]string{"X-Api-Key": n.apiKey},
	}, nil
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		PublishedAt string `json:"publishedAt"`
		Description string `json:"description"`
	} `json:"articles"`
}

func (*NewsAPI) ParsePage(_ Page, body []byte) ([]Result, error) {
	var r newsAPIResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, eris.Wrap(err, "newsapi: decode")
	}
	if r.Status != "ok" {
		return nil, eris.Errorf("newsapi: status %s: %s", r.Status, r.Message)
	}

	var results []Result
	for _, a := range r.Articles {
		if a.URL == "" || a.Title == "" {
			continue
		}
		if a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}
		results = append(results, Result{
			ID:           a.URL,
			URL:          a.URL,
			Title:        strings.TrimSpace(a.Title),
			DateModified: a.PublishedAt,
			Lead:         strings.TrimSpace(a.Description),
		})
	}
	return results, nil
}
