package query

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
)

// Windowless is implemented by sources that answer a whole date range in one
// request, such as feeds.
type Windowless interface {
	Windowless() bool
}

// Feed reads one RSS/Atom feed and keeps items in the window whose title or
// description contains the query.
type Feed struct {
	URL    string
	Label  string
	parser *gofeed.Parser
}

// NewFeed creates a feed source. An empty name is derived from the feed host.
func NewFeed(feedURL, name string) *Feed {
	if name == "" {
		name = extractSourceName(feedURL)
	}
	return &Feed{URL: feedURL, Label: name, parser: gofeed.NewParser()}
}

// Name is "rss:" followed by the lower-cased feed label.
func (f *Feed) Name() string   { return "rss:" + strings.ToLower(strings.ReplaceAll(f.Label, " ", "_")) }
func (*Feed) MaxLimit() int    { return 1 << 20 }
func (*Feed) Windowless() bool { return true }

func (f *Feed) BuildRequest(Page) (Request, error) {
	return Request{URL: f.URL}, nil
}

func (f *Feed) ParsePage(p Page, body []byte) ([]Result, error) {
	feed, err := f.parser.ParseString(string(body))
	if err != nil {
		return nil, eris.Wrapf(err, "%s: parse feed", f.Name())
	}

	needle := strings.ToLower(strings.TrimSpace(p.Params.Query))
	var results []Result
	for _, item := range feed.Items {
		r, published := parseItem(item)
		if r == nil {
			continue
		}
		if !isWithinWindow(published, p.Window) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(r.Title), needle) &&
			!strings.Contains(strings.ToLower(r.Lead), needle) {
			continue
		}
		results = append(results, *r)
	}
	return results, nil
}

func parseItem(item *gofeed.Item) (*Result, *time.Time) {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if itemURL == "" {
		return nil, nil
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil, nil
	}

	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}
	var date string
	if published != nil {
		date = published.Format(time.RFC3339)
	}

	id := item.GUID
	if id == "" {
		id = itemURL
	}

	return &Result{
		ID:           id,
		URL:          itemURL,
		Title:        title,
		DateModified: date,
		Lead:         stripHTML(item.Description),
	}, published
}

func isWithinWindow(published *time.Time, w Window) bool {
	if published == nil {
		return true // benefit of the doubt
	}
	return !published.Before(w.From) && published.Before(w.To)
}

func stripHTML(text string) string {
	if text == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return strings.TrimSpace(text)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
