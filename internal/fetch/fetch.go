// Package fetch extracts article text and quoted persons from article pages.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	readability "github.com/go-shiori/go-readability"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Result is the extracted text of one article.
type Result struct {
	Content string   `json:"content"`
	Persons []string `json:"persons"`
}

// Encode serializes r for the response cache.
func (r Result) Encode() (string, error) {
	if r.Persons == nil {
		r.Persons = []string{}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", eris.Wrap(err, "fetch: encode result")
	}
	return string(b), nil
}

// Decode parses a cached Result.
func Decode(s string) (Result, error) {
	var r Result
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return Result{}, eris.Wrap(err, "fetch: decode result")
	}
	return r, nil
}

// Fetcher retrieves the text of an article page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

// Session is a Fetcher holding resources that must be released.
type Session interface {
	Fetcher
	Close() error
}

// Opener acquires a Session for the duration of one fetch phase.
type Opener func(ctx context.Context) (Session, error)

type nopSession struct{ Fetcher }

func (nopSession) Close() error { return nil }

// Static wraps a Fetcher without resources as an Opener.
func Static(f Fetcher) Opener {
	return func(context.Context) (Session, error) { return nopSession{f}, nil }
}

// CSSFetcher fetches pages over HTTP and extracts text with per-site CSS
// selectors, falling back to readability for unknown sites.
type CSSFetcher struct {
	client    *resty.Client
	selectors []Selectors
}

// NewCSSFetcher creates a fetcher using the given site selectors.
func NewCSSFetcher(client *resty.Client, selectors []Selectors) *CSSFetcher {
	return &CSSFetcher{client: client, selectors: selectors}
}

// Fetch downloads url and extracts its text.
func (f *CSSFetcher) Fetch(ctx context.Context, articleURL string) (*Result, error) {
	zap.L().Info("fetching", zap.String("url", articleURL))

	resp, err := f.client.R().SetContext(ctx).Get(articleURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: get %s", articleURL)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, eris.Errorf("fetch: unexpected response code %d for %s", resp.StatusCode(), articleURL)
	}

	body := resp.Body()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse %s", articleURL)
	}

	sel, ok := match(f.selectors, articleURL)
	if !ok {
		zap.L().Warn("no known css selectors, using readability", zap.String("url", articleURL))
		return &Result{Content: readable(body, articleURL), Persons: []string{}}, nil
	}
	return sel.Extract(doc), nil
}

// readable extracts the main text of a page with readability.
func readable(body []byte, articleURL string) string {
	parsedURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}
