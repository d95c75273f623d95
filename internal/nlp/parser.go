package nlp

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
)

// ParserClient posts text to a dependency-parser service.
type ParserClient struct {
	URL    string
	client *resty.Client
}

// NewParserClient creates a parser client.
func NewParserClient(url string, client *resty.Client) *ParserClient {
	return &ParserClient{URL: url, client: client}
}

// Parse returns the CoNLL-U parse of text.
func (p *ParserClient) Parse(ctx context.Context, text string) (string, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain; charset=utf-8").
		SetBody([]byte(text)).
		Post(p.URL)
	if err != nil {
		return "", eris.Wrap(err, "parser: request")
	}
	if err := checkStatus(resp, "parser"); err != nil {
		return "", err
	}
	return resp.String(), nil
}
