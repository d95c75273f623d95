package nlp

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
)

// Annif suggestion parameters.
const (
	AnnifLimit     = 15
	AnnifThreshold = 0.2
)

// AnnifClient calls the suggest endpoint of an Annif project.
type AnnifClient struct {
	URL    string
	client *resty.Client
}

// NewAnnifClient creates a client for the project suggest endpoint at url.
func NewAnnifClient(url string, client *resty.Client) *AnnifClient {
	return &AnnifClient{URL: url, client: client}
}

// SuggestURL is the suggest endpoint of project on an Annif server.
func SuggestURL(base, project string) string {
	return base + "/v1/projects/" + project + "/suggest"
}

// Suggest returns the raw JSON suggestion response for text.
func (a *AnnifClient) Suggest(ctx context.Context, text string) (string, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"text":      text,
			"limit":     strconv.Itoa(AnnifLimit),
			"threshold": strconv.FormatFloat(AnnifThreshold, 'f', -1, 64),
		}).
		Post(a.URL)
	if err != nil {
		return "", eris.Wrap(err, "annif: request")
	}
	if err := checkStatus(resp, "annif"); err != nil {
		return "", err
	}
	return resp.String(), nil
}

type annifResponse struct {
	Results []struct {
		URI   string  `json:"uri"`
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// SubjectURIs extracts the subject URIs, each wrapped in angle brackets.
func SubjectURIs(raw string) ([]string, error) {
	var r annifResponse
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, eris.Wrap(err, "annif: decode response")
	}
	uris := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		uris = append(uris, "<"+res.URI+">")
	}
	return uris, nil
}
