// Package nlp provides clients for the language-analysis collaborators:
// dependency parser, named-entity tagger, sentiment classifier and Annif.
package nlp

import (
	"context"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
)

// Parser turns plain text into a CoNLL-U dependency parse.
type Parser interface {
	Parse(ctx context.Context, text string) (string, error)
}

// Tagger runs named-entity tagging on a single line of text.
type Tagger interface {
	Tag(ctx context.Context, line string) ([]Sentence, error)
}

// Classifier returns [negative, neutral, positive] scores per sentence.
type Classifier interface {
	Predict(ctx context.Context, sentences []string) ([][3]float64, error)
}

// Suggester returns the raw topic-suggestion response for a text.
type Suggester interface {
	Suggest(ctx context.Context, text string) (string, error)
}

func checkStatus(resp *resty.Response, service string) error {
	if resp.StatusCode() != http.StatusOK {
		return eris.Errorf("%s: unexpected response code %d", service, resp.StatusCode())
	}
	return nil
}
