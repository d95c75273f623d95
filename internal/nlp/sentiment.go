package nlp

import (
	"context"
	"regexp"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
)

var sentenceEnd = regexp.MustCompile(`[.!?] `)

// SplitSentences splits text at sentence-ending punctuation followed by a space.
func SplitSentences(text string) []string {
	return sentenceEnd.Split(text, -1)
}

// Score is the mean over sentences of positive minus negative score.
// It reports false when there are no sentences.
func Score(scores [][3]float64) (float64, bool) {
	if len(scores) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range scores {
		sum += s[2] - s[0]
	}
	return sum / float64(len(scores)), true
}

// SentimentClient calls a sentence-level sentiment classifier service.
type SentimentClient struct {
	URL    string
	client *resty.Client
}

// NewSentimentClient creates a classifier client.
func NewSentimentClient(url string, client *resty.Client) *SentimentClient {
	return &SentimentClient{URL: url, client: client}
}

type sentimentRequest struct {
	Sentences []string `json:"sentences"`
}

type sentimentResponse struct {
	Scores [][3]float64 `json:"scores"`
}

// Predict returns [negative, neutral, positive] scores for each sentence.
func (c *SentimentClient) Predict(ctx context.Context, sentences []string) ([][3]float64, error) {
	var out sentimentResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(sentimentRequest{Sentences: sentences}).
		SetResult(&out).
		Post(c.URL)
	if err != nil {
		return nil, eris.Wrap(err, "sentiment: request")
	}
	if err := checkStatus(resp, "sentiment"); err != nil {
		return nil, err
	}
	if len(out.Scores) != len(sentences) {
		return nil, eris.Errorf("sentiment: got %d scores for %d sentences", len(out.Scores), len(sentences))
	}
	return out.Scores, nil
}

// TextSentiment classifies every sentence of text and returns the mean score.
func TextSentiment(ctx context.Context, c Classifier, text string) (float64, bool, error) {
	scores, err := c.Predict(ctx, SplitSentences(text))
	if err != nil {
		return 0, false, err
	}
	score, ok := Score(scores)
	return score, ok, nil
}
