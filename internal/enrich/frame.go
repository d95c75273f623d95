package enrich

import (
	"math"
	"slices"

	"github.com/TobiSchelling/mediascraper/internal/table"
)

// BaseColumns are the columns every record has.
var BaseColumns = []string{"id", "url", "title", "date_modified", "lead"}

// stageColumns are the columns each stage adds.
var stageColumns = map[string][]string{
	StageContent:   {"content", "persons"},
	StageParser:    {"conllu"},
	StageNER:       {"entities"},
	StageTwitter:   {"tweets", "tweet_sentiments"},
	StageSentiment: {"sentiment"},
	StageAnnif:     {"subjects"},
}

// Frame tabulates records with the columns of the given stages followed by
// extra columns. Extra keys of a record not named in extra are appended in
// sorted order.
func Frame(records []*Record, stages []string, extra ...string) *table.Frame {
	cols := slices.Clone(BaseColumns)
	for _, s := range []string{StageContent, StageParser, StageNER, StageTwitter, StageSentiment, StageAnnif} {
		if slices.Contains(stages, s) {
			cols = append(cols, stageColumns[s]...)
		}
	}
	for _, c := range extra {
		if !slices.Contains(cols, c) {
			cols = append(cols, c)
		}
	}

	f := table.New(cols...)
	for _, rec := range records {
		row := table.Row{
			"id":            rec.ID,
			"url":           rec.URL,
			"title":         rec.Title,
			"date_modified": rec.DateModified,
			"lead":          rec.Lead,
		}
		for _, s := range stages {
			switch s {
			case StageContent:
				row["content"] = rec.Content
				row["persons"] = orEmpty(rec.Persons)
			case StageParser:
				row["conllu"] = rec.CoNLLU
			case StageNER:
				row["entities"] = rec.Entities
			case StageTwitter:
				row["tweets"] = rec.Tweets
				row["tweet_sentiments"] = nullable(rec.TweetSentiments)
			case StageSentiment:
				sentiment := math.NaN()
				if rec.Sentiment != nil {
					sentiment = *rec.Sentiment
				}
				row["sentiment"] = sentiment
			case StageAnnif:
				row["subjects"] = orEmpty(rec.Subjects)
			}
		}
		for k, v := range rec.Extra {
			if _, taken := row[k]; !taken {
				row[k] = v
			}
		}
		f.Append(row)
	}
	return f
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// nullable maps NaN scores to null so the list stays JSON encodable.
func nullable(scores []float64) []any {
	out := make([]any, len(scores))
	for i, s := range scores {
		if !math.IsNaN(s) {
			out[i] = s
		}
	}
	return out
}
