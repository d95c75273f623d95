package scrape

import (
	"context"
	"maps"
	"time"

	"github.com/TobiSchelling/mediascraper/internal/corpus"
	"github.com/TobiSchelling/mediascraper/internal/enrich"
	"github.com/TobiSchelling/mediascraper/internal/query"
	"github.com/TobiSchelling/mediascraper/internal/table"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MediumTwitter is the medium backed by the local tweet corpus.
const MediumTwitter = "twitter"

// Extra parameters understood by the twitter medium.
const (
	ExtraScrapeIDs    = "scrape_ids"
	ExtraDropRetweets = "drop_retweets"
	ExtraAccounts     = "accounts"
	ExtraSample       = "sample"
)

// CorpusFilter builds the corpus filter of a request. The date range covers
// whole days in loc.
func CorpusFilter(params query.Params, loc *time.Location) (corpus.Filter, error) {
	f := corpus.Filter{Contains: params.Query}
	if !params.From.IsZero() {
		y, m, d := params.From.Date()
		f.From = time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	if !params.To.IsZero() {
		y, m, d := params.To.Date()
		f.To = time.Date(y, m, d, 23, 59, 59, 0, loc)
	}

	var err error
	if f.Authors, err = stringList(params.Extra[ExtraAccounts]); err != nil {
		return f, eris.Wrap(err, ExtraAccounts)
	}
	if v, ok := params.Extra[ExtraDropRetweets].(bool); ok {
		f.DropRetweets = v
	}
	if v, ok := table.Float(params.Extra[ExtraSample]); ok && v > 0 {
		f.Sample = int(v)
	}
	return f, nil
}

func (o *Orchestrator) scrapeCorpus(ctx context.Context, params query.Params) (*table.Frame, error) {
	ids, err := stringList(params.Extra[ExtraScrapeIDs])
	if err != nil {
		return nil, eris.Wrap(err, "scrape: "+ExtraScrapeIDs)
	}
	filter, err := CorpusFilter(params, o.loc)
	if err != nil {
		return nil, eris.Wrap(err, "scrape")
	}

	zap.L().Info("loading tweet database", zap.Strings("scrape_ids", ids))
	c, err := corpus.Load(o.tweetDir, ids...)
	if err != nil {
		return nil, err
	}

	zap.L().Info("filtering tweets", zap.Int("tweets", len(c.Tweets)))
	f := c.Query(filter, o.loc)
	if o.metadataCSV != "" {
		if f, err = corpus.MergeMetadata(f, o.metadataCSV); err != nil {
			return nil, err
		}
	}

	records, extra := corpusRecords(f)
	tparams := corpusParams(params)
	if err := o.pipeline.Enrich(ctx, records, tparams); err != nil {
		return nil, err
	}
	return enrich.Frame(records, o.pipeline.Active(tparams), extra...), nil
}

// corpusRecords turns tweet rows into records whose content is the tweet
// text. The remaining tweet columns are carried as extra columns.
func corpusRecords(f *table.Frame) ([]*enrich.Record, []string) {
	var extra []string
	for _, c := range f.Columns {
		if c != "id" && c != "text" {
			extra = append(extra, c)
		}
	}
	extra = append(extra, "hashtags")

	records := make([]*enrich.Record, 0, f.Len())
	for _, row := range f.Rows {
		id := table.String(row["id"])
		text := table.String(row["text"])

		rest := maps.Clone(row)
		delete(rest, "text")
		rest["hashtags"] = corpus.Hashtags(text)

		records = append(records, &enrich.Record{
			Result: query.Result{
				ID:           id,
				URL:          "twitter:" + id,
				DateModified: table.String(row["created_at"]),
			},
			Content: text,
			Persons: corpus.Mentions(text),
			Extra:   rest,
		})
	}
	return records, extra
}

// corpusParams enables content, which tweets always have, and disables the
// tweet-link stage.
func corpusParams(params query.Params) query.Params {
	enabled := []string{enrich.StageContent}
	for _, s := range params.Enabled {
		if s != enrich.StageTwitter && s != enrich.StageContent {
			enabled = append(enabled, s)
		}
	}
	params.Enabled = enabled
	return params
}

// stringList accepts a single string or a list of strings as decoded from
// JSON.
func stringList(v any) ([]string, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, eris.Errorf("expected a string, got %v", item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, eris.Errorf("expected a string or a list, got %T", v)
}
