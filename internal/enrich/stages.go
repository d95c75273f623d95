package enrich

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/TobiSchelling/mediascraper/internal/cache"
	"github.com/TobiSchelling/mediascraper/internal/nlp"
	"github.com/TobiSchelling/mediascraper/internal/table"
	"github.com/TobiSchelling/mediascraper/internal/twitter"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// TweetWindow is how far around an article's date linked tweets are searched.
const TweetWindow = 7 * 24 * time.Hour

func (p *Pipeline) parse(ctx context.Context, records []*Record) {
	for i, rec := range records {
		if ctx.Err() != nil {
			return
		}
		zap.L().Info("parsing text", progress(i, len(records)), zap.String("url", rec.URL))
		if rec.Content == "" {
			zap.L().Warn("no content to parse", zap.String("url", rec.URL))
			continue
		}
		conllu, _, err := cache.Lookup(ctx, p.store, cache.Parser, rec.URL, func(ctx context.Context) (string, error) {
			return p.services.Parser.Parse(ctx, rec.Content)
		})
		if err != nil {
			zap.L().Error("error during parsing", zap.String("url", rec.URL), zap.Error(err))
			continue
		}
		rec.CoNLLU = conllu
	}
}

func (p *Pipeline) tagEntities(ctx context.Context, records []*Record) {
	nonEmpty := cache.AcceptIf(func(s string) bool {
		var entities []nlp.Entity
		return json.Unmarshal([]byte(s), &entities) == nil && len(entities) > 0
	})

	for i, rec := range records {
		if ctx.Err() != nil {
			return
		}
		rec.Entities = []nlp.Entity{}
		if rec.Content == "" {
			zap.L().Warn("no content to tag", zap.String("url", rec.URL))
			continue
		}

		raw, hit, err := cache.Lookup(ctx, p.store, cache.NER, rec.URL, func(ctx context.Context) (string, error) {
			zap.L().Info("ner tagging text", progress(i, len(records)), zap.String("url", rec.URL))
			var entities []nlp.Entity
			for _, line := range nlp.TaggableLines(rec.Content) {
				sentences, err := p.services.Tagger.Tag(ctx, line)
				if err != nil {
					return "", err
				}
				entities = append(entities, nlp.ExtractEntities(sentences)...)
			}
			if entities == nil {
				entities = []nlp.Entity{}
			}
			b, err := json.Marshal(entities)
			if err != nil {
				return "", eris.Wrap(err, "enrich: encode entities")
			}
			return string(b), nil
		}, nonEmpty)
		if err != nil {
			zap.L().Error("error during ner tagging", zap.String("url", rec.URL), zap.Error(err))
			continue
		}
		if hit {
			zap.L().Info("using cached ner entities", progress(i, len(records)), zap.String("url", rec.URL))
		}
		if err := json.Unmarshal([]byte(raw), &rec.Entities); err != nil {
			zap.L().Error("could not decode entities", zap.String("url", rec.URL), zap.Error(err))
			rec.Entities = []nlp.Entity{}
		}
	}
}

func (p *Pipeline) scoreSentiment(ctx context.Context, records []*Record) {
	for i, rec := range records {
		if ctx.Err() != nil {
			return
		}
		zap.L().Info("calculating sentiment", progress(i, len(records)), zap.String("url", rec.URL))
		if rec.Content == "" {
			zap.L().Info("skipping sentiment", zap.String("url", rec.URL))
			continue
		}
		score, ok, err := nlp.TextSentiment(ctx, p.services.Classifier, rec.Content)
		if err != nil || !ok {
			zap.L().Info("skipping sentiment", zap.String("url", rec.URL), zap.Error(err))
			continue
		}
		rec.Sentiment = &score
	}
}

func (p *Pipeline) suggestSubjects(ctx context.Context, records []*Record) {
	for i, rec := range records {
		if ctx.Err() != nil {
			return
		}
		rec.Subjects = []string{}
		zap.L().Info("predicting subjects", progress(i, len(records)), zap.String("url", rec.URL))
		if rec.Content == "" {
			continue
		}
		raw, _, err := cache.Lookup(ctx, p.store, cache.Subject, rec.URL, func(ctx context.Context) (string, error) {
			raw, err := p.services.Suggester.Suggest(ctx, rec.Content)
			if err != nil {
				return "", err
			}
			// validate before caching
			if _, err := nlp.SubjectURIs(raw); err != nil {
				return "", err
			}
			return raw, nil
		})
		if err != nil {
			zap.L().Error("error during subject prediction", zap.String("url", rec.URL), zap.Error(err))
			continue
		}
		uris, err := nlp.SubjectURIs(raw)
		if err != nil {
			zap.L().Error("could not decode subjects", zap.String("url", rec.URL), zap.Error(err))
			continue
		}
		rec.Subjects = uris
	}
}

// TweetCacheKey identifies a tweet-link lookup for an article published at t.
func TweetCacheKey(url string, t time.Time) string {
	return "get_tweets_with_url(" + url + ", " + t.UTC().Round(time.Second).Format(time.DateTime) + " +- 1 week)"
}

// linkTweets holds the tweet lock for the whole stage so that concurrent
// jobs do not interleave their searches.
func (p *Pipeline) linkTweets(ctx context.Context, records []*Record) {
	lock := p.locks.Get(LockTweets)
	lock.Lock()
	defer lock.Unlock()

	for i, rec := range records {
		if ctx.Err() != nil {
			return
		}
		rec.Tweets, rec.TweetSentiments = []twitter.Tweet{}, []float64{}
		zap.L().Info("getting linked tweets", progress(i, len(records)),
			zap.String("url", rec.URL), zap.String("date", rec.DateModified))

		published, ok := table.Time(rec.DateModified)
		if !ok {
			zap.L().Error("error during fetching tweets: unparseable date",
				zap.String("url", rec.URL), zap.String("date", rec.DateModified))
			continue
		}

		raw, _, err := cache.Lookup(ctx, p.store, cache.Tweet, TweetCacheKey(rec.URL, published), func(ctx context.Context) (string, error) {
			tweets, err := p.services.Tweets.TweetsWithURL(ctx, rec.URL, published.Add(-TweetWindow), published.Add(TweetWindow))
			if err != nil {
				return "", err
			}
			b, err := json.Marshal(tweets)
			if err != nil {
				return "", eris.Wrap(err, "enrich: encode tweets")
			}
			if len(tweets) == 0 {
				return string(b), cache.ErrNoStore
			}
			return string(b), nil
		})
		if err != nil {
			zap.L().Error("error during fetching tweets", zap.String("url", rec.URL), zap.Error(err))
			continue
		}
		var tweets []twitter.Tweet
		if err := json.Unmarshal([]byte(raw), &tweets); err != nil {
			zap.L().Error("could not decode tweets", zap.String("url", rec.URL), zap.Error(err))
			continue
		}
		rec.Tweets = tweets

		if p.services.Classifier == nil {
			continue
		}
		zap.L().Info("calculating sentiments for tweets", progress(i, len(records)), zap.String("url", rec.URL))
		sentiments := make([]float64, 0, len(tweets))
		for _, t := range tweets {
			score, ok, err := nlp.TextSentiment(ctx, p.services.Classifier, t.Text)
			if err != nil || !ok {
				score = math.NaN()
			}
			sentiments = append(sentiments, score)
		}
		rec.TweetSentiments = sentiments
	}
}
