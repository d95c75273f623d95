// Package analysis derives tables from stored scrape resources and from the
// tweet corpus.
package analysis

import (
	"encoding/json"
	"math"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/TobiSchelling/mediascraper/internal/corpus"
	"github.com/TobiSchelling/mediascraper/internal/nlp"
	"github.com/TobiSchelling/mediascraper/internal/table"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	// ErrUnknownMethod is returned for a method name that does not exist.
	ErrUnknownMethod = eris.New("analysis: unknown method")
	// ErrInvalidParams wraps errors caused by the caller's parameters.
	ErrInvalidParams = eris.New("analysis: invalid parameters")
)

// OutputColumns are the per-article columns of article_list and
// count_matches.
var OutputColumns = []string{
	"date_modified", "url", "title", "media", "n_tweets", "n_words", "n_persons",
	"tweet_sentiment_avg", "tweet_sentiment_sum", "tweet_sentiment_abs_sum", "tweet_controversiality",
}

// UnknownMedia labels URLs of no known publisher.
const UnknownMedia = "tuntematon"

var mediaPatterns = []struct {
	re   *regexp.Regexp
	name string
}{
	{regexp.MustCompile(`hs\.fi`), "HS"},
	{regexp.MustCompile(`is\.fi`), "IS"},
	{regexp.MustCompile(`iltalehti\.fi`), "IL"},
	{regexp.MustCompile(`yle\.fi`), "Yle"},
}

// Location is the zone dates are shown in.
var Location = loadLocation("Europe/Helsinki")

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		zap.L().Warn("could not load time zone, using UTC", zap.String("zone", name), zap.Error(err))
		return time.UTC
	}
	return loc
}

// Media names the publisher of an article URL.
func Media(articleURL string) string {
	for _, m := range mediaPatterns {
		if m.re.MatchString(articleURL) {
			return m.name
		}
	}
	return UnknownMedia
}

// Method computes a table from a preprocessed resource.
type Method func(f *table.Frame, params url.Values) (*table.Frame, error)

// Methods are the analyses available for scrape resources.
var Methods = map[string]Method{
	"article_list":   ArticleList,
	"count_matches":  CountMatches,
	"named_entities": NamedEntities,
}

// TweetMethod computes a table from the tweet corpus.
type TweetMethod func(c *corpus.Corpus, params url.Values, loc *time.Location) (*table.Frame, error)

// TweetMethods are the analyses available for the tweet corpus.
var TweetMethods = map[string]TweetMethod{
	"count_matches": TweetCountMatches,
}

// Analyze preprocesses a resource and runs method on it.
func Analyze(f *table.Frame, method string, params url.Values) (*table.Frame, error) {
	m, ok := Methods[method]
	if !ok {
		return nil, eris.Wrap(ErrUnknownMethod, method)
	}
	return m(Preprocess(f, Location), params)
}

// AnalyzeTweets runs a tweet corpus method.
func AnalyzeTweets(c *corpus.Corpus, method string, params url.Values) (*table.Frame, error) {
	m, ok := TweetMethods[method]
	if !ok {
		return nil, eris.Wrap(ErrUnknownMethod, method)
	}
	return m(c, params, Location)
}

var whitespace = regexp.MustCompile(`\s+`)

// Preprocess adds the derived article columns in place: dates converted to
// loc, word and person counts, tweet sentiment aggregates and the media.
// Cells read back from CSV are decoded from their JSON form.
func Preprocess(f *table.Frame, loc *time.Location) *table.Frame {
	if f.Has("date_modified") {
		f.Set("date_modified", func(r table.Row) any {
			if t, ok := table.Time(r["date_modified"]); ok {
				return t.In(loc)
			}
			return nil
		})
	}

	if f.Has("content") {
		f.Set("content", func(r table.Row) any { return table.String(r["content"]) })
		f.Set("n_words", func(r table.Row) any {
			return len(whitespace.Split(r["content"].(string), -1))
		})
		f.Set("n_persons", func(r table.Row) any { return len(decodeList(r["persons"])) })
	}

	if f.Has("entities") {
		f.Set("entities", func(r table.Row) any { return decodeEntities(r["entities"]) })
	}

	if f.Has("tweets") {
		f.Set("n_tweets", func(r table.Row) any { return len(decodeList(r["tweets"])) })
		f.Set("tweet_sentiments", func(r table.Row) any { return decodeScores(r["tweet_sentiments"]) })

		sentiments := func(r table.Row) []float64 {
			s, _ := r["tweet_sentiments"].([]float64)
			return s
		}
		f.Set("tweet_sentiment_avg", func(r table.Row) any {
			s := sentiments(r)
			if len(s) == 0 {
				return math.NaN()
			}
			return sum(s, false) / float64(len(s))
		})
		f.Set("tweet_sentiment_sum", func(r table.Row) any { return sum(sentiments(r), false) })
		f.Set("tweet_sentiment_abs_sum", func(r table.Row) any { return sum(sentiments(r), true) })
		f.Set("tweet_controversiality", func(r table.Row) any {
			s := sentiments(r)
			return sum(s, true) - math.Abs(sum(s, false))
		})
	}

	if f.Has("url") {
		f.Set("media", func(r table.Row) any { return Media(table.String(r["url"])) })
	}
	return f
}

func sum(xs []float64, abs bool) float64 {
	var total float64
	for _, x := range xs {
		if abs {
			x = math.Abs(x)
		}
		total += x
	}
	return total
}

// decodeList reads a list cell, either already decoded or as JSON text.
func decodeList(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	}
	var out []any
	if s := table.String(v); s != "" {
		_ = json.Unmarshal([]byte(s), &out)
	}
	return out
}

// decodeScores reads a list of scores; null scores are skipped.
func decodeScores(v any) []float64 {
	if s, ok := v.([]float64); ok {
		return s
	}
	out := []float64{}
	for _, item := range decodeList(v) {
		if f, ok := table.Float(item); ok && !math.IsNaN(f) {
			out = append(out, f)
		}
	}
	return out
}

func decodeEntities(v any) []nlp.Entity {
	if e, ok := v.([]nlp.Entity); ok {
		return e
	}
	var out []nlp.Entity
	if s := table.String(v); s != "" {
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			zap.L().Debug("could not decode entities", zap.Error(err))
		}
	}
	if out == nil {
		out = []nlp.Entity{}
	}
	return out
}

// outputFrame selects OutputColumns followed by keys. Output columns the
// resource lacks, because their stage did not run, are left empty.
func outputFrame(f *table.Frame, keys ...string) (*table.Frame, error) {
	cols := append(slices.Clone(OutputColumns), keys...)
	for _, c := range cols {
		if !f.Has(c) {
			f.Set(c, func(table.Row) any { return nil })
		}
	}
	return f.Select(cols...)
}

// ArticleList returns one row per article with the derived columns.
func ArticleList(f *table.Frame, _ url.Values) (*table.Frame, error) {
	return outputFrame(f)
}

// CountMatches flags, per article, whether each pattern occurs. Parameters:
// regex (matched against the content), iregex (matched against the lower
// cased content) and ner (an entity name, or type::name). Each may repeat.
func CountMatches(f *table.Frame, params url.Values) (*table.Frame, error) {
	keys, err := addPatternColumns(f, "content", params)
	if err != nil {
		return nil, err
	}

	for _, pattern := range params["ner"] {
		key := "ner_" + pattern
		match := entityMatcher(pattern)
		f.Set(key, func(r table.Row) any {
			for _, e := range decodeEntities(r["entities"]) {
				if match(e) {
					return 1
				}
			}
			return 0
		})
		keys = append(keys, key)
	}
	return outputFrame(f, keys...)
}

func entityMatcher(pattern string) func(nlp.Entity) bool {
	p := strings.ToLower(pattern)
	if typ, name, ok := strings.Cut(p, "::"); ok {
		return func(e nlp.Entity) bool {
			return strings.ToLower(e.Type) == typ && strings.ToLower(e.Name) == name
		}
	}
	return func(e nlp.Entity) bool { return strings.ToLower(e.Name) == p }
}

// addPatternColumns adds a 0/1 column per regex and iregex parameter,
// matched against col.
func addPatternColumns(f *table.Frame, col string, params url.Values) ([]string, error) {
	var keys []string
	for _, kind := range []string{"regex", "iregex"} {
		for _, pattern := range params[kind] {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, eris.Wrapf(ErrInvalidParams, "%s %q: %v", kind, pattern, err)
			}
			lower := kind == "iregex"
			key := kind + "_" + pattern
			f.Set(key, func(r table.Row) any {
				text := table.String(r[col])
				if lower {
					text = strings.ToLower(text)
				}
				if re.MatchString(text) {
					return 1
				}
				return 0
			})
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// NamedEntities lists every entity of every article with its date and media.
func NamedEntities(f *table.Frame, _ url.Values) (*table.Frame, error) {
	out := table.New("date", "media", "type", "entity")
	for _, r := range f.Rows {
		for _, e := range decodeEntities(r["entities"]) {
			out.Rows = append(out.Rows, table.Row{
				"date":   r["date_modified"],
				"media":  r["media"],
				"type":   e.Type,
				"entity": e.Name,
			})
		}
	}
	return out, nil
}

// TweetCountMatches flags, per tweet, whether each regex or iregex pattern
// occurs in its text.
func TweetCountMatches(c *corpus.Corpus, params url.Values, loc *time.Location) (*table.Frame, error) {
	f := c.Frame(loc)
	f.Set("created_at", func(r table.Row) any {
		if t, ok := table.Time(r["created_at"]); ok {
			return t.In(loc)
		}
		return nil
	})
	keys, err := addPatternColumns(f, "text", params)
	if err != nil {
		return nil, err
	}
	return f.Select(append([]string{"created_at"}, keys...)...)
}
