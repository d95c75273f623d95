package analysis

import (
	"encoding/json"
	"math"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/mediascraper/internal/corpus"
	"github.com/TobiSchelling/mediascraper/internal/table"
	"github.com/TobiSchelling/mediascraper/internal/twitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resourceCSV = `id,url,title,date_modified,lead,content,persons,entities,tweets,tweet_sentiments
1,https://www.hs.fi/politiikka/art-1.html,Eka,2023-03-01T10:00:00Z,,Sanna Marin puhui tänään.,"[""Marin""]","[[""EnamexPrsHum"",""Sanna Marin""],[""EnamexLocPpl"",""Helsinki""]]","[{""id"":""5""},{""id"":""6""}]","[0.5,-0.5]"
2,https://yle.fi/a/2,Toka,2023-03-02T10:00:00Z,,Helsingissä sataa,[],"[[""EnamexLocPpl"",""Helsinki""]]",[],[]
3,https://example.com/x,Kolmas,2023-03-03T10:00:00Z,,,[],[],[],[]
`

func readResource(t *testing.T) *table.Frame {
	t.Helper()
	f, err := table.ReadCSV(strings.NewReader(resourceCSV))
	require.NoError(t, err)
	return f
}

func TestMedia(t *testing.T) {
	assert.Equal(t, "HS", Media("https://www.hs.fi/a/1"))
	assert.Equal(t, "IS", Media("https://www.is.fi/a/1"))
	assert.Equal(t, "IL", Media("https://www.iltalehti.fi/a/1"))
	assert.Equal(t, "Yle", Media("https://yle.fi/a/1"))
	assert.Equal(t, UnknownMedia, Media("https://example.com/"))
}

func TestPreprocess(t *testing.T) {
	f := Preprocess(readResource(t), Location)
	first := f.Rows[0]

	assert.Equal(t, "2023-03-01T12:00:00+02:00", table.String(first["date_modified"]))
	assert.Equal(t, "HS", first["media"])
	assert.Equal(t, 4, first["n_words"])
	assert.Equal(t, 1, first["n_persons"])
	assert.Equal(t, 2, first["n_tweets"])
	assert.InDelta(t, 0.0, first["tweet_sentiment_avg"], 1e-9)
	assert.InDelta(t, 0.0, first["tweet_sentiment_sum"], 1e-9)
	assert.InDelta(t, 1.0, first["tweet_sentiment_abs_sum"], 1e-9)
	assert.InDelta(t, 1.0, first["tweet_controversiality"], 1e-9)

	assert.True(t, math.IsNaN(f.Rows[1]["tweet_sentiment_avg"].(float64)))
	assert.Equal(t, UnknownMedia, f.Rows[2]["media"])
	// an empty text still splits into one word
	assert.Equal(t, 1, f.Rows[2]["n_words"])
}

func TestAnalyzeUnknownMethod(t *testing.T) {
	_, err := Analyze(readResource(t), "sentiment_cloud", nil)
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = AnalyzeTweets(corpus.Build(), "named_entities", nil)
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestArticleList(t *testing.T) {
	f, err := Analyze(readResource(t), "article_list", nil)
	require.NoError(t, err)
	assert.Equal(t, OutputColumns, f.Columns)
	assert.Equal(t, 3, f.Len())
}

func TestArticleListWithoutTweets(t *testing.T) {
	f, err := table.ReadCSV(strings.NewReader("id,url,title,date_modified,lead\n1,https://yle.fi/a/1,Eka,2023-03-01,\n"))
	require.NoError(t, err)

	out, err := Analyze(f, "article_list", nil)
	require.NoError(t, err)
	assert.Equal(t, OutputColumns, out.Columns)
	assert.Nil(t, out.Rows[0]["n_tweets"])
	assert.Equal(t, "Yle", out.Rows[0]["media"])
}

func TestCountMatches(t *testing.T) {
	params := url.Values{
		"regex":  {"Marin"},
		"iregex": {"helsingissä"},
		"ner":    {"helsinki", "enamexprshum::sanna marin"},
	}
	f, err := Analyze(readResource(t), "count_matches", params)
	require.NoError(t, err)

	keys := []string{"regex_Marin", "iregex_helsingissä", "ner_helsinki", "ner_enamexprshum::sanna marin"}
	assert.Equal(t, append(append([]string{}, OutputColumns...), keys...), f.Columns)

	got := func(i int) []any {
		out := make([]any, len(keys))
		for k, key := range keys {
			out[k] = f.Rows[i][key]
		}
		return out
	}
	assert.Equal(t, []any{1, 0, 1, 1}, got(0))
	assert.Equal(t, []any{0, 1, 1, 0}, got(1))
	assert.Equal(t, []any{0, 0, 0, 0}, got(2))
}

func TestCountMatchesInvalidRegex(t *testing.T) {
	_, err := Analyze(readResource(t), "count_matches", url.Values{"regex": {"("}})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestNamedEntities(t *testing.T) {
	f, err := Analyze(readResource(t), "named_entities", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "media", "type", "entity"}, f.Columns)
	require.Equal(t, 3, f.Len())
	assert.Equal(t, "Sanna Marin", f.Rows[0]["entity"])
	assert.Equal(t, "EnamexLocPpl", f.Rows[2]["type"])
	assert.Equal(t, "Yle", f.Rows[2]["media"])
}

func TestTweetCountMatches(t *testing.T) {
	shard := twitter.NewShard()
	shard.Users["u1"] = twitter.User{ID: "u1", Username: "eka"}
	shard.Tweets["1"] = twitter.Tweet{ID: "1", AuthorID: "u1", CreatedAt: "2023-03-01T08:00:00.000Z", Text: "Vaalit tänään"}
	shard.Tweets["2"] = twitter.Tweet{ID: "2", AuthorID: "u1", CreatedAt: "2023-03-02T08:00:00.000Z", Text: "Kevät"}

	f, err := AnalyzeTweets(corpus.Build(shard), "count_matches", url.Values{"iregex": {"vaalit"}, "regex": {"vaalit"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"created_at", "regex_vaalit", "iregex_vaalit"}, f.Columns)
	require.Equal(t, 2, f.Len())
	assert.Equal(t, 0, f.Rows[0]["regex_vaalit"])
	assert.Equal(t, 1, f.Rows[0]["iregex_vaalit"])
	assert.Equal(t, "2023-03-01T10:00:00+02:00", table.String(f.Rows[0]["created_at"]))
}

func TestShapeGroupAndSort(t *testing.T) {
	f := table.FromRows([]table.Row{
		{"media": "HS", "n": 1},
		{"media": "Yle", "n": 2},
		{"media": "HS", "n": 3},
	}, "media", "n")

	out, err := ParseShape(url.Values{"groupby": {"media"}, "sort_key": {"n"}}).Apply(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"media", "n", "count"}, out.Columns)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, "HS", out.Rows[0]["media"])
	assert.Equal(t, 4.0, out.Rows[0]["n"])
	assert.Equal(t, 2, out.Rows[0]["count"])
}

func TestShapeWeeklyCounts(t *testing.T) {
	f, err := Analyze(readResource(t), "article_list", nil)
	require.NoError(t, err)

	out, err := Shape{Index: []string{"date_modified"}, Columns: []string{"n_words"}, GroupBy: "1D", Aggregate: "size"}.Apply(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"date_modified", "count"}, out.Columns)
	assert.Equal(t, 3, out.Len())
}

func TestShapeSizeOnEmptyInput(t *testing.T) {
	f := table.New("media", "n")
	out, err := Shape{GroupBy: "media", Aggregate: "size"}.Apply(f)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, []string{"media", "count"}, out.Columns)
}

func TestShapeInvalid(t *testing.T) {
	f := table.New("media")
	_, err := Shape{Columns: []string{"missing"}}.Apply(f)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = Shape{GroupBy: "media", Aggregate: "mode"}.Apply(f)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestEncode(t *testing.T) {
	f := table.FromRows([]table.Row{{"media": "HS", "n": 1}}, "media", "n")

	body, ctype, err := Encode(f, "", "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", ctype)
	assert.Equal(t, "media,n\nHS,1\n", string(body))

	body, ctype, err = Encode(f, FormatJSON, "")
	require.NoError(t, err)
	assert.Equal(t, "application/json; charset=utf-8", ctype)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(body, &rows))
	assert.Equal(t, "HS", rows[0]["media"])

	body, _, err = Encode(f, FormatHTML, "")
	require.NoError(t, err)
	assert.Contains(t, string(body), "<table>")

	_, _, err = Encode(f, "xlsx", "")
	assert.ErrorIs(t, err, ErrBadFormat)

	_, _, err = Encode(f, FormatPNG, "pie")
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestLocationIsHelsinki(t *testing.T) {
	ts := time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC).In(Location)
	assert.Equal(t, 3, ts.Hour())
}
