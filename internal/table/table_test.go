package table

import (
	"bytes"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func articles() *Frame {
	return FromRows([]Row{
		{"date_modified": "2023-03-01T10:00:00+02:00", "media": "Yle", "n_words": 100},
		{"date_modified": "2023-03-01T18:00:00+02:00", "media": "HS", "n_words": 300},
		{"date_modified": "2023-03-03T09:00:00+02:00", "media": "Yle", "n_words": 200},
	}, "date_modified", "media", "n_words")
}

func TestGroupBySizeOnEmptyInput(t *testing.T) {
	f := New("date_modified", "media", "n_words")
	groupers, err := ParseGroupers("media")
	require.NoError(t, err)

	out, err := f.GroupBy(groupers, AggSize)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, []string{"media", CountColumn}, out.Columns)

	groupers, err = ParseGroupers("1D")
	require.NoError(t, err)
	out, err = f.GroupBy(groupers, AggSize)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestGroupByColumnSum(t *testing.T) {
	out, err := articles().GroupBy([]Grouper{{Column: "media"}}, AggSum)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, []string{"media", "n_words", CountColumn}, out.Columns)
	assert.Equal(t, []string{"media"}, out.Index)

	assert.Equal(t, "HS", out.Rows[0]["media"])
	assert.Equal(t, 300.0, out.Rows[0]["n_words"])
	assert.Equal(t, 1, out.Rows[0][CountColumn])
	assert.Equal(t, "Yle", out.Rows[1]["media"])
	assert.Equal(t, 300.0, out.Rows[1]["n_words"])
	assert.Equal(t, 2, out.Rows[1][CountColumn])
}

func TestGroupByAggregates(t *testing.T) {
	f := FromRows([]Row{
		{"k": "a", "v": 1.0},
		{"k": "a", "v": 2.0},
		{"k": "a", "v": 6.0},
		{"k": "b", "v": ""},
	}, "k", "v")

	cases := map[string]float64{
		AggSum:    9,
		AggMean:   3,
		AggMedian: 2,
		AggVar:    7,
		AggStd:    math.Sqrt(7),
		AggMin:    1,
		AggMax:    6,
	}
	for agg, want := range cases {
		t.Run(agg, func(t *testing.T) {
			out, err := f.GroupBy([]Grouper{{Column: "k"}}, agg)
			require.NoError(t, err)
			require.Equal(t, 2, out.Len())
			assert.InDelta(t, want, out.Rows[0]["v"], 1e-9)
		})
	}

	out, err := f.GroupBy([]Grouper{{Column: "k"}}, AggMean)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out.Rows[1]["v"].(float64)))

	_, err = f.GroupBy([]Grouper{{Column: "k"}}, "mode")
	assert.Error(t, err)
	_, err = f.GroupBy([]Grouper{{Column: "missing"}}, AggSum)
	assert.Error(t, err)
}

func TestGroupByFrequencyFillsGaps(t *testing.T) {
	f, err := articles().SetIndex("date_modified")
	require.NoError(t, err)

	groupers, err := ParseGroupers("1D")
	require.NoError(t, err)
	out, err := f.GroupBy(groupers, AggSize)
	require.NoError(t, err)

	require.Equal(t, 3, out.Len())
	assert.Equal(t, "2023-03-01", out.Rows[0]["date_modified"])
	assert.Equal(t, 2, out.Rows[0][CountColumn])
	assert.Equal(t, "2023-03-02", out.Rows[1]["date_modified"])
	assert.Equal(t, 0, out.Rows[1][CountColumn])
	assert.Equal(t, 1, out.Rows[2][CountColumn])
}

func TestGroupByWeekAndMonth(t *testing.T) {
	// 2023-03-01 is a Wednesday; its week ends on Sunday 2023-03-05.
	out, err := articles().GroupBy([]Grouper{{Freq: Freq{N: 1, Unit: "W"}}}, AggSum)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, "2023-03-05", out.Rows[0]["date_modified"])
	assert.Equal(t, 600.0, out.Rows[0]["n_words"])

	out, err = articles().GroupBy([]Grouper{{Freq: Freq{N: 1, Unit: "M"}}, {Column: "media"}}, AggSize)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, "2023-03-31", out.Rows[0]["date_modified"])
}

func TestParseGroupers(t *testing.T) {
	g, err := ParseGroupers("7D,media")
	require.NoError(t, err)
	assert.Equal(t, []Grouper{{Freq: Freq{N: 7, Unit: "D"}}, {Column: "media"}}, g)

	_, err = ParseGroupers("3Q")
	assert.Error(t, err)
	_, err = ParseGroupers("")
	assert.Error(t, err)
}

func TestSelectAndSort(t *testing.T) {
	f, err := articles().SetIndex("date_modified")
	require.NoError(t, err)

	sel, err := f.Select("n_words")
	require.NoError(t, err)
	assert.Equal(t, []string{"date_modified", "n_words"}, sel.Columns)

	_, err = f.Select("nope")
	assert.Error(t, err)

	sorted, err := articles().SortBy("n_words", true)
	require.NoError(t, err)
	assert.Equal(t, []any{300, 200, 100}, sorted.Values("n_words"))
}

func TestSortKeepsMissingLast(t *testing.T) {
	f := FromRows([]Row{{"v": ""}, {"v": "2"}, {"v": "10"}}, "v")
	sorted, err := f.SortBy("v", true)
	require.NoError(t, err)
	assert.Equal(t, []any{"10", "2", ""}, sorted.Values("v"))
}

func TestCSVRoundTrip(t *testing.T) {
	f := FromRows([]Row{
		{"url": "https://yle.fi/a/1", "persons": []string{"Marin"}, "sentiment": math.NaN()},
		{"url": "https://hs.fi/a/2", "persons": []string{}, "sentiment": 0.5},
	}, "url", "persons", "sentiment")

	s, err := f.CSV()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, "url,persons,sentiment\n"))
	assert.Contains(t, s, `"[""Marin""]"`)

	back, err := ReadCSV(strings.NewReader(s))
	require.NoError(t, err)
	assert.Equal(t, f.Columns, back.Columns)
	require.Equal(t, 2, back.Len())
	assert.Equal(t, `["Marin"]`, back.Rows[0]["persons"])
	assert.Equal(t, "", back.Rows[0]["sentiment"])
	assert.Equal(t, "0.5", back.Rows[1]["sentiment"])
}

func TestWriteJSONKeepsColumnOrder(t *testing.T) {
	f := FromRows([]Row{{"b": 1, "a": math.NaN()}}, "b", "a")
	var buf bytes.Buffer
	require.NoError(t, f.WriteJSON(&buf))
	assert.Equal(t, `[{"b":1,"a":null}]`, buf.String())
}

func TestWriteHTML(t *testing.T) {
	f := FromRows([]Row{{"title": "*Tärkeä* uutinen", "n": 1}}, "title", "n")
	var buf bytes.Buffer
	require.NoError(t, f.WriteHTML(&buf))
	html := buf.String()
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<th>title</th>")
	assert.Contains(t, html, "*Tärkeä* uutinen")
	assert.NotContains(t, html, "<em>")
}

func TestWritePNG(t *testing.T) {
	f, err := articles().SetIndex("date_modified")
	require.NoError(t, err)
	for _, kind := range []string{PlotLine, PlotBar} {
		var buf bytes.Buffer
		require.NoError(t, f.WritePNG(&buf, kind))
		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")), kind)
	}
	assert.Error(t, f.WritePNG(&bytes.Buffer{}, "pie"))
}

func TestLeftJoinAndConcat(t *testing.T) {
	tweets := FromRows([]Row{
		{"author_username": "eka", "text": "a"},
		{"author_username": "toka", "text": "b"},
	}, "author_username", "text")
	meta := FromRows([]Row{{"twitter": "eka", "party": "X"}}, "twitter", "party")

	joined := tweets.LeftJoin(meta, "author_username", "twitter")
	assert.Equal(t, []string{"author_username", "text", "twitter", "party"}, joined.Columns)
	assert.Equal(t, "X", joined.Rows[0]["party"])
	assert.Nil(t, joined.Rows[1]["party"])

	all := Concat(tweets, nil, meta)
	assert.Equal(t, 3, all.Len())
	assert.Equal(t, []string{"author_username", "text", "twitter", "party"}, all.Columns)
}

func TestSample(t *testing.T) {
	f := articles()
	assert.Equal(t, 2, f.Sample(2, rand.New(rand.NewPCG(1, 2))).Len())
	assert.Equal(t, 3, f.Sample(10, rand.New(rand.NewPCG(1, 2))).Len())
}
