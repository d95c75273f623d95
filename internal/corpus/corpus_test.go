package corpus

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/mediascraper/internal/table"
	"github.com/TobiSchelling/mediascraper/internal/twitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleShards() (*twitter.Shard, *twitter.Shard) {
	a := twitter.NewShard()
	a.Users["u1"] = twitter.User{ID: "u1", Name: "Alku", Username: "alku"}
	a.Tweets["A"] = twitter.Tweet{
		ID: "A", Text: "Hallitus kaatui #politiikka", AuthorID: "u1", CreatedAt: "2023-03-01T10:00:00.000Z",
		PublicMetrics: twitter.PublicMetrics{ReplyCount: 1, LikeCount: 4, RetweetCount: 1},
	}

	b := twitter.NewShard()
	b.Users["u2"] = twitter.User{ID: "u2", Name: "Jakaja", Username: "jakaja"}
	b.Tweets["B"] = twitter.Tweet{
		ID: "B", Text: "RT @alku: Hallitus kaatui", AuthorID: "u2", CreatedAt: "2023-03-01T11:00:00.000Z",
		ReferencedTweets: []twitter.Reference{{Type: twitter.RefRetweeted, ID: "A"}},
	}
	b.Tweets["C"] = twitter.Tweet{
		ID: "C", Text: "Eipäs", AuthorID: "u2", CreatedAt: "2023-03-03T08:00:00.000Z",
		ReferencedTweets: []twitter.Reference{{Type: twitter.RefRepliedTo, ID: "A"}, {Type: twitter.RefQuoted, ID: "missing"}},
	}
	return a, b
}

func TestRetweetCrossLinking(t *testing.T) {
	c := Build(sampleShards())

	assert.Equal(t, map[string]int{"jakaja": 1}, c.Tweets["A"].Retweeters)
	assert.Equal(t, map[string]int{"jakaja": 1}, c.Tweets["A"].Repliers)
	assert.Empty(t, c.Tweets["A"].Quoters)
	assert.Equal(t, []string{"B", "C"}, c.AuthorIndex["u2"])

	f := c.Frame(time.UTC)
	require.Equal(t, 3, f.Len())
	byID := map[string]table.Row{}
	for _, r := range f.Rows {
		byID[r["id"].(string)] = r
	}
	assert.Equal(t, "A", byID["B"]["retweeted"])
	assert.Nil(t, byID["A"]["retweeted"])
	assert.Equal(t, "A", byID["C"]["replied_to"])
	assert.Equal(t, "jakaja", byID["B"]["author_username"])
	assert.Equal(t, 0.25, byID["A"]["reply_like_ratio"])
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	a, b := sampleShards()
	require.NoError(t, a.Save(filepath.Join(dir, "first.json")))
	require.NoError(t, b.Save(filepath.Join(dir, "second.json")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	all, err := Load(dir)
	require.NoError(t, err)
	assert.Len(t, all.Tweets, 3)
	assert.Equal(t, 1, all.Tweets["A"].Retweeters["jakaja"])

	one, err := Load(dir, "second")
	require.NoError(t, err)
	assert.Len(t, one.Tweets, 2)
	// A is not loaded, so nothing links to it.
	assert.Empty(t, one.Tweets["B"].Retweeters)

	_, err = Load(dir, "missing")
	assert.Error(t, err)
	_, err = Load(dir, "../escape")
	assert.Error(t, err)
}

func TestQuery(t *testing.T) {
	c := Build(sampleShards())

	f := c.Query(Filter{DropRetweets: true}, time.UTC)
	assert.Equal(t, []any{"A", "C"}, f.Values("id"))

	f = c.Query(Filter{Authors: []string{"jakaja"}, Contains: "Hallitus"}, time.UTC)
	assert.Equal(t, []any{"B"}, f.Values("id"))

	f = c.Query(Filter{
		From: time.Date(2023, 3, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2023, 3, 3, 23, 59, 59, 0, time.UTC),
	}, time.UTC)
	assert.Equal(t, []any{"C"}, f.Values("id"))

	f = c.Query(Filter{Contains: "(", Sample: 1, Rand: rand.New(rand.NewPCG(1, 1))}, time.UTC)
	assert.Equal(t, 0, f.Len())

	f = c.Query(Filter{Sample: 2, Rand: rand.New(rand.NewPCG(1, 1))}, time.UTC)
	assert.Equal(t, 2, f.Len())
}

func TestMentionsAndHashtags(t *testing.T) {
	assert.Equal(t, []string{"@alku", "@Pääministeri"}, Mentions("RT @alku: kiitos @Pääministeri"))
	assert.Equal(t, []string{"#vaalit2023"}, Hashtags("Nyt #vaalit2023"))
	assert.Equal(t, []string{}, Mentions("ei mainintoja"))
}

func TestMergeMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.csv")
	require.NoError(t, os.WriteFile(path, []byte("twitter,party\nalku,KOK\n"), 0o644))

	f := Build(sampleShards()).Frame(time.UTC)
	merged, err := MergeMetadata(f, path)
	require.NoError(t, err)
	assert.True(t, merged.Has("party"))
	for _, r := range merged.Rows {
		if r["author_username"] == "alku" {
			assert.Equal(t, "KOK", r["party"])
		} else {
			assert.Nil(t, r["party"])
		}
	}

	bad := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("name\nx\n"), 0o644))
	_, err = MergeMetadata(f, bad)
	assert.Error(t, err)
}
