// Package corpus loads collected tweet shards into a cross-linked, queryable
// corpus.
package corpus

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/mediascraper/internal/table"
	"github.com/TobiSchelling/mediascraper/internal/twitter"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Tweet is a collected tweet with the engagement it received inside the
// corpus, counted per username of the engaging author.
type Tweet struct {
	twitter.Tweet
	Repliers   map[string]int
	Quoters    map[string]int
	Retweeters map[string]int
}

// Corpus is a set of tweets and their authors. It is read-only after Load.
type Corpus struct {
	Tweets      map[string]*Tweet
	Users       map[string]twitter.User
	AuthorIndex map[string][]string
}

// Load reads the shards <dir>/<id>.json, or every shard in dir when no ids
// are given, and cross-links them.
func Load(dir string, ids ...string) (*Corpus, error) {
	var files []string
	if len(ids) == 0 {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, eris.Wrapf(err, "corpus: list %s", dir)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
	} else {
		for _, id := range ids {
			if strings.ContainsAny(id, `/\`) {
				return nil, eris.Errorf("corpus: invalid shard id %q", id)
			}
			files = append(files, filepath.Join(dir, id+".json"))
		}
	}

	shards := make([]*twitter.Shard, 0, len(files))
	for _, f := range files {
		zap.L().Info("loading tweet file", zap.String("file", f))
		s, err := twitter.LoadShard(f)
		if err != nil {
			return nil, err
		}
		shards = append(shards, s)
	}
	return Build(shards...), nil
}

// Build merges shards, later ones overriding equal ids, then indexes tweets
// by author and counts replies, quotes and retweets among them.
func Build(shards ...*twitter.Shard) *Corpus {
	merged := twitter.NewShard()
	for _, s := range shards {
		merged.Merge(s)
	}

	c := &Corpus{
		Tweets:      make(map[string]*Tweet, len(merged.Tweets)),
		Users:       merged.Users,
		AuthorIndex: map[string][]string{},
	}

	for id, t := range merged.Tweets {
		c.Tweets[id] = &Tweet{
			Tweet:      t,
			Repliers:   map[string]int{},
			Quoters:    map[string]int{},
			Retweeters: map[string]int{},
		}
		c.AuthorIndex[t.AuthorID] = append(c.AuthorIndex[t.AuthorID], id)
	}
	for _, ids := range c.AuthorIndex {
		sort.Strings(ids)
	}

	for _, t := range c.Tweets {
		who := c.username(t.AuthorID)
		for _, ref := range t.ReferencedTweets {
			target, ok := c.Tweets[ref.ID]
			if !ok {
				continue
			}
			switch ref.Type {
			case twitter.RefRepliedTo:
				target.Repliers[who]++
			case twitter.RefQuoted:
				target.Quoters[who]++
			case twitter.RefRetweeted:
				target.Retweeters[who]++
			}
		}
	}
	return c
}

func (c *Corpus) username(authorID string) string {
	if u, ok := c.Users[authorID]; ok && u.Username != "" {
		return u.Username
	}
	return authorID
}

// Columns of Frame, in order.
var Columns = []string{
	"id", "created_at", "text", "author_id", "author_name", "author_username",
	"in_reply_to_user_id", "retweet_count", "reply_count", "like_count", "quote_count",
	"reply_like_ratio", "replied_to", "retweeted", "quoted",
	"repliers", "quoters", "retweeters",
}

// Frame flattens the corpus to one row per tweet ordered by creation time.
// Creation times are converted to loc.
func (c *Corpus) Frame(loc *time.Location) *table.Frame {
	tweets := make([]*Tweet, 0, len(c.Tweets))
	for _, t := range c.Tweets {
		tweets = append(tweets, t)
	}
	sort.Slice(tweets, func(i, j int) bool {
		if tweets[i].CreatedAt != tweets[j].CreatedAt {
			return tweets[i].CreatedAt < tweets[j].CreatedAt
		}
		return tweets[i].ID < tweets[j].ID
	})

	f := table.New(Columns...)
	for _, t := range tweets {
		f.Rows = append(f.Rows, c.row(t, loc))
	}
	return f
}

func (c *Corpus) row(t *Tweet, loc *time.Location) table.Row {
	created := any(t.CreatedAt)
	if ts, ok := table.Time(t.CreatedAt); ok {
		created = ts.In(loc).Format(time.RFC3339)
	}

	m := t.PublicMetrics
	ratio := math.NaN()
	if m.LikeCount > 0 {
		ratio = float64(m.ReplyCount) / float64(m.LikeCount)
	}

	author := c.Users[t.AuthorID]
	return table.Row{
		"id":                  t.ID,
		"created_at":          created,
		"text":                t.Text,
		"author_id":           t.AuthorID,
		"author_name":         author.Name,
		"author_username":     author.Username,
		"in_reply_to_user_id": t.InReplyToUserID,
		"retweet_count":       m.RetweetCount,
		"reply_count":         m.ReplyCount,
		"like_count":          m.LikeCount,
		"quote_count":         m.QuoteCount,
		"reply_like_ratio":    ratio,
		"replied_to":          refCell(t.Tweet, twitter.RefRepliedTo),
		"retweeted":           refCell(t.Tweet, twitter.RefRetweeted),
		"quoted":              refCell(t.Tweet, twitter.RefQuoted),
		"repliers":            t.Repliers,
		"quoters":             t.Quoters,
		"retweeters":          t.Retweeters,
	}
}

func refCell(t twitter.Tweet, refType string) any {
	if id, ok := t.Referenced(refType); ok {
		return id
	}
	return nil
}
