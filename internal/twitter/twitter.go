// Package twitter searches the full-archive tweet search API and stores the
// results as JSON shards.
package twitter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
)

// Reference types of a referenced tweet.
const (
	RefRepliedTo = "replied_to"
	RefQuoted    = "quoted"
	RefRetweeted = "retweeted"
)

type PublicMetrics struct {
	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
	LikeCount    int `json:"like_count"`
	QuoteCount   int `json:"quote_count"`
}

type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Tweet is a tweet as returned with the requested tweet fields.
type Tweet struct {
	ID               string        `json:"id"`
	Text             string        `json:"text"`
	AuthorID         string        `json:"author_id,omitempty"`
	CreatedAt        string        `json:"created_at,omitempty"`
	InReplyToUserID  string        `json:"in_reply_to_user_id,omitempty"`
	PublicMetrics    PublicMetrics `json:"public_metrics"`
	ReferencedTweets []Reference   `json:"referenced_tweets,omitempty"`
}

// Referenced returns the id of the tweet referenced with refType.
func (t Tweet) Referenced(refType string) (string, bool) {
	for _, r := range t.ReferencedTweets {
		if r.Type == refType {
			return r.ID, true
		}
	}
	return "", false
}

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Shard is one file of collected tweets and their authors, keyed by id.
type Shard struct {
	Tweets map[string]Tweet `json:"tweets"`
	Users  map[string]User  `json:"users"`
}

// NewShard returns an empty shard.
func NewShard() *Shard {
	return &Shard{Tweets: map[string]Tweet{}, Users: map[string]User{}}
}

// Merge adds every tweet and user of other, overwriting equal ids.
func (s *Shard) Merge(other *Shard) {
	if other == nil {
		return
	}
	for id, t := range other.Tweets {
		s.Tweets[id] = t
	}
	for id, u := range other.Users {
		s.Users[id] = u
	}
}

// Sorted returns the tweets ordered by creation time, then id.
func (s *Shard) Sorted() []Tweet {
	out := make([]Tweet, 0, len(s.Tweets))
	for _, t := range s.Tweets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Save writes the shard to path, creating parent directories.
func (s *Shard) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "twitter: create %s", filepath.Dir(path))
	}
	b, err := json.Marshal(s)
	if err != nil {
		return eris.Wrap(err, "twitter: encode shard")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return eris.Wrapf(err, "twitter: write %s", path)
	}
	return nil
}

// LoadShard reads a shard written by Save.
func LoadShard(path string) (*Shard, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "twitter: read %s", path)
	}
	s := NewShard()
	if err := json.Unmarshal(b, s); err != nil {
		return nil, eris.Wrapf(err, "twitter: decode %s", path)
	}
	if s.Tweets == nil {
		s.Tweets = map[string]Tweet{}
	}
	if s.Users == nil {
		s.Users = map[string]User{}
	}
	return s, nil
}
