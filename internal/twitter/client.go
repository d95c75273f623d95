package twitter

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	searchPath = "/2/tweets/search/all"
	// MaxResults is the page size requested from the search API.
	MaxResults  = 500
	tweetFields = "created_at,public_metrics,author_id,in_reply_to_user_id,referenced_tweets"
	expansions  = "referenced_tweets.id.author_id,author_id"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,15}$`)

// Client queries the full-archive search endpoint through a shared Gate.
type Client struct {
	client  *resty.Client
	baseURL string
	bearer  string
	gate    *Gate
}

// NewClient creates a search client. baseURL is the API root, for example
// https://api.twitter.com.
func NewClient(client *resty.Client, baseURL, bearer string, gate *Gate) *Client {
	return &Client{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		bearer:  bearer,
		gate:    gate,
	}
}

type searchResponse struct {
	Data     []Tweet `json:"data"`
	Includes struct {
		Tweets []Tweet `json:"tweets"`
		Users  []User  `json:"users"`
	} `json:"includes"`
	Meta *struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

// Search runs query over [start, end) following next_token pagination.
// Referenced tweets from the includes are collected only when
// includeReferenced is set. An unexpected status or a response without
// meta ends pagination and returns what was collected so far.
func (c *Client) Search(ctx context.Context, query string, start, end time.Time, includeReferenced bool) (*Shard, error) {
	shard := NewShard()
	var nextToken string
	count := 0

	for {
		params := map[string]string{
			"query":        query,
			"tweet.fields": tweetFields,
			"expansions":   expansions,
			"max_results":  strconv.Itoa(MaxResults),
			"start_time":   start.Format(time.RFC3339),
			"end_time":     end.Format(time.RFC3339),
		}
		if nextToken != "" {
			params["next_token"] = nextToken
		}

		resp, err := c.gate.Do(ctx, func(ctx context.Context) (*resty.Response, error) {
			return c.client.R().
				SetContext(ctx).
				SetAuthToken(c.bearer).
				SetQueryParams(params).
				Get(c.baseURL + searchPath)
		})
		if err != nil {
			return shard, eris.Wrap(err, "twitter: search")
		}
		if resp.StatusCode() != http.StatusOK {
			zap.L().Error("twitter error",
				zap.Int("status", resp.StatusCode()),
				zap.String("body", resp.String()),
			)
			return shard, nil
		}

		var page searchResponse
		if err := json.Unmarshal(resp.Body(), &page); err != nil || page.Meta == nil {
			zap.L().Error("illegal twitter response", zap.String("body", resp.String()))
			return shard, nil
		}

		for _, t := range page.Data {
			shard.Tweets[t.ID] = t
		}
		if includeReferenced {
			for _, t := range page.Includes.Tweets {
				shard.Tweets[t.ID] = t
			}
		}
		for _, u := range page.Includes.Users {
			shard.Users[u.ID] = u
		}

		if page.Meta.NextToken == "" {
			return shard, nil
		}
		count += page.Meta.ResultCount
		zap.L().Info("pagination required", zap.Int("count", count))
		nextToken = page.Meta.NextToken
	}
}

// TweetsWithURL returns Finnish tweets linking to url.
func (c *Client) TweetsWithURL(ctx context.Context, url string, start, end time.Time) ([]Tweet, error) {
	if strings.Contains(url, `"`) {
		zap.L().Error("illegal characters in url", zap.String("url", url))
		return []Tweet{}, nil
	}
	shard, err := c.Search(ctx, `url:"`+url+`" lang:fi`, start, end, false)
	if err != nil {
		return nil, err
	}
	return shard.Sorted(), nil
}

// ByUsernames returns Finnish tweets written by any of usernames. An invalid
// username yields an empty shard.
func (c *Client) ByUsernames(ctx context.Context, usernames []string, start, end time.Time) (*Shard, error) {
	if len(usernames) == 0 {
		return NewShard(), nil
	}
	from := make([]string, 0, len(usernames))
	for _, u := range usernames {
		if !usernamePattern.MatchString(u) {
			zap.L().Error("illegal characters in twitter username", zap.String("username", u))
			return NewShard(), nil
		}
		from = append(from, `from:"`+u+`"`)
	}
	return c.Search(ctx, "("+strings.Join(from, " OR ")+") lang:fi", start, end, false)
}

// BySearchWord returns Finnish tweets containing word.
func (c *Client) BySearchWord(ctx context.Context, word string, start, end time.Time) (*Shard, error) {
	if strings.Contains(word, `"`) {
		zap.L().Error("illegal characters in search word", zap.String("word", word))
		return NewShard(), nil
	}
	return c.Search(ctx, `"`+word+`" lang:fi`, start, end, false)
}
