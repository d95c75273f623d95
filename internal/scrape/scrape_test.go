package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TobiSchelling/mediascraper/internal/cache"
	"github.com/TobiSchelling/mediascraper/internal/database"
	"github.com/TobiSchelling/mediascraper/internal/enrich"
	"github.com/TobiSchelling/mediascraper/internal/fetch"
	"github.com/TobiSchelling/mediascraper/internal/query"
	"github.com/TobiSchelling/mediascraper/internal/table"
	"github.com/TobiSchelling/mediascraper/internal/twitter"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestPipeline(services enrich.Services) *enrich.Pipeline {
	return enrich.New(cache.NewMemory(), services, enrich.NewLocks(),
		query.NewPaginator(resty.New(), query.WithSleeper(noSleep)),
		enrich.WithSleeper(noSleep))
}

type jsonSource struct {
	name  string
	url   string
	panic bool
}

func (s jsonSource) Name() string {
	if s.name == "" {
		return "json"
	}
	return s.name
}
func (jsonSource) MaxLimit() int { return 100 }

func (s jsonSource) BuildRequest(query.Page) (query.Request, error) {
	return query.Request{URL: s.url}, nil
}

func (s jsonSource) ParsePage(_ query.Page, body []byte) ([]query.Result, error) {
	if s.panic {
		panic("unexpected markup")
	}
	var rows []query.Result
	err := json.Unmarshal(body, &rows)
	return rows, err
}

func newsServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]query.Result{
			{ID: "1", URL: "https://yle.fi/a/1", Title: "Eka", DateModified: "2023-03-01T10:00:00+02:00"},
			{ID: "2", URL: "https://yle.fi/a/2", Title: "Toka", DateModified: "2023-03-02T10:00:00+02:00"},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type staticFetcher struct{}

func (staticFetcher) Fetch(_ context.Context, url string) (*fetch.Result, error) {
	return &fetch.Result{Content: "Teksti sivulta " + url + ". Hyvä.", Persons: []string{"Marin"}}, nil
}

type failingParser struct{ calls atomic.Int32 }

func (p *failingParser) Parse(context.Context, string) (string, error) {
	p.calls.Add(1)
	return "", errors.New("parser down")
}

type positiveClassifier struct{}

func (positiveClassifier) Predict(_ context.Context, sentences []string) ([][3]float64, error) {
	out := make([][3]float64, len(sentences))
	for i := range out {
		out[i] = [3]float64{0, 0.2, 0.8}
	}
	return out, nil
}

func testRequest(media ...string) Request {
	return Request{
		Params: query.Params{
			Query:   "vaalit",
			From:    time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC),
			To:      time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC),
			Enabled: []string{enrich.StageContent, enrich.StageParser, enrich.StageSentiment},
		},
		Media: media,
	}
}

func waitTicket(t *testing.T, o *Orchestrator, id string) *database.Ticket {
	t.Helper()
	o.Wait()
	ticket, err := o.GetTicket(context.Background(), id)
	require.NoError(t, err)
	return ticket
}

func TestRecoverInterrupted(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.CreateTicket(ctx, "left-over")
	require.NoError(t, err)

	// a restarted process sees the ticket as interrupted, never in progress
	o := New(db, newTestPipeline(enrich.Services{}))
	n, err := o.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ticket, err := o.GetTicket(ctx, "left-over")
	require.NoError(t, err)
	assert.Equal(t, database.StatusInterrupted, ticket.Status)
}

func TestFailingStageStillFinishesTicket(t *testing.T) {
	db := openTestDB(t)
	parser := &failingParser{}
	o := New(db, newTestPipeline(enrich.Services{Parser: parser, Classifier: positiveClassifier{}}))
	o.Register("yle", enrich.NewMedium(jsonSource{url: newsServer(t).URL}, fetch.Static(staticFetcher{})))

	id, err := o.Submit(context.Background(), testRequest("yle", "nonexistent"))
	require.NoError(t, err)

	ticket := waitTicket(t, o, id)
	assert.Equal(t, database.StatusFinished, ticket.Status)
	require.NotNil(t, ticket.ResourceID)
	assert.Equal(t, id, *ticket.ResourceID)
	assert.Equal(t, int32(2), parser.calls.Load())

	res, err := o.GetResource(context.Background(), *ticket.ResourceID)
	require.NoError(t, err)
	f, err := table.ReadCSV(strings.NewReader(res.Content))
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())
	assert.Equal(t,
		[]string{"id", "url", "title", "date_modified", "lead", "content", "persons", "conllu", "sentiment"},
		f.Columns)
	assert.Equal(t, "", f.Rows[0]["conllu"])
	assert.Equal(t, "0.8", f.Rows[0]["sentiment"])
	assert.Equal(t, `["Marin"]`, f.Rows[1]["persons"])
	assert.Empty(t, o.Tasks())
}

func TestMediaScrapeConcurrently(t *testing.T) {
	var active, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode([]query.Result{{ID: "1", URL: "https://example.com/1"}})
	}))
	t.Cleanup(srv.Close)

	o := New(openTestDB(t), newTestPipeline(enrich.Services{}))
	for _, name := range []string{"yle", "il", "is"} {
		o.Register(name, enrich.NewMedium(jsonSource{name: name, url: srv.URL}, fetch.Static(staticFetcher{})))
	}

	req := testRequest("yle", "il", "is")
	req.Params.Enabled = nil
	id, err := o.Submit(context.Background(), req)
	require.NoError(t, err)

	ticket := waitTicket(t, o, id)
	assert.Equal(t, database.StatusFinished, ticket.Status)
	assert.GreaterOrEqual(t, peak.Load(), int32(2))
}

func TestPanickingMediumFailsTicket(t *testing.T) {
	db := openTestDB(t)
	o := New(db, newTestPipeline(enrich.Services{}))
	o.Register("is", enrich.NewMedium(jsonSource{url: newsServer(t).URL, panic: true}, nil))

	id, err := o.Submit(context.Background(), testRequest("is"))
	require.NoError(t, err)

	ticket := waitTicket(t, o, id)
	assert.Equal(t, database.StatusError, ticket.Status)
	assert.Nil(t, ticket.ResourceID)

	_, err = o.GetResource(context.Background(), id)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestTaskHandle(t *testing.T) {
	db := openTestDB(t)
	o := New(db, newTestPipeline(enrich.Services{}))

	release := make(chan struct{})
	o.launch(context.Background(), "t1", KindScrape, func(context.Context) error {
		<-release
		return errors.New("boom")
	})

	task, ok := o.Task("t1")
	require.True(t, ok)
	assert.Len(t, o.Tasks(), 1)

	close(release)
	<-task.Done()
	assert.EqualError(t, task.Err(), "boom")
	o.Wait()
	assert.Empty(t, o.Tasks())
}

func TestUnknownIDs(t *testing.T) {
	o := New(openTestDB(t), newTestPipeline(enrich.Services{}))
	_, err := o.GetTicket(context.Background(), "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)
	_, err = o.GetResource(context.Background(), "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func writeShard(t *testing.T, dir, name string) {
	t.Helper()
	shard := twitter.NewShard()
	shard.Users["u1"] = twitter.User{ID: "u1", Name: "Eka", Username: "eka"}
	shard.Users["u2"] = twitter.User{ID: "u2", Name: "Toka", Username: "toka"}
	shard.Tweets["1"] = twitter.Tweet{ID: "1", AuthorID: "u1", CreatedAt: "2023-03-01T08:00:00.000Z",
		Text: "Vaalit tulevat @toka #vaalit2023. Hyvä."}
	shard.Tweets["2"] = twitter.Tweet{ID: "2", AuthorID: "u2", CreatedAt: "2023-03-02T08:00:00.000Z",
		Text: "RT vaalit", ReferencedTweets: []twitter.Reference{{Type: twitter.RefRetweeted, ID: "1"}}}
	shard.Tweets["3"] = twitter.Tweet{ID: "3", AuthorID: "u2", CreatedAt: "2023-03-10T08:00:00.000Z",
		Text: "Vaalit myöhemmin"}
	require.NoError(t, shard.Save(filepath.Join(dir, name+".json")))
}

func TestTwitterMediumReadsCorpus(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, dir, "s1")
	meta := filepath.Join(t.TempDir(), "meta.csv")
	require.NoError(t, os.WriteFile(meta, []byte("twitter,party\neka,vihreät\n"), 0o644))

	db := openTestDB(t)
	o := New(db, newTestPipeline(enrich.Services{Classifier: positiveClassifier{}}),
		WithTweetDir(dir), WithMetadata(meta))

	req := testRequest(MediumTwitter)
	req.Params.Query = "(?i)vaalit"
	req.Params.Enabled = []string{enrich.StageSentiment, enrich.StageTwitter}
	req.Params.Extra = map[string]any{"drop_retweets": true, "scrape_ids": []any{"s1"}}

	id, err := o.Submit(context.Background(), req)
	require.NoError(t, err)
	ticket := waitTicket(t, o, id)
	require.Equal(t, database.StatusFinished, ticket.Status)

	res, err := o.GetResource(context.Background(), id)
	require.NoError(t, err)
	f, err := table.ReadCSV(strings.NewReader(res.Content))
	require.NoError(t, err)

	// the retweet and the tweet outside the range are gone
	require.Equal(t, 1, f.Len())
	row := f.Rows[0]
	assert.Equal(t, "twitter:1", row["url"])
	assert.Equal(t, `["@toka"]`, row["persons"])
	assert.Equal(t, `["#vaalit2023"]`, row["hashtags"])
	assert.Equal(t, "eka", row["author_username"])
	assert.Equal(t, "vihreät", row["party"])
	assert.Equal(t, "0.8", row["sentiment"])
	assert.False(t, f.Has("tweets"))
	assert.False(t, f.Has("text"))
}

func TestCorpusFilterFromParams(t *testing.T) {
	params := query.Params{
		Query: "sote",
		From:  time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC),
		To:    time.Date(2023, 3, 2, 0, 0, 0, 0, time.UTC),
		Extra: map[string]any{"accounts": "eka", "sample": float64(5), "drop_retweets": true},
	}
	f, err := CorpusFilter(params, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []string{"eka"}, f.Authors)
	assert.Equal(t, 5, f.Sample)
	assert.True(t, f.DropRetweets)
	assert.Equal(t, "sote", f.Contains)
	assert.Equal(t, time.Date(2023, 3, 2, 23, 59, 59, 0, time.UTC), f.To)

	params.Extra["accounts"] = []any{"eka", 3}
	_, err = CorpusFilter(params, time.UTC)
	assert.Error(t, err)
}

type fakeAccounts struct {
	got []string
	err error
}

func (f *fakeAccounts) ScrapeAccounts(_ context.Context, accounts []string, _, _ time.Time, _ twitter.RetryConfig) (*twitter.Shard, error) {
	f.got = accounts
	shard := twitter.NewShard()
	shard.Tweets["9"] = twitter.Tweet{ID: "9", AuthorID: "u9", Text: "moi"}
	return shard, f.err
}

func TestSubmitTwitterWritesShard(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t)
	accounts := &fakeAccounts{}
	o := New(db, newTestPipeline(enrich.Services{}),
		WithTweetDir(dir), WithAccountScraper(accounts, twitter.DefaultRetryConfig()))

	from := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	id, err := o.SubmitTwitter(context.Background(), []string{"eka", "toka"}, from, from.AddDate(0, 0, 7))
	require.NoError(t, err)

	ticket := waitTicket(t, o, id)
	assert.Equal(t, database.StatusFinished, ticket.Status)
	assert.Nil(t, ticket.ResourceID)
	assert.Equal(t, []string{"eka", "toka"}, accounts.got)

	shard, err := twitter.LoadShard(o.ShardPath(id))
	require.NoError(t, err)
	assert.Contains(t, shard.Tweets, "9")
}

func TestSubmitTwitterFailure(t *testing.T) {
	db := openTestDB(t)
	o := New(db, newTestPipeline(enrich.Services{}),
		WithTweetDir(t.TempDir()), WithAccountScraper(&fakeAccounts{err: context.Canceled}, twitter.DefaultRetryConfig()))

	id, err := o.SubmitTwitter(context.Background(), []string{"eka"}, time.Now(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, database.StatusError, waitTicket(t, o, id).Status)
}

func TestSubmitTwitterDisabled(t *testing.T) {
	o := New(openTestDB(t), newTestPipeline(enrich.Services{}))
	_, err := o.SubmitTwitter(context.Background(), []string{"eka"}, time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrTwitterDisabled)
}
