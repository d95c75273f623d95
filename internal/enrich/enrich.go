// Package enrich turns source rows into enriched records: article text is
// fetched under a per-source lock, then the language-analysis stages run
// concurrently, each memoized in the response cache.
package enrich

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/TobiSchelling/mediascraper/internal/cache"
	"github.com/TobiSchelling/mediascraper/internal/fetch"
	"github.com/TobiSchelling/mediascraper/internal/nlp"
	"github.com/TobiSchelling/mediascraper/internal/query"
	"github.com/TobiSchelling/mediascraper/internal/table"
	"github.com/TobiSchelling/mediascraper/internal/twitter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Stage names as they appear in a request's enabled list.
const (
	StageContent   = "content"
	StageParser    = "parser"
	StageNER       = "ner"
	StageSentiment = "sentiment"
	StageAnnif     = "annif"
	StageTwitter   = "twitter"
)

// Lock classes of the browser-backed source and the tweet-link stage.
// Every other medium is locked under its own source name.
const (
	LockHS     = "hs"
	LockTweets = "twitter"
)

// Record is one source row and everything the stages add to it. Stages
// write disjoint fields.
type Record struct {
	query.Result
	Content         string
	Persons         []string
	Entities        []nlp.Entity
	CoNLLU          string
	Tweets          []twitter.Tweet
	TweetSentiments []float64
	Sentiment       *float64
	Subjects        []string
	// Extra holds source specific columns, such as tweet corpus fields.
	Extra table.Row
}

// NewRecords wraps rows as records.
func NewRecords(rows []query.Result) []*Record {
	out := make([]*Record, len(rows))
	for i, r := range rows {
		out[i] = &Record{Result: r}
	}
	return out
}

// TweetSearcher finds tweets linking to a URL.
type TweetSearcher interface {
	TweetsWithURL(ctx context.Context, url string, start, end time.Time) ([]twitter.Tweet, error)
}

// Services are the collaborators of the stages. A nil service disables its
// stage regardless of the request.
type Services struct {
	Parser     nlp.Parser
	Tagger     nlp.Tagger
	Classifier nlp.Classifier
	Suggester  nlp.Suggester
	Tweets     TweetSearcher
}

// Locks hands out one mutex per lock class.
type Locks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func NewLocks() *Locks {
	return &Locks{m: map[string]*sync.Mutex{}}
}

// Get returns the mutex of class, creating it on first use.
func (l *Locks) Get(class string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu, ok := l.m[class]
	if !ok {
		mu = &sync.Mutex{}
		l.m[class] = mu
	}
	return mu
}

// Medium is a searchable source together with the way its articles are
// fetched.
type Medium struct {
	Source query.Source
	// Lock is the lock class serializing this medium's collect and fetch.
	Lock string
	Open fetch.Opener
}

// NewMedium returns a medium serialized only with itself.
func NewMedium(src query.Source, open fetch.Opener) Medium {
	return Medium{Source: src, Lock: src.Name(), Open: open}
}

// Pipeline runs collection and enrichment.
type Pipeline struct {
	store      cache.Store
	services   Services
	locks      *Locks
	paginator  *query.Paginator
	sleep      query.Sleeper
	rnd        func() float64
	fetchDelay time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSleeper replaces the wall-clock sleep after article fetches.
func WithSleeper(s query.Sleeper) Option {
	return func(p *Pipeline) { p.sleep = s }
}

// WithRand replaces the randomness of the politeness delay.
func WithRand(fn func() float64) Option {
	return func(p *Pipeline) { p.rnd = fn }
}

// WithFetchDelay sets the mean delay after each article fetch. Default: 1s.
func WithFetchDelay(d time.Duration) Option {
	return func(p *Pipeline) { p.fetchDelay = d }
}

// New creates a Pipeline. locks is shared by every pipeline of the process.
func New(store cache.Store, services Services, locks *Locks, paginator *query.Paginator, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		services:   services,
		locks:      locks,
		paginator:  paginator,
		sleep:      query.Sleep,
		rnd:        rand.Float64,
		fetchDelay: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Active returns the stages that will run for params, in column order.
func (p *Pipeline) Active(params query.Params) []string {
	var out []string
	if params.IsEnabled(StageContent) {
		out = append(out, StageContent)
	}
	for _, s := range []string{StageParser, StageNER, StageTwitter, StageSentiment, StageAnnif} {
		if params.IsEnabled(s) && p.hasService(s) {
			out = append(out, s)
		}
	}
	return out
}

func (p *Pipeline) hasService(stage string) bool {
	switch stage {
	case StageParser:
		return p.services.Parser != nil
	case StageNER:
		return p.services.Tagger != nil
	case StageSentiment:
		return p.services.Classifier != nil
	case StageAnnif:
		return p.services.Suggester != nil
	case StageTwitter:
		return p.services.Tweets != nil
	}
	return false
}

// Run collects the rows of m, fetches their text when content is enabled
// and runs the enabled stages. Collection and fetching hold m's lock.
func (p *Pipeline) Run(ctx context.Context, m Medium, params query.Params) ([]*Record, error) {
	records, err := p.collect(ctx, m, params)
	if err != nil {
		return records, err
	}
	if !params.IsEnabled(StageContent) {
		return records, nil
	}
	if err := p.Enrich(ctx, records, params); err != nil {
		return records, err
	}
	return records, nil
}

func (p *Pipeline) collect(ctx context.Context, m Medium, params query.Params) ([]*Record, error) {
	lock := p.locks.Get(m.Lock)
	lock.Lock()
	defer lock.Unlock()

	rows, err := p.paginator.Scrape(ctx, m.Source, params)
	records := NewRecords(rows)
	if err != nil {
		return records, err
	}
	if !params.IsEnabled(StageContent) {
		return records, nil
	}
	return records, p.Fetch(ctx, records, m.Open)
}

// Enrich runs every active analysis stage over records concurrently. A
// stage failing on a row leaves that row's column empty; a panicking stage
// is logged and does not affect its siblings. Only cancellation is
// returned as an error.
func (p *Pipeline) Enrich(ctx context.Context, records []*Record, params query.Params) error {
	stages := map[string]func(context.Context, []*Record){
		StageParser:    p.parse,
		StageNER:       p.tagEntities,
		StageTwitter:   p.linkTweets,
		StageSentiment: p.scoreSentiment,
		StageAnnif:     p.suggestSubjects,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range p.Active(params) {
		run, ok := stages[name]
		if !ok {
			continue
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					zap.L().Error("enrichment stage panicked", zap.String("stage", name), zap.Any("panic", r))
				}
			}()
			run(gctx, records)
			return gctx.Err()
		})
	}
	return g.Wait()
}

func progress(i, n int) zap.Field {
	return zap.String("progress", fmt.Sprintf("%d/%d", i+1, n))
}
