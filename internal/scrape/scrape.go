// Package scrape accepts scrape jobs, tracks them as tickets and stores
// their output as resources.
package scrape

import (
	"context"
	"sync"
	"time"

	"github.com/TobiSchelling/mediascraper/internal/database"
	"github.com/TobiSchelling/mediascraper/internal/enrich"
	"github.com/TobiSchelling/mediascraper/internal/query"
	"github.com/TobiSchelling/mediascraper/internal/table"
	"github.com/TobiSchelling/mediascraper/internal/twitter"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store persists tickets and resources.
type Store interface {
	CreateTicket(ctx context.Context, id string) (*database.Ticket, error)
	GetTicket(ctx context.Context, id string) (*database.Ticket, error)
	SetTicketStatus(ctx context.Context, id string, status database.Status) error
	FinishTicket(ctx context.Context, id, resourceID string) error
	InterruptInProgress(ctx context.Context) (int64, error)
	InsertResource(ctx context.Context, id, content string) error
	GetResource(ctx context.Context, id string) (*database.Resource, error)
}

// AccountScraper collects the tweets of a list of accounts.
type AccountScraper interface {
	ScrapeAccounts(ctx context.Context, accounts []string, start, end time.Time, cfg twitter.RetryConfig) (*twitter.Shard, error)
}

// Request is a scrape job: the query and the media to run it against.
type Request struct {
	Params query.Params
	Media  []string
}

// Task kinds.
const (
	KindScrape   = "scrape"
	KindAccounts = "scrape_twitter"
)

// Task is a handle on a running job.
type Task struct {
	ID      string
	Kind    string
	Started time.Time

	done chan struct{}
	err  error
}

// Done is closed when the job has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err is the job's error. Only valid after Done is closed.
func (t *Task) Err() error { return t.err }

// ErrTwitterDisabled is returned by SubmitTwitter when no tweet client is set.
var ErrTwitterDisabled = eris.New("scrape: twitter is not configured")

// Orchestrator runs scrape jobs in the background.
type Orchestrator struct {
	store    Store
	pipeline *enrich.Pipeline
	media    map[string]enrich.Medium

	accounts    AccountScraper
	retry       twitter.RetryConfig
	tweetDir    string
	metadataCSV string
	loc         *time.Location

	mu    sync.Mutex
	tasks map[string]*Task
	wg    sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTweetDir enables the corpus-backed twitter medium, reading shards from
// dir. Account scrapes write their shards there too.
func WithTweetDir(dir string) Option {
	return func(o *Orchestrator) { o.tweetDir = dir }
}

// WithMetadata merges the user metadata CSV at path into corpus rows.
func WithMetadata(path string) Option {
	return func(o *Orchestrator) { o.metadataCSV = path }
}

// WithAccountScraper enables ticketed account scrapes.
func WithAccountScraper(s AccountScraper, cfg twitter.RetryConfig) Option {
	return func(o *Orchestrator) {
		o.accounts = s
		o.retry = cfg
	}
}

// WithLocation sets the zone corpus dates are interpreted in. Default: UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) { o.loc = loc }
}

// New creates an Orchestrator.
func New(store Store, pipeline *enrich.Pipeline, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		pipeline: pipeline,
		media:    map[string]enrich.Medium{},
		retry:    twitter.DefaultRetryConfig(),
		loc:      time.UTC,
		tasks:    map[string]*Task{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Register makes a medium available under name. Call before submitting jobs.
func (o *Orchestrator) Register(name string, m enrich.Medium) {
	o.media[name] = m
}

// Media lists the registered medium names, including the tweet corpus when
// enabled.
func (o *Orchestrator) Media() []string {
	names := make([]string, 0, len(o.media)+1)
	for name := range o.media {
		names = append(names, name)
	}
	if o.tweetDir != "" {
		names = append(names, MediumTwitter)
	}
	return names
}

// RecoverInterrupted marks tickets left in progress by a previous process.
func (o *Orchestrator) RecoverInterrupted(ctx context.Context) (int64, error) {
	n, err := o.store.InterruptInProgress(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		zap.L().Warn("marked unfinished tickets as interrupted", zap.Int64("tickets", n))
	}
	return n, nil
}

// GetTicket returns a ticket or database.ErrNotFound.
func (o *Orchestrator) GetTicket(ctx context.Context, id string) (*database.Ticket, error) {
	return o.store.GetTicket(ctx, id)
}

// GetResource returns a resource or database.ErrNotFound.
func (o *Orchestrator) GetResource(ctx context.Context, id string) (*database.Resource, error) {
	return o.store.GetResource(ctx, id)
}

// Submit persists a ticket for req and starts the job. It returns as soon
// as the ticket exists; the job outlives ctx.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (string, error) {
	id := uuid.NewString()
	if _, err := o.store.CreateTicket(ctx, id); err != nil {
		return "", err
	}
	o.launch(ctx, id, KindScrape, func(ctx context.Context) error {
		return o.Run(ctx, id, req)
	})
	return id, nil
}

// Tasks returns the jobs still running.
func (o *Orchestrator) Tasks() []*Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Task, 0, len(o.tasks))
	for _, t := range o.tasks {
		out = append(out, t)
	}
	return out
}

// Task returns the running job of a ticket.
func (o *Orchestrator) Task(id string) (*Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[id]
	return t, ok
}

// Wait blocks until every submitted job has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) launch(ctx context.Context, id, kind string, job func(context.Context) error) *Task {
	task := &Task{ID: id, Kind: kind, Started: time.Now(), done: make(chan struct{})}

	o.mu.Lock()
	o.tasks[id] = task
	o.mu.Unlock()

	jobCtx := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(task.done)
		defer func() {
			o.mu.Lock()
			delete(o.tasks, id)
			o.mu.Unlock()
		}()
		task.err = job(jobCtx)
	}()
	return task
}

// Run executes a scrape job for an existing ticket: every known medium is
// scraped concurrently, the rows are concatenated into one CSV resource
// stored under the ticket id and the ticket is finished. On any error or
// panic the ticket is set to error instead.
func (o *Orchestrator) Run(ctx context.Context, ticketID string, req Request) (err error) {
	log := zap.L().With(zap.String("ticket", ticketID))
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("scrape: job panicked: %v", r)
		}
		if err != nil {
			log.Error("error during scraping", zap.Error(err))
			o.fail(ctx, ticketID)
		}
	}()

	log.Info("scrape started", zap.Strings("media", req.Media), zap.String("query", req.Params.Query))
	frames, err := o.collect(ctx, req)
	if err != nil {
		return err
	}
	log.Info("scrape finished")

	content, err := table.Concat(frames...).CSV()
	if err != nil {
		return err
	}
	if err := o.store.InsertResource(ctx, ticketID, content); err != nil {
		return err
	}
	return o.store.FinishTicket(ctx, ticketID, ticketID)
}

func (o *Orchestrator) collect(ctx context.Context, req Request) ([]*table.Frame, error) {
	frames := make([]*table.Frame, len(req.Media))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range req.Media {
		if name == MediumTwitter && o.tweetDir != "" {
			g.Go(guard(name, func() error {
				f, err := o.scrapeCorpus(gctx, req.Params)
				frames[i] = f
				return err
			}))
			continue
		}

		m, ok := o.media[name]
		if !ok {
			zap.L().Warn("unknown media", zap.String("media", name))
			continue
		}
		g.Go(guard(name, func() error {
			records, err := o.pipeline.Run(gctx, m, req.Params)
			if err != nil {
				return eris.Wrapf(err, "scrape: %s", name)
			}
			frames[i] = enrich.Frame(records, o.stages(req.Params))
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

// guard turns a panic in a medium's goroutine into an error of the job.
func guard(medium string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = eris.Errorf("scrape: %s panicked: %v", medium, r)
			}
		}()
		return fn()
	}
}

// stages are the enrichment columns a news medium produces.
func (o *Orchestrator) stages(params query.Params) []string {
	if !params.IsEnabled(enrich.StageContent) {
		return nil
	}
	return o.pipeline.Active(params)
}

func (o *Orchestrator) fail(ctx context.Context, ticketID string) {
	if err := o.store.SetTicketStatus(context.WithoutCancel(ctx), ticketID, database.StatusError); err != nil {
		zap.L().Error("could not mark ticket failed", zap.String("ticket", ticketID), zap.Error(err))
	}
}
