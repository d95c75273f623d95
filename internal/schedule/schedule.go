// Package schedule runs the configured daily tweet collections.
package schedule

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TobiSchelling/mediascraper/internal/config"
	"github.com/TobiSchelling/mediascraper/internal/twitter"
)

// DefaultIntervalDays is how many days back a scrape looks when its config
// does not say.
const DefaultIntervalDays = 10

// Searcher queries the tweet search API.
type Searcher interface {
	ByUsernames(ctx context.Context, usernames []string, start, end time.Time) (*twitter.Shard, error)
	BySearchWord(ctx context.Context, word string, start, end time.Time) (*twitter.Shard, error)
}

// Job is one named daily collection.
type Job struct {
	Name         string
	IntervalDays int
	Accounts     []string
	SearchWords  []string
}

// LoadJobs resolves the account and search word lists of the configured
// scrapes. Inline lists win over list files.
func LoadJobs(scrapes []config.DailyScrape) ([]Job, error) {
	jobs := make([]Job, 0, len(scrapes))
	for _, sc := range scrapes {
		if sc.Name == "" {
			return nil, eris.New("schedule: scrape without a name")
		}
		accounts, err := LoadList(sc.Accounts, sc.AccountsFile)
		if err != nil {
			return nil, eris.Wrapf(err, "schedule: %s accounts", sc.Name)
		}
		words, err := LoadList(sc.SearchWords, sc.SearchWordsFile)
		if err != nil {
			return nil, eris.Wrapf(err, "schedule: %s search words", sc.Name)
		}
		interval := sc.IntervalDays
		if interval <= 0 {
			interval = DefaultIntervalDays
		}
		jobs = append(jobs, Job{Name: sc.Name, IntervalDays: interval, Accounts: accounts, SearchWords: words})
	}
	return jobs, nil
}

// LoadList returns inline when it is non-empty, else the non-blank lines of
// file, else nothing.
func LoadList(inline []string, file string) ([]string, error) {
	var out []string
	for _, item := range inline {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) > 0 || file == "" {
		return out, nil
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", file)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, eris.Wrapf(sc.Err(), "read %s", file)
}

// Scheduler runs jobs on demand and on a cron schedule. Runs never overlap.
type Scheduler struct {
	searcher Searcher
	dir      string
	scrapes  []config.DailyScrape
	loc      *time.Location
	now      func() time.Time

	running sync.Mutex
	wg      sync.WaitGroup
	cron    *cron.Cron
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation sets the zone days are counted in. Default: local time.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler writing shards to dir.
func New(searcher Searcher, dir string, scrapes []config.DailyScrape, opts ...Option) *Scheduler {
	s := &Scheduler{
		searcher: searcher,
		dir:      dir,
		scrapes:  scrapes,
		loc:      time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window returns the day a job collects when run at now: the whole day
// IntervalDays before today.
func (j Job) Window(now time.Time) (from, to time.Time) {
	y, m, d := now.Date()
	from = time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -j.IntervalDays)
	return from, from.AddDate(0, 0, 1)
}

// RunJob collects one job and saves its shard as <name>-<today>.json. It
// returns the path written.
func (s *Scheduler) RunJob(ctx context.Context, job Job) (string, error) {
	now := s.now().In(s.loc)
	from, to := job.Window(now)
	log := zap.L().With(zap.String("scrape", job.Name))

	shard := twitter.NewShard()
	for i := 0; i < len(job.Accounts); i += twitter.AccountBatchSize {
		batch := job.Accounts[i:min(i+twitter.AccountBatchSize, len(job.Accounts))]
		log.Info("loading tweets",
			zap.Int("done", i),
			zap.Int("total", len(job.Accounts)),
			zap.String("accounts", strings.Join(batch, ", ")),
		)
		got, err := s.searcher.ByUsernames(ctx, batch, from, to)
		if err != nil {
			return "", err
		}
		shard.Merge(got)
	}

	for _, word := range job.SearchWords {
		log.Info("loading tweets", zap.String("search_word", word))
		got, err := s.searcher.BySearchWord(ctx, word, from, to)
		if err != nil {
			return "", err
		}
		shard.Merge(got)
	}

	path := filepath.Join(s.dir, job.Name+"-"+now.Format(time.DateOnly)+".json")
	if err := shard.Save(path); err != nil {
		return "", err
	}
	log.Info("saved tweets", zap.String("path", path), zap.Int("tweets", len(shard.Tweets)))
	return path, nil
}

// RunAll runs every configured job in turn. A failing job is logged and the
// rest still run; the first error is returned.
func (s *Scheduler) RunAll(ctx context.Context) error {
	s.running.Lock()
	defer s.running.Unlock()
	return s.runAll(ctx)
}

func (s *Scheduler) runAll(ctx context.Context) error {
	jobs, err := LoadJobs(s.scrapes)
	if err != nil {
		zap.L().Error("failed to load daily schedule", zap.Error(err))
		return err
	}

	var first error
	for _, job := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		zap.L().Info("running scraper", zap.String("scrape", job.Name))
		if _, err := s.RunJob(ctx, job); err != nil {
			zap.L().Error("scraper failed", zap.String("scrape", job.Name), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Trigger starts RunAll in the background unless a run is already in
// progress, in which case it does nothing. The run outlives ctx.
func (s *Scheduler) Trigger(ctx context.Context) {
	if !s.running.TryLock() {
		zap.L().Warn("daily schedule already running, trigger skipped")
		return
	}
	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		_ = s.runAll(runCtx)
	}()
}

// Wait blocks until triggered runs have returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Start runs RunAll on the cron spec until Stop.
func (s *Scheduler) Start(spec string) error {
	c := cron.New(cron.WithLocation(s.loc), cron.WithLogger(cronLogger{}))
	if _, err := c.AddFunc(spec, func() { s.Trigger(context.Background()) }); err != nil {
		return eris.Wrapf(err, "schedule: invalid cron spec %q", spec)
	}
	s.cron = c
	c.Start()
	zap.L().Info("daily schedule started", zap.String("cron", spec), zap.Int("scrapes", len(s.scrapes)))
	return nil
}

// Stop halts the cron schedule and waits for running jobs.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	zap.L().Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	zap.L().Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
