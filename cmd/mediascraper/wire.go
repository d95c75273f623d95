package main

import (
	"os"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/TobiSchelling/mediascraper/internal/analysis"
	"github.com/TobiSchelling/mediascraper/internal/config"
	"github.com/TobiSchelling/mediascraper/internal/corpus"
	"github.com/TobiSchelling/mediascraper/internal/database"
	"github.com/TobiSchelling/mediascraper/internal/enrich"
	"github.com/TobiSchelling/mediascraper/internal/fetch"
	"github.com/TobiSchelling/mediascraper/internal/nlp"
	"github.com/TobiSchelling/mediascraper/internal/query"
	"github.com/TobiSchelling/mediascraper/internal/schedule"
	"github.com/TobiSchelling/mediascraper/internal/scrape"
	"github.com/TobiSchelling/mediascraper/internal/server"
	"github.com/TobiSchelling/mediascraper/internal/twitter"
)

// app holds the long-lived components of one process.
type app struct {
	db        *database.DB
	scraper   *scrape.Orchestrator
	tweets    *twitter.Client
	scheduler *schedule.Scheduler
}

func (a *app) Close() error {
	return a.db.Close()
}

func newHTTPClient(c config.Scrape) *resty.Client {
	return resty.New().
		SetTimeout(c.RequestTimeout).
		SetHeader("User-Agent", c.UserAgent)
}

// newApp opens the database and builds every medium, stage and the tweet
// client the config enables.
func newApp() (*app, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}

	client := newHTTPClient(cfg.Scrape)
	a := &app{db: db}

	services := enrich.Services{}
	if cfg.Parser.Enabled {
		services.Parser = nlp.NewParserClient(cfg.Parser.URL, client)
	}
	if cfg.NER.Enabled {
		services.Tagger = nlp.NewNERClient(cfg.NER.URL, client)
	}
	if cfg.Sentiment.Enabled {
		services.Classifier = nlp.NewSentimentClient(cfg.Sentiment.URL, client)
	}
	if cfg.Annif.Enabled {
		services.Suggester = nlp.NewAnnifClient(nlp.SuggestURL(cfg.Annif.URL, cfg.Annif.Project), client)
	}
	if cfg.Twitter.Enabled {
		bearer := os.Getenv(cfg.Twitter.BearerTokenEnv)
		if bearer == "" {
			zap.L().Warn("twitter enabled without a bearer token", zap.String("env", cfg.Twitter.BearerTokenEnv))
		}
		a.tweets = twitter.NewClient(client, cfg.Twitter.BaseURL, bearer, twitter.NewGate(cfg.Twitter.Delay))
		services.Tweets = a.tweets
	}

	pipeline := enrich.New(db, services, enrich.NewLocks(), query.NewPaginator(client),
		enrich.WithFetchDelay(cfg.Scrape.Delay))

	tweetDir := cfg.GetTweetDir()
	opts := []scrape.Option{
		scrape.WithTweetDir(tweetDir),
		scrape.WithLocation(analysis.Location),
	}
	if cfg.Twitter.MetadataCSV != "" {
		opts = append(opts, scrape.WithMetadata(cfg.Twitter.MetadataCSV))
	}
	if a.tweets != nil {
		opts = append(opts, scrape.WithAccountScraper(a.tweets, twitter.DefaultRetryConfig()))
		if len(cfg.Schedule.Scrapes) > 0 {
			a.scheduler = schedule.New(a.tweets, tweetDir, cfg.Schedule.Scrapes,
				schedule.WithLocation(analysis.Location))
		}
	}
	a.scraper = scrape.New(db, pipeline, opts...)

	for name, m := range media(client) {
		a.scraper.Register(name, m)
	}
	return a, nil
}

// media returns the searchable sources by name.
func media(client *resty.Client) map[string]enrich.Medium {
	src := cfg.Sources
	static := fetch.Static(fetch.NewCSSFetcher(client, fetch.DefaultSelectors))
	plain := func(s query.Source) enrich.Medium {
		return enrich.NewMedium(s, static)
	}

	hs := fetch.HSOpener(
		fetch.Credentials{
			Username: os.Getenv(cfg.HS.UsernameEnv),
			Password: os.Getenv(cfg.HS.PasswordEnv),
		},
		fetch.BrowserOptions{Headless: cfg.HS.Headless, PageTimeout: cfg.Scrape.RequestTimeout},
	)

	out := map[string]enrich.Medium{
		"yle": plain(query.Yle{Endpoint: src.Yle, AppID: src.YleAppID, AppKey: src.YleAppKey}),
		"il":  plain(query.IL{Endpoint: src.IL}),
		"is":  plain(query.NewIS(src.IS)),
		"hs":  {Source: query.NewHS(src.HS), Lock: enrich.LockHS, Open: hs},
	}

	if cfg.NewsAPI.Enabled {
		n := query.NewNewsAPI(src.NewsAPI, cfg.NewsAPI.APIKeyEnv, cfg.NewsAPI.Language)
		if n.IsConfigured() {
			out[n.Name()] = plain(n)
		} else {
			zap.L().Warn("newsapi enabled without an api key", zap.String("env", cfg.NewsAPI.APIKeyEnv))
		}
	}

	for _, f := range cfg.Feeds {
		feed := query.NewFeed(f.URL, f.Name)
		out[feed.Name()] = plain(feed)
	}
	return out
}

// handler builds the HTTP front end of a.
func (a *app) handler() *server.Server {
	tweetDir := cfg.GetTweetDir()
	opts := []server.Option{
		server.WithCorpus(func() (*corpus.Corpus, error) { return corpus.Load(tweetDir) }),
		server.WithDefaults(server.Defaults{Limit: cfg.Scrape.Limit, Delay: cfg.Scrape.Delay}),
	}
	if a.scheduler != nil {
		opts = append(opts, server.WithScheduler(a.scheduler))
	}
	return server.New(a.scraper, opts...)
}

func openDB() (*database.DB, error) {
	return database.Open(cfg.DBPath())
}
