package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Server    Server    `yaml:"server"`
	Output    Output    `yaml:"output"`
	Logging   Logging   `yaml:"logging"`
	Scrape    Scrape    `yaml:"scrape"`
	Parser    Service   `yaml:"parser"`
	NER       Service   `yaml:"ner"`
	Sentiment Service   `yaml:"sentiment"`
	Annif     Service   `yaml:"annif"`
	Twitter   Twitter   `yaml:"twitter"`
	HS        HS        `yaml:"hs"`
	NewsAPI   NewsAPI   `yaml:"newsapi"`
	Feeds     []Feed    `yaml:"feeds"`
	Schedule  Schedule  `yaml:"schedule"`
	Sources   SourceURL `yaml:"sources"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Scrape holds defaults applied to scrape requests that leave them unset.
type Scrape struct {
	Limit          int           `yaml:"limit"`
	Delay          time.Duration `yaml:"delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	UserAgent      string        `yaml:"user_agent"`
}

// Service is an HTTP collaborator such as the dependency parser or Annif.
type Service struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	// Project is only used by Annif.
	Project string `yaml:"project,omitempty"`
}

type Twitter struct {
	Enabled        bool          `yaml:"enabled"`
	BaseURL        string        `yaml:"base_url"`
	BearerTokenEnv string        `yaml:"bearer_token_env"`
	Delay          time.Duration `yaml:"delay"`
	TweetDir       string        `yaml:"tweet_dir"`
	MetadataCSV    string        `yaml:"metadata_csv"`
}

type HS struct {
	UsernameEnv string `yaml:"username_env"`
	PasswordEnv string `yaml:"password_env"`
	Headless    bool   `yaml:"headless"`
}

type NewsAPI struct {
	Enabled   bool   `yaml:"enabled"`
	APIKeyEnv string `yaml:"api_key_env"`
	Language  string `yaml:"language"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// SourceURL overrides the endpoints of the news search APIs.
type SourceURL struct {
	Yle       string `yaml:"yle"`
	YleAppID  string `yaml:"yle_app_id"`
	YleAppKey string `yaml:"yle_app_key"`
	IL        string `yaml:"il"`
	HS        string `yaml:"hs"`
	IS        string `yaml:"is"`
	NewsAPI   string `yaml:"newsapi"`
}

type Schedule struct {
	Cron    string        `yaml:"cron"`
	Scrapes []DailyScrape `yaml:"scrapes"`
}

// DailyScrape is one named tweet collection run by the scheduler.
type DailyScrape struct {
	Name            string   `yaml:"name"`
	IntervalDays    int      `yaml:"interval_days"`
	Accounts        []string `yaml:"accounts"`
	AccountsFile    string   `yaml:"accounts_file"`
	SearchWords     []string `yaml:"search_words"`
	SearchWordsFile string   `yaml:"search_words_file"`
}

// ConfigDir returns the XDG config directory for mediascraper.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "mediascraper")
}

// DataDir returns the XDG data directory for mediascraper.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "mediascraper")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/mediascraper/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", eris.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", eris.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'mediascraper init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "config: read")
	}
	return parse(data)
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(err)
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Server:  Server{Host: "0.0.0.0", Port: 8080},
		Logging: Logging{Level: "info", Format: "console"},
		Scrape: Scrape{
			Limit:          100,
			Delay:          time.Second,
			RequestTimeout: 60 * time.Second,
			UserAgent:      "mediascraper/1.0",
		},
		Parser:    Service{Enabled: true, URL: "http://localhost:9876"},
		NER:       Service{Enabled: true, URL: "http://localhost:9877"},
		Sentiment: Service{Enabled: true, URL: "http://localhost:9878"},
		Annif:     Service{Enabled: true, URL: "http://localhost:5000", Project: "yso-fi"},
		Twitter: Twitter{
			BaseURL:        "https://api.twitter.com",
			BearerTokenEnv: "TWITTER_BEARER_TOKEN",
			Delay:          3100 * time.Millisecond,
		},
		HS: HS{
			UsernameEnv: "HS_USERNAME",
			PasswordEnv: "HS_PASSWORD",
			Headless:    true,
		},
		NewsAPI: NewsAPI{APIKeyEnv: "NEWSAPI_KEY"},
		Schedule: Schedule{Cron: "0 3 * * *"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, eris.Wrap(err, "config: parse")
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetTweetDir returns the directory holding tweet shards.
func (c *Config) GetTweetDir() string {
	if c.Twitter.TweetDir != "" {
		return c.Twitter.TweetDir
	}
	return filepath.Join(c.GetDataDir(), "tweets")
}

// DBPath returns the sqlite database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "mediascraper.db")
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg Logging) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
