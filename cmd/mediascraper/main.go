package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/mediascraper/internal/config"
	"github.com/TobiSchelling/mediascraper/internal/database"
	"github.com/TobiSchelling/mediascraper/internal/query"
	"github.com/TobiSchelling/mediascraper/internal/scrape"
	"github.com/TobiSchelling/mediascraper/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "mediascraper",
	Short:   "Finnish news and tweet scraping service",
	Long:    "mediascraper searches Finnish news media, enriches the articles with NLP services and serves the results for analysis.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return eris.Wrap(err, "loading config")
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		return config.InitLogger(cfg.Logging)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ticketsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(twitterCmd)
	rootCmd.AddCommand(scheduleCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("mediascraper", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/mediascraper/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return eris.Wrap(err, "creating config directory")
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return eris.Wrap(err, "writing config")
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure media endpoints, NLP services, and Twitter.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "getting stats")
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Tickets:")
		for _, s := range []database.Status{
			database.StatusInProgress,
			database.StatusFinished,
			database.StatusError,
			database.StatusInterrupted,
		} {
			fmt.Printf("  %s: %d\n", s, stats.Tickets[s])
		}
		fmt.Printf("\nResources: %d\n", stats.Resources)
		fmt.Printf("Cached stage outputs: %d\n", stats.CacheRows)
		return nil
	},
}

// --- tickets command ---

var (
	ticketStatus string
	ticketLimit  uint64
)

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "List recent scrape tickets",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		tickets, err := db.ListTickets(cmd.Context(), database.TicketFilter{
			Status: database.Status(ticketStatus),
			Limit:  ticketLimit,
		})
		if err != nil {
			return err
		}
		if len(tickets) == 0 {
			fmt.Println("No tickets.")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Ticket", "Status", "Resource", "Created"})
		for _, tk := range tickets {
			resource := ""
			if tk.ResourceID != nil {
				resource = *tk.ResourceID
			}
			t.AppendRow(table.Row{tk.ID, tk.Status, resource, tk.CreatedAt.Local().Format(time.DateTime)})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}

func init() {
	ticketsCmd.Flags().StringVar(&ticketStatus, "status", "", "Only show tickets with this status")
	ticketsCmd.Flags().Uint64VarP(&ticketLimit, "limit", "n", 20, "Maximum number of tickets")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scrape and analysis API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if _, err := a.scraper.RecoverInterrupted(ctx); err != nil {
			return err
		}

		if a.scheduler != nil && cfg.Schedule.Cron != "" {
			if err := a.scheduler.Start(cfg.Schedule.Cron); err != nil {
				return err
			}
			defer a.scheduler.Stop()
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		zap.L().Info("serving media", zap.Strings("media", a.scraper.Media()))
		return server.Serve(ctx, a.handler().Handler(), cfg.Server.Host, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to run server on")
}

// --- scrape command ---

var (
	scrapeQuery   string
	scrapeFrom    string
	scrapeTo      string
	scrapeMedia   []string
	scrapeEnabled []string
	scrapeLimit   int
	scrapeOut     string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape in the foreground and write its CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := time.Parse(time.DateOnly, scrapeFrom)
		if err != nil {
			return eris.Wrap(err, "invalid --from")
		}
		to := time.Now().UTC().Truncate(24 * time.Hour)
		if scrapeTo != "" {
			if to, err = time.Parse(time.DateOnly, scrapeTo); err != nil {
				return eris.Wrap(err, "invalid --to")
			}
		}
		limit := scrapeLimit
		if limit == 0 {
			limit = cfg.Scrape.Limit
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.scraper.Submit(cmd.Context(), scrape.Request{
			Params: query.Params{
				Query:   scrapeQuery,
				From:    from,
				To:      to,
				Limit:   limit,
				Delay:   cfg.Scrape.Delay,
				Enabled: scrapeEnabled,
			},
			Media: scrapeMedia,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Ticket %s\n", id)
		a.scraper.Wait()

		return writeResource(cmd.Context(), a, id)
	},
}

func init() {
	scrapeCmd.Flags().StringVarP(&scrapeQuery, "query", "q", "", "Search query")
	scrapeCmd.Flags().StringVar(&scrapeFrom, "from", "", "First day, YYYY-MM-DD")
	scrapeCmd.Flags().StringVar(&scrapeTo, "to", "", "Last day, YYYY-MM-DD (default today)")
	scrapeCmd.Flags().StringSliceVarP(&scrapeMedia, "media", "m", []string{"yle"}, "Media to search")
	scrapeCmd.Flags().StringSliceVarP(&scrapeEnabled, "enabled", "e", nil, "Enrichment stages to run")
	scrapeCmd.Flags().IntVar(&scrapeLimit, "limit", 0, "Page size (default from config)")
	scrapeCmd.Flags().StringVarP(&scrapeOut, "out", "o", "", "Write the CSV here instead of stdout")
	_ = scrapeCmd.MarkFlagRequired("from")
}

func writeResource(ctx context.Context, a *app, ticketID string) error {
	ticket, err := a.scraper.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Status != database.StatusFinished || ticket.ResourceID == nil {
		return eris.Errorf("scrape ended with status %s", ticket.Status)
	}
	res, err := a.scraper.GetResource(ctx, *ticket.ResourceID)
	if err != nil {
		return err
	}
	if scrapeOut == "" {
		_, err = os.Stdout.WriteString(res.Content)
		return err
	}
	if err := os.WriteFile(scrapeOut, []byte(res.Content), 0o644); err != nil {
		return eris.Wrapf(err, "writing %s", scrapeOut)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", scrapeOut)
	return nil
}

// --- twitter command ---

var (
	twitterFrom string
	twitterTo   string
)

var twitterCmd = &cobra.Command{
	Use:   "twitter [account...]",
	Short: "Collect the tweets of accounts into a shard",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := time.Parse(time.DateOnly, twitterFrom)
		if err != nil {
			return eris.Wrap(err, "invalid --from")
		}
		to, err := time.Parse(time.DateOnly, twitterTo)
		if err != nil {
			return eris.Wrap(err, "invalid --to")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.scraper.SubmitTwitter(cmd.Context(), args, from, to)
		if err != nil {
			return err
		}
		a.scraper.Wait()

		ticket, err := a.scraper.GetTicket(cmd.Context(), id)
		if err != nil {
			return err
		}
		if ticket.Status != database.StatusFinished {
			return eris.Errorf("twitter scrape ended with status %s", ticket.Status)
		}
		fmt.Printf("Wrote %s\n", a.scraper.ShardPath(id))
		return nil
	},
}

func init() {
	twitterCmd.Flags().StringVar(&twitterFrom, "from", "", "Start day, YYYY-MM-DD")
	twitterCmd.Flags().StringVar(&twitterTo, "to", "", "End day (exclusive), YYYY-MM-DD")
	_ = twitterCmd.MarkFlagRequired("from")
	_ = twitterCmd.MarkFlagRequired("to")
}

// --- schedule command ---

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the configured daily tweet scrapes",
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every daily scrape once, now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if a.scheduler == nil {
			return eris.New("no daily scrapes configured or twitter disabled")
		}
		return a.scheduler.RunAll(cmd.Context())
	},
}

func init() {
	scheduleCmd.AddCommand(scheduleRunCmd)
}
