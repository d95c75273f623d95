package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/TobiSchelling/mediascraper/internal/analysis"
	"github.com/TobiSchelling/mediascraper/internal/corpus"
	"github.com/TobiSchelling/mediascraper/internal/database"
	"github.com/TobiSchelling/mediascraper/internal/query"
	"github.com/TobiSchelling/mediascraper/internal/scrape"
	"github.com/TobiSchelling/mediascraper/internal/table"
)

// Scraper accepts and tracks scrape jobs.
type Scraper interface {
	Submit(ctx context.Context, req scrape.Request) (string, error)
	SubmitTwitter(ctx context.Context, accounts []string, from, to time.Time) (string, error)
	GetTicket(ctx context.Context, id string) (*database.Ticket, error)
	GetResource(ctx context.Context, id string) (*database.Resource, error)
	Media() []string
}

// Scheduler starts the configured daily scrapes in the background.
type Scheduler interface {
	Trigger(ctx context.Context)
}

// CorpusLoader loads the whole tweet corpus.
type CorpusLoader func() (*corpus.Corpus, error)

// Defaults fill request fields the client leaves out.
type Defaults struct {
	Limit int
	Delay time.Duration
}

// Server is the HTTP front end of the scraper.
type Server struct {
	scraper   Scraper
	scheduler Scheduler
	tweets    CorpusLoader
	defaults  Defaults
	validate  *validator.Validate
	mux       *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithScheduler enables POST /run_daily_schedule.
func WithScheduler(s Scheduler) Option {
	return func(srv *Server) { srv.scheduler = s }
}

// WithCorpus enables tweet corpus analysis under the resource id twitter.
func WithCorpus(load CorpusLoader) Option {
	return func(srv *Server) { srv.tweets = load }
}

// WithDefaults sets the page size and delay of requests that omit them.
func WithDefaults(d Defaults) Option {
	return func(srv *Server) { srv.defaults = d }
}

// New creates a new Server.
func New(scraper Scraper, opts ...Option) *Server {
	s := &Server{
		scraper:  scraper,
		defaults: Defaults{Delay: time.Second},
		validate: validator.New(),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /scrape", s.handleScrape)
	s.mux.HandleFunc("POST /analyse", s.handleScrape)
	s.mux.HandleFunc("POST /scrape_twitter", s.handleScrapeTwitter)
	s.mux.HandleFunc("GET /ticket/{id}", s.handleTicket)
	s.mux.HandleFunc("GET /resource/{id}", s.handleResource)
	s.mux.HandleFunc("GET /resource/{id}/analysis/{method}", s.handleAnalysis)
	s.mux.HandleFunc("POST /run_daily_schedule", s.handleRunDailySchedule)
}

type scrapeRequest struct {
	Query    *string        `json:"query" validate:"required"`
	FromDate string         `json:"from_date" validate:"required,datetime=2006-01-02"`
	ToDate   string         `json:"to_date" validate:"omitempty,datetime=2006-01-02"`
	Media    []string       `json:"media" validate:"required"`
	Enabled  []string       `json:"enabled" validate:"required"`
	Limit    int            `json:"limit" validate:"gte=0"`
	Params   map[string]any `json:"params"`
}

type twitterRequest struct {
	Accounts []string `json:"accounts" validate:"required,dive,required"`
	FromDate string   `json:"from_date" validate:"required"`
	ToDate   string   `json:"to_date" validate:"required"`
}

type ticketResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message,omitempty"`
	TicketID   string  `json:"ticket_id"`
	ResourceID *string `json:"resource_id,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "media": s.scraper.Media()})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var body scrapeRequest
	if !s.decode(w, r, &body) {
		return
	}

	from, _ := time.Parse(time.DateOnly, body.FromDate)
	to := time.Now().UTC().Truncate(24 * time.Hour)
	if body.ToDate != "" {
		to, _ = time.Parse(time.DateOnly, body.ToDate)
	}
	limit := body.Limit
	if limit == 0 {
		limit = s.defaults.Limit
	}

	req := scrape.Request{
		Params: query.Params{
			Query:   *body.Query,
			From:    from,
			To:      to,
			Limit:   limit,
			Delay:   s.defaults.Delay,
			Enabled: body.Enabled,
			Extra:   body.Params,
		},
		Media: body.Media,
	}
	id, err := s.scraper.Submit(r.Context(), req)
	if err != nil {
		zap.L().Error("could not create ticket", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ticketResponse{Status: "ok", Message: "Scrape scheduled!", TicketID: id})
}

func (s *Server) handleScrapeTwitter(w http.ResponseWriter, r *http.Request) {
	var body twitterRequest
	if !s.decode(w, r, &body) {
		return
	}
	from, okFrom := table.Time(body.FromDate)
	to, okTo := table.Time(body.ToDate)
	if !okFrom || !okTo {
		zap.L().Warn("malformed dates", zap.String("from_date", body.FromDate), zap.String("to_date", body.ToDate))
		http.Error(w, "Malformed dates", http.StatusBadRequest)
		return
	}

	id, err := s.scraper.SubmitTwitter(r.Context(), body.Accounts, from, to)
	if errors.Is(err, scrape.ErrTwitterDisabled) {
		http.Error(w, "Twitter is not configured", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		zap.L().Error("could not create ticket", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ticketResponse{Status: "ok", Message: "Scrape scheduled!", TicketID: id})
}

func (s *Server) handleTicket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ticket, err := s.scraper.GetTicket(r.Context(), id)
	if !s.found(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      ticket.Status,
		"resource_id": ticket.ResourceID,
		"ticket_id":   id,
	})
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	res, err := s.scraper.GetResource(r.Context(), r.PathValue("id"))
	if !s.found(w, err) {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	_, _ = w.Write([]byte(res.Content))
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	id, method := r.PathValue("id"), r.PathValue("method")
	params := r.URL.Query()

	var (
		out *table.Frame
		err error
	)
	if id == "twitter" && s.tweets != nil {
		var c *corpus.Corpus
		if c, err = s.tweets(); err == nil {
			out, err = analysis.AnalyzeTweets(c, method, params)
		}
	} else {
		var res *database.Resource
		res, err = s.scraper.GetResource(r.Context(), id)
		if !s.found(w, err) {
			return
		}
		var f *table.Frame
		if f, err = table.ReadCSV(strings.NewReader(res.Content)); err == nil {
			out, err = analysis.Analyze(f, method, params)
		}
	}
	if err == nil {
		out, err = analysis.ParseShape(params).Apply(out)
	}

	var body []byte
	var contentType string
	if err == nil {
		body, contentType, err = analysis.Encode(out, params.Get("format"), params.Get("plot"))
	}

	switch {
	case err == nil:
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	case errors.Is(err, analysis.ErrUnknownMethod):
		http.NotFound(w, r)
	case errors.Is(err, analysis.ErrBadFormat):
		http.Error(w, "Illegal format parameter value", http.StatusBadRequest)
	case errors.Is(err, analysis.ErrInvalidParams):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		zap.L().Error("analysis failed", zap.String("resource", id), zap.String("method", method), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) handleRunDailySchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "No schedule configured", http.StatusServiceUnavailable)
		return
	}
	s.scheduler.Trigger(r.Context())
	w.WriteHeader(http.StatusOK)
}

// decode reads and validates a JSON body, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		zap.L().Warn("malformed json request", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "Json parse error", http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fe.Field()
			}
			http.Error(w, "Missing or malformed parameters: "+strings.Join(fields, ", "), http.StatusBadRequest)
			return false
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// found answers 404 for unknown ids and 500 for other errors.
func (s *Server) found(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, "Not found", http.StatusNotFound)
		return false
	}
	zap.L().Error("database lookup failed", zap.Error(err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("writing response", zap.Error(err))
	}
}

// Serve listens on the given port until ctx is done.
func Serve(ctx context.Context, handler http.Handler, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	zap.L().Info("server listening", zap.String("addr", "http://"+addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
