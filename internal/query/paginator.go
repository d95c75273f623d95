package query

import (
	"bytes"
	"context"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the wall-clock Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Jitter returns a random duration in [0, 2*mean).
func Jitter(rnd func() float64, mean time.Duration) time.Duration {
	return time.Duration(rnd() * 2 * float64(mean))
}

// Paginator walks a Source window by window and page by page.
type Paginator struct {
	client *resty.Client
	sleep  Sleeper
	rnd    func() float64
}

// Option configures a Paginator.
type Option func(*Paginator)

// WithSleeper replaces the wall-clock sleep between pages.
func WithSleeper(s Sleeper) Option {
	return func(p *Paginator) { p.sleep = s }
}

// WithRand replaces the source of randomness for page delays.
func WithRand(fn func() float64) Option {
	return func(p *Paginator) { p.rnd = fn }
}

// NewPaginator creates a Paginator sending requests through client.
func NewPaginator(client *resty.Client, opts ...Option) *Paginator {
	p := &Paginator{client: client, sleep: Sleep, rnd: rand.Float64}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Scrape runs the query against src over every window of params and returns
// the merged rows, unique by URL. Upstream failures end the affected window
// early and are only logged; the returned error is reserved for request
// construction failures and cancellation.
func (p *Paginator) Scrape(ctx context.Context, src Source, params Params) ([]Result, error) {
	limit := params.Limit
	if limit <= 0 || limit > src.MaxLimit() {
		limit = src.MaxLimit()
	}

	windows := SplitWindows(params.From, params.To)
	if wl, ok := src.(Windowless); ok && wl.Windowless() {
		windows = []Window{{From: params.From, To: params.To}}
	}

	var all []Result
	for _, w := range windows {
		rows, err := p.scrapeWindow(ctx, src, params, w, limit)
		all = append(all, rows...)
		if err != nil {
			return Dedupe(all), err
		}
	}

	out := Dedupe(all)
	zap.L().Info("processed articles",
		zap.String("source", src.Name()),
		zap.Int("total", len(out)),
		zap.Int("duplicates", len(all)-len(out)),
	)
	return out, nil
}

func (p *Paginator) scrapeWindow(ctx context.Context, src Source, params Params, w Window, limit int) ([]Result, error) {
	var rows []Result
	warned := false
	for offset := 0; ; offset += limit {
		page := Page{Params: params, Window: w, Offset: offset, Limit: limit}
		batch, err := p.fetchPage(ctx, src, page)
		if err != nil {
			return rows, err
		}
		if len(batch) == 0 {
			break
		}
		rows = append(rows, batch...)
		if !warned && offset+len(batch) >= ResultCeiling {
			warned = true
			zap.L().Warn("query reaches the result ceiling, some results may be missing; use a shorter time span",
				zap.String("source", src.Name()),
				zap.Int("ceiling", ResultCeiling),
				zap.String("from", w.From.Format(dateLayout)),
				zap.String("to", w.To.Format(dateLayout)),
			)
		}
		if len(batch) < limit {
			break
		}
		if err := p.sleep(ctx, Jitter(p.rnd, params.Delay)); err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func (p *Paginator) fetchPage(ctx context.Context, src Source, page Page) ([]Result, error) {
	req, err := src.BuildRequest(page)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: build request", src.Name())
	}

	r := p.client.R().SetContext(ctx).SetHeaders(req.Header)
	if req.Query != nil {
		r.SetQueryParamsFromValues(req.Query)
	}
	resp, err := r.Get(req.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		zap.L().Error("query request failed",
			zap.String("source", src.Name()),
			zap.String("url", req.URL),
			zap.Error(err),
		)
		return nil, nil
	}

	zap.L().Info("processing articles",
		zap.String("source", src.Name()),
		zap.String("from", page.Window.From.Format(dateLayout)),
		zap.String("to", page.Window.To.Format(dateLayout)),
		zap.Int("offset", page.Offset),
	)

	if resp.StatusCode() != http.StatusOK {
		zap.L().Error("unexpected response code",
			zap.String("source", src.Name()),
			zap.Int("status", resp.StatusCode()),
			zap.String("url", req.URL),
		)
		return nil, nil
	}

	body := bytes.TrimSpace(resp.Body())
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		zap.L().Error("empty response", zap.String("source", src.Name()), zap.String("url", req.URL))
		return nil, nil
	}

	rows, err := src.ParsePage(page, body)
	if err != nil {
		zap.L().Error("could not parse response",
			zap.String("source", src.Name()),
			zap.String("url", req.URL),
			zap.Error(err),
		)
		return nil, nil
	}
	return rows, nil
}
