package twitter

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Gate serializes calls to the search API and spaces them by a fixed delay.
// One Gate should be shared by every client in the process.
type Gate struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewGate allows one call per delay. A zero delay disables spacing.
func NewGate(delay time.Duration) *Gate {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Gate{limiter: rate.NewLimiter(limit, 1)}
}

// Do runs call while holding the gate. A 503 response is retried after the
// gate delay until another status arrives or ctx is done.
func (g *Gate) Do(ctx context.Context, call func(context.Context) (*resty.Response, error)) (*resty.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := call(ctx)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() != http.StatusServiceUnavailable {
			return resp, nil
		}
		zap.L().Info("twitter error 503, retrying")
	}
}
