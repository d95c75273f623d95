package twitter

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AccountBatchSize is the number of accounts combined into one query.
const AccountBatchSize = 10

// RetryConfig bounds the attempts made for one account batch.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first. Default: 3.
	MaxAttempts int
	// Backoff is the fixed pause between attempts. Default: 3s.
	Backoff time.Duration
	// OnRetry is called before each pause.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns the retry policy for ticketed account scrapes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, Backoff: 3 * time.Second}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff < 0 {
		c.Backoff = 0
	}
	return c
}

// Retry runs fn until it succeeds, the attempts are used up or ctx is done.
// It returns the last error.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if attempt >= cfg.MaxAttempts-1 {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr)
		}

		timer := time.NewTimer(cfg.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

// ScrapeAccounts collects the tweets of accounts in batches. A batch that
// still fails after the configured attempts is logged and skipped, so the
// returned shard may be partial. Only cancellation is returned as an error.
func (c *Client) ScrapeAccounts(ctx context.Context, accounts []string, start, end time.Time, cfg RetryConfig) (*Shard, error) {
	if cfg.OnRetry == nil {
		cfg.OnRetry = func(attempt int, err error) {
			zap.L().Warn("twitter batch failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		}
	}

	shard := NewShard()
	for i := 0; i < len(accounts); i += AccountBatchSize {
		batch := accounts[i:min(i+AccountBatchSize, len(accounts))]
		zap.L().Info("loading tweets",
			zap.Int("done", i),
			zap.Int("total", len(accounts)),
			zap.String("accounts", strings.Join(batch, ", ")),
		)

		err := Retry(ctx, cfg, func(ctx context.Context) error {
			got, err := c.ByUsernames(ctx, batch, start, end)
			if err != nil {
				return err
			}
			shard.Merge(got)
			return nil
		})
		if ctx.Err() != nil {
			return shard, ctx.Err()
		}
		if err != nil {
			zap.L().Error("giving up on twitter batch", zap.Strings("accounts", batch), zap.Error(err))
		}
	}
	return shard, nil
}
