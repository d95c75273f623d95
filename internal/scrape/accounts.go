package scrape

import (
	"context"
	"path/filepath"
	"time"

	"github.com/TobiSchelling/mediascraper/internal/database"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SubmitTwitter persists a ticket for an account scrape and starts it. The
// job writes a corpus shard named after the ticket and links no resource.
func (o *Orchestrator) SubmitTwitter(ctx context.Context, accounts []string, from, to time.Time) (string, error) {
	if o.accounts == nil || o.tweetDir == "" {
		return "", ErrTwitterDisabled
	}
	id := uuid.NewString()
	if _, err := o.store.CreateTicket(ctx, id); err != nil {
		return "", err
	}
	o.launch(ctx, id, KindAccounts, func(ctx context.Context) error {
		return o.RunTwitter(ctx, id, accounts, from, to)
	})
	return id, nil
}

// ShardPath is where the account scrape of a ticket is stored.
func (o *Orchestrator) ShardPath(ticketID string) string {
	return filepath.Join(o.tweetDir, ticketID+".json")
}

// RunTwitter executes an account scrape for an existing ticket. Batches that
// keep failing are skipped; whatever was collected is saved.
func (o *Orchestrator) RunTwitter(ctx context.Context, ticketID string, accounts []string, from, to time.Time) (err error) {
	log := zap.L().With(zap.String("ticket", ticketID))
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("scrape: job panicked: %v", r)
		}
		if err != nil {
			log.Error("error during account scraping", zap.Error(err))
			o.fail(ctx, ticketID)
		}
	}()
	if o.accounts == nil {
		return ErrTwitterDisabled
	}

	log.Info("account scrape started", zap.Int("accounts", len(accounts)))
	shard, err := o.accounts.ScrapeAccounts(ctx, accounts, from, to, o.retry)
	if err != nil {
		return err
	}
	if err := shard.Save(o.ShardPath(ticketID)); err != nil {
		return err
	}
	log.Info("account scrape finished", zap.Int("tweets", len(shard.Tweets)), zap.Int("users", len(shard.Users)))
	return o.store.SetTicketStatus(ctx, ticketID, database.StatusFinished)
}
