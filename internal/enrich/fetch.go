package enrich

import (
	"context"

	"github.com/TobiSchelling/mediascraper/internal/cache"
	"github.com/TobiSchelling/mediascraper/internal/fetch"
	"github.com/TobiSchelling/mediascraper/internal/query"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetch fills Content and Persons of every record, from the cache when
// possible. A session is opened on the first cache miss and closed before
// returning; if it cannot be opened the remaining misses stay empty.
// Unreachable or unparseable pages leave the record empty and are retried
// on the next run.
func (p *Pipeline) Fetch(ctx context.Context, records []*Record, open fetch.Opener) error {
	var (
		sess    fetch.Session
		openErr error
	)
	defer func() {
		if sess != nil {
			if err := sess.Close(); err != nil {
				zap.L().Warn("closing fetch session", zap.Error(err))
			}
		}
	}()

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, hit, err := cache.Lookup(ctx, p.store, cache.Scrape, rec.URL, func(ctx context.Context) (string, error) {
			if openErr != nil {
				return "", openErr
			}
			if sess == nil {
				s, err := open(ctx)
				if err != nil {
					openErr = eris.Wrap(err, "enrich: open fetch session")
					return "", openErr
				}
				sess = s
			}
			zap.L().Info("fetching article", progress(i, len(records)), zap.String("url", rec.URL))
			res, err := sess.Fetch(ctx, rec.URL)
			if err != nil {
				return "", err
			}
			return res.Encode()
		})
		if !hit && sess != nil {
			if serr := p.sleep(ctx, query.Jitter(p.rnd, p.fetchDelay)); serr != nil {
				return serr
			}
		}
		if err != nil {
			zap.L().Error("could not fetch article", zap.String("url", rec.URL), zap.Error(err))
			rec.Content, rec.Persons = "", []string{}
			continue
		}
		if hit {
			zap.L().Info("using cached article", progress(i, len(records)), zap.String("url", rec.URL))
		}

		res, err := fetch.Decode(raw)
		if err != nil {
			zap.L().Error("could not decode cached article", zap.String("url", rec.URL), zap.Error(err))
			rec.Content, rec.Persons = "", []string{}
			continue
		}
		rec.Content = res.Content
		rec.Persons = res.Persons
		if rec.Persons == nil {
			rec.Persons = []string{}
		}
	}
	return nil
}
