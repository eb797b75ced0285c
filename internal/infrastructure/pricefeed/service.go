package pricefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/blockwatch-network/blockwatch-daemon/internal/core/ports"
)

// service implements ports.PriceSource by querying a list of spot feeders in
// order and persisting every successful observation. When all feeders fail
// the last stored rate is served along with its own timestamp, so callers
// can tell how stale the quote is.
type service struct {
	feeders    []SpotFeeder
	store      RateStore
	refreshAge time.Duration
}

// NewService returns a ports.PriceSource backed by the given feeders and
// rate store. Rates younger than refreshAge are served from the store
// without touching the remote exchanges.
func NewService(
	feeders []SpotFeeder, store RateStore, refreshAge time.Duration,
) (ports.PriceSource, error) {
	if len(feeders) == 0 {
		return nil, fmt.Errorf("missing spot feeders")
	}
	if store == nil {
		return nil, fmt.Errorf("missing rate store")
	}
	return &service{feeders, store, refreshAge}, nil
}

func (s *service) GetPrice(
	ctx context.Context, currency string,
) (decimal.Decimal, time.Time, error) {
	if rate, err := s.store.GetRate(currency); err == nil {
		age := time.Since(time.Unix(rate.UpdatedAt, 0))
		if age < s.refreshAge {
			return rate.Price, time.Unix(rate.UpdatedAt, 0), nil
		}
	}

	for _, feeder := range s.feeders {
		price, err := feeder.FetchSpotPrice(ctx, currency)
		if err != nil {
			log.WithError(err).Debugf(
				"%s spot price lookup failed, trying next feeder", feeder.Name(),
			)
			continue
		}

		now := time.Now()
		if err := s.store.PutRate(Rate{
			Currency:  currency,
			Price:     price,
			UpdatedAt: now.Unix(),
		}); err != nil {
			log.WithError(err).Warn("failed to persist spot rate")
		}
		return price, now, nil
	}

	// Every feeder failed, serve the stale rate with its real timestamp.
	rate, err := s.store.GetRate(currency)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf(
			"no feeder reachable and %w", err,
		)
	}
	return rate.Price, time.Unix(rate.UpdatedAt, 0), nil
}
