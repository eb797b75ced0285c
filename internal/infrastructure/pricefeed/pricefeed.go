package pricefeed

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrRateNotFound is returned by a RateStore when no rate has ever been
	// observed for the requested currency.
	ErrRateNotFound = errors.New("no rate stored for currency")
	// ErrCurrencyNotSupported is returned by feeders for currencies the
	// remote exchange does not quote.
	ErrCurrencyNotSupported = errors.New("currency not supported by feeder")
)

// Rate is the last observed BTC spot price in one fiat currency.
type Rate struct {
	Currency  string `badgerhold:"key"`
	Price     decimal.Decimal
	UpdatedAt int64
}

// RateStore persists the last observed rates so fiat display can degrade to
// a stale-but-dated value whenever the remote feeders are down.
type RateStore interface {
	PutRate(rate Rate) error
	GetRate(currency string) (*Rate, error)
	Close() error
}

// SpotFeeder fetches the current BTC spot price from one remote exchange.
type SpotFeeder interface {
	Name() string
	FetchSpotPrice(ctx context.Context, currency string) (decimal.Decimal, error)
}
