package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource is the collaborator used to convert satoshi balances into
// fiat at read time. The returned timestamp tells when the rate was last
// observed, so stale rates are surfaced instead of silently trusted.
type PriceSource interface {
	// GetPrice returns the BTC spot price in the given fiat currency.
	GetPrice(ctx context.Context, currency string) (decimal.Decimal, time.Time, error)
}
