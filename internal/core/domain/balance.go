package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceRecord is the cached balance of a monitored address or xpub.
// Balances are stored in satoshis; fiat values are computed at read time and
// carry their own timestamp so they can never go stale silently.
type BalanceRecord struct {
	Key         string `json:"key"`
	IsXpub      bool   `json:"is_xpub"`
	BalanceSat  uint64 `json:"balance_sats"`
	LastChecked int64  `json:"last_checked"`

	FiatValue       *decimal.Decimal `json:"fiat_value,omitempty"`
	FiatCurrency    string           `json:"fiat_currency,omitempty"`
	FiatLastChecked int64            `json:"fiat_last_checked,omitempty"`
}

// BTC returns the balance expressed in whole bitcoin.
func (b BalanceRecord) BTC() decimal.Decimal {
	return decimal.New(int64(b.BalanceSat), -8)
}

// WithFiat returns a copy of the record annotated with a fiat valuation
// computed from the given BTC spot price.
func (b BalanceRecord) WithFiat(
	price decimal.Decimal, currency string, checkedAt time.Time,
) BalanceRecord {
	fiat := b.BTC().Mul(price)
	b.FiatValue = &fiat
	b.FiatCurrency = currency
	b.FiatLastChecked = checkedAt.Unix()
	return b
}

// BalanceCache is the persisted document of the balance aggregator.
type BalanceCache struct {
	Records map[string]BalanceRecord `json:"records"`
	Version string                   `json:"cache_version"`
}

// NewBalanceCache returns an empty document at the current schema version.
func NewBalanceCache() *BalanceCache {
	return &BalanceCache{
		Records: make(map[string]BalanceRecord),
		Version: CacheVersion,
	}
}

// DerivationCache is the persisted set of derived addresses per watched
// xpub.
type DerivationCache struct {
	ByXpub  map[string][]DerivedAddress `json:"by_xpub"`
	Version string                      `json:"cache_version"`
}

// NewDerivationCache returns an empty document at the current schema version.
func NewDerivationCache() *DerivationCache {
	return &DerivationCache{
		ByXpub:  make(map[string][]DerivedAddress),
		Version: CacheVersion,
	}
}
