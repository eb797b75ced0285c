package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/blockwatch-network/blockwatch-daemon/internal/core/domain"
)

type mockPriceSource struct {
	price     decimal.Decimal
	checkedAt time.Time
	err       error
}

func (m *mockPriceSource) GetPrice(
	ctx context.Context, currency string,
) (decimal.Decimal, time.Time, error) {
	if m.err != nil {
		return decimal.Zero, time.Time{}, m.err
	}
	return m.price, m.checkedAt, nil
}

func newTestAggregator(
	t *testing.T, mockSvc *mockExplorer, store *memStore, priceSource *mockPriceSource,
) *BalanceAggregator {
	t.Helper()

	engine, err := NewDerivationEngine(mockSvc, store, nil)
	require.NoError(t, err)

	opts := BalanceAggregatorOpts{
		ExplorerSvc: mockSvc,
		Engine:      engine,
		Store:       store,
	}
	if priceSource != nil {
		opts.PriceSource = priceSource
	}
	aggregator, err := NewBalanceAggregator(opts)
	require.NoError(t, err)
	return aggregator
}

func TestRefreshAddress(t *testing.T) {
	mockSvc := newMockExplorer(800000)
	mockSvc.setUsed(minerAddress, 150000)

	aggregator := newTestAggregator(t, mockSvc, newMemStore(), nil)

	record, err := aggregator.RefreshAddress(context.Background(), minerAddress)
	require.NoError(t, err)
	require.Equal(t, uint64(150000), record.BalanceSat)
	require.False(t, record.IsXpub)

	cached, err := aggregator.GetCachedBalance(minerAddress)
	require.NoError(t, err)
	require.Equal(t, record.BalanceSat, cached.BalanceSat)
}

func TestRefreshXpubAggregatesUsedAddresses(t *testing.T) {
	mockSvc := newMockExplorer(800000)
	addresses := deriveTestAddresses(t, testZpub, 2)
	mockSvc.setUsed(addresses[0], 1000)
	mockSvc.setUsed(addresses[1], 2000)

	aggregator := newTestAggregator(t, mockSvc, newMemStore(), nil)

	err := aggregator.WatchXpub(
		context.Background(), domain.XpubWatch{Key: testZpub}, 50,
	)
	require.NoError(t, err)

	record, err := aggregator.GetCachedBalance(testZpub)
	require.NoError(t, err)
	require.True(t, record.IsXpub)
	require.Equal(t, uint64(3000), record.BalanceSat)
}

func TestWatchXpubUsesConfiguredBootstrapIncrement(t *testing.T) {
	mockSvc := newMockExplorer(800000)
	store := newMemStore()
	engine, err := NewDerivationEngine(mockSvc, store, nil)
	require.NoError(t, err)

	aggregator, err := NewBalanceAggregator(BalanceAggregatorOpts{
		ExplorerSvc:        mockSvc,
		Engine:             engine,
		Store:              store,
		GapLimit:           10,
		Increment:          5,
		BootstrapIncrement: 7,
	})
	require.NoError(t, err)

	err = aggregator.WatchXpub(
		context.Background(), domain.XpubWatch{Key: testZpub}, 50,
	)
	require.NoError(t, err)

	// Bootstrap derives in batches of 7 until the 50-address ceiling (56
	// lookups before trimming), then the gap scan re-checks 10 more.
	require.Equal(t, 66, mockSvc.usageCalls)
	require.Len(t, engine.DerivedAddresses(testZpub), 50)
}

func TestTotalBalanceDeduplicates(t *testing.T) {
	mockSvc := newMockExplorer(800000)
	addresses := deriveTestAddresses(t, testZpub, 2)
	mockSvc.setUsed(addresses[0], 1000)
	mockSvc.setUsed(addresses[1], 2000)

	aggregator := newTestAggregator(t, mockSvc, newMemStore(), nil)

	err := aggregator.WatchXpub(
		context.Background(), domain.XpubWatch{Key: testZpub}, 50,
	)
	require.NoError(t, err)

	// The same address watched standalone must not be counted twice.
	_, err = aggregator.RefreshAddress(context.Background(), addresses[0])
	require.NoError(t, err)

	total, err := aggregator.TotalBalance(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, uint64(3000), total.BalanceSat)
}

func TestGetBalanceWithFiat(t *testing.T) {
	mockSvc := newMockExplorer(800000)
	mockSvc.setUsed(minerAddress, 100000000) // 1 BTC

	checkedAt := time.Now().Add(-time.Minute)
	priceSource := &mockPriceSource{
		price:     decimal.NewFromInt(50000),
		checkedAt: checkedAt,
	}
	aggregator := newTestAggregator(t, mockSvc, newMemStore(), priceSource)

	_, err := aggregator.RefreshAddress(context.Background(), minerAddress)
	require.NoError(t, err)

	record, err := aggregator.GetBalance(context.Background(), minerAddress, "usd")
	require.NoError(t, err)
	require.NotNil(t, record.FiatValue)
	require.True(t, record.FiatValue.Equal(decimal.NewFromInt(50000)))
	require.Equal(t, "usd", record.FiatCurrency)
	require.Equal(t, checkedAt.Unix(), record.FiatLastChecked)
}

func TestGetBalanceDegradesWithoutRate(t *testing.T) {
	mockSvc := newMockExplorer(800000)
	mockSvc.setUsed(minerAddress, 100000000)

	priceSource := &mockPriceSource{err: context.DeadlineExceeded}
	aggregator := newTestAggregator(t, mockSvc, newMemStore(), priceSource)

	_, err := aggregator.RefreshAddress(context.Background(), minerAddress)
	require.NoError(t, err)

	// A failing price source degrades the response instead of failing it.
	record, err := aggregator.GetBalance(context.Background(), minerAddress, "usd")
	require.NoError(t, err)
	require.Nil(t, record.FiatValue)
	require.Equal(t, uint64(100000000), record.BalanceSat)
}

func TestUnwatchXpub(t *testing.T) {
	mockSvc := newMockExplorer(800000)
	aggregator := newTestAggregator(t, mockSvc, newMemStore(), nil)

	err := aggregator.WatchXpub(
		context.Background(), domain.XpubWatch{Key: testZpub}, 50,
	)
	require.NoError(t, err)

	require.NoError(t, aggregator.UnwatchXpub(testZpub))
	_, err = aggregator.GetCachedBalance(testZpub)
	require.ErrorIs(t, err, domain.ErrAddressNotWatched)

	require.ErrorIs(t, aggregator.UnwatchXpub(testZpub), ErrXpubNotWatched)
}

func TestWatchXpubRejectsMalformedKey(t *testing.T) {
	aggregator := newTestAggregator(t, newMockExplorer(0), newMemStore(), nil)

	err := aggregator.WatchXpub(
		context.Background(), domain.XpubWatch{Key: "xpub-garbage"}, 50,
	)
	require.ErrorIs(t, err, domain.ErrInvalidKeyFormat)
}
