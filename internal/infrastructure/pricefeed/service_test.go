package pricefeed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFeeder struct {
	name  string
	price decimal.Decimal
	err   error
	calls int
}

func (m *mockFeeder) Name() string { return m.name }

func (m *mockFeeder) FetchSpotPrice(
	_ context.Context, _ string,
) (decimal.Decimal, error) {
	m.calls++
	if m.err != nil {
		return decimal.Zero, m.err
	}
	return m.price, nil
}

type memRateStore struct {
	rates map[string]Rate
}

func newMemRateStore() *memRateStore {
	return &memRateStore{rates: make(map[string]Rate)}
}

func (m *memRateStore) PutRate(rate Rate) error {
	m.rates[rate.Currency] = rate
	return nil
}

func (m *memRateStore) GetRate(currency string) (*Rate, error) {
	rate, ok := m.rates[currency]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRateNotFound, currency)
	}
	return &rate, nil
}

func (m *memRateStore) Close() error { return nil }

func TestGetPricePersistsObservation(t *testing.T) {
	feeder := &mockFeeder{name: "mock", price: decimal.RequireFromString("64000")}
	store := newMemRateStore()

	svc, err := NewService([]SpotFeeder{feeder}, store, time.Minute)
	require.NoError(t, err)

	price, checkedAt, err := svc.GetPrice(context.Background(), "USD")
	require.NoError(t, err)
	assert.True(t, price.Equal(feeder.price))
	assert.WithinDuration(t, time.Now(), checkedAt, 5*time.Second)
	require.Contains(t, store.rates, "USD")

	// A second lookup inside the refresh window is served from the store.
	_, _, err = svc.GetPrice(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, 1, feeder.calls)
}

func TestGetPriceFallsBackToNextFeeder(t *testing.T) {
	broken := &mockFeeder{name: "broken", err: fmt.Errorf("exchange down")}
	working := &mockFeeder{name: "working", price: decimal.RequireFromString("64500")}

	svc, err := NewService([]SpotFeeder{broken, working}, newMemRateStore(), time.Minute)
	require.NoError(t, err)

	price, _, err := svc.GetPrice(context.Background(), "EUR")
	require.NoError(t, err)
	assert.True(t, price.Equal(working.price))
}

func TestGetPriceServesStaleRateWhenAllFeedersDown(t *testing.T) {
	broken := &mockFeeder{name: "broken", err: fmt.Errorf("exchange down")}
	store := newMemRateStore()
	staleAt := time.Now().Add(-2 * time.Hour)
	store.rates["USD"] = Rate{
		Currency:  "USD",
		Price:     decimal.RequireFromString("60000"),
		UpdatedAt: staleAt.Unix(),
	}

	svc, err := NewService([]SpotFeeder{broken}, store, time.Minute)
	require.NoError(t, err)

	price, checkedAt, err := svc.GetPrice(context.Background(), "USD")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("60000")))
	assert.WithinDuration(t, staleAt, checkedAt, 2*time.Second)
}

func TestGetPriceFailsWithoutFeederOrRate(t *testing.T) {
	broken := &mockFeeder{name: "broken", err: fmt.Errorf("exchange down")}

	svc, err := NewService([]SpotFeeder{broken}, newMemRateStore(), time.Minute)
	require.NoError(t, err)

	_, _, err = svc.GetPrice(context.Background(), "USD")
	require.ErrorIs(t, err, ErrRateNotFound)
}
