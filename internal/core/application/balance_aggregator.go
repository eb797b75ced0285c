package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/blockwatch-network/blockwatch-daemon/internal/core/domain"
	"github.com/blockwatch-network/blockwatch-daemon/internal/core/ports"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer"
)

// BalanceAggregatorOpts groups the collaborators of a BalanceAggregator.
type BalanceAggregatorOpts struct {
	ExplorerSvc explorer.Service
	Engine      *DerivationEngine
	Store       domain.CacheStore
	PriceSource ports.PriceSource
	PubSub      ports.PubSub
	Limiter     *rate.Limiter
	GapLimit    int
	Increment   int
	// BootstrapIncrement is the derivation batch size of the one-time
	// bootstrap search of a newly watched xpub.
	BootstrapIncrement int
	MaxRetries         int
}

// BalanceAggregator keeps the cached balances of plain addresses and of
// whole xpubs, the latter summed over the used derived addresses discovered
// by the derivation engine.
type BalanceAggregator struct {
	explorerSvc explorer.Service
	engine      *DerivationEngine
	store       domain.CacheStore
	priceSource ports.PriceSource
	pubsub      ports.PubSub
	limiter     *rate.Limiter
	gapLimit           int
	increment          int
	bootstrapIncrement int
	maxRetries         int

	mtx   sync.RWMutex
	cache *domain.BalanceCache

	watchedXpubs map[string]domain.XpubWatch
}

// NewBalanceAggregator restores the balance cache from the store and returns
// an aggregator ready to refresh balances.
func NewBalanceAggregator(opts BalanceAggregatorOpts) (*BalanceAggregator, error) {
	if opts.ExplorerSvc == nil {
		return nil, fmt.Errorf("missing explorer service")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("missing derivation engine")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("missing cache store")
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if opts.GapLimit <= 0 {
		opts.GapLimit = DefaultGapLimit
	}
	if opts.Increment <= 0 {
		opts.Increment = DefaultScanIncrement
	}
	if opts.BootstrapIncrement <= 0 {
		opts.BootstrapIncrement = DefaultBootstrapIncrement
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}

	cache := domain.NewBalanceCache()
	if err := opts.Store.Get(domain.BalanceCacheType, cache); err != nil {
		if !errors.Is(err, domain.ErrCacheNotFound) {
			return nil, err
		}
		cache = domain.NewBalanceCache()
	}

	return &BalanceAggregator{
		explorerSvc:        opts.ExplorerSvc,
		engine:             opts.Engine,
		store:              opts.Store,
		priceSource:        opts.PriceSource,
		pubsub:             opts.PubSub,
		limiter:            opts.Limiter,
		gapLimit:           opts.GapLimit,
		increment:          opts.Increment,
		bootstrapIncrement: opts.BootstrapIncrement,
		maxRetries:         opts.MaxRetries,
		cache:              cache,
		watchedXpubs:       make(map[string]domain.XpubWatch),
	}, nil
}

// WatchXpub adds an extended public key to the monitored set. The first
// discovery pass over a new key is bounded by the bootstrap ceiling rather
// than the plain gap limit.
func (a *BalanceAggregator) WatchXpub(
	ctx context.Context, watch domain.XpubWatch, bootstrapMaxAddresses int,
) error {
	if err := watch.Validate(); err != nil {
		return err
	}
	if bootstrapMaxAddresses <= 0 {
		bootstrapMaxAddresses = DefaultBootstrapMaxAddresses
	}

	a.mtx.Lock()
	a.watchedXpubs[watch.Key] = watch
	a.mtx.Unlock()

	if !a.engine.HasScanned(watch.Key) {
		if _, err := a.engine.BootstrapSearch(
			ctx, watch.Key, bootstrapMaxAddresses, a.bootstrapIncrement,
		); err != nil {
			return err
		}
	}
	return a.RefreshXpub(ctx, watch.Key)
}

// UnwatchXpub removes an extended public key together with its derived set
// and cached balance.
func (a *BalanceAggregator) UnwatchXpub(xpub string) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if _, ok := a.watchedXpubs[xpub]; !ok {
		return ErrXpubNotWatched
	}
	delete(a.watchedXpubs, xpub)
	delete(a.cache.Records, xpub)
	if err := a.store.Put(domain.BalanceCacheType, a.cache); err != nil {
		return err
	}
	return a.engine.Forget(xpub)
}

// WatchedXpubs returns the monitored extended public keys.
func (a *BalanceAggregator) WatchedXpubs() []string {
	a.mtx.RLock()
	defer a.mtx.RUnlock()

	keys := make([]string, 0, len(a.watchedXpubs))
	for key := range a.watchedXpubs {
		keys = append(keys, key)
	}
	return keys
}

// RefreshAddress re-fetches the balance of a plain address and commits it.
func (a *BalanceAggregator) RefreshAddress(
	ctx context.Context, address string,
) (domain.BalanceRecord, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return domain.BalanceRecord{}, err
	}

	var balance uint64
	if err := retry(ctx, a.maxRetries, func() error {
		var err error
		balance, err = a.explorerSvc.GetAddressBalance(address)
		return err
	}); err != nil {
		return domain.BalanceRecord{}, err
	}

	record := domain.BalanceRecord{
		Key:         address,
		BalanceSat:  balance,
		LastChecked: time.Now().Unix(),
	}
	if err := a.commit(record); err != nil {
		return domain.BalanceRecord{}, err
	}
	return record, nil
}

// RefreshXpub re-runs the gap-limit scan over the xpub's derived set, sums
// the balances of the used addresses and commits the aggregate.
func (a *BalanceAggregator) RefreshXpub(
	ctx context.Context, xpub string,
) error {
	if _, err := a.engine.GapLimitScan(ctx, xpub, a.gapLimit, a.increment); err != nil {
		return err
	}

	var total uint64
	for _, derived := range a.engine.UsedAddresses(xpub) {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		var balance uint64
		if err := retry(ctx, a.maxRetries, func() error {
			var err error
			balance, err = a.explorerSvc.GetAddressBalance(derived.Address)
			return err
		}); err != nil {
			return err
		}
		total += balance
	}

	record := domain.BalanceRecord{
		Key:         xpub,
		IsXpub:      true,
		BalanceSat:  total,
		LastChecked: time.Now().Unix(),
	}
	return a.commit(record)
}

// RefreshAll refreshes every monitored xpub plus the given plain addresses.
func (a *BalanceAggregator) RefreshAll(
	ctx context.Context, addresses []string,
) error {
	for _, xpub := range a.WatchedXpubs() {
		if err := a.RefreshXpub(ctx, xpub); err != nil {
			return err
		}
	}
	for _, address := range addresses {
		if a.coveredByXpub(address) {
			// Already counted under its parent xpub.
			continue
		}
		if _, err := a.RefreshAddress(ctx, address); err != nil {
			return err
		}
	}
	return nil
}

// GetBalance returns the cached balance of an address or xpub, annotated
// with its fiat valuation when a price source is configured. Fiat is always
// computed at read time from the latest known rate.
func (a *BalanceAggregator) GetBalance(
	ctx context.Context, key, fiatCurrency string,
) (domain.BalanceRecord, error) {
	a.mtx.RLock()
	record, ok := a.cache.Records[key]
	a.mtx.RUnlock()
	if !ok {
		return domain.BalanceRecord{}, domain.ErrAddressNotWatched
	}

	if a.priceSource == nil || len(fiatCurrency) == 0 {
		return record, nil
	}

	price, checkedAt, err := a.priceSource.GetPrice(ctx, fiatCurrency)
	if err != nil {
		// A missing rate degrades the response, it never fails it.
		log.WithError(err).Debugf("no %s rate available", fiatCurrency)
		return record, nil
	}
	return record.WithFiat(price, fiatCurrency, checkedAt), nil
}

// TotalBalance sums every cached balance, counting each address once: a
// plain monitored address that also appears in a watched xpub's derived set
// is counted under the xpub only.
func (a *BalanceAggregator) TotalBalance(
	ctx context.Context, fiatCurrency string,
) (domain.BalanceRecord, error) {
	a.mtx.RLock()
	var total uint64
	for key, record := range a.cache.Records {
		if !record.IsXpub && a.coveredByXpubLocked(key) {
			continue
		}
		total += record.BalanceSat
	}
	a.mtx.RUnlock()

	record := domain.BalanceRecord{
		Key:         "total",
		BalanceSat:  total,
		LastChecked: time.Now().Unix(),
	}
	if a.priceSource == nil || len(fiatCurrency) == 0 {
		return record, nil
	}
	price, checkedAt, err := a.priceSource.GetPrice(ctx, fiatCurrency)
	if err != nil {
		log.WithError(err).Debugf("no %s rate available", fiatCurrency)
		return record, nil
	}
	return record.WithFiat(price, fiatCurrency, checkedAt), nil
}

// GetCachedBalance returns the committed record without touching the
// network or the price source.
func (a *BalanceAggregator) GetCachedBalance(key string) (domain.BalanceRecord, error) {
	a.mtx.RLock()
	defer a.mtx.RUnlock()

	record, ok := a.cache.Records[key]
	if !ok {
		return domain.BalanceRecord{}, domain.ErrAddressNotWatched
	}
	return record, nil
}

func (a *BalanceAggregator) coveredByXpub(address string) bool {
	a.mtx.RLock()
	defer a.mtx.RUnlock()
	return a.coveredByXpubLocked(address)
}

func (a *BalanceAggregator) coveredByXpubLocked(address string) bool {
	for xpub := range a.watchedXpubs {
		for _, derived := range a.engine.DerivedAddresses(xpub) {
			if derived.Address == address {
				return true
			}
		}
	}
	return false
}

func (a *BalanceAggregator) commit(record domain.BalanceRecord) error {
	a.mtx.Lock()
	prev, existed := a.cache.Records[record.Key]
	a.cache.Records[record.Key] = record
	err := a.store.Put(domain.BalanceCacheType, a.cache)
	a.mtx.Unlock()
	if err != nil {
		return err
	}

	if !existed || prev.BalanceSat != record.BalanceSat {
		a.publishBalanceUpdate(record)
	}
	return nil
}

func (a *BalanceAggregator) publishBalanceUpdate(record domain.BalanceRecord) {
	if a.pubsub == nil {
		return
	}
	payload := fmt.Sprintf(
		`{"key":%q,"is_xpub":%t,"balance_sats":%d}`,
		record.Key, record.IsXpub, record.BalanceSat,
	)
	if err := a.pubsub.Publish(ports.BalanceUpdatedTopic, payload); err != nil {
		log.WithError(err).Debug("failed to publish balance update")
	}
}
