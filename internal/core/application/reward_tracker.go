package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"golang.org/x/time/rate"

	"github.com/blockwatch-network/blockwatch-daemon/internal/core/domain"
	"github.com/blockwatch-network/blockwatch-daemon/internal/core/ports"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer"
)

// RewardTrackerOpts groups the collaborators and tuning parameters of a
// RewardTracker.
type RewardTrackerOpts struct {
	ExplorerSvc explorer.Service
	Store       domain.CacheStore
	PubSub      ports.PubSub
	Limiter     *rate.Limiter
	// RecoveryDirectThreshold is the largest block gap recovered by direct
	// per-block scanning; larger gaps re-fetch each address history instead.
	RecoveryDirectThreshold uint64
	// HistoryRefetchPerSecond throttles the large-gap recovery path.
	HistoryRefetchPerSecond int
	MaxRetries              int
	Testnet                 bool
}

// RewardTracker maintains the per-address coinbase payout counters. An
// address moves Unseeded -> Bootstrapping -> Synced: the first time it is
// watched its full history seeds the counter, afterwards only block deltas
// are applied.
type RewardTracker struct {
	explorerSvc       explorer.Service
	store             domain.CacheStore
	pubsub            ports.PubSub
	limiter           *rate.Limiter
	historyLimiter    ratelimit.Limiter
	recoveryThreshold uint64
	maxRetries        int
	testnet           bool

	mtx   sync.RWMutex
	cache *domain.RewardCache
}

// NewRewardTracker restores the reward cache from the store and returns a
// tracker ready to process blocks.
func NewRewardTracker(opts RewardTrackerOpts) (*RewardTracker, error) {
	if opts.ExplorerSvc == nil {
		return nil, fmt.Errorf("missing explorer service")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("missing cache store")
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if opts.RecoveryDirectThreshold == 0 {
		opts.RecoveryDirectThreshold = DefaultRecoveryDirectThreshold
	}
	if opts.HistoryRefetchPerSecond <= 0 {
		opts.HistoryRefetchPerSecond = DefaultHistoryRefetchPerSecond
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}

	cache := domain.NewRewardCache()
	if err := opts.Store.Get(domain.RewardCacheType, cache); err != nil {
		if !errors.Is(err, domain.ErrCacheNotFound) {
			return nil, err
		}
		cache = domain.NewRewardCache()
	}

	return &RewardTracker{
		explorerSvc:       opts.ExplorerSvc,
		store:             opts.Store,
		pubsub:            opts.PubSub,
		limiter:           opts.Limiter,
		historyLimiter:    ratelimit.New(opts.HistoryRefetchPerSecond),
		recoveryThreshold: opts.RecoveryDirectThreshold,
		maxRetries:        opts.MaxRetries,
		testnet:           opts.Testnet,
		cache:             cache,
	}, nil
}

// WatchAddress adds a plain address to the monitored set. The first time an
// address is seen its full history is fetched once to seed the counter.
func (t *RewardTracker) WatchAddress(
	ctx context.Context, watch domain.MonitoredAddress,
) error {
	if err := watch.Validate(t.testnet); err != nil {
		return err
	}

	t.mtx.Lock()
	entry := t.cache.Entry(watch.Address)
	bootstrapped := entry.Bootstrapped
	t.mtx.Unlock()

	if bootstrapped {
		return nil
	}
	return t.bootstrap(ctx, watch.Address)
}

// UnwatchAddress removes an address and its counters from the cache. Stale
// entries are never expired automatically, removal is always explicit.
func (t *RewardTracker) UnwatchAddress(address string) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if _, ok := t.cache.Addresses[address]; !ok {
		return domain.ErrAddressNotWatched
	}
	delete(t.cache.Addresses, address)
	return t.store.Put(domain.RewardCacheType, t.cache)
}

// WatchedAddresses returns the monitored addresses in no particular order.
func (t *RewardTracker) WatchedAddresses() []string {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	addresses := make([]string, 0, len(t.cache.Addresses))
	for address := range t.cache.Addresses {
		addresses = append(addresses, address)
	}
	return addresses
}

// GetFoundBlocksCount returns the number of blocks whose coinbase pays the
// given address, read from the last committed snapshot.
func (t *RewardTracker) GetFoundBlocksCount(address string) (uint64, error) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	entry, ok := t.cache.Addresses[address]
	if !ok {
		return 0, domain.ErrAddressNotWatched
	}
	return entry.TotalCoinbaseCount, nil
}

// GlobalSyncHeight returns the fleet-wide committed chain height.
func (t *RewardTracker) GlobalSyncHeight() uint64 {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	return t.cache.GlobalSyncHeight
}

// SyncToTip brings every monitored address up to the given chain tip,
// choosing between direct per-block scanning and per-address history
// refetch depending on the size of the gap. It is the single entry point
// for steady-state processing (gap of one) and recovery alike.
func (t *RewardTracker) SyncToTip(ctx context.Context, tipHeight uint64) error {
	t.mtx.RLock()
	global := t.cache.GlobalSyncHeight
	addressCount := len(t.cache.Addresses)
	t.mtx.RUnlock()

	if tipHeight <= global {
		return nil
	}
	if addressCount == 0 {
		// Nothing monitored; just move the committed height forward.
		return t.commitGlobalHeight(tipHeight)
	}

	from := global
	if from == 0 {
		// A fresh cache has no committed height; entries were seeded at
		// their own bootstrap tips, so resume from the lowest of those to
		// cover blocks mined between a bootstrap and the first cycle.
		from = t.minSyncedHeight()
		if from > tipHeight {
			from = tipHeight
		}
	}

	gap := tipHeight - from
	if gap <= t.recoveryThreshold {
		return t.syncDirect(ctx, from, tipHeight)
	}

	log.Infof(
		"gap of %d blocks exceeds direct threshold %d, recovering from address histories",
		gap, t.recoveryThreshold,
	)
	return t.syncFromHistories(ctx, tipHeight)
}

// bootstrap performs the one-time full-history seeding of a new address.
func (t *RewardTracker) bootstrap(ctx context.Context, address string) error {
	var tipHeight int
	if err := retry(ctx, t.maxRetries, func() error {
		var err error
		tipHeight, err = t.explorerSvc.GetBlockHeight()
		return err
	}); err != nil {
		return err
	}

	var history *explorer.AddressHistory
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := retry(ctx, t.maxRetries, func() error {
		var err error
		history, err = t.explorerSvc.GetAddressHistory(address)
		return err
	}); err != nil {
		return err
	}

	var count, firstBlock, latestBlock uint64
	for _, tx := range history.CoinbaseTxs() {
		// A block confirmed after the tip was sampled belongs to the next
		// sync cycle; counting it here would credit it twice.
		if tx.Height > uint64(tipHeight) {
			continue
		}
		count++
		if firstBlock == 0 || tx.Height < firstBlock {
			firstBlock = tx.Height
		}
		if tx.Height > latestBlock {
			latestBlock = tx.Height
		}
	}

	t.mtx.Lock()
	defer t.mtx.Unlock()

	entry := t.cache.Entry(address)
	entry.Seed(count, firstBlock, latestBlock, uint64(tipHeight))
	if err := t.store.Put(domain.RewardCacheType, t.cache); err != nil {
		return err
	}

	log.Infof(
		"bootstrapped %s: %d blocks found, synced to height %d",
		address, count, tipHeight,
	)
	t.publishRewardUpdate(address, entry.TotalCoinbaseCount)
	return nil
}

// syncDirect fetches and scans each missing block's coinbase in ascending
// height order. Every block is committed before the next one is processed,
// so a failure leaves the committed height at the last fully processed
// block.
func (t *RewardTracker) syncDirect(
	ctx context.Context, fromHeight, tipHeight uint64,
) error {
	for height := fromHeight + 1; height <= tipHeight; height++ {
		if err := t.processBlock(ctx, height); err != nil {
			return err
		}
	}
	// Covers the no-missing-blocks case where the loop never ran.
	return t.commitGlobalHeight(tipHeight)
}

// minSyncedHeight returns the lowest per-address synced height, the point a
// sync must resume from when no global height was ever committed.
func (t *RewardTracker) minSyncedHeight() uint64 {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	var min uint64
	first := true
	for _, entry := range t.cache.Addresses {
		if first || entry.SyncedHeight < min {
			min = entry.SyncedHeight
			first = false
		}
	}
	return min
}

func (t *RewardTracker) processBlock(ctx context.Context, height uint64) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	var coinbase *explorer.CoinbaseTx
	if err := retry(ctx, t.maxRetries, func() error {
		var err error
		coinbase, err = t.explorerSvc.GetBlockCoinbase(int(height))
		return err
	}); err != nil {
		return err
	}

	t.mtx.Lock()
	defer t.mtx.Unlock()

	credited := make([]string, 0, 1)
	for address, entry := range t.cache.Addresses {
		if entry.SyncedHeight >= height {
			// Already covered by this entry's bootstrap or a previous pass.
			continue
		}
		if paid, amount := coinbase.PaysAddress(address); paid {
			entry.CreditBlock(height)
			credited = append(credited, address)
			log.Infof(
				"block %d pays %d sats to %s (%d blocks found)",
				height, amount, address, entry.TotalCoinbaseCount,
			)
		}
	}

	// The block is fully processed, advance every entry and the global
	// height in one durable commit.
	for _, entry := range t.cache.Addresses {
		if entry.SyncedHeight >= height {
			continue
		}
		if err := entry.AdvanceSyncedHeight(height); err != nil {
			return err
		}
	}
	if err := t.cache.AdvanceGlobalSyncHeight(height); err != nil {
		return err
	}
	if err := t.store.Put(domain.RewardCacheType, t.cache); err != nil {
		return err
	}

	for _, address := range credited {
		t.publishRewardUpdate(address, t.cache.Addresses[address].TotalCoinbaseCount)
	}
	return nil
}

// syncFromHistories re-fetches every monitored address's history and counts
// only coinbase transactions in (SyncedHeight, tipHeight]. Counts are added,
// never replaced, and the per-address synced height jumps to the tip on
// success, which keeps the pass idempotent: a rerun over unchanged history
// finds no new blocks. One failing address does not abort the others; it
// only prevents the global height from advancing, so the next tick retries
// the failed addresses alone.
func (t *RewardTracker) syncFromHistories(
	ctx context.Context, tipHeight uint64,
) error {
	addresses := t.WatchedAddresses()

	type recovered struct {
		count       uint64
		latestBlock uint64
	}
	results := make(map[string]recovered, len(addresses))
	var failed []string

	t.mtx.RLock()
	syncedHeights := make(map[string]uint64, len(addresses))
	for address, entry := range t.cache.Addresses {
		syncedHeights[address] = entry.SyncedHeight
	}
	t.mtx.RUnlock()

	for _, address := range addresses {
		if syncedHeights[address] >= tipHeight {
			continue
		}
		t.historyLimiter.Take()

		var history *explorer.AddressHistory
		if err := retry(ctx, t.maxRetries, func() error {
			var err error
			history, err = t.explorerSvc.GetAddressHistory(address)
			return err
		}); err != nil {
			log.WithError(err).Warnf("failed to recover %s", address)
			failed = append(failed, address)
			continue
		}

		res := recovered{}
		for _, tx := range history.CoinbaseTxs() {
			if tx.Height <= syncedHeights[address] || tx.Height > tipHeight {
				continue
			}
			res.count++
			if tx.Height > res.latestBlock {
				res.latestBlock = tx.Height
			}
		}
		results[address] = res
	}

	t.mtx.Lock()
	defer t.mtx.Unlock()

	for address, res := range results {
		entry, ok := t.cache.Addresses[address]
		if !ok {
			continue
		}
		entry.AddRecovered(res.count, res.latestBlock)
		if err := entry.AdvanceSyncedHeight(tipHeight); err != nil {
			return err
		}
	}
	if len(failed) == 0 {
		if err := t.cache.AdvanceGlobalSyncHeight(tipHeight); err != nil {
			return err
		}
		t.cache.LastFullScan = time.Now().Unix()
	}
	if err := t.store.Put(domain.RewardCacheType, t.cache); err != nil {
		return err
	}

	for address, res := range results {
		if res.count > 0 {
			t.publishRewardUpdate(address, t.cache.Addresses[address].TotalCoinbaseCount)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf(
			"%d of %d addresses failed to recover", len(failed), len(addresses),
		)
	}
	return nil
}

func (t *RewardTracker) commitGlobalHeight(tipHeight uint64) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if err := t.cache.AdvanceGlobalSyncHeight(tipHeight); err != nil {
		return err
	}
	return t.store.Put(domain.RewardCacheType, t.cache)
}

func (t *RewardTracker) publishRewardUpdate(address string, count uint64) {
	if t.pubsub == nil {
		return
	}
	payload := fmt.Sprintf(`{"address":%q,"total_coinbase_count":%d}`, address, count)
	if err := t.pubsub.Publish(ports.BlockRewardUpdatedTopic, payload); err != nil {
		log.WithError(err).Debug("failed to publish block reward update")
	}
}
