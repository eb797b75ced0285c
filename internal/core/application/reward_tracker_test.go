package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockwatch-network/blockwatch-daemon/internal/core/domain"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer"
)

const minerAddress = "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu"

func coinbasePaying(height uint64, address string) *explorer.CoinbaseTx {
	return &explorer.CoinbaseTx{
		TxID:   "cb",
		Height: height,
		Outputs: []explorer.CoinbaseOutput{
			{Address: address, ValueSat: 625000000},
		},
	}
}

func seededStore(t *testing.T, count, syncedHeight uint64) *memStore {
	t.Helper()

	store := newMemStore()
	cache := domain.NewRewardCache()
	entry := cache.Entry(minerAddress)
	entry.TotalCoinbaseCount = count
	entry.SyncedHeight = syncedHeight
	entry.Bootstrapped = true
	cache.GlobalSyncHeight = syncedHeight
	require.NoError(t, store.Put(domain.RewardCacheType, cache))
	return store
}

func TestWatchAddressBootstrap(t *testing.T) {
	mockSvc := newMockExplorer(800000)
	mockSvc.setHistory(minerAddress, &explorer.AddressHistory{
		Address:    minerAddress,
		BalanceSat: 1250000000,
		Txs: []explorer.HistoryTx{
			{TxID: "a", Height: 790000, IsCoinbase: true, ValueSat: 625000000},
			{TxID: "b", Height: 795000, IsCoinbase: true, ValueSat: 625000000},
			{TxID: "c", Height: 796000, IsCoinbase: false, ValueSat: 100},
		},
	})

	store := newMemStore()
	tracker, err := NewRewardTracker(RewardTrackerOpts{
		ExplorerSvc: mockSvc,
		Store:       store,
	})
	require.NoError(t, err)

	err = tracker.WatchAddress(
		context.Background(), domain.MonitoredAddress{Address: minerAddress},
	)
	require.NoError(t, err)

	count, err := tracker.GetFoundBlocksCount(minerAddress)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)

	// Bootstrap runs once: watching again re-fetches nothing.
	calls := mockSvc.historyCalls
	err = tracker.WatchAddress(
		context.Background(), domain.MonitoredAddress{Address: minerAddress},
	)
	require.NoError(t, err)
	require.Equal(t, calls, mockSvc.historyCalls)

	// The seeded entry survives a restart.
	restored, err := NewRewardTracker(RewardTrackerOpts{
		ExplorerSvc: mockSvc,
		Store:       store,
	})
	require.NoError(t, err)
	count, err = restored.GetFoundBlocksCount(minerAddress)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)
}

func TestSyncSingleBlock(t *testing.T) {
	mockSvc := newMockExplorer(800001)
	mockSvc.setCoinbase(800001, coinbasePaying(800001, minerAddress))

	store := seededStore(t, 3, 800000)
	tracker, err := NewRewardTracker(RewardTrackerOpts{
		ExplorerSvc: mockSvc,
		Store:       store,
	})
	require.NoError(t, err)

	require.NoError(t, tracker.SyncToTip(context.Background(), 800001))

	count, err := tracker.GetFoundBlocksCount(minerAddress)
	require.NoError(t, err)
	require.Equal(t, uint64(4), count)
	require.Equal(t, uint64(800001), tracker.GlobalSyncHeight())

	// The commit is durable.
	cache := domain.NewRewardCache()
	require.NoError(t, store.Get(domain.RewardCacheType, cache))
	require.Equal(t, uint64(4), cache.Addresses[minerAddress].TotalCoinbaseCount)
	require.Equal(t, uint64(800001), cache.Addresses[minerAddress].SyncedHeight)
}

func TestSyncFreshCacheCoversBootstrapGap(t *testing.T) {
	mockSvc := newMockExplorer(800002)
	mockSvc.setCoinbase(800001, coinbasePaying(800001, minerAddress))

	// Entry seeded at 800000, but no global height was ever committed:
	// the blocks mined between bootstrap and the first cycle must still
	// be scanned.
	store := newMemStore()
	cache := domain.NewRewardCache()
	entry := cache.Entry(minerAddress)
	entry.TotalCoinbaseCount = 3
	entry.SyncedHeight = 800000
	entry.Bootstrapped = true
	require.NoError(t, store.Put(domain.RewardCacheType, cache))

	tracker, err := NewRewardTracker(RewardTrackerOpts{
		ExplorerSvc: mockSvc,
		Store:       store,
	})
	require.NoError(t, err)

	require.NoError(t, tracker.SyncToTip(context.Background(), 800002))

	count, err := tracker.GetFoundBlocksCount(minerAddress)
	require.NoError(t, err)
	require.Equal(t, uint64(4), count)
	require.Equal(t, uint64(800002), tracker.GlobalSyncHeight())
	require.Equal(t, 2, mockSvc.coinbaseCalls)
}

func TestBootstrapIgnoresBlocksAboveSampledTip(t *testing.T) {
	mockSvc := newMockExplorer(800000)
	mockSvc.setCoinbase(800001, coinbasePaying(800001, minerAddress))
	mockSvc.setHistory(minerAddress, &explorer.AddressHistory{
		Address: minerAddress,
		Txs: []explorer.HistoryTx{
			{TxID: "a", Height: 799000, IsCoinbase: true},
			// Confirmed between the tip sample and the history fetch.
			{TxID: "b", Height: 800001, IsCoinbase: true},
		},
	})

	tracker, err := NewRewardTracker(RewardTrackerOpts{
		ExplorerSvc: mockSvc,
		Store:       newMemStore(),
	})
	require.NoError(t, err)

	err = tracker.WatchAddress(
		context.Background(), domain.MonitoredAddress{Address: minerAddress},
	)
	require.NoError(t, err)

	count, err := tracker.GetFoundBlocksCount(minerAddress)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)

	// The block above the sampled tip is credited exactly once, by the
	// next cycle.
	mockSvc.setTip(800001)
	require.NoError(t, tracker.SyncToTip(context.Background(), 800001))
	count, err = tracker.GetFoundBlocksCount(minerAddress)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)
}

func TestSyncSkipsStaleTip(t *testing.T) {
	mockSvc := newMockExplorer(800000)
	store := seededStore(t, 3, 800000)
	tracker, err := NewRewardTracker(RewardTrackerOpts{
		ExplorerSvc: mockSvc,
		Store:       store,
	})
	require.NoError(t, err)

	require.NoError(t, tracker.SyncToTip(context.Background(), 799999))
	require.NoError(t, tracker.SyncToTip(context.Background(), 800000))

	require.Equal(t, uint64(800000), tracker.GlobalSyncHeight())
	require.Zero(t, mockSvc.coinbaseCalls)
}

func TestSyncDirectScansEveryMissingBlock(t *testing.T) {
	mockSvc := newMockExplorer(800010)
	mockSvc.setCoinbase(800003, coinbasePaying(800003, minerAddress))
	mockSvc.setCoinbase(800007, coinbasePaying(800007, minerAddress))

	store := seededStore(t, 0, 800000)
	tracker, err := NewRewardTracker(RewardTrackerOpts{
		ExplorerSvc: mockSvc,
		Store:       store,
	})
	require.NoError(t, err)

	require.NoError(t, tracker.SyncToTip(context.Background(), 800010))

	count, err := tracker.GetFoundBlocksCount(minerAddress)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)
	require.Equal(t, 10, mockSvc.coinbaseCalls)
	require.Equal(t, uint64(800010), tracker.GlobalSyncHeight())
}

func TestSyncFromHistoriesOnLargeGap(t *testing.T) {
	mockSvc := newMockExplorer(802000)
	mockSvc.setHistory(minerAddress, &explorer.AddressHistory{
		Address: minerAddress,
		Txs: []explorer.HistoryTx{
			// Already counted, at or below the synced height.
			{TxID: "old", Height: 799000, IsCoinbase: true},
			// The two discovered by this recovery.
			{TxID: "new1", Height: 800500, IsCoinbase: true},
			{TxID: "new2", Height: 801999, IsCoinbase: true},
			// Above the target tip, left for the next cycle.
			{TxID: "ahead", Height: 802001, IsCoinbase: true},
		},
	})

	store := seededStore(t, 1, 800000)
	tracker, err := NewRewardTracker(RewardTrackerOpts{
		ExplorerSvc:             mockSvc,
		Store:                   store,
		RecoveryDirectThreshold: 1000,
	})
	require.NoError(t, err)

	require.NoError(t, tracker.SyncToTip(context.Background(), 802000))

	count, err := tracker.GetFoundBlocksCount(minerAddress)
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)
	require.Equal(t, uint64(802000), tracker.GlobalSyncHeight())
	// Recovery went through histories, not block-by-block.
	require.Zero(t, mockSvc.coinbaseCalls)

	// Re-running against unchanged history discovers nothing new.
	require.NoError(t, tracker.SyncToTip(context.Background(), 802000))
	count, err = tracker.GetFoundBlocksCount(minerAddress)
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)
}

func TestSyncAbortsWithoutCommitOnFailure(t *testing.T) {
	prevDelay := retryBaseDelay
	retryBaseDelay = 10 * time.Millisecond
	defer func() { retryBaseDelay = prevDelay }()

	mockSvc := newMockExplorer(802000)
	mockSvc.setHistory(minerAddress, &explorer.AddressHistory{
		Address: minerAddress,
		Txs: []explorer.HistoryTx{
			{TxID: "new1", Height: 800500, IsCoinbase: true},
		},
	})

	store := seededStore(t, 1, 800000)
	tracker, err := NewRewardTracker(RewardTrackerOpts{
		ExplorerSvc:             mockSvc,
		Store:                   store,
		RecoveryDirectThreshold: 1000,
		MaxRetries:              1,
	})
	require.NoError(t, err)

	mockSvc.failNext(1)
	require.Error(t, tracker.SyncToTip(context.Background(), 802000))

	// Nothing moved, the next cycle starts from the same place.
	require.Equal(t, uint64(800000), tracker.GlobalSyncHeight())
	count, err := tracker.GetFoundBlocksCount(minerAddress)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)

	// And when the provider recovers, the cycle completes.
	require.NoError(t, tracker.SyncToTip(context.Background(), 802000))
	count, err = tracker.GetFoundBlocksCount(minerAddress)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)
}

func TestUnwatchAddress(t *testing.T) {
	store := seededStore(t, 3, 800000)
	tracker, err := NewRewardTracker(RewardTrackerOpts{
		ExplorerSvc: newMockExplorer(800000),
		Store:       store,
	})
	require.NoError(t, err)

	require.NoError(t, tracker.UnwatchAddress(minerAddress))
	_, err = tracker.GetFoundBlocksCount(minerAddress)
	require.ErrorIs(t, err, domain.ErrAddressNotWatched)

	require.ErrorIs(t, tracker.UnwatchAddress(minerAddress), domain.ErrAddressNotWatched)
}

func TestWatchAddressRejectsMalformed(t *testing.T) {
	tracker, err := NewRewardTracker(RewardTrackerOpts{
		ExplorerSvc: newMockExplorer(800000),
		Store:       newMemStore(),
	})
	require.NoError(t, err)

	err = tracker.WatchAddress(
		context.Background(), domain.MonitoredAddress{Address: "not-an-address"},
	)
	require.ErrorIs(t, err, domain.ErrInvalidAddressFormat)
}
