package domain

import "time"

// CacheVersion is the schema version stamped on every persisted cache
// document. A reader must refuse documents carrying an unknown version.
const CacheVersion = "1.0"

// RewardEntry is the per-address coinbase payout counter.
type RewardEntry struct {
	Address            string `json:"address"`
	TotalCoinbaseCount uint64 `json:"total_coinbase_count"`
	SyncedHeight       uint64 `json:"synced_height"`
	LastUpdated        int64  `json:"last_updated"`
	FirstBlockFound    uint64 `json:"first_block_found,omitempty"`
	LatestBlockFound   uint64 `json:"latest_block_found,omitempty"`
	Bootstrapped       bool   `json:"bootstrapped"`
}

// NewRewardEntry returns an unseeded entry for the given address.
func NewRewardEntry(address string) *RewardEntry {
	return &RewardEntry{Address: address}
}

// Seed records the result of the one-time full-history bootstrap.
func (e *RewardEntry) Seed(
	count uint64, firstBlock, latestBlock, tipHeight uint64,
) {
	e.TotalCoinbaseCount = count
	e.FirstBlockFound = firstBlock
	e.LatestBlockFound = latestBlock
	e.SyncedHeight = tipHeight
	e.Bootstrapped = true
	e.LastUpdated = time.Now().Unix()
}

// CreditBlock increments the payout counter for a newly found block.
func (e *RewardEntry) CreditBlock(height uint64) {
	e.TotalCoinbaseCount++
	if e.FirstBlockFound == 0 || height < e.FirstBlockFound {
		e.FirstBlockFound = height
	}
	if height > e.LatestBlockFound {
		e.LatestBlockFound = height
	}
	e.LastUpdated = time.Now().Unix()
}

// AddRecovered adds the count of newly discovered blocks found by a
// recovery pass. The counter is never replaced wholesale, so a recovery
// running against unchanged remote history adds zero.
func (e *RewardEntry) AddRecovered(count uint64, latestBlock uint64) {
	if count == 0 {
		return
	}
	e.TotalCoinbaseCount += count
	if latestBlock > e.LatestBlockFound {
		e.LatestBlockFound = latestBlock
	}
	e.LastUpdated = time.Now().Unix()
}

// AdvanceSyncedHeight moves the per-address synced height forward. Moving it
// backwards is refused, the height is monotone for the lifetime of the entry.
func (e *RewardEntry) AdvanceSyncedHeight(height uint64) error {
	if height < e.SyncedHeight {
		return ErrSyncedHeightDecreased
	}
	e.SyncedHeight = height
	e.LastUpdated = time.Now().Unix()
	return nil
}

// RewardCache is the persisted document of the block reward tracker.
type RewardCache struct {
	Addresses        map[string]*RewardEntry `json:"addresses"`
	GlobalSyncHeight uint64                  `json:"global_sync_height"`
	Version          string                  `json:"cache_version"`
	LastFullScan     int64                   `json:"last_full_scan"`
}

// NewRewardCache returns an empty document at the current schema version.
func NewRewardCache() *RewardCache {
	return &RewardCache{
		Addresses: make(map[string]*RewardEntry),
		Version:   CacheVersion,
	}
}

// Entry returns the entry for the given address, creating an unseeded one
// if the address is watched for the first time.
func (c *RewardCache) Entry(address string) *RewardEntry {
	entry, ok := c.Addresses[address]
	if !ok {
		entry = NewRewardEntry(address)
		c.Addresses[address] = entry
	}
	return entry
}

// AdvanceGlobalSyncHeight moves the fleet-wide committed height forward,
// refusing to go backwards.
func (c *RewardCache) AdvanceGlobalSyncHeight(height uint64) error {
	if height < c.GlobalSyncHeight {
		return ErrSyncedHeightDecreased
	}
	c.GlobalSyncHeight = height
	return nil
}
