package domain

// Cache types, each one mapping to a single persisted document.
const (
	RewardCacheType     = "rewards"
	BalanceCacheType    = "balances"
	DerivationCacheType = "derivations"
)

// CacheStore is the persistent, atomic, optionally encrypted document store
// backing all caches. One logical writer per process; Get returns
// ErrCacheNotFound when no document exists for the cache type.
type CacheStore interface {
	Get(cacheType string, doc interface{}) error
	Put(cacheType string, doc interface{}) error
	Close() error
}
