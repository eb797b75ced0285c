package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/blockwatch-network/blockwatch-daemon/internal/core/domain"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/hdwallet"
)

// ScanResult is the outcome of a discovery pass over one xpub.
type ScanResult struct {
	// Derived holds every address derived by the scan, in index order.
	Derived []domain.DerivedAddress
	// StoppedAt is the next index that would have been derived.
	StoppedAt uint32
}

// UsedCount returns the number of addresses the scan found used.
func (r *ScanResult) UsedCount() int {
	count := 0
	for _, d := range r.Derived {
		if d.Used {
			count++
		}
	}
	return count
}

// DerivationEngine derives child addresses from watched xpubs and discovers
// which of them are in use, bounding the discovery cost with a gap limit
// and, on bootstrap, an absolute address ceiling. Discovered sets are
// persisted so later scans only learn, never forget.
type DerivationEngine struct {
	explorerSvc explorer.Service
	store       domain.CacheStore
	limiter     *rate.Limiter

	mtx   sync.RWMutex
	cache *domain.DerivationCache
}

// NewDerivationEngine returns a DerivationEngine restoring its derived sets
// from the given cache store.
func NewDerivationEngine(
	explorerSvc explorer.Service,
	store domain.CacheStore,
	limiter *rate.Limiter,
) (*DerivationEngine, error) {
	if explorerSvc == nil {
		return nil, fmt.Errorf("missing explorer service")
	}
	if store == nil {
		return nil, fmt.Errorf("missing cache store")
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	cache := domain.NewDerivationCache()
	if err := store.Get(domain.DerivationCacheType, cache); err != nil {
		if !errors.Is(err, domain.ErrCacheNotFound) {
			return nil, err
		}
		cache = domain.NewDerivationCache()
	}

	return &DerivationEngine{
		explorerSvc: explorerSvc,
		store:       store,
		limiter:     limiter,
		cache:       cache,
	}, nil
}

// DeriveAddress derives the address at the external path 0/index of the
// given xpub. Pure and deterministic.
func (e *DerivationEngine) DeriveAddress(xpub string, index uint32) (string, error) {
	key, err := hdwallet.ParseKey(xpub)
	if err != nil {
		return "", err
	}
	return key.DeriveAddress(index)
}

// GapLimitScan derives addresses sequentially in batches of increment and
// stops once lastNUnused consecutive addresses are found unused.
func (e *DerivationEngine) GapLimitScan(
	ctx context.Context, xpub string, lastNUnused, increment int,
) (*ScanResult, error) {
	return e.scan(ctx, xpub, lastNUnused, 0, increment)
}

// BootstrapSearch is the bounded discovery pass run the first time an xpub
// is watched: like GapLimitScan but additionally capped at maxAddresses,
// whichever bound triggers first.
func (e *DerivationEngine) BootstrapSearch(
	ctx context.Context, xpub string, maxAddresses, increment int,
) (*ScanResult, error) {
	// The ceiling doubles as gap limit so an all-unused wallet terminates
	// exactly at maxAddresses derived addresses.
	return e.scan(ctx, xpub, maxAddresses, maxAddresses, increment)
}

// DerivedAddresses returns the cached derived set of the given xpub.
func (e *DerivationEngine) DerivedAddresses(xpub string) []domain.DerivedAddress {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	cached := e.cache.ByXpub[xpub]
	out := make([]domain.DerivedAddress, len(cached))
	copy(out, cached)
	return out
}

// UsedAddresses returns the cached derived addresses known to be in use.
func (e *DerivationEngine) UsedAddresses(xpub string) []domain.DerivedAddress {
	all := e.DerivedAddresses(xpub)
	used := make([]domain.DerivedAddress, 0, len(all))
	for _, d := range all {
		if d.Used {
			used = append(used, d)
		}
	}
	return used
}

// HasScanned returns whether a discovery pass already ran for the xpub.
func (e *DerivationEngine) HasScanned(xpub string) bool {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	_, ok := e.cache.ByXpub[xpub]
	return ok
}

// Forget drops the cached derived set of an xpub removed from the
// monitored set.
func (e *DerivationEngine) Forget(xpub string) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	delete(e.cache.ByXpub, xpub)
	return e.store.Put(domain.DerivationCacheType, e.cache)
}

func (e *DerivationEngine) scan(
	ctx context.Context, xpub string, lastNUnused, maxAddresses, increment int,
) (*ScanResult, error) {
	key, err := hdwallet.ParseKey(xpub)
	if err != nil {
		return nil, err
	}
	if lastNUnused <= 0 {
		return nil, fmt.Errorf("gap limit must be positive")
	}
	if increment <= 0 {
		return nil, fmt.Errorf("scan increment must be positive")
	}

	knownUsed := e.knownUsedIndexes(xpub)

	derived := make([]domain.DerivedAddress, 0, increment)
	unusedRun := 0
	index := uint32(0)

	for {
		for i := 0; i < increment; i++ {
			address, err := key.DeriveAddress(index)
			if err != nil {
				return nil, fmt.Errorf(
					"deriving %s index %d: %w", xpub, index, err,
				)
			}

			record := domain.DerivedAddress{
				Xpub:    xpub,
				Index:   index,
				Address: address,
				Used:    knownUsed[index],
			}
			if !record.Used {
				if err := e.limiter.Wait(ctx); err != nil {
					return nil, err
				}
				var used bool
				if err := retry(ctx, DefaultMaxRetries, func() error {
					var err error
					used, _, err = e.explorerSvc.GetAddressUsage(address)
					return err
				}); err != nil {
					return nil, err
				}
				if used {
					record.MarkUsed()
				}
			}

			if record.Used {
				unusedRun = 0
			} else {
				unusedRun++
			}
			derived = append(derived, record)
			index++
		}

		if unusedRun >= lastNUnused {
			break
		}
		if maxAddresses > 0 && len(derived) >= maxAddresses {
			log.Debugf(
				"bootstrap ceiling of %d addresses reached for %s",
				maxAddresses, xpub,
			)
			break
		}
	}

	if maxAddresses > 0 && len(derived) > maxAddresses {
		derived = derived[:maxAddresses]
		index = uint32(maxAddresses)
	}

	result := &ScanResult{Derived: derived, StoppedAt: index}
	if err := e.commit(xpub, result); err != nil {
		return nil, err
	}
	return result, nil
}

// knownUsedIndexes spares remote lookups for addresses already known used;
// usage only ever flips from false to true.
func (e *DerivationEngine) knownUsedIndexes(xpub string) map[uint32]bool {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	used := make(map[uint32]bool)
	for _, d := range e.cache.ByXpub[xpub] {
		if d.Used {
			used[d.Index] = true
		}
	}
	return used
}

func (e *DerivationEngine) commit(xpub string, result *ScanResult) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	existing := e.cache.ByXpub[xpub]
	byIndex := make(map[uint32]domain.DerivedAddress, len(existing))
	for _, d := range existing {
		byIndex[d.Index] = d
	}
	for _, d := range result.Derived {
		if prev, ok := byIndex[d.Index]; ok && prev.Used {
			// Usage never flips back.
			d.Used = true
		}
		byIndex[d.Index] = d
	}

	merged := make([]domain.DerivedAddress, 0, len(byIndex))
	for i := uint32(0); i < uint32(len(byIndex)); i++ {
		if d, ok := byIndex[i]; ok {
			merged = append(merged, d)
		}
	}
	e.cache.ByXpub[xpub] = merged

	return e.store.Put(domain.DerivationCacheType, e.cache)
}
