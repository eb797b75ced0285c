package ratestore

import (
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/timshannon/badgerhold/v4"

	"github.com/blockwatch-network/blockwatch-daemon/internal/infrastructure/pricefeed"
)

type rateStore struct {
	store *badgerhold.Store
}

// NewRateStore returns a pricefeed.RateStore persisted with badger under
// baseDbDir. An empty baseDbDir opens an in-memory store, used by tests.
func NewRateStore(baseDbDir string, logger badger.Logger) (pricefeed.RateStore, error) {
	var rateDir string
	if len(baseDbDir) > 0 {
		rateDir = filepath.Join(baseDbDir, "rates")
	}

	store, err := createDb(rateDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening rates db: %w", err)
	}
	return &rateStore{store}, nil
}

func (r *rateStore) PutRate(rate pricefeed.Rate) error {
	return r.store.Upsert(rate.Currency, &rate)
}

func (r *rateStore) GetRate(currency string) (*pricefeed.Rate, error) {
	var rate pricefeed.Rate
	if err := r.store.Get(currency, &rate); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf(
				"%w: %s", pricefeed.ErrRateNotFound, currency,
			)
		}
		return nil, err
	}
	return &rate, nil
}

func (r *rateStore) Close() error {
	return r.store.Close()
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	return badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}
