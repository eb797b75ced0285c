package application

import (
	"encoding/json"
	"sync"

	"github.com/blockwatch-network/blockwatch-daemon/internal/core/domain"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer"
)

// memStore is an in-memory domain.CacheStore round-tripping documents
// through JSON like the file store does.
type memStore struct {
	mtx  sync.RWMutex
	docs map[string][]byte
	puts int
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte)}
}

func (s *memStore) Get(cacheType string, doc interface{}) error {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	raw, ok := s.docs[cacheType]
	if !ok {
		return domain.ErrCacheNotFound
	}
	return json.Unmarshal(raw, doc)
}

func (s *memStore) Put(cacheType string, doc interface{}) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.docs[cacheType] = raw
	s.puts++
	return nil
}

func (s *memStore) Close() error { return nil }

// mockExplorer is a configurable in-memory explorer.Service.
type mockExplorer struct {
	mtx       sync.RWMutex
	tip       int
	coinbases map[uint64]*explorer.CoinbaseTx
	histories map[string]*explorer.AddressHistory
	usage     map[string]bool
	balances  map[string]uint64
	// failures makes the next N calls fail with ErrProviderUnavailable.
	failures int

	usageCalls    int
	historyCalls  int
	coinbaseCalls int
}

func newMockExplorer(tip int) *mockExplorer {
	return &mockExplorer{
		tip:       tip,
		coinbases: make(map[uint64]*explorer.CoinbaseTx),
		histories: make(map[string]*explorer.AddressHistory),
		usage:     make(map[string]bool),
		balances:  make(map[string]uint64),
	}
}

func (m *mockExplorer) failNext(n int) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.failures = n
}

func (m *mockExplorer) maybeFail() error {
	if m.failures > 0 {
		m.failures--
		return explorer.ErrProviderUnavailable
	}
	return nil
}

func (m *mockExplorer) setTip(tip int) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.tip = tip
}

func (m *mockExplorer) setCoinbase(height uint64, cb *explorer.CoinbaseTx) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.coinbases[height] = cb
}

func (m *mockExplorer) setHistory(address string, h *explorer.AddressHistory) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.histories[address] = h
}

func (m *mockExplorer) setUsed(address string, balance uint64) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.usage[address] = true
	m.balances[address] = balance
}

func (m *mockExplorer) GetBlockHeight() (int, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if err := m.maybeFail(); err != nil {
		return 0, err
	}
	return m.tip, nil
}

func (m *mockExplorer) GetBlockHash(height int) (string, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if err := m.maybeFail(); err != nil {
		return "", err
	}
	if height > m.tip {
		return "", explorer.ErrBlockNotFound
	}
	return "hash", nil
}

func (m *mockExplorer) GetBlockCoinbase(height int) (*explorer.CoinbaseTx, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.coinbaseCalls++
	if err := m.maybeFail(); err != nil {
		return nil, err
	}
	if height > m.tip {
		return nil, explorer.ErrBlockNotFound
	}
	if cb, ok := m.coinbases[uint64(height)]; ok {
		return cb, nil
	}
	return &explorer.CoinbaseTx{
		TxID:   "coinbase",
		Height: uint64(height),
		Outputs: []explorer.CoinbaseOutput{
			{Address: "someoneelse", ValueSat: 625000000},
		},
	}, nil
}

func (m *mockExplorer) GetAddressHistory(address string) (*explorer.AddressHistory, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.historyCalls++
	if err := m.maybeFail(); err != nil {
		return nil, err
	}
	if h, ok := m.histories[address]; ok {
		return h, nil
	}
	return &explorer.AddressHistory{Address: address}, nil
}

func (m *mockExplorer) GetAddressBalance(address string) (uint64, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if err := m.maybeFail(); err != nil {
		return 0, err
	}
	return m.balances[address], nil
}

func (m *mockExplorer) GetAddressUsage(address string) (bool, uint64, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.usageCalls++
	if err := m.maybeFail(); err != nil {
		return false, 0, err
	}
	return m.usage[address], m.balances[address], nil
}
