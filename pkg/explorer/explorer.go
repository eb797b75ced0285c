package explorer

import "errors"

var (
	// ErrProviderUnavailable wraps transient failures of the remote data
	// source (timeouts, 5xx, rate limiting). Callers may retry with backoff.
	ErrProviderUnavailable = errors.New("ledger data provider unavailable")
	// ErrBlockNotFound is returned when asking for a block at a height above
	// the current chain tip.
	ErrBlockNotFound = errors.New("block not found")
)

// CoinbaseOutput is one output of a block's coinbase transaction. Outputs
// paying non-standard scripts carry an empty Address.
type CoinbaseOutput struct {
	Address  string
	ValueSat uint64
}

// CoinbaseTx is the reward-paying transaction at the start of a block.
type CoinbaseTx struct {
	TxID    string
	Height  uint64
	Outputs []CoinbaseOutput
}

// PaysAddress returns whether any output of the coinbase pays the given
// address, along with the total amount paid to it.
func (c *CoinbaseTx) PaysAddress(address string) (bool, uint64) {
	var total uint64
	var found bool
	for _, out := range c.Outputs {
		if out.Address == address {
			found = true
			total += out.ValueSat
		}
	}
	return found, total
}

// HistoryTx is one confirmed transaction of an address history.
type HistoryTx struct {
	TxID       string
	Height     uint64
	IsCoinbase bool
	// ValueSat is the total amount the transaction pays to the queried
	// address.
	ValueSat uint64
}

// AddressHistory is the confirmed transaction history of an address along
// with its current spendable balance.
type AddressHistory struct {
	Address    string
	Txs        []HistoryTx
	BalanceSat uint64
}

// Used returns whether the address has ever been seen on chain. An address
// with prior history but zero balance still counts as used.
func (h *AddressHistory) Used() bool {
	return h.BalanceSat > 0 || len(h.Txs) > 0
}

// CoinbaseTxs filters the history down to coinbase transactions.
func (h *AddressHistory) CoinbaseTxs() []HistoryTx {
	txs := make([]HistoryTx, 0, len(h.Txs))
	for _, tx := range h.Txs {
		if tx.IsCoinbase {
			txs = append(txs, tx)
		}
	}
	return txs
}

// Service is the representation of the remote ledger data source the daemon
// trusts for chain height, block contents and address history.
type Service interface {
	// GetBlockHeight returns the height of the chain tip.
	GetBlockHeight() (int, error)
	// GetBlockHash returns the hash of the block at the given height.
	GetBlockHash(height int) (string, error)
	// GetBlockCoinbase returns the coinbase transaction of the block at the
	// given height.
	GetBlockCoinbase(height int) (*CoinbaseTx, error)
	// GetAddressHistory returns the full confirmed history and the current
	// balance of the given address.
	GetAddressHistory(address string) (*AddressHistory, error)
	// GetAddressBalance returns the current spendable balance of the given
	// address in satoshis.
	GetAddressBalance(address string) (uint64, error)
	// GetAddressUsage reports whether the address has ever been used on
	// chain (positive balance or prior history) along with its current
	// balance, in a single remote call.
	GetAddressUsage(address string) (used bool, balanceSat uint64, err error)
}

// BlockNotifier is the optional push channel of a ledger data source,
// delivering the heights of newly mined blocks. Pollers remain the fallback
// whenever the push channel drops.
type BlockNotifier interface {
	Start() error
	Stop()
	BlockChan() chan uint64
}
