package esplora

import (
	"encoding/json"
	"fmt"

	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer"
)

// tx mirrors the esplora JSON representation of a transaction, limited to
// the fields the daemon cares about.
type tx struct {
	TxID   string   `json:"txid"`
	Vin    []txVin  `json:"vin"`
	Vout   []txVout `json:"vout"`
	Status txStatus `json:"status"`
}

type txVin struct {
	IsCoinbase bool `json:"is_coinbase"`
}

type txVout struct {
	ScriptpubkeyAddress string `json:"scriptpubkey_address"`
	Value               uint64 `json:"value"`
}

type txStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint64 `json:"block_height"`
}

func (t tx) isCoinbase() bool {
	return len(t.Vin) == 1 && t.Vin[0].IsCoinbase
}

// valueForAddress sums the outputs paying the given address.
func (t tx) valueForAddress(address string) uint64 {
	var total uint64
	for _, out := range t.Vout {
		if out.ScriptpubkeyAddress == address {
			total += out.Value
		}
	}
	return total
}

func (t tx) toCoinbaseTx(height uint64) *explorer.CoinbaseTx {
	outs := make([]explorer.CoinbaseOutput, 0, len(t.Vout))
	for _, out := range t.Vout {
		outs = append(outs, explorer.CoinbaseOutput{
			Address:  out.ScriptpubkeyAddress,
			ValueSat: out.Value,
		})
	}
	return &explorer.CoinbaseTx{
		TxID:    t.TxID,
		Height:  height,
		Outputs: outs,
	}
}

func parseTxs(body string) ([]tx, error) {
	txs := []tx{}
	if err := json.Unmarshal([]byte(body), &txs); err != nil {
		return nil, fmt.Errorf("invalid tx list JSON: %s", err)
	}
	return txs, nil
}

// addressInfo mirrors the esplora JSON of the /address endpoint.
type addressInfo struct {
	Address    string       `json:"address"`
	ChainStats addressStats `json:"chain_stats"`
}

type addressStats struct {
	FundedTxoSum uint64 `json:"funded_txo_sum"`
	SpentTxoSum  uint64 `json:"spent_txo_sum"`
	TxCount      int    `json:"tx_count"`
}

func (a addressInfo) balanceSat() uint64 {
	if a.ChainStats.SpentTxoSum > a.ChainStats.FundedTxoSum {
		return 0
	}
	return a.ChainStats.FundedTxoSum - a.ChainStats.SpentTxoSum
}

func parseAddressInfo(body string) (*addressInfo, error) {
	info := &addressInfo{}
	if err := json.Unmarshal([]byte(body), info); err != nil {
		return nil, fmt.Errorf("invalid address JSON: %s", err)
	}
	return info, nil
}
