package esplora

import (
	"fmt"
	"net/http"

	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer"
)

// txsPerPage is the fixed page size of the esplora chain-history endpoint.
const txsPerPage = 25

func (e *esplora) GetAddressBalance(address string) (uint64, error) {
	info, err := e.getAddressInfo(address)
	if err != nil {
		return 0, err
	}
	return info.balanceSat(), nil
}

// GetAddressUsage reports usage from the address stats alone. A spent-out
// address still counts as used thanks to its transaction count.
func (e *esplora) GetAddressUsage(address string) (bool, uint64, error) {
	info, err := e.getAddressInfo(address)
	if err != nil {
		return false, 0, err
	}
	balance := info.balanceSat()
	return balance > 0 || info.ChainStats.TxCount > 0, balance, nil
}

// GetAddressHistory walks the paginated confirmed-history endpoint until a
// short page is returned, so the full history is fetched regardless of the
// number of transactions.
func (e *esplora) GetAddressHistory(address string) (*explorer.AddressHistory, error) {
	info, err := e.getAddressInfo(address)
	if err != nil {
		return nil, err
	}

	history := &explorer.AddressHistory{
		Address:    address,
		BalanceSat: info.balanceSat(),
		Txs:        make([]explorer.HistoryTx, 0, info.ChainStats.TxCount),
	}

	lastSeenTxID := ""
	for {
		txs, err := e.getConfirmedTxsPage(address, lastSeenTxID)
		if err != nil {
			return nil, err
		}

		for _, t := range txs {
			if !t.Status.Confirmed {
				continue
			}
			history.Txs = append(history.Txs, explorer.HistoryTx{
				TxID:       t.TxID,
				Height:     t.Status.BlockHeight,
				IsCoinbase: t.isCoinbase(),
				ValueSat:   t.valueForAddress(address),
			})
		}

		if len(txs) < txsPerPage {
			break
		}
		lastSeenTxID = txs[len(txs)-1].TxID
	}

	return history, nil
}

func (e *esplora) getAddressInfo(address string) (*addressInfo, error) {
	url := fmt.Sprintf("%s/address/%s", e.apiURL, address)
	status, resp, err := e.getRequest(url)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf(resp)
	}

	return parseAddressInfo(resp)
}

func (e *esplora) getConfirmedTxsPage(address, lastSeenTxID string) ([]tx, error) {
	url := fmt.Sprintf("%s/address/%s/txs/chain", e.apiURL, address)
	if len(lastSeenTxID) > 0 {
		url = fmt.Sprintf("%s/%s", url, lastSeenTxID)
	}

	status, resp, err := e.getRequest(url)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf(resp)
	}

	return parseTxs(resp)
}
