package esplora

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer"
)

func (e *esplora) GetBlockHeight() (int, error) {
	url := fmt.Sprintf("%s/blocks/tip/height", e.apiURL)
	status, resp, err := e.getRequest(url)
	if err != nil {
		return -1, err
	}
	if status != http.StatusOK {
		return -1, fmt.Errorf(resp)
	}

	blockHeight, err := strconv.Atoi(resp)
	if err != nil {
		return -1, err
	}

	return blockHeight, nil
}

func (e *esplora) GetBlockHash(height int) (string, error) {
	url := fmt.Sprintf("%s/block-height/%d", e.apiURL, height)
	status, resp, err := e.getRequest(url)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", explorer.ErrBlockNotFound
	}
	if status != http.StatusOK {
		return "", fmt.Errorf(resp)
	}

	return resp, nil
}

// GetBlockCoinbase fetches the first transaction of the block at the given
// height. Esplora serves block transactions in pages of 25 with the coinbase
// always first, so a single page request is enough.
func (e *esplora) GetBlockCoinbase(height int) (*explorer.CoinbaseTx, error) {
	hash, err := e.GetBlockHash(height)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/block/%s/txs/0", e.apiURL, hash)
	status, resp, err := e.getRequest(url)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf(resp)
	}

	txs, err := parseTxs(resp)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("block %d has no transactions", height)
	}

	coinbase := txs[0]
	if !coinbase.isCoinbase() {
		return nil, fmt.Errorf(
			"first transaction of block %d is not a coinbase", height,
		)
	}

	return coinbase.toCoinbaseTx(uint64(height)), nil
}
