package coinbasefeeder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blockwatch-network/blockwatch-daemon/internal/infrastructure/pricefeed"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/httputil"
)

// CoinbaseAPIURL is the base url of the coinbase public REST API.
const CoinbaseAPIURL = "https://api.coinbase.com/v2"

type service struct {
	apiURL string
	client *httputil.Client
}

// NewCoinbaseFeeder returns a pricefeed.SpotFeeder backed by the coinbase
// spot price endpoint.
func NewCoinbaseFeeder() pricefeed.SpotFeeder {
	return &service{
		apiURL: CoinbaseAPIURL,
		client: httputil.NewClient(15 * time.Second),
	}
}

func (s *service) Name() string {
	return "coinbase"
}

func (s *service) FetchSpotPrice(
	ctx context.Context, currency string,
) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	url := fmt.Sprintf(
		"%s/prices/BTC-%s/spot", s.apiURL, strings.ToUpper(currency),
	)
	status, resp, err := s.client.NewHTTPRequest("GET", url, "", nil)
	if err != nil {
		return decimal.Zero, err
	}
	if status == http.StatusNotFound {
		return decimal.Zero, fmt.Errorf(
			"%w: %s", pricefeed.ErrCurrencyNotSupported, currency,
		)
	}
	if status != http.StatusOK {
		return decimal.Zero, fmt.Errorf("coinbase spot price: status %d", status)
	}

	return parseSpotResponse(resp)
}

func parseSpotResponse(body string) (decimal.Decimal, error) {
	payload := struct {
		Data struct {
			Amount   string `json:"amount"`
			Currency string `json:"currency"`
		} `json:"data"`
	}{}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return decimal.Zero, fmt.Errorf("invalid coinbase spot JSON: %s", err)
	}
	if len(payload.Data.Amount) == 0 {
		return decimal.Zero, fmt.Errorf("coinbase spot price: empty amount")
	}
	return decimal.NewFromString(payload.Data.Amount)
}
