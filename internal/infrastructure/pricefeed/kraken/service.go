package krakenfeeder

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

// KrakenAPIURL is the base url of the kraken public REST API.
const KrakenAPIURL = "https://api.kraken.com/0/public"

var supportedCurrencies = map[string]string{
	"USD": "XBTUSD",
	"EUR": "XBTEUR",
	"GBP": "XBTGBP",
	"CAD": "XBTCAD",
	"CHF": "XBTCHF",
	"JPY": "XBTJPY",
}

type service struct {
	apiURL string
	client *httputil.Client
}

// NewKrakenFeeder returns a pricefeed.SpotFeeder backed by the kraken
// public ticker endpoint.
func NewKrakenFeeder() pricefeed.SpotFeeder {
	return &service{
		apiURL: KrakenAPIURL,
		client: httputil.NewClient(15 * time.Second),
	}
}

func (s *service) Name() string {
	return "kraken"
}

func (s *service) FetchSpotPrice(
	ctx context.Context, currency string,
) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	pair, ok := supportedCurrencies[strings.ToUpper(currency)]
	if !ok {
		return decimal.Zero, fmt.Errorf(
			"%w: %s", pricefeed.ErrCurrencyNotSupported, currency,
		)
	}

	url := fmt.Sprintf("%s/Ticker?pair=%s", s.apiURL, pair)
	status, resp, err := s.client.NewHTTPRequest("GET", url, "", nil)
	if err != nil {
		return decimal.Zero, err
	}
	if status != http.StatusOK {
		return decimal.Zero, fmt.Errorf("kraken ticker: status %d", status)
	}

	return parseTickerResponse(resp)
}

func parseTickerResponse(body string) (decimal.Decimal, error) {
	payload := struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			// c holds [<last trade price>, <last trade lot volume>].
			C []string `json:"c"`
		} `json:"result"`
	}{}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return decimal.Zero, fmt.Errorf("invalid kraken ticker JSON: %s", err)
	}
	if len(payload.Error) > 0 {
		return decimal.Zero, fmt.Errorf("kraken ticker: %s", strings.Join(payload.Error, "; "))
	}

	for _, ticker := range payload.Result {
		if len(ticker.C) == 0 {
			break
		}
		return decimal.NewFromString(ticker.C[0])
	}
	return decimal.Zero, fmt.Errorf("kraken ticker: empty result")
}
