package krakenfeeder

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTickerResponse(t *testing.T) {
	body := `{"error":[],"result":{"XXBTZUSD":{"a":["64001.1","1","1.000"],"b":["64000.0","1","1.000"],"c":["64000.5","0.001"]}}}`
	price, err := parseTickerResponse(body)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("64000.5")))
}

func TestParseTickerResponseErrors(t *testing.T) {
	_, err := parseTickerResponse(`{"error":["EQuery:Unknown asset pair"]}`)
	require.Error(t, err)

	_, err = parseTickerResponse(`not json`)
	require.Error(t, err)

	_, err = parseTickerResponse(`{"error":[],"result":{}}`)
	require.Error(t, err)
}
