package coinbasefeeder

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpotResponse(t *testing.T) {
	body := `{"data":{"amount":"64123.55","base":"BTC","currency":"USD"}}`
	price, err := parseSpotResponse(body)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("64123.55")))
}

func TestParseSpotResponseErrors(t *testing.T) {
	_, err := parseSpotResponse(`{"data":{}}`)
	require.Error(t, err)

	_, err = parseSpotResponse(`not json`)
	require.Error(t, err)
}
