package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	require.Equal(t, "https://blockstream.info/api", GetString(ExplorerEndpointKey))
	require.Equal(t, 20, GetInt(GapLimitKey))
	require.Equal(t, 5, GetInt(ScanIncrementKey))
	require.Equal(t, 10, GetInt(BootstrapIncrementKey))
	require.Equal(t, 50, GetInt(BootstrapMaxAddressesKey))
	require.Equal(t, 1000, GetInt(RecoveryDirectThresholdKey))
	require.False(t, IsTestnet())
}

func TestWatchLists(t *testing.T) {
	Set(WatchAddressesKey, "addr1, addr2 ,addr3,")
	defer Set(WatchAddressesKey, "")

	addresses := GetWatchAddresses()
	require.Equal(t, []string{"addr1", "addr2", "addr3"}, addresses)

	require.Empty(t, GetWatchXpubs())
}
