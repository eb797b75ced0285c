package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer/esplora"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// ExplorerEndpointKey is the endpoint of the esplora REST API used as
	// chain data source
	ExplorerEndpointKey = "EXPLORER_URL"
	// ExplorerWsEndpointKey is the optional websocket endpoint delivering
	// new-block notifications. Empty disables the push channel
	ExplorerWsEndpointKey = "EXPLORER_WS_URL"
	// ExplorerRequestTimeoutKey are the milliseconds to wait for HTTP responses before timeouts
	ExplorerRequestTimeoutKey = "EXPLORER_REQUEST_TIMEOUT"
	// DatadirKey is the local data directory to store the caches of the daemon
	DatadirKey = "DATA_DIR_PATH"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// NetworkKey is the network to use. Either "mainnet" or "testnet"
	NetworkKey = "NETWORK"
	// CrawlIntervalKey is the interval in milliseconds between chain tip polls
	CrawlIntervalKey = "CRAWL_INTERVAL"
	// CrawlLimitKey represents the number of requests per second allowed
	// toward the explorer
	CrawlLimitKey = "EXPLORER_REQUESTS_PER_SECOND"
	// CrawlTokenBurst represents the number of burst tokens permitted toward
	// the explorer
	CrawlTokenBurst = "CRAWL_TOKEN"
	// GapLimitKey is the number of consecutive unused addresses terminating
	// an xpub discovery scan
	GapLimitKey = "GAP_LIMIT"
	// ScanIncrementKey is the batch size of derived addresses per scan round
	ScanIncrementKey = "SCAN_INCREMENT"
	// BootstrapIncrementKey is the batch size of derived addresses per round
	// of the first scan of a newly watched xpub
	BootstrapIncrementKey = "BOOTSTRAP_INCREMENT"
	// BootstrapMaxAddressesKey caps the addresses derived by the first scan
	// of a newly watched xpub
	BootstrapMaxAddressesKey = "BOOTSTRAP_MAX_ADDRESSES"
	// RecoveryDirectThresholdKey is the largest block gap recovered by direct
	// per-block scanning after downtime
	RecoveryDirectThresholdKey = "RECOVERY_DIRECT_THRESHOLD"
	// CachePassphraseFileKey is the path of the file holding the passphrase
	// encrypting the on-disk caches. Empty stores them in cleartext
	CachePassphraseFileKey = "CACHE_PASSPHRASE_FILE"
	// FiatCurrencyKey is the currency used to valuate balances at read time
	FiatCurrencyKey = "FIAT_CURRENCY"
	// PriceIntervalKey is the maximum age in seconds of a cached fiat rate
	// before it is refreshed
	PriceIntervalKey = "PRICE_INTERVAL"
	// WatchAddressesKey is the comma separated list of plain addresses to monitor
	WatchAddressesKey = "WATCH_ADDRESSES"
	// WatchXpubsKey is the comma separated list of extended public keys to monitor
	WatchXpubsKey = "WATCH_XPUBS"

	DbLocation = "db"

	MainnetNetwork = "mainnet"
	TestnetNetwork = "testnet"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("blockwatch-daemon", false)

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("BLOCKWATCH")
	vip.AutomaticEnv()

	vip.SetDefault(ExplorerEndpointKey, "https://blockstream.info/api")
	vip.SetDefault(ExplorerWsEndpointKey, "")
	vip.SetDefault(ExplorerRequestTimeoutKey, 15000)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(NetworkKey, MainnetNetwork)
	vip.SetDefault(CrawlIntervalKey, 60000)
	vip.SetDefault(CrawlLimitKey, 10)
	vip.SetDefault(CrawlTokenBurst, 1)
	vip.SetDefault(GapLimitKey, 20)
	vip.SetDefault(ScanIncrementKey, 5)
	vip.SetDefault(BootstrapIncrementKey, 10)
	vip.SetDefault(BootstrapMaxAddressesKey, 50)
	vip.SetDefault(RecoveryDirectThresholdKey, 1000)
	vip.SetDefault(FiatCurrencyKey, "usd")
	vip.SetDefault(PriceIntervalKey, 300)
	vip.SetDefault(DatadirKey, defaultDatadir)

	if err := validate(); err != nil {
		log.WithError(err).Panic("error while validating config")
	}

	if err := initDatadir(); err != nil {
		log.WithError(err).Panic("error while creating datadir")
	}
}

//GetString ...
func GetString(key string) string {
	return vip.GetString(key)
}

//GetInt ...
func GetInt(key string) int {
	return vip.GetInt(key)
}

//GetDuration ...
func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

//GetBool ...
func GetBool(key string) bool {
	return vip.GetBool(key)
}

// GetDatadir returns the data directory of the daemon
func GetDatadir() string {
	return GetString(DatadirKey)
}

// IsTestnet returns whether the daemon monitors testnet addresses
func IsTestnet() bool {
	return GetString(NetworkKey) == TestnetNetwork
}

//GetExplorer ...
func GetExplorer() (explorer.Service, error) {
	endpoint := GetString(ExplorerEndpointKey)
	reqTimeout := GetInt(ExplorerRequestTimeoutKey)
	return esplora.NewService(endpoint, reqTimeout)
}

// GetWatchAddresses returns the plain addresses listed in the config
func GetWatchAddresses() []string {
	return splitList(GetString(WatchAddressesKey))
}

// GetWatchXpubs returns the extended public keys listed in the config
func GetWatchXpubs() []string {
	return splitList(GetString(WatchXpubsKey))
}

// Set a value for the given key
func Set(key string, value interface{}) {
	vip.Set(key, value)
}

// IsSet returns whether the give key is set
func IsSet(key string) bool {
	return vip.IsSet(key)
}

func splitList(raw string) []string {
	if len(raw) == 0 {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); len(trimmed) > 0 {
			out = append(out, trimmed)
		}
	}
	return out
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("datadir must not be null")
	}

	networkName := GetString(NetworkKey)
	if networkName != MainnetNetwork && networkName != TestnetNetwork {
		return fmt.Errorf(
			"network must be either '%s' or '%s'",
			MainnetNetwork, TestnetNetwork,
		)
	}

	explorerEndpoint := GetString(ExplorerEndpointKey)
	if _, err := url.Parse(explorerEndpoint); err != nil {
		return fmt.Errorf("explorer endpoint is not a valid url: %s", err)
	}

	if wsEndpoint := GetString(ExplorerWsEndpointKey); wsEndpoint != "" {
		if _, err := url.Parse(wsEndpoint); err != nil {
			return fmt.Errorf("explorer ws endpoint is not a valid url: %s", err)
		}
	}

	if gapLimit := GetInt(GapLimitKey); gapLimit <= 0 {
		return fmt.Errorf("gap limit must be a positive number")
	}
	if increment := GetInt(ScanIncrementKey); increment <= 0 {
		return fmt.Errorf("scan increment must be a positive number")
	}
	if increment := GetInt(BootstrapIncrementKey); increment <= 0 {
		return fmt.Errorf("bootstrap increment must be a positive number")
	}
	if maxAddresses := GetInt(BootstrapMaxAddressesKey); maxAddresses <= 0 {
		return fmt.Errorf("bootstrap max addresses must be a positive number")
	}

	if passphraseFile := GetString(CachePassphraseFileKey); passphraseFile != "" {
		if _, err := os.Stat(passphraseFile); err != nil {
			return fmt.Errorf("cache passphrase file is not readable: %s", err)
		}
	}
	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	return makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation))
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
