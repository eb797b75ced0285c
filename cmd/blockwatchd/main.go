package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/blockwatch-network/blockwatch-daemon/config"
	"github.com/blockwatch-network/blockwatch-daemon/internal/core/application"
	"github.com/blockwatch-network/blockwatch-daemon/internal/core/domain"
	"github.com/blockwatch-network/blockwatch-daemon/internal/infrastructure/pricefeed"
	coinbase "github.com/blockwatch-network/blockwatch-daemon/internal/infrastructure/pricefeed/coinbase"
	kraken "github.com/blockwatch-network/blockwatch-daemon/internal/infrastructure/pricefeed/kraken"
	ratestore "github.com/blockwatch-network/blockwatch-daemon/internal/infrastructure/pricefeed/store/badger"
	"github.com/blockwatch-network/blockwatch-daemon/internal/infrastructure/pubsub"
	filestore "github.com/blockwatch-network/blockwatch-daemon/internal/infrastructure/storage/file"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/crawler"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer/esplora"
)

func main() {
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	explorerSvc, err := config.GetExplorer()
	if err != nil {
		log.WithError(err).Panic("error while connecting to explorer")
	}

	cacheStore, err := filestore.NewCacheStore(
		config.GetDatadir(), config.GetString(config.CachePassphraseFileKey),
	)
	if err != nil {
		log.WithError(err).Panic("error while opening cache store")
	}
	defer cacheStore.Close()

	rateStore, err := ratestore.NewRateStore(
		filepath.Join(config.GetDatadir(), config.DbLocation), nil,
	)
	if err != nil {
		log.WithError(err).Panic("error while opening rate store")
	}

	priceSource, err := pricefeed.NewService(
		[]pricefeed.SpotFeeder{kraken.NewKrakenFeeder(), coinbase.NewCoinbaseFeeder()},
		rateStore,
		time.Duration(config.GetInt(config.PriceIntervalKey))*time.Second,
	)
	if err != nil {
		log.WithError(err).Panic("error while setting up price feeds")
	}

	pubsubSvc := pubsub.NewService()
	defer pubsubSvc.Close()

	// One limiter shared by every explorer consumer.
	limiter := rate.NewLimiter(
		rate.Limit(config.GetInt(config.CrawlLimitKey)),
		config.GetInt(config.CrawlTokenBurst),
	)

	engine, err := application.NewDerivationEngine(explorerSvc, cacheStore, limiter)
	if err != nil {
		log.WithError(err).Panic("error while setting up derivation engine")
	}

	tracker, err := application.NewRewardTracker(application.RewardTrackerOpts{
		ExplorerSvc:             explorerSvc,
		Store:                   cacheStore,
		PubSub:                  pubsubSvc,
		Limiter:                 limiter,
		RecoveryDirectThreshold: uint64(config.GetInt(config.RecoveryDirectThresholdKey)),
		Testnet:                 config.IsTestnet(),
	})
	if err != nil {
		log.WithError(err).Panic("error while setting up reward tracker")
	}

	aggregator, err := application.NewBalanceAggregator(application.BalanceAggregatorOpts{
		ExplorerSvc:        explorerSvc,
		Engine:             engine,
		Store:              cacheStore,
		PriceSource:        priceSource,
		PubSub:             pubsubSvc,
		Limiter:            limiter,
		GapLimit:           config.GetInt(config.GapLimitKey),
		Increment:          config.GetInt(config.ScanIncrementKey),
		BootstrapIncrement: config.GetInt(config.BootstrapIncrementKey),
	})
	if err != nil {
		log.WithError(err).Panic("error while setting up balance aggregator")
	}

	ctx := context.Background()
	watchAddresses := config.GetWatchAddresses()
	for _, address := range watchAddresses {
		if err := tracker.WatchAddress(
			ctx, domain.MonitoredAddress{Address: address},
		); err != nil {
			log.WithError(err).Panicf("error while watching address %s", address)
		}
	}
	for _, xpub := range config.GetWatchXpubs() {
		if err := aggregator.WatchXpub(
			ctx, domain.XpubWatch{Key: xpub},
			config.GetInt(config.BootstrapMaxAddressesKey),
		); err != nil {
			log.WithError(err).Panicf("error while watching xpub %s", xpub)
		}
	}

	crawlerSvc := crawler.NewService(crawler.Opts{
		ExplorerSvc:            explorerSvc,
		IntervalInMilliseconds: config.GetInt(config.CrawlIntervalKey),
		ErrorHandler: func(err error) {
			log.WithError(err).Warn("crawler error")
		},
		ExplorerLimiter: limiter,
	})
	crawlerSvc.AddObservable(&crawler.ChainTipObservable{})

	var blockNotifier explorer.BlockNotifier
	if wsURL := config.GetString(config.ExplorerWsEndpointKey); wsURL != "" {
		blockNotifier = esplora.NewBlockNotifier(wsURL)
	}

	listener := application.NewBlockchainListener(
		crawlerSvc, blockNotifier, tracker, aggregator, pubsubSvc, watchAddresses,
	)
	listener.ObserveBlockchain()
	defer listener.StopObserveBlockchain()

	log.Info("daemon started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Debug("exiting")
}
