package application

import (
	"context"
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/blockwatch-network/blockwatch-daemon/internal/core/ports"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/crawler"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer"
)

// BlockchainListener defines the methods to start and stop observing the
// chain tip and reacting to new blocks.
type BlockchainListener interface {
	ObserveBlockchain()
	StopObserveBlockchain()
}

type blockchainListener struct {
	crawlerSvc    crawler.Service
	blockNotifier explorer.BlockNotifier
	tracker       *RewardTracker
	aggregator    *BalanceAggregator
	pubsub        ports.PubSub
	// plain addresses whose balances are refreshed after each sync cycle
	balanceAddresses []string

	syncing int32
	quit    chan struct{}
}

// NewBlockchainListener returns a BlockchainListener driving the reward
// tracker and the balance aggregator toward the tip on every new block. The
// block notifier is optional; the crawler poller alone is enough.
func NewBlockchainListener(
	crawlerSvc crawler.Service,
	blockNotifier explorer.BlockNotifier,
	tracker *RewardTracker,
	aggregator *BalanceAggregator,
	pubsub ports.PubSub,
	balanceAddresses []string,
) BlockchainListener {
	return &blockchainListener{
		crawlerSvc:       crawlerSvc,
		blockNotifier:    blockNotifier,
		tracker:          tracker,
		aggregator:       aggregator,
		pubsub:           pubsub,
		balanceAddresses: balanceAddresses,
		quit:             make(chan struct{}),
	}
}

func (b *blockchainListener) ObserveBlockchain() {
	go b.crawlerSvc.Start()
	go b.handleBlockChainEvents()

	if b.blockNotifier != nil {
		// Start blocks while the feed is up; a dead feed only costs us the
		// push channel since the poller keeps running.
		go func() {
			if err := b.blockNotifier.Start(); err != nil {
				log.WithError(err).Warn(
					"block notifier unavailable, falling back to polling only",
				)
			}
		}()
		go b.handleBlockNotifications()
	}
}

func (b *blockchainListener) StopObserveBlockchain() {
	close(b.quit)
	b.crawlerSvc.Stop()
	if b.blockNotifier != nil {
		b.blockNotifier.Stop()
	}
}

func (b *blockchainListener) handleBlockChainEvents() {
	for event := range b.crawlerSvc.GetEventChannel() {
		switch e := event.(type) {
		case crawler.BlockEvent:
			b.syncToTip(e.Height)
		}
	}
}

func (b *blockchainListener) handleBlockNotifications() {
	for {
		select {
		case <-b.quit:
			return
		case height, ok := <-b.blockNotifier.BlockChan():
			if !ok {
				return
			}
			b.syncToTip(height)
		}
	}
}

// syncToTip runs one full sync cycle. Cycles never overlap: a tip update
// arriving while a cycle runs is dropped, the cycle in flight or the next
// poll covers it since the tracker always syncs to the current tip.
func (b *blockchainListener) syncToTip(tipHeight uint64) {
	if !atomic.CompareAndSwapInt32(&b.syncing, 0, 1) {
		log.Debugf("sync already in progress, skipping tip update %d", tipHeight)
		return
	}
	defer atomic.StoreInt32(&b.syncing, 0)

	ctx := context.Background()

	if err := b.tracker.SyncToTip(ctx, tipHeight); err != nil {
		log.WithError(err).Warnf("failed to sync rewards to height %d", tipHeight)
		return
	}
	if err := b.aggregator.RefreshAll(ctx, b.balanceAddresses); err != nil {
		log.WithError(err).Warn("failed to refresh balances")
		return
	}

	log.Infof("synced to height %d", tipHeight)
	b.publishSyncCompleted(tipHeight)
}

func (b *blockchainListener) publishSyncCompleted(tipHeight uint64) {
	if b.pubsub == nil {
		return
	}
	payload := fmt.Sprintf(`{"height":%d}`, tipHeight)
	if err := b.pubsub.Publish(ports.SyncCompletedTopic, payload); err != nil {
		log.WithError(err).Debug("failed to publish sync completion")
	}
}
