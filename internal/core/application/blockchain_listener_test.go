package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockwatch-network/blockwatch-daemon/pkg/crawler"
	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer"
)

type stubCrawler struct {
	eventChan chan crawler.Event
	started   chan struct{}
}

func newStubCrawler() *stubCrawler {
	return &stubCrawler{
		eventChan: make(chan crawler.Event, 10),
		started:   make(chan struct{}),
	}
}

func (s *stubCrawler) Start()                                { close(s.started) }
func (s *stubCrawler) Stop()                                 { s.eventChan <- crawler.QuitEvent{} }
func (s *stubCrawler) AddObservable(o crawler.Observable)    {}
func (s *stubCrawler) RemoveObservable(o crawler.Observable) {}
func (s *stubCrawler) GetEventChannel() chan crawler.Event   { return s.eventChan }

func TestListenerSyncsOnBlockEvent(t *testing.T) {
	mockSvc := newMockExplorer(800001)
	mockSvc.setCoinbase(800001, coinbasePaying(800001, minerAddress))
	mockSvc.setUsed(minerAddress, 625000000)

	store := seededStore(t, 3, 800000)
	tracker, err := NewRewardTracker(RewardTrackerOpts{
		ExplorerSvc: mockSvc,
		Store:       store,
	})
	require.NoError(t, err)

	aggregator := newTestAggregator(t, mockSvc, store, nil)

	crawlSvc := newStubCrawler()
	listener := NewBlockchainListener(
		crawlSvc, nil, tracker, aggregator, nil, []string{minerAddress},
	)

	listener.ObserveBlockchain()
	crawlSvc.eventChan <- crawler.BlockEvent{Height: 800001}

	require.Eventually(t, func() bool {
		count, err := tracker.GetFoundBlocksCount(minerAddress)
		return err == nil && count == 4
	}, 2*time.Second, 20*time.Millisecond)
	require.Equal(t, uint64(800001), tracker.GlobalSyncHeight())

	require.Eventually(t, func() bool {
		record, err := aggregator.GetCachedBalance(minerAddress)
		return err == nil && record.BalanceSat == 625000000
	}, 2*time.Second, 20*time.Millisecond)

	listener.StopObserveBlockchain()
}

type stubNotifier struct {
	blockChan chan uint64
	stopped   bool
}

func (s *stubNotifier) Start() error           { return nil }
func (s *stubNotifier) Stop()                  { s.stopped = true }
func (s *stubNotifier) BlockChan() chan uint64 { return s.blockChan }

var _ explorer.BlockNotifier = (*stubNotifier)(nil)

func TestListenerConsumesPushNotifications(t *testing.T) {
	mockSvc := newMockExplorer(800001)
	mockSvc.setCoinbase(800001, coinbasePaying(800001, minerAddress))

	store := seededStore(t, 3, 800000)
	tracker, err := NewRewardTracker(RewardTrackerOpts{
		ExplorerSvc: mockSvc,
		Store:       store,
	})
	require.NoError(t, err)

	aggregator := newTestAggregator(t, mockSvc, store, nil)

	crawlSvc := newStubCrawler()
	notifier := &stubNotifier{blockChan: make(chan uint64, 1)}
	listener := NewBlockchainListener(
		crawlSvc, notifier, tracker, aggregator, nil, nil,
	)

	listener.ObserveBlockchain()
	notifier.blockChan <- 800001

	require.Eventually(t, func() bool {
		count, err := tracker.GetFoundBlocksCount(minerAddress)
		return err == nil && count == 4
	}, 2*time.Second, 20*time.Millisecond)

	listener.StopObserveBlockchain()
	require.True(t, notifier.stopped)
}
