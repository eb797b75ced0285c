package pubsub

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/blockwatch-network/blockwatch-daemon/internal/core/ports"
)

const subscriberQueueSize = 16

type subscription struct {
	id    string
	topic string
	ch    chan ports.Message
}

// service is an in-process topic broker. The daemon publishes cache updates
// through it; relaying collaborators subscribe to the topics they care
// about.
type service struct {
	lock   sync.RWMutex
	subs   map[string]*subscription
	closed bool
}

// NewService returns an in-process implementation of the ports.PubSub
// broker.
func NewService() ports.PubSub {
	return &service{
		subs: make(map[string]*subscription),
	}
}

func (s *service) Subscribe(topic string) (string, chan ports.Message) {
	s.lock.Lock()
	defer s.lock.Unlock()

	sub := &subscription{
		id:    uuid.New().String(),
		topic: topic,
		ch:    make(chan ports.Message, subscriberQueueSize),
	}
	s.subs[sub.id] = sub
	return sub.id, sub.ch
}

func (s *service) Unsubscribe(id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return fmt.Errorf("subscription %s not found", id)
	}
	delete(s.subs, id)
	close(sub.ch)
	return nil
}

func (s *service) Publish(topic, message string) error {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.closed {
		return fmt.Errorf("pubsub service is closed")
	}

	msg := ports.Message{Topic: topic, Payload: message}

	eg := &errgroup.Group{}
	for _, sub := range s.subs {
		if sub.topic != topic && sub.topic != ports.AnyTopic {
			continue
		}
		sub := sub
		eg.Go(func() error {
			// Slow subscribers drop messages rather than stalling the sync
			// loop.
			select {
			case sub.ch <- msg:
				return nil
			default:
				return fmt.Errorf("subscriber %s queue full, message dropped", sub.id)
			}
		})
	}
	return eg.Wait()
}

func (s *service) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()

	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub.ch)
	}
	s.closed = true
}
