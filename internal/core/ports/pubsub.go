package ports

// Topics published by the sync loop for UI and notification collaborators.
const (
	BalanceUpdatedTopic     = "balance_updated"
	BlockRewardUpdatedTopic = "block_reward_updated"
	SyncCompletedTopic      = "sync_completed"
	// AnyTopic subscribes to every published message.
	AnyTopic = "*"
)

// PubSub is the in-process event broker decoupling the sync loop from the
// collaborators relaying updates to browsers. The relay transport itself is
// not part of this daemon.
type PubSub interface {
	// Subscribe registers a subscriber for a topic, returning its id and the
	// channel messages are delivered on.
	Subscribe(topic string) (id string, ch chan Message)
	// Unsubscribe removes a subscriber. Its channel is closed.
	Unsubscribe(id string) error
	// Publish delivers the message to every subscriber of the topic.
	Publish(topic, message string) error
	// Close tears down all subscriptions.
	Close()
}

// Message is a published event along with its topic.
type Message struct {
	Topic   string
	Payload string
}
