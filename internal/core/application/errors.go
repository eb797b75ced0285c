package application

import "errors"

var (
	// ErrRetriesExhausted is returned once the bounded retry budget against
	// the ledger data provider is spent. The current cycle is abandoned and
	// retried on the next scheduled tick.
	ErrRetriesExhausted = errors.New("retry attempts exhausted")
	// ErrXpubNotWatched ...
	ErrXpubNotWatched = errors.New("extended public key is not in the monitored set")
)
