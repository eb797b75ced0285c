package domain

import "errors"

var (
	// ErrInvalidAddressFormat is thrown when adding a malformed address to
	// the monitored set.
	ErrInvalidAddressFormat = errors.New("invalid address format")
	// ErrInvalidKeyFormat is thrown when adding a malformed extended public
	// key to the monitored set.
	ErrInvalidKeyFormat = errors.New("invalid extended public key format")
	// ErrSyncedHeightDecreased is thrown when an update would move the synced
	// height of an entry backwards.
	ErrSyncedHeightDecreased = errors.New("synced height must never decrease")
	// ErrCacheNotFound is returned by a cache store when no document exists
	// for the requested cache type.
	ErrCacheNotFound = errors.New("cache document not found")
	// ErrCacheVersionUnknown is returned when a persisted document carries a
	// version this build does not understand.
	ErrCacheVersionUnknown = errors.New("unknown cache document version")
	// ErrAddressNotWatched ...
	ErrAddressNotWatched = errors.New("address is not in the monitored set")
)
