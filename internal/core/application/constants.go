package application

const (
	// DefaultGapLimit is the number of consecutive unused derived addresses
	// after which discovery for an xpub is considered complete.
	DefaultGapLimit = 20
	// DefaultScanIncrement is the derivation batch size of a gap-limit scan.
	DefaultScanIncrement = 5
	// DefaultBootstrapIncrement is the derivation batch size of the one-time
	// bootstrap search.
	DefaultBootstrapIncrement = 10
	// DefaultBootstrapMaxAddresses caps the bootstrap search so an empty or
	// adversarial wallet cannot make the first scan unbounded.
	DefaultBootstrapMaxAddresses = 50
	// DefaultRecoveryDirectThreshold is the maximum block gap recovered by
	// scanning each missing block directly. Larger gaps fall back to
	// re-fetching every monitored address history.
	DefaultRecoveryDirectThreshold = 1000
	// DefaultMaxRetries bounds the attempts against the ledger data provider
	// before a sync cycle is abandoned.
	DefaultMaxRetries = 5
	// DefaultHistoryRefetchPerSecond throttles the per-address history
	// refetch of the large-gap recovery path.
	DefaultHistoryRefetchPerSecond = 5
)
