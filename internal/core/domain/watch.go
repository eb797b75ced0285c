package domain

import (
	"fmt"

	"github.com/blockwatch-network/blockwatch-daemon/pkg/hdwallet"
)

// MonitoredAddress is a user supplied plain address watched for coinbase
// payouts and/or balance.
type MonitoredAddress struct {
	Address string `json:"address"`
	Comment string `json:"comment"`
}

// Validate rejects malformed addresses at the boundary so they never enter
// the cache.
func (m MonitoredAddress) Validate(testnet bool) error {
	if len(m.Address) == 0 {
		return ErrInvalidAddressFormat
	}
	if err := hdwallet.ValidateAddress(m.Address, testnet); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAddressFormat, err)
	}
	return nil
}

// XpubWatch is a watched HD wallet extended public key. The script type of
// the derived addresses is determined by the key prefix.
type XpubWatch struct {
	Key     string `json:"key"`
	Comment string `json:"comment"`
}

// Validate rejects malformed or private extended keys at the boundary.
func (x XpubWatch) Validate() error {
	if _, err := hdwallet.ParseKey(x.Key); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidKeyFormat, err)
	}
	return nil
}

// DerivedAddress is produced by deterministic derivation from a watched
// xpub. Address is a pure function of (xpub, index) and never changes; Used
// is learned by querying history and only ever flips from false to true.
type DerivedAddress struct {
	Xpub    string `json:"xpub"`
	Index   uint32 `json:"index"`
	Address string `json:"address"`
	Used    bool   `json:"used"`
}

// MarkUsed flips the usage flag. The false->true transition is the only
// legal one, so marking an already used address is a no-op.
func (d *DerivedAddress) MarkUsed() {
	d.Used = true
}
