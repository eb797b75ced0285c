package hdwallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

var (
	// ErrInvalidKeyFormat is returned when parsing a string that is not a
	// supported extended public key.
	ErrInvalidKeyFormat = errors.New("invalid extended public key format")
	// ErrPrivateKeyNotAllowed is returned when an extended private key is
	// given where only public keys are accepted.
	ErrPrivateKeyNotAllowed = errors.New("extended private keys are not supported")
)

// ScriptType is the script encoding used for the addresses derived from an
// extended public key.
type ScriptType int

const (
	// P2PKH is the legacy pay-to-pubkey-hash encoding (xpub/tpub).
	P2PKH ScriptType = iota
	// P2SHP2WPKH is the script-hash wrapped segwit encoding (ypub/upub).
	P2SHP2WPKH
	// P2WPKH is the native segwit encoding (zpub/vpub).
	P2WPKH
)

func (t ScriptType) String() string {
	switch t {
	case P2PKH:
		return "p2pkh"
	case P2SHP2WPKH:
		return "p2sh-p2wpkh"
	case P2WPKH:
		return "p2wpkh"
	default:
		return "unknown"
	}
}

// scriptTypeByPrefix maps the human readable key prefix to the script
// encoding of the derived addresses and the network the key belongs to.
var scriptTypeByPrefix = map[string]struct {
	scriptType ScriptType
	params     *chaincfg.Params
}{
	"xpub": {P2PKH, &chaincfg.MainNetParams},
	"ypub": {P2SHP2WPKH, &chaincfg.MainNetParams},
	"zpub": {P2WPKH, &chaincfg.MainNetParams},
	"tpub": {P2PKH, &chaincfg.TestNet3Params},
	"upub": {P2SHP2WPKH, &chaincfg.TestNet3Params},
	"vpub": {P2WPKH, &chaincfg.TestNet3Params},
}

// ExtendedPubKey wraps a parsed BIP32 account-level public key along with
// the script encoding mandated by its prefix.
type ExtendedPubKey struct {
	key        *hdkeychain.ExtendedKey
	scriptType ScriptType
	params     *chaincfg.Params
	raw        string
}

// ParseKey parses an extended public key in any of the supported encodings
// (xpub, ypub, zpub and their testnet variants). The script encoding of the
// derived addresses is selected by the key prefix.
func ParseKey(key string) (*ExtendedPubKey, error) {
	trimmed := strings.TrimSpace(key)
	if len(trimmed) < 4 {
		return nil, ErrInvalidKeyFormat
	}

	prefix := strings.ToLower(trimmed[:4])
	if strings.HasSuffix(prefix, "prv") {
		return nil, ErrPrivateKeyNotAllowed
	}

	info, ok := scriptTypeByPrefix[prefix]
	if !ok {
		return nil, fmt.Errorf("%w: unknown prefix %s", ErrInvalidKeyFormat, prefix)
	}

	xkey, err := hdkeychain.NewKeyFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKeyFormat, err)
	}
	if xkey.IsPrivate() {
		return nil, ErrPrivateKeyNotAllowed
	}

	return &ExtendedPubKey{
		key:        xkey,
		scriptType: info.scriptType,
		params:     info.params,
		raw:        trimmed,
	}, nil
}

// String returns the key in the same encoding it was parsed from.
func (k *ExtendedPubKey) String() string {
	return k.raw
}

// ScriptType returns the script encoding of the derived addresses.
func (k *ExtendedPubKey) ScriptType() ScriptType {
	return k.scriptType
}

// DeriveAddress derives the receiving address at the external chain path
// 0/index. The derivation is pure, the same (key, index) pair always yields
// the same address.
func (k *ExtendedPubKey) DeriveAddress(index uint32) (string, error) {
	externalChain, err := k.key.Derive(0)
	if err != nil {
		return "", err
	}
	child, err := externalChain.Derive(index)
	if err != nil {
		return "", err
	}

	pubKey, err := child.ECPubKey()
	if err != nil {
		return "", err
	}
	pubKeyHash := btcutil.Hash160(pubKey.SerializeCompressed())

	var addr btcutil.Address
	switch k.scriptType {
	case P2PKH:
		addr, err = btcutil.NewAddressPubKeyHash(pubKeyHash, k.params)
		if err != nil {
			return "", err
		}
	case P2SHP2WPKH:
		witnessAddr, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, k.params)
		if err != nil {
			return "", err
		}
		script, err := txscript.PayToAddrScript(witnessAddr)
		if err != nil {
			return "", err
		}
		addr, err = btcutil.NewAddressScriptHash(script, k.params)
		if err != nil {
			return "", err
		}
	case P2WPKH:
		addr, err = btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, k.params)
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unsupported script type %d", k.scriptType)
	}

	return addr.EncodeAddress(), nil
}

// ValidateAddress checks that the given string is a well formed address for
// the selected network.
func ValidateAddress(address string, testnet bool) error {
	params := &chaincfg.MainNetParams
	if testnet {
		params = &chaincfg.TestNet3Params
	}
	if _, err := btcutil.DecodeAddress(address, params); err != nil {
		return fmt.Errorf("invalid address format: %s", err)
	}
	return nil
}
