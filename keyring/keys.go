// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

package keyring

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// serializedKeyLen is the length of a BIP32 extended key without the
// base58 checksum.
const serializedKeyLen = 78

// SimulatorSeed is the fixed seed used when no real master key is wanted.
// Keys derived from it are recorded with ZeroFingerprint.
var SimulatorSeed = bytes.Repeat([]byte{'1'}, 32)

// ExtendedKey wraps a BIP32 node.
type ExtendedKey struct {
	key *hdkeychain.ExtendedKey
}

// ParseExtendedKey parses a base58 xpub/tpub/xprv/tprv string.
func ParseExtendedKey(s string) (*ExtendedKey, error) {
	key, err := hdkeychain.NewKeyFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadExtendedKey, err)
	}

	return &ExtendedKey{key: key}, nil
}

// NewMaster creates a master private key from seed.
func NewMaster(seed []byte, net *chaincfg.Params) (*ExtendedKey, error) {
	key, err := hdkeychain.NewMaster(seed, net)
	if err != nil {
		return nil, err
	}

	return &ExtendedKey{key: key}, nil
}

// SimulatorKey returns the master key built from SimulatorSeed.
func SimulatorKey(net *chaincfg.Params) (*ExtendedKey, error) {
	return NewMaster(SimulatorSeed, net)
}

// IsPrivate reports whether hardened children can be derived.
func (k *ExtendedKey) IsPrivate() bool {
	return k.key.IsPrivate()
}

// Derive walks path from this key. Hardened steps fail with
// ErrHardenedFromPublic on public-only keys.
func (k *ExtendedKey) Derive(path DerivationPath) (*ExtendedKey, error) {
	key := k.key

	for i, idx := range path {
		if idx >= hdkeychain.HardenedKeyStart && !key.IsPrivate() {
			return nil, fmt.Errorf("%w: step %d of %v",
				ErrHardenedFromPublic, i, path)
		}

		child, err := key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("error deriving step %d of %v: %w",
				i, path, err)
		}
		key = child
	}

	return &ExtendedKey{key: key}, nil
}

// PubKeyBytes returns the 33 byte compressed public key.
func (k *ExtendedKey) PubKeyBytes() ([]byte, error) {
	pubKey, err := k.key.ECPubKey()
	if err != nil {
		return nil, err
	}

	return pubKey.SerializeCompressed(), nil
}

// XOnlyPubKey returns the 32 byte BIP340 public key.
func (k *ExtendedKey) XOnlyPubKey() ([]byte, error) {
	pubKey, err := k.key.ECPubKey()
	if err != nil {
		return nil, err
	}

	return schnorr.SerializePubKey(pubKey), nil
}

// Hash160 returns RIPEMD160(SHA256(compressed pubkey)).
func (k *ExtendedKey) Hash160() ([]byte, error) {
	pubKey, err := k.PubKeyBytes()
	if err != nil {
		return nil, err
	}

	return btcutil.Hash160(pubKey), nil
}

// Fingerprint returns the first four bytes of Hash160.
func (k *ExtendedKey) Fingerprint() (Fingerprint, error) {
	var fp Fingerprint

	h, err := k.Hash160()
	if err != nil {
		return fp, err
	}
	copy(fp[:], h)

	return fp, nil
}

// Neuter returns the public version of the key.
func (k *ExtendedKey) Neuter() (*ExtendedKey, error) {
	key, err := k.key.Neuter()
	if err != nil {
		return nil, err
	}

	return &ExtendedKey{key: key}, nil
}

// SerializePublic returns the 78 byte BIP32 serialization of the public
// key, as used for PSBT global xpub records.
func (k *ExtendedKey) SerializePublic() ([]byte, error) {
	pub, err := k.Neuter()
	if err != nil {
		return nil, err
	}

	raw := base58.Decode(pub.String())
	if len(raw) < serializedKeyLen {
		return nil, fmt.Errorf("%w: short serialization",
			ErrBadExtendedKey)
	}

	return raw[:serializedKeyLen], nil
}

func (k *ExtendedKey) String() string {
	return k.key.String()
}
