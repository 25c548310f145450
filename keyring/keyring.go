// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

package keyring

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

const (
	// ExternalBranch holds receive keys.
	ExternalBranch uint32 = 0

	// ChangeBranch holds change keys.
	ChangeBranch uint32 = 1

	// DefaultAccount is the only account keys are derived for.
	DefaultAccount uint32 = 0
)

// KeyRing derives single-signer keys below a master key using the
// purpose'/coin'/account'/branch/index layout.
type KeyRing struct {
	master      *ExtendedKey
	fingerprint Fingerprint
	coin        uint32
}

// NewKeyRing returns a KeyRing which records fp as the master fingerprint of
// every key it derives.
func NewKeyRing(master *ExtendedKey, fp Fingerprint, coin uint32) *KeyRing {
	return &KeyRing{
		master:      master,
		fingerprint: fp,
		coin:        coin,
	}
}

// Fingerprint returns the fingerprint recorded in key origins.
func (k *KeyRing) Fingerprint() Fingerprint {
	return k.fingerprint
}

// AccountPath returns purpose'/coin'/account'.
func (k *KeyRing) AccountPath(purpose uint32) DerivationPath {
	return DerivationPath{
		purpose + hdkeychain.HardenedKeyStart,
		k.coin + hdkeychain.HardenedKeyStart,
		DefaultAccount + hdkeychain.HardenedKeyStart,
	}
}

// DeriveKey derives the key at branch/index of the purpose account. If the
// master key is public-only the hardened account prefix cannot be walked,
// so the key is derived as branch/index directly below the master and the
// origin omits the prefix.
func (k *KeyRing) DeriveKey(purpose, branch, index uint32) (*ExtendedKey,
	KeyOrigin, error) {

	path := k.AccountPath(purpose).Child(branch, index)

	key, err := k.master.Derive(path)
	if errors.Is(err, ErrHardenedFromPublic) {
		log.Debugw("falling back to non-hardened derivation",
			"path", path.String())

		path = DerivationPath{branch, index}
		key, err = k.master.Derive(path)
	}
	if err != nil {
		return nil, KeyOrigin{}, err
	}

	return key, KeyOrigin{Fingerprint: k.fingerprint, Path: path}, nil
}

// AccountXPub returns the public key the derived keys hang off and its
// origin: the account key when the master is private, the master itself
// otherwise.
func (k *KeyRing) AccountXPub(purpose uint32) (*ExtendedKey, KeyOrigin,
	error) {

	if !k.master.IsPrivate() {
		return k.master, KeyOrigin{Fingerprint: k.fingerprint}, nil
	}

	path := k.AccountPath(purpose)
	account, err := k.master.Derive(path)
	if err != nil {
		return nil, KeyOrigin{}, err
	}

	pub, err := account.Neuter()
	if err != nil {
		return nil, KeyOrigin{}, err
	}

	return pub, KeyOrigin{Fingerprint: k.fingerprint, Path: path}, nil
}
