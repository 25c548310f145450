// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

package policy

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/nydig/psbtfaker/keyring"
	"github.com/nydig/psbtfaker/script"
)

// MaxCosigners is the most keys a bare CHECKMULTISIG policy may name.
const MaxCosigners = 15

// Cosigner is one key of a multisig wallet: the extended public key at
// Path below the master key identified by Fingerprint.
type Cosigner struct {
	Fingerprint keyring.Fingerprint
	Path        keyring.DerivationPath
	Key         *keyring.ExtendedKey
}

// Multisig describes an M-of-N wallet.
type Multisig struct {
	Name      string
	M         int
	N         int
	Format    script.Style
	Cosigners []Cosigner
}

// New validates and returns a Multisig.
func New(name string, m, n int, format script.Style,
	cosigners []Cosigner) (*Multisig, error) {

	ms := &Multisig{
		Name:      name,
		M:         m,
		N:         n,
		Format:    format,
		Cosigners: cosigners,
	}

	if err := ms.Validate(); err != nil {
		return nil, err
	}

	return ms, nil
}

// Validate checks the policy numbers, the format and the cosigner count.
func (ms *Multisig) Validate() error {
	if ms.M < 1 || ms.M > ms.N || ms.N > MaxCosigners {
		return fmt.Errorf("%w: got %d of %d", ErrPolicyRange, ms.M,
			ms.N)
	}

	if !ms.Format.IsMultisig() {
		return fmt.Errorf("%w: %v", ErrBadFormat, ms.Format)
	}

	if len(ms.Cosigners) != ms.N {
		return fmt.Errorf("%w: %d keys for %d of %d", ErrCosignerCount,
			len(ms.Cosigners), ms.M, ms.N)
	}

	return nil
}

type cosignerKey struct {
	pubKey []byte
	origin keyring.KeyOrigin
}

// Scripts derives every cosigner key at branch/index and returns the
// scripts for the resulting multisig wrapped in style, along with one
// key-origin record per key in script order. With bip67 set the keys are
// sorted lexicographically, otherwise they keep declaration order.
func (ms *Multisig) Scripts(style script.Style, branch, index uint32,
	bip67 bool) (*script.Scripts, []*psbt.Bip32Derivation, error) {

	keys := make([]cosignerKey, 0, len(ms.Cosigners))
	for i, cosigner := range ms.Cosigners {
		child, err := cosigner.Key.Derive(keyring.DerivationPath{
			branch, index,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("cosigner %d (%v): %w", i,
				cosigner.Fingerprint, err)
		}

		pubKey, err := child.PubKeyBytes()
		if err != nil {
			return nil, nil, err
		}

		keys = append(keys, cosignerKey{
			pubKey: pubKey,
			origin: keyring.KeyOrigin{
				Fingerprint: cosigner.Fingerprint,
				Path:        cosigner.Path.Child(branch, index),
			},
		})
	}

	if bip67 {
		sort.SliceStable(keys, func(i, j int) bool {
			return bytes.Compare(keys[i].pubKey, keys[j].pubKey) < 0
		})
	}

	pubKeys := make([][]byte, 0, len(keys))
	derivations := make([]*psbt.Bip32Derivation, 0, len(keys))
	for _, key := range keys {
		pubKeys = append(pubKeys, key.pubKey)
		derivations = append(derivations, key.origin.Derivation(key.pubKey))
	}

	witnessScript, err := script.MultisigScript(ms.M, pubKeys)
	if err != nil {
		return nil, nil, err
	}

	scripts, err := script.ForMultisig(style, witnessScript)
	if err != nil {
		return nil, nil, err
	}

	log.Debugw("Built multisig scripts", "style", style, "branch",
		branch, "index", index, "pkScript", fmt.Sprintf("%x",
			scripts.PkScript))

	return scripts, derivations, nil
}
