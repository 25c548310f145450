// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

// Package packet holds an in-memory PSBT and writes it out in either the
// version 0 or the version 2 layout.
package packet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/nydig/psbtfaker/keyring"
)

var (
	ErrUnknownVersion = errors.New("unsupported PSBT version")
	ErrMixedLayout    = errors.New("PSBT mixes version 0 and version 2 " +
		"fields")
	ErrCountMismatch = errors.New("map count does not match transaction")
	ErrDuplicateKey  = errors.New("duplicate key in PSBT map")
	ErrBadKey        = errors.New("malformed key in PSBT map")
	ErrSigned        = errors.New("unsigned transaction carries " +
		"signature data")
)

// Version selects the PSBT layout.
type Version uint32

const (
	V0 Version = 0
	V2 Version = 2
)

// ParseVersion accepts 0 or 2.
func ParseVersion(v uint32) (Version, error) {
	switch Version(v) {
	case V0, V2:
		return Version(v), nil
	}

	return 0, fmt.Errorf("%w: %d", ErrUnknownVersion, v)
}

// Utxo is the spent output an input carries: either the whole previous
// transaction or just the output. A nil Utxo means neither.
type Utxo interface {
	isUtxo()
}

// NonWitnessUtxo carries the whole funding transaction.
type NonWitnessUtxo struct {
	Tx *wire.MsgTx
}

// WitnessUtxo carries only the spent output.
type WitnessUtxo struct {
	TxOut *wire.TxOut
}

func (NonWitnessUtxo) isUtxo() {}
func (WitnessUtxo) isUtxo()    {}

// XPub is a global extended public key record.
type XPub struct {
	// Key is the 78 byte BIP32 serialization.
	Key    []byte
	Origin keyring.KeyOrigin
}

// GlobalV2 holds the transaction fields a version 2 PSBT carries in its
// global map.
type GlobalV2 struct {
	TxVersion        int32
	FallbackLockTime uint32
}

// InputV2 holds the per-input transaction fields of a version 2 PSBT.
type InputV2 struct {
	PrevTxID  chainhash.Hash
	PrevIndex uint32
	Sequence  uint32

	// RequiredLockTime is zero when the input has no locktime
	// requirement. Values below txscript.LockTimeThreshold are block
	// heights, the rest are timestamps.
	RequiredLockTime uint32
}

// OutputV2 holds the per-output transaction fields of a version 2 PSBT.
type OutputV2 struct {
	Amount   int64
	PkScript []byte
}

type Input struct {
	Utxo                   Utxo
	RedeemScript           []byte
	WitnessScript          []byte
	Bip32Derivation        []*psbt.Bip32Derivation
	TaprootBip32Derivation []*psbt.TaprootBip32Derivation

	V2 *InputV2
}

type Output struct {
	RedeemScript           []byte
	WitnessScript          []byte
	Bip32Derivation        []*psbt.Bip32Derivation
	TaprootBip32Derivation []*psbt.TaprootBip32Derivation

	V2 *OutputV2
}

// Packet is a PSBT. Exactly one of UnsignedTx (version 0) and V2 is set.
type Packet struct {
	Version    Version
	UnsignedTx *wire.MsgTx
	V2         *GlobalV2
	XPubs      []XPub
	Inputs     []Input
	Outputs    []Output
}

// New lays out tx as a PSBT of the given version. inputs and outputs hold
// the per-map metadata and must line up with tx. For version 2 the
// transaction fields are copied into the maps and tx itself is dropped.
func New(version Version, tx *wire.MsgTx, inputs []Input, outputs []Output,
	xpubs []XPub) (*Packet, error) {

	if len(inputs) != len(tx.TxIn) || len(outputs) != len(tx.TxOut) {
		return nil, fmt.Errorf("%w: %d/%d maps for %d/%d inputs/outputs",
			ErrCountMismatch, len(inputs), len(outputs),
			len(tx.TxIn), len(tx.TxOut))
	}

	p := &Packet{
		Version: version,
		XPubs:   xpubs,
		Inputs:  inputs,
		Outputs: outputs,
	}

	switch version {
	case V0:
		p.UnsignedTx = tx

	case V2:
		p.V2 = &GlobalV2{
			TxVersion:        tx.Version,
			FallbackLockTime: tx.LockTime,
		}
		for i, in := range tx.TxIn {
			p.Inputs[i].V2 = &InputV2{
				PrevTxID:         in.PreviousOutPoint.Hash,
				PrevIndex:        in.PreviousOutPoint.Index,
				Sequence:         in.Sequence,
				RequiredLockTime: tx.LockTime,
			}
		}
		for i, out := range tx.TxOut {
			p.Outputs[i].V2 = &OutputV2{
				Amount:   out.Value,
				PkScript: out.PkScript,
			}
		}

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// Validate checks that the packet uses a single layout consistently and
// that every map is well formed.
func (p *Packet) Validate() error {
	switch p.Version {
	case V0:
		if p.UnsignedTx == nil || p.V2 != nil {
			return fmt.Errorf("%w: version 0 needs only an unsigned "+
				"transaction", ErrMixedLayout)
		}
		if len(p.Inputs) != len(p.UnsignedTx.TxIn) ||
			len(p.Outputs) != len(p.UnsignedTx.TxOut) {

			return ErrCountMismatch
		}
		for _, in := range p.UnsignedTx.TxIn {
			if len(in.SignatureScript) != 0 || len(in.Witness) != 0 {
				return ErrSigned
			}
		}

	case V2:
		if p.UnsignedTx != nil || p.V2 == nil {
			return fmt.Errorf("%w: version 2 has no unsigned "+
				"transaction", ErrMixedLayout)
		}

	default:
		return fmt.Errorf("%w: %d", ErrUnknownVersion, p.Version)
	}

	v2 := p.Version == V2
	for i, in := range p.Inputs {
		if (in.V2 != nil) != v2 {
			return fmt.Errorf("%w: input %d", ErrMixedLayout, i)
		}
		if err := checkDerivations(in.Bip32Derivation,
			in.TaprootBip32Derivation); err != nil {

			return fmt.Errorf("input %d: %w", i, err)
		}
	}
	for i, out := range p.Outputs {
		if (out.V2 != nil) != v2 {
			return fmt.Errorf("%w: output %d", ErrMixedLayout, i)
		}
		if err := checkDerivations(out.Bip32Derivation,
			out.TaprootBip32Derivation); err != nil {

			return fmt.Errorf("output %d: %w", i, err)
		}
	}

	seen := make(map[string]struct{}, len(p.XPubs))
	for _, xpub := range p.XPubs {
		if len(xpub.Key) != 78 {
			return fmt.Errorf("%w: xpub of %d bytes", ErrBadKey,
				len(xpub.Key))
		}
		if _, ok := seen[string(xpub.Key)]; ok {
			return fmt.Errorf("%w: xpub %x", ErrDuplicateKey,
				xpub.Key)
		}
		seen[string(xpub.Key)] = struct{}{}
	}

	return nil
}

// checkDerivations enforces one record per key and the key sizes.
func checkDerivations(derivs []*psbt.Bip32Derivation,
	tapDerivs []*psbt.TaprootBip32Derivation) error {

	seen := make(map[string]struct{}, len(derivs)+len(tapDerivs))

	for _, d := range derivs {
		if len(d.PubKey) != 33 {
			return fmt.Errorf("%w: pubkey of %d bytes", ErrBadKey,
				len(d.PubKey))
		}
		if _, ok := seen[string(d.PubKey)]; ok {
			return fmt.Errorf("%w: %x", ErrDuplicateKey, d.PubKey)
		}
		seen[string(d.PubKey)] = struct{}{}
	}

	for _, d := range tapDerivs {
		if len(d.XOnlyPubKey) != 32 {
			return fmt.Errorf("%w: x-only key of %d bytes",
				ErrBadKey, len(d.XOnlyPubKey))
		}
		if _, ok := seen[string(d.XOnlyPubKey)]; ok {
			return fmt.Errorf("%w: %x", ErrDuplicateKey,
				d.XOnlyPubKey)
		}
		seen[string(d.XOnlyPubKey)] = struct{}{}
	}

	return nil
}

// isHeightLockTime reports whether lockTime counts blocks.
func isHeightLockTime(lockTime uint32) bool {
	return lockTime < txscript.LockTimeThreshold
}
