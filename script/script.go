// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

// Package script builds output scripts for the supported address styles and
// renders them as addresses.
package script

import (
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/nydig/psbtfaker/wirebuf"
)

const (
	hashLen        = 20
	witnessHashLen = 32
)

// Scripts holds a locking script and whatever a spender must reveal.
type Scripts struct {
	PkScript      []byte
	RedeemScript  []byte
	WitnessScript []byte
}

func p2pkh(h []byte) ([]byte, error) {
	return wirebuf.New().
		Op(txscript.OP_DUP).
		Op(txscript.OP_HASH160).
		PushData(h).
		Op(txscript.OP_EQUALVERIFY).
		Op(txscript.OP_CHECKSIG).
		Bytes()
}

func p2sh(h []byte) ([]byte, error) {
	return wirebuf.New().
		Op(txscript.OP_HASH160).
		PushData(h).
		Op(txscript.OP_EQUAL).
		Bytes()
}

func witnessProgram(version byte, program []byte) ([]byte, error) {
	w := wirebuf.New()
	if version == 0 {
		w.Op(txscript.OP_0)
	} else {
		w.SmallInt(int(version))
	}

	return w.PushData(program).Bytes()
}

// ForKey builds the scripts paying to a single compressed public key.
// P2TR uses the BIP86 output key, committing to no script tree.
func ForKey(style Style, pubKey []byte) (*Scripts, error) {
	switch style {
	case P2PKH:
		pkScript, err := p2pkh(btcutil.Hash160(pubKey))
		if err != nil {
			return nil, err
		}
		return &Scripts{PkScript: pkScript}, nil

	case P2WPKH:
		pkScript, err := witnessProgram(0, btcutil.Hash160(pubKey))
		if err != nil {
			return nil, err
		}
		return &Scripts{PkScript: pkScript}, nil

	case P2SHP2WPKH:
		redeem, err := witnessProgram(0, btcutil.Hash160(pubKey))
		if err != nil {
			return nil, err
		}
		pkScript, err := p2sh(btcutil.Hash160(redeem))
		if err != nil {
			return nil, err
		}
		return &Scripts{PkScript: pkScript, RedeemScript: redeem}, nil

	case P2TR:
		internalKey, err := btcec.ParsePubKey(pubKey)
		if err != nil {
			return nil, err
		}
		outputKey := txscript.ComputeTaprootKeyNoScript(internalKey)

		pkScript, err := witnessProgram(
			1, schnorr.SerializePubKey(outputKey),
		)
		if err != nil {
			return nil, err
		}
		return &Scripts{PkScript: pkScript}, nil
	}

	return nil, fmt.Errorf("%w: %v cannot pay to a single key",
		ErrUnsupportedStyle, style)
}

// ForMultisig wraps a multisig script according to style.
func ForMultisig(style Style, ms []byte) (*Scripts, error) {
	switch style {
	case P2SH:
		pkScript, err := p2sh(btcutil.Hash160(ms))
		if err != nil {
			return nil, err
		}
		return &Scripts{PkScript: pkScript, RedeemScript: ms}, nil

	case P2WSH:
		pkScript, err := witnessProgram(0, chainhash.HashB(ms))
		if err != nil {
			return nil, err
		}
		return &Scripts{PkScript: pkScript, WitnessScript: ms}, nil

	case P2SHP2WSH:
		redeem, err := witnessProgram(0, chainhash.HashB(ms))
		if err != nil {
			return nil, err
		}
		pkScript, err := p2sh(btcutil.Hash160(redeem))
		if err != nil {
			return nil, err
		}
		return &Scripts{
			PkScript:      pkScript,
			RedeemScript:  redeem,
			WitnessScript: ms,
		}, nil
	}

	return nil, fmt.Errorf("%w: %v cannot wrap a multisig script",
		ErrUnsupportedStyle, style)
}

// Random returns a well formed locking script of the given style whose hash
// or program is filled from r. Nobody holds a key for it.
func Random(style Style, r io.Reader) ([]byte, error) {
	size := hashLen
	switch style {
	case P2WSH, P2TR:
		size = witnessHashLen
	}

	program := make([]byte, size)
	if _, err := io.ReadFull(r, program); err != nil {
		return nil, err
	}

	switch style {
	case P2PKH:
		return p2pkh(program)

	case P2SH, P2SHP2WPKH, P2SHP2WSH:
		return p2sh(program)

	case P2WPKH, P2WSH:
		return witnessProgram(0, program)

	case P2TR:
		return witnessProgram(1, program)
	}

	return nil, fmt.Errorf("%w: %v", ErrUnsupportedStyle, style)
}

// MultisigScript builds OP_m <key>... OP_n OP_CHECKMULTISIG with the keys
// in the order given.
func MultisigScript(m int, pubKeys [][]byte) ([]byte, error) {
	n := len(pubKeys)
	if m < 1 || m > n {
		return nil, fmt.Errorf("%w: %d of %d", ErrBadMultisig, m, n)
	}

	w := wirebuf.New().SmallInt(m)
	for _, pubKey := range pubKeys {
		w.PushData(pubKey)
	}

	return w.SmallInt(n).Op(txscript.OP_CHECKMULTISIG).Bytes()
}

// NullData builds an OP_RETURN script carrying data.
func NullData(data []byte) ([]byte, error) {
	return wirebuf.New().Op(txscript.OP_RETURN).PushData(data).Bytes()
}
