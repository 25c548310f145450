// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

package script

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// Render returns the address for a locking script on net. Recognized forms
// are P2PKH, P2SH and 20 or 32 byte witness programs of any version.
func Render(pkScript []byte, net *chaincfg.Params) (string, error) {
	var (
		addr btcutil.Address
		err  error
		s    = pkScript
	)

	switch {
	case len(s) == 25 && s[0] == txscript.OP_DUP &&
		s[1] == txscript.OP_HASH160 && s[2] == hashLen &&
		s[23] == txscript.OP_EQUALVERIFY &&
		s[24] == txscript.OP_CHECKSIG:

		addr, err = btcutil.NewAddressPubKeyHash(s[3:23], net)

	case len(s) == 23 && s[0] == txscript.OP_HASH160 &&
		s[1] == hashLen && s[22] == txscript.OP_EQUAL:

		addr, err = btcutil.NewAddressScriptHashFromHash(s[2:22], net)

	case len(s) == 22 && s[0] == txscript.OP_0 && s[1] == hashLen:
		addr, err = btcutil.NewAddressWitnessPubKeyHash(s[2:], net)

	case len(s) == 34 && s[0] == txscript.OP_0 && s[1] == witnessHashLen:
		addr, err = btcutil.NewAddressWitnessScriptHash(s[2:], net)

	case len(s) == 34 && s[0] == txscript.OP_1 && s[1] == witnessHashLen:
		addr, err = btcutil.NewAddressTaproot(s[2:], net)

	case len(s) == 34 && s[0] > txscript.OP_1 && s[0] <= txscript.OP_16 &&
		s[1] == witnessHashLen:

		return encodeSegwit(net.Bech32HRPSegwit, s[0]-txscript.OP_1+1,
			s[2:])

	default:
		return "", fmt.Errorf("%w: %x", ErrUnrecognizedScript, s)
	}
	if err != nil {
		return "", err
	}

	return addr.EncodeAddress(), nil
}

// encodeSegwit handles witness versions btcutil has no address type for.
// Everything above version 0 uses bech32m.
func encodeSegwit(hrp string, version byte, program []byte) (string,
	error) {

	converted, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", err
	}

	data := make([]byte, 0, len(converted)+1)
	data = append(data, version)
	data = append(data, converted...)

	return bech32.EncodeM(hrp, data)
}
