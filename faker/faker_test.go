// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

package faker

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/nydig/psbtfaker/keyring"
	"github.com/nydig/psbtfaker/packet"
	"github.com/nydig/psbtfaker/policy"
	"github.com/nydig/psbtfaker/script"
	"github.com/nydig/psbtfaker/txbuilder"
	"github.com/stretchr/testify/require"
)

const h = hdkeychain.HardenedKeyStart

var testNet = &chaincfg.TestNet3Params

func baseParams() *Params {
	return &Params{
		NumInputs:     2,
		NumOutputs:    2,
		ChangeOutputs: []int{1},
		InputAmount:   100000,
		Fee:           1000,
		InputStyle:    script.P2WPKH,
		OutputStyles:  []script.Style{script.P2WPKH},
		Net:           testNet,
		Version:       packet.V0,
		BIP67:         true,
		Rand:          rand.New(rand.NewSource(1)),
	}
}

func mustParsePsbt(t *testing.T, raw []byte) *psbt.Packet {
	t.Helper()

	parsed, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	require.NoError(t, err)

	return parsed
}

func testMaster(t *testing.T, seedByte byte) *keyring.ExtendedKey {
	t.Helper()

	master, err := keyring.NewMaster(
		bytes.Repeat([]byte{seedByte}, 32), testNet,
	)
	require.NoError(t, err)

	return master
}

func TestFakeTxnSegwit(t *testing.T) {
	t.Parallel()

	master := testMaster(t, 9)
	fp, err := master.Fingerprint()
	require.NoError(t, err)

	params := baseParams()
	params.MasterKey = master

	result, err := FakeTxn(params)
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(200000), result.TotalIn)
	require.Equal(t, btcutil.Amount(1000), result.Fee)

	parsed := mustParsePsbt(t, result.Psbt)
	tx := parsed.UnsignedTx
	require.Equal(t, tx.TxHash(), result.Txid)
	require.Len(t, tx.TxIn, 2)
	require.Len(t, tx.TxOut, 2)
	require.Zero(t, tx.LockTime)

	for i, in := range parsed.Inputs {
		require.Nil(t, in.NonWitnessUtxo)
		require.Equal(t, int64(100000), in.WitnessUtxo.Value)
		require.Equal(t, txscript.WitnessV0PubKeyHashTy,
			txscript.GetScriptClass(in.WitnessUtxo.PkScript))

		funding := txbuilder.FundingTx(in.WitnessUtxo.PkScript, 100000)
		require.Equal(t, funding.TxHash(),
			tx.TxIn[i].PreviousOutPoint.Hash)
		require.Zero(t, tx.TxIn[i].PreviousOutPoint.Index)
		require.Equal(t, txbuilder.SequenceFinal, tx.TxIn[i].Sequence)

		require.Len(t, in.Bip32Derivation, 1)
		deriv := in.Bip32Derivation[0]
		require.Equal(t, fp.Uint32(), deriv.MasterKeyFingerprint)
		require.Equal(t, []uint32{84 + h, 1 + h, h, 0, uint32(i)},
			deriv.Bip32Path)
		require.Equal(t, btcutil.Hash160(deriv.PubKey),
			in.WitnessUtxo.PkScript[2:])
	}

	for _, out := range tx.TxOut {
		require.Equal(t, int64(99500), out.Value)
	}
	require.Empty(t, parsed.Outputs[0].Bip32Derivation)
	require.Len(t, parsed.Outputs[1].Bip32Derivation, 1)
	require.Equal(t, []uint32{84 + h, 1 + h, h, 1, 1},
		parsed.Outputs[1].Bip32Derivation[0].Bip32Path)

	require.Len(t, result.Outputs, 2)
	require.False(t, result.Outputs[0].IsChange)
	require.True(t, result.Outputs[1].IsChange)
	for i, summary := range result.Outputs {
		require.Equal(t, btcutil.Amount(99500), summary.Amount)

		addr, err := btcutil.DecodeAddress(summary.Address, testNet)
		require.NoError(t, err)
		pkScript, err := txscript.PayToAddrScript(addr)
		require.NoError(t, err)
		require.Equal(t, tx.TxOut[i].PkScript, pkScript)
	}
}

func TestFakeTxnStyles(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		style      script.Style
		purpose    uint32
		nonWitness bool
		redeem     bool
		taproot    bool
	}{
		{
			name:       "legacy",
			style:      script.P2PKH,
			purpose:    44,
			nonWitness: true,
		},
		{
			name:    "wrapped",
			style:   script.P2SHP2WPKH,
			purpose: 49,
			redeem:  true,
		},
		{
			name:    "taproot",
			style:   script.P2TR,
			purpose: 86,
			taproot: true,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			params := baseParams()
			params.InputStyle = testCase.style
			params.OutputStyles = nil
			params.ZeroFingerprint = true

			result, err := FakeTxn(params)
			require.NoError(t, err)

			parsed := mustParsePsbt(t, result.Psbt)
			for i, in := range parsed.Inputs {
				if testCase.nonWitness {
					require.NotNil(t, in.NonWitnessUtxo)
					require.Nil(t, in.WitnessUtxo)
				} else {
					require.Nil(t, in.NonWitnessUtxo)
					require.NotNil(t, in.WitnessUtxo)
				}

				if testCase.redeem {
					require.Equal(t, []byte{0x00, 0x14},
						in.RedeemScript[:2])
				} else {
					require.Nil(t, in.RedeemScript)
				}

				path := []uint32{testCase.purpose + h, 1 + h, h,
					0, uint32(i)}
				if testCase.taproot {
					require.Empty(t, in.Bip32Derivation)
					require.Len(t, in.TaprootBip32Derivation, 1)
					deriv := in.TaprootBip32Derivation[0]
					require.Zero(t, deriv.MasterKeyFingerprint)
					require.Equal(t, path, deriv.Bip32Path)
					continue
				}

				require.Len(t, in.Bip32Derivation, 1)
				deriv := in.Bip32Derivation[0]
				require.Zero(t, deriv.MasterKeyFingerprint)
				require.Equal(t, path, deriv.Bip32Path)
			}

			// Change follows the input style.
			change := parsed.Outputs[1]
			if testCase.taproot {
				require.Len(t, change.TaprootBip32Derivation, 1)
			} else {
				require.Len(t, change.Bip32Derivation, 1)
			}
			if testCase.redeem {
				require.NotNil(t, change.RedeemScript)
			}
		})
	}
}

func TestFakeTxnPartial(t *testing.T) {
	t.Parallel()

	params := baseParams()
	params.Partial = true
	params.ZeroFingerprint = true

	result, err := FakeTxn(params)
	require.NoError(t, err)

	parsed := mustParsePsbt(t, result.Psbt)
	require.Equal(t, keyring.PartialFingerprint.Uint32(),
		parsed.Inputs[0].Bip32Derivation[0].MasterKeyFingerprint)
	require.Zero(t,
		parsed.Inputs[1].Bip32Derivation[0].MasterKeyFingerprint)
}

func TestFakeTxnPublicMaster(t *testing.T) {
	t.Parallel()

	xpub, err := testMaster(t, 3).Neuter()
	require.NoError(t, err)
	fp, err := xpub.Fingerprint()
	require.NoError(t, err)

	params := baseParams()
	params.MasterKey = xpub
	params.IncludeXPubs = true

	result, err := FakeTxn(params)
	require.NoError(t, err)

	parsed := mustParsePsbt(t, result.Psbt)
	for i, in := range parsed.Inputs {
		deriv := in.Bip32Derivation[0]
		require.Equal(t, fp.Uint32(), deriv.MasterKeyFingerprint)
		require.Equal(t, []uint32{0, uint32(i)}, deriv.Bip32Path)
	}
	require.Equal(t, []uint32{1, 1},
		parsed.Outputs[1].Bip32Derivation[0].Bip32Path)

	require.Len(t, result.Packet.XPubs, 1)
	raw, err := xpub.SerializePublic()
	require.NoError(t, err)
	require.Equal(t, raw, result.Packet.XPubs[0].Key)
	require.Equal(t, fp, result.Packet.XPubs[0].Origin.Fingerprint)
}

func TestFakeTxnLockTimeAndNullData(t *testing.T) {
	t.Parallel()

	params := baseParams()
	params.LockTime = 800000
	params.NullData = []NullData{{Amount: 0, Data: []byte("fake")}}

	result, err := FakeTxn(params)
	require.NoError(t, err)

	parsed := mustParsePsbt(t, result.Psbt)
	tx := parsed.UnsignedTx
	require.Equal(t, uint32(800000), tx.LockTime)
	require.Equal(t, txbuilder.SequenceLockTime, tx.TxIn[0].Sequence)
	require.Equal(t, txbuilder.SequenceFinal, tx.TxIn[1].Sequence)

	require.Len(t, tx.TxOut, 3)
	require.Equal(t, txscript.NullDataTy,
		txscript.GetScriptClass(tx.TxOut[2].PkScript))
	require.Len(t, result.Outputs, 3)
	require.Equal(t, []byte("fake"), result.Outputs[2].NullData)
	require.Empty(t, result.Outputs[2].Address)

	params = baseParams()
	params.Sequences = []uint32{5, 6}
	params.LockTime = 800000
	result, err = FakeTxn(params)
	require.NoError(t, err)
	tx = mustParsePsbt(t, result.Psbt).UnsignedTx
	require.Equal(t, uint32(5), tx.TxIn[0].Sequence)
	require.Equal(t, uint32(6), tx.TxIn[1].Sequence)
}

func TestFakeTxnValueConservation(t *testing.T) {
	t.Parallel()

	for numOuts := 1; numOuts <= 7; numOuts++ {
		params := baseParams()
		params.NumInputs = 3
		params.NumOutputs = numOuts
		params.ChangeOutputs = nil
		params.Fee = 1234

		result, err := FakeTxn(params)
		require.NoError(t, err)

		var sum btcutil.Amount
		for _, out := range result.Outputs {
			sum += out.Amount
		}
		drift := result.TotalIn - result.Fee - sum
		require.GreaterOrEqual(t, drift, btcutil.Amount(0))
		require.Less(t, drift, btcutil.Amount(numOuts))
	}
}

func TestFakeTxnV2(t *testing.T) {
	t.Parallel()

	params := baseParams()
	params.Version = packet.V2
	params.LockTime = 1700000000

	result, err := FakeTxn(params)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(result.Psbt, packet.Magic))

	pkt := result.Packet
	require.Nil(t, pkt.UnsignedTx)
	require.Equal(t, int32(2), pkt.V2.TxVersion)
	require.Equal(t, uint32(1700000000), pkt.V2.FallbackLockTime)
	require.Len(t, pkt.Inputs, 2)
	require.Len(t, pkt.Outputs, 2)

	for _, in := range pkt.Inputs {
		require.Equal(t, uint32(1700000000), in.V2.RequiredLockTime)
		require.Zero(t, in.V2.PrevIndex)
	}
	require.Equal(t, txbuilder.SequenceLockTime, pkt.Inputs[0].V2.Sequence)
	for _, out := range pkt.Outputs {
		require.Equal(t, int64(99500), out.V2.Amount)
		require.NotEmpty(t, out.V2.PkScript)
	}

	// Version 0 decoders must not accept it.
	_, err = psbt.NewFromRawBytes(bytes.NewReader(result.Psbt), false)
	require.Error(t, err)

	// The same request as version 0 describes the same transaction.
	v0Params := baseParams()
	v0Params.LockTime = 1700000000
	v0, err := FakeTxn(v0Params)
	require.NoError(t, err)
	require.Equal(t, v0.Packet.UnsignedTx.TxHash(), result.Txid)
}

func TestFakeTxnConfigErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		modify func(*Params)
		err    error
	}{
		{
			name: "style count",
			modify: func(p *Params) {
				p.NumOutputs = 3
				p.OutputStyles = []script.Style{
					script.P2WPKH, script.P2TR,
				}
			},
			err: ErrStyleCount,
		},
		{
			name:   "change index",
			modify: func(p *Params) { p.ChangeOutputs = []int{2} },
			err:    ErrChangeIndex,
		},
		{
			name:   "multisig input style",
			modify: func(p *Params) { p.InputStyle = script.P2WSH },
			err:    ErrInputStyle,
		},
		{
			name:   "multisig change style",
			modify: func(p *Params) { p.ChangeStyle = script.P2SH },
			err:    ErrInputStyle,
		},
		{
			name:   "no inputs",
			modify: func(p *Params) { p.NumInputs = 0 },
			err:    ErrNoInputs,
		},
		{
			name:   "fee too large",
			modify: func(p *Params) { p.Fee = 300000 },
			err:    txbuilder.ErrNegativeAmount,
		},
		{
			name: "amount count",
			modify: func(p *Params) {
				p.OutputAmounts = []btcutil.Amount{1}
			},
			err: txbuilder.ErrAmountCount,
		},
		{
			name:   "sequence count",
			modify: func(p *Params) { p.Sequences = []uint32{1} },
			err:    txbuilder.ErrSequenceCount,
		},
		{
			name:   "version",
			modify: func(p *Params) { p.Version = 1 },
			err:    packet.ErrUnknownVersion,
		},
		{
			name:   "no network",
			modify: func(p *Params) { p.Net = nil },
			err:    ErrNoNetwork,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			params := baseParams()
			testCase.modify(params)

			_, err := FakeTxn(params)
			require.ErrorIs(t, err, testCase.err)
			require.ErrorIs(t, err, ErrConfig)
			require.True(t, IsConfigError(err))
		})
	}
}

func testMultisig(t *testing.T, format script.Style) *policy.Multisig {
	t.Helper()

	prefix, err := keyring.ParsePath("m/48'/1'/0'/2'")
	require.NoError(t, err)

	cosigners := make([]policy.Cosigner, 0, 3)
	for i := 0; i < 3; i++ {
		master := testMaster(t, byte(0x10+i))
		fp, err := master.Fingerprint()
		require.NoError(t, err)

		account, err := master.Derive(prefix)
		require.NoError(t, err)
		xpub, err := account.Neuter()
		require.NoError(t, err)

		cosigners = append(cosigners, policy.Cosigner{
			Fingerprint: fp,
			Path:        prefix,
			Key:         xpub,
		})
	}

	ms, err := policy.New("test", 2, 3, format, cosigners)
	require.NoError(t, err)

	return ms
}

func TestFakeMultisigTxn(t *testing.T) {
	t.Parallel()

	ms := testMultisig(t, script.P2WSH)

	params := baseParams()
	params.Multisig = ms
	params.InputStyle = script.P2WSH
	params.OutputStyles = []script.Style{script.P2WSH, script.P2PKH}
	params.IncludeXPubs = true

	result, err := FakeMultisigTxn(params)
	require.NoError(t, err)

	parsed := mustParsePsbt(t, result.Psbt)
	for i, in := range parsed.Inputs {
		require.NotNil(t, in.WitnessUtxo)
		require.Nil(t, in.NonWitnessUtxo)
		require.Nil(t, in.RedeemScript)
		require.Equal(t, txscript.MultiSigTy,
			txscript.GetScriptClass(in.WitnessScript))
		require.Len(t, in.Bip32Derivation, 3)

		for _, deriv := range in.Bip32Derivation {
			require.Equal(t,
				[]uint32{48 + h, 1 + h, h, 2 + h, 0, uint32(i)},
				deriv.Bip32Path)
		}
	}

	// Output 1 is change with a non-multisig style, so it falls back to
	// the wallet format.
	change := parsed.Outputs[1]
	require.Len(t, change.Bip32Derivation, 3)
	require.NotNil(t, change.WitnessScript)
	require.Equal(t, txscript.WitnessV0ScriptHashTy,
		txscript.GetScriptClass(parsed.UnsignedTx.TxOut[1].PkScript))
	for _, deriv := range change.Bip32Derivation {
		require.Equal(t, []uint32{48 + h, 1 + h, h, 2 + h, 1, 2 + 1},
			deriv.Bip32Path)
	}
	require.Empty(t, parsed.Outputs[0].Bip32Derivation)

	require.Len(t, result.Packet.XPubs, 3)
	for i, xpub := range result.Packet.XPubs {
		require.Equal(t, ms.Cosigners[i].Fingerprint,
			xpub.Origin.Fingerprint)
		require.Len(t, xpub.Key, 78)
	}
}

func TestFakeMultisigTxnBranches(t *testing.T) {
	t.Parallel()

	// Inputs sit on the receive branch at their index. Change sits on the
	// change branch past the input indexes.
	params := baseParams()
	params.Multisig = testMultisig(t, script.P2WSH)
	params.InputStyle = script.P2WSH
	params.OutputStyles = nil
	params.NumInputs = 3
	params.NumOutputs = 3
	params.ChangeOutputs = []int{0, 2}

	result, err := FakeMultisigTxn(params)
	require.NoError(t, err)

	parsed := mustParsePsbt(t, result.Psbt)
	for i, in := range parsed.Inputs {
		for _, deriv := range in.Bip32Derivation {
			require.Equal(t,
				[]uint32{keyring.ExternalBranch, uint32(i)},
				deriv.Bip32Path[4:])
		}
	}

	for _, i := range params.ChangeOutputs {
		derivs := parsed.Outputs[i].Bip32Derivation
		require.Len(t, derivs, 3)
		for _, deriv := range derivs {
			require.Equal(t,
				[]uint32{keyring.ChangeBranch, uint32(3 + i)},
				deriv.Bip32Path[4:])
		}
	}
	require.Empty(t, parsed.Outputs[1].Bip32Derivation)
}

func TestFakeMultisigTxnLegacy(t *testing.T) {
	t.Parallel()

	params := baseParams()
	params.Multisig = testMultisig(t, script.P2SH)
	params.InputStyle = script.P2SH
	params.OutputStyles = nil
	params.NumOutputs = 3
	params.ChangeOutputs = []int{2}

	result, err := FakeMultisigTxn(params)
	require.NoError(t, err)

	parsed := mustParsePsbt(t, result.Psbt)
	for _, in := range parsed.Inputs {
		require.NotNil(t, in.NonWitnessUtxo)
		require.Nil(t, in.WitnessUtxo)
		require.Equal(t, txscript.MultiSigTy,
			txscript.GetScriptClass(in.RedeemScript))
		require.Nil(t, in.WitnessScript)
	}

	// With no styles the outputs cycle through the multisig styles, so
	// the change output at index 2 is nested segwit.
	change := parsed.Outputs[2]
	require.NotNil(t, change.WitnessScript)
	require.Equal(t, []byte{0x00, 0x20}, change.RedeemScript[:2])
}

func TestFakeMultisigTxnBIP67(t *testing.T) {
	t.Parallel()

	for _, bip67 := range []bool{true, false} {
		params := baseParams()
		params.Multisig = testMultisig(t, script.P2SHP2WSH)
		params.InputStyle = script.P2SHP2WSH
		params.BIP67 = bip67

		result, err := FakeMultisigTxn(params)
		require.NoError(t, err)

		in := mustParsePsbt(t, result.Psbt).Inputs[0]
		require.NotNil(t, in.WitnessUtxo)
		require.NotNil(t, in.RedeemScript)
		require.NotNil(t, in.WitnessScript)

		if !bip67 {
			continue
		}

		var pushes [][]byte
		tokens := txscript.MakeScriptTokenizer(0, in.WitnessScript)
		for tokens.Next() {
			if len(tokens.Data()) == 33 {
				pushes = append(pushes, tokens.Data())
			}
		}
		require.NoError(t, tokens.Err())
		require.Len(t, pushes, 3)
		for i := 1; i < len(pushes); i++ {
			require.Negative(t, bytes.Compare(pushes[i-1], pushes[i]))
		}
	}
}

func TestFakeMultisigTxnErrors(t *testing.T) {
	t.Parallel()

	params := baseParams()
	params.InputStyle = script.P2WSH
	_, err := FakeMultisigTxn(params)
	require.ErrorIs(t, err, ErrNoMultisig)

	params.Multisig = testMultisig(t, script.P2WSH)
	params.Partial = true
	_, err = FakeMultisigTxn(params)
	require.ErrorIs(t, err, ErrPartialUsage)

	params.Partial = false
	params.InputStyle = script.P2WPKH
	_, err = FakeMultisigTxn(params)
	require.ErrorIs(t, err, ErrInputStyle)
}
