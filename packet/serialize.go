// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

package packet

import (
	"bytes"
	"encoding/base64"
	"io"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/nydig/psbtfaker/wirebuf"
)

// Magic starts every serialized PSBT.
var Magic = []byte{0x70, 0x73, 0x62, 0x74, 0xff}

const separator = 0x00

// Key types the psbt package has no names for, from BIP 370.
const (
	globalTxVersionType        byte = 0x02
	globalFallbackLockTimeType byte = 0x03
	globalInputCountType       byte = 0x04
	globalOutputCountType      byte = 0x05

	inPrevTxIDType           byte = 0x0e
	inOutputIndexType        byte = 0x0f
	inSequenceType           byte = 0x10
	inRequiredTimeLockType   byte = 0x11
	inRequiredHeightLockType byte = 0x12

	outAmountType byte = 0x03
	outScriptType byte = 0x04
)

func writePair(w *wirebuf.Writer, keyType byte, keyData, value []byte) {
	w.VarInt(uint64(1 + len(keyData))).
		Byte(keyType).
		Raw(keyData).
		VarBytes(value)
}

func uint32Value(v uint32) []byte {
	b, _ := wirebuf.New().Uint32(v).Bytes()
	return b
}

func varIntValue(v uint64) []byte {
	b, _ := wirebuf.New().VarInt(v).Bytes()
	return b
}

// Serialize writes the packet to w. Within each map the keys are written in
// ascending key type order.
func (p *Packet) Serialize(w io.Writer) error {
	if err := p.Validate(); err != nil {
		return err
	}

	buf := wirebuf.New().Raw(Magic)

	if err := p.writeGlobals(buf); err != nil {
		return err
	}
	for i := range p.Inputs {
		if err := writeInput(buf, &p.Inputs[i]); err != nil {
			return err
		}
	}
	for i := range p.Outputs {
		if err := writeOutput(buf, &p.Outputs[i]); err != nil {
			return err
		}
	}

	_, err := buf.WriteTo(w)
	return err
}

// Bytes returns the serialized packet.
func (p *Packet) Bytes() ([]byte, error) {
	var b bytes.Buffer
	if err := p.Serialize(&b); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// B64Encode returns the serialized packet in base64.
func (p *Packet) B64Encode() (string, error) {
	raw, err := p.Bytes()
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(raw), nil
}

func (p *Packet) writeGlobals(w *wirebuf.Writer) error {
	if p.Version == V0 {
		var tx bytes.Buffer
		if err := p.UnsignedTx.SerializeNoWitness(&tx); err != nil {
			return err
		}
		writePair(w, byte(psbt.UnsignedTxType), nil, tx.Bytes())
	}

	for _, xpub := range p.XPubs {
		writePair(w, byte(psbt.XpubType), xpub.Key,
			xpub.Origin.Serialize())
	}

	if p.Version == V2 {
		writePair(w, globalTxVersionType, nil,
			uint32Value(uint32(p.V2.TxVersion)))
		writePair(w, globalFallbackLockTimeType, nil,
			uint32Value(p.V2.FallbackLockTime))
		writePair(w, globalInputCountType, nil,
			varIntValue(uint64(len(p.Inputs))))
		writePair(w, globalOutputCountType, nil,
			varIntValue(uint64(len(p.Outputs))))
		writePair(w, byte(psbt.VersionType), nil,
			uint32Value(uint32(p.Version)))
	}

	return w.Byte(separator).Err()
}

func writeInput(w *wirebuf.Writer, in *Input) error {
	switch utxo := in.Utxo.(type) {
	case NonWitnessUtxo:
		var tx bytes.Buffer
		if err := utxo.Tx.Serialize(&tx); err != nil {
			return err
		}
		writePair(w, byte(psbt.NonWitnessUtxoType), nil, tx.Bytes())

	case WitnessUtxo:
		var out bytes.Buffer
		if err := wire.WriteTxOut(&out, 0, 0, utxo.TxOut); err != nil {
			return err
		}
		writePair(w, byte(psbt.WitnessUtxoType), nil, out.Bytes())
	}

	if in.RedeemScript != nil {
		writePair(w, byte(psbt.RedeemScriptInputType), nil,
			in.RedeemScript)
	}
	if in.WitnessScript != nil {
		writePair(w, byte(psbt.WitnessScriptInputType), nil,
			in.WitnessScript)
	}
	for _, d := range in.Bip32Derivation {
		writePair(w, byte(psbt.Bip32DerivationInputType), d.PubKey,
			psbt.SerializeBIP32Derivation(
				d.MasterKeyFingerprint, d.Bip32Path,
			))
	}

	if in.V2 != nil {
		writePair(w, inPrevTxIDType, nil, in.V2.PrevTxID[:])
		writePair(w, inOutputIndexType, nil,
			uint32Value(in.V2.PrevIndex))
		writePair(w, inSequenceType, nil, uint32Value(in.V2.Sequence))

		switch lockTime := in.V2.RequiredLockTime; {
		case lockTime == 0:
		case isHeightLockTime(lockTime):
			writePair(w, inRequiredHeightLockType, nil,
				uint32Value(lockTime))
		default:
			writePair(w, inRequiredTimeLockType, nil,
				uint32Value(lockTime))
		}
	}

	for _, d := range in.TaprootBip32Derivation {
		value, err := psbt.SerializeTaprootBip32Derivation(d)
		if err != nil {
			return err
		}
		writePair(w, byte(psbt.TaprootBip32DerivationInputType),
			d.XOnlyPubKey, value)
	}

	return w.Byte(separator).Err()
}

func writeOutput(w *wirebuf.Writer, out *Output) error {
	if out.RedeemScript != nil {
		writePair(w, byte(psbt.RedeemScriptOutputType), nil,
			out.RedeemScript)
	}
	if out.WitnessScript != nil {
		writePair(w, byte(psbt.WitnessScriptOutputType), nil,
			out.WitnessScript)
	}
	for _, d := range out.Bip32Derivation {
		writePair(w, byte(psbt.Bip32DerivationOutputType), d.PubKey,
			psbt.SerializeBIP32Derivation(
				d.MasterKeyFingerprint, d.Bip32Path,
			))
	}

	if out.V2 != nil {
		amount, _ := wirebuf.New().Int64(out.V2.Amount).Bytes()
		writePair(w, outAmountType, nil, amount)
		writePair(w, outScriptType, nil, out.V2.PkScript)
	}

	for _, d := range out.TaprootBip32Derivation {
		value, err := psbt.SerializeTaprootBip32Derivation(d)
		if err != nil {
			return err
		}
		writePair(w, byte(psbt.TaprootBip32DerivationOutputType),
			d.XOnlyPubKey, value)
	}

	return w.Byte(separator).Err()
}
