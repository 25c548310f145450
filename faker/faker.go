// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

// Package faker builds PSBTs that spend funds which never existed. Each
// input spends a made up funding transaction, so the result looks right to
// a signer but can never be broadcast.
package faker

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	"github.com/nydig/psbtfaker/keyring"
	"github.com/nydig/psbtfaker/packet"
	"github.com/nydig/psbtfaker/policy"
	"github.com/nydig/psbtfaker/script"
	"github.com/nydig/psbtfaker/txbuilder"
)

// OutputSummary describes one output for display.
type OutputSummary struct {
	Amount   btcutil.Amount
	Address  string
	IsChange bool

	// NullData is set for OP_RETURN outputs, which have no address.
	NullData []byte
}

// Result is a serialized fake PSBT and what it pays.
type Result struct {
	Psbt   []byte
	Packet *packet.Packet

	// Txid is the id of the unsigned transaction. Version 2 packets carry
	// no unsigned transaction, so it is kept here.
	Txid chainhash.Hash

	Outputs []OutputSummary
	TotalIn btcutil.Amount
	Fee     btcutil.Amount
}

// builder collects inputs, then outputs, then lays out and checks the
// packet. Each stage appends to the transaction and to the PSBT maps in
// lockstep.
type builder struct {
	params  *Params
	asm     *txbuilder.Assembler
	inputs  []packet.Input
	outputs []packet.Output
	xpubs   []packet.XPub
	summary []OutputSummary
}

func newBuilder(p *Params) *builder {
	return &builder{
		params: p,
		asm:    txbuilder.New(p.LockTime),
	}
}

// addInput funds pkScript and records the spent output the way style
// needs it.
func (b *builder) addInput(in packet.Input, pkScript []byte,
	style script.Style) error {

	funding, err := b.asm.AddInput(pkScript, int64(b.params.InputAmount))
	if err != nil {
		return err
	}

	if style.IsSegwit() {
		in.Utxo = packet.WitnessUtxo{TxOut: funding.TxOut[0]}
	} else {
		in.Utxo = packet.NonWitnessUtxo{Tx: funding}
	}
	b.inputs = append(b.inputs, in)

	return nil
}

func (b *builder) addOutput(out packet.Output, amount int64,
	pkScript []byte, isChange bool) error {

	addr, err := script.Render(pkScript, b.params.Net)
	if err != nil {
		return err
	}

	if err := b.asm.AddOutput(amount, pkScript); err != nil {
		return err
	}
	b.outputs = append(b.outputs, out)
	b.summary = append(b.summary, OutputSummary{
		Amount:   btcutil.Amount(amount),
		Address:  addr,
		IsChange: isChange,
	})

	return nil
}

func (b *builder) addXPub(key *keyring.ExtendedKey,
	origin keyring.KeyOrigin) error {

	raw, err := key.SerializePublic()
	if err != nil {
		return err
	}
	b.xpubs = append(b.xpubs, packet.XPub{Key: raw, Origin: origin})

	return nil
}

// finish adds the null data outputs, fixes sequences and serializes.
func (b *builder) finish() (*Result, error) {
	p := b.params

	for _, nd := range p.NullData {
		if err := b.asm.AddNullData(int64(nd.Amount), nd.Data); err != nil {
			return nil, configErr(err)
		}
		b.outputs = append(b.outputs, packet.Output{})
		b.summary = append(b.summary, OutputSummary{
			Amount:   nd.Amount,
			NullData: nd.Data,
		})
	}

	tx, err := b.asm.Finalize(p.Sequences)
	if err != nil {
		return nil, configErr(err)
	}

	log.Debugf("Fake unsigned transaction: \n%s", spew.Sdump(tx))

	pkt, err := packet.New(p.Version, tx, b.inputs, b.outputs, b.xpubs)
	if err != nil {
		return nil, err
	}

	raw, err := pkt.Bytes()
	if err != nil {
		return nil, err
	}

	if p.Version == packet.V0 {
		_, err := policy.CheckPsbt(raw, len(tx.TxIn), len(tx.TxOut))
		if err != nil {
			return nil, err
		}
	}

	txid := tx.TxHash()
	totalIn := p.InputAmount * btcutil.Amount(p.NumInputs)
	log.Infow("Built fake PSBT", "txid", txid, "version",
		p.Version, "inputs", len(tx.TxIn), "outputs", len(tx.TxOut),
		"total_in", totalIn, "bytes", len(raw))

	return &Result{
		Psbt:    raw,
		Packet:  pkt,
		Txid:    txid,
		Outputs: b.summary,
		TotalIn: totalIn,
		Fee:     p.Fee,
	}, nil
}

// singleKeyRecords returns the key-origin records for a single signer key
// of style: an x-only record for taproot, a regular one otherwise.
func singleKeyRecords(style script.Style, key *keyring.ExtendedKey,
	origin keyring.KeyOrigin) ([]*psbt.Bip32Derivation,
	[]*psbt.TaprootBip32Derivation, error) {

	if style == script.P2TR {
		xOnly, err := key.XOnlyPubKey()
		if err != nil {
			return nil, nil, err
		}
		return nil, []*psbt.TaprootBip32Derivation{
			origin.TaprootDerivation(xOnly),
		}, nil
	}

	pubKey, err := key.PubKeyBytes()
	if err != nil {
		return nil, nil, err
	}
	return []*psbt.Bip32Derivation{origin.Derivation(pubKey)}, nil, nil
}

// FakeTxn builds a single signer PSBT. Inputs are derived on the receive
// branch at index i, change outputs on the change branch at their output
// index; other outputs pay to random destinations.
func FakeTxn(p *Params) (*Result, error) {
	if err := p.validate(false); err != nil {
		return nil, err
	}

	ring, err := p.keyRing()
	if err != nil {
		return nil, err
	}

	b := newBuilder(p)
	inStyle := p.InputStyle
	chgStyle := p.changeStyle()

	for i := 0; i < p.NumInputs; i++ {
		key, origin, err := ring.DeriveKey(
			inStyle.Purpose(), keyring.ExternalBranch, uint32(i),
		)
		if err != nil {
			return nil, err
		}
		if p.Partial && i == 0 {
			origin.Fingerprint = keyring.PartialFingerprint
		}

		pubKey, err := key.PubKeyBytes()
		if err != nil {
			return nil, err
		}
		scripts, err := script.ForKey(inStyle, pubKey)
		if err != nil {
			return nil, err
		}

		in := packet.Input{RedeemScript: scripts.RedeemScript}
		in.Bip32Derivation, in.TaprootBip32Derivation, err =
			singleKeyRecords(inStyle, key, origin)
		if err != nil {
			return nil, err
		}

		if err := b.addInput(in, scripts.PkScript, inStyle); err != nil {
			return nil, err
		}
	}

	amounts, err := txbuilder.OutputAmounts(
		int64(p.InputAmount), p.NumInputs, int64(p.Fee), p.NumOutputs,
		p.outputAmounts(),
	)
	if err != nil {
		return nil, configErr(err)
	}

	for i, amount := range amounts {
		var (
			out      packet.Output
			pkScript []byte
			isChange = p.isChange(i)
		)

		if isChange {
			key, origin, err := ring.DeriveKey(
				chgStyle.Purpose(), keyring.ChangeBranch,
				uint32(i),
			)
			if err != nil {
				return nil, err
			}

			pubKey, err := key.PubKeyBytes()
			if err != nil {
				return nil, err
			}
			scripts, err := script.ForKey(chgStyle, pubKey)
			if err != nil {
				return nil, err
			}

			out.RedeemScript = scripts.RedeemScript
			out.Bip32Derivation, out.TaprootBip32Derivation, err =
				singleKeyRecords(chgStyle, key, origin)
			if err != nil {
				return nil, err
			}
			pkScript = scripts.PkScript
		} else {
			style := p.outputStyle(i, script.AllStyles)
			pkScript, err = script.Random(style, p.random())
			if err != nil {
				return nil, err
			}
		}

		if err := b.addOutput(out, amount, pkScript, isChange); err != nil {
			return nil, err
		}
	}

	if p.IncludeXPubs {
		xpub, origin, err := ring.AccountXPub(inStyle.Purpose())
		if err != nil {
			return nil, err
		}
		if err := b.addXPub(xpub, origin); err != nil {
			return nil, err
		}
	}

	return b.finish()
}

// FakeMultisigTxn builds a PSBT spending from the multisig wallet in
// p.Multisig. Inputs use cosigner keys at 0/i; change output i uses
// 1/(NumInputs+i) so it never reuses an input's keys.
func FakeMultisigTxn(p *Params) (*Result, error) {
	if err := p.validate(true); err != nil {
		return nil, err
	}

	ms := p.Multisig
	b := newBuilder(p)

	for i := 0; i < p.NumInputs; i++ {
		scripts, derivs, err := ms.Scripts(
			p.InputStyle, keyring.ExternalBranch, uint32(i), p.BIP67,
		)
		if err != nil {
			return nil, err
		}

		in := packet.Input{
			RedeemScript:    scripts.RedeemScript,
			WitnessScript:   scripts.WitnessScript,
			Bip32Derivation: derivs,
		}
		if err := b.addInput(in, scripts.PkScript, p.InputStyle); err != nil {
			return nil, err
		}
	}

	amounts, err := txbuilder.OutputAmounts(
		int64(p.InputAmount), p.NumInputs, int64(p.Fee), p.NumOutputs,
		p.outputAmounts(),
	)
	if err != nil {
		return nil, configErr(err)
	}

	for i, amount := range amounts {
		var (
			out      packet.Output
			pkScript []byte
			isChange = p.isChange(i)
			style    = p.outputStyle(i, script.MultisigStyles)
		)

		if isChange {
			if !style.IsMultisig() {
				style = ms.Format
			}

			scripts, derivs, err := ms.Scripts(
				style, keyring.ChangeBranch,
				uint32(p.NumInputs+i), p.BIP67,
			)
			if err != nil {
				return nil, err
			}

			out = packet.Output{
				RedeemScript:    scripts.RedeemScript,
				WitnessScript:   scripts.WitnessScript,
				Bip32Derivation: derivs,
			}
			pkScript = scripts.PkScript
		} else {
			pkScript, err = script.Random(style, p.random())
			if err != nil {
				return nil, err
			}
		}

		if err := b.addOutput(out, amount, pkScript, isChange); err != nil {
			return nil, err
		}
	}

	if p.IncludeXPubs {
		for _, cosigner := range ms.Cosigners {
			err := b.addXPub(cosigner.Key, keyring.KeyOrigin{
				Fingerprint: cosigner.Fingerprint,
				Path:        cosigner.Path,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return b.finish()
}

// IsConfigError reports whether err was caused by bad parameters rather
// than an internal failure.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}
