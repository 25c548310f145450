// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

// Package txbuilder assembles the unsigned spending transaction together
// with the fake transactions that fund each of its inputs.
package txbuilder

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/nydig/psbtfaker/script"
	"github.com/nydig/psbtfaker/wirebuf"
)

const (
	// TxVersion is used for both the funding and spending transactions.
	TxVersion = 2

	// FundingIndex is the output index funding transactions claim to
	// spend.
	FundingIndex = 73

	// SequenceFinal disables locktime for an input.
	SequenceFinal uint32 = wire.MaxTxInSequenceNum

	// SequenceLockTime is the highest sequence that still enables
	// locktime.
	SequenceLockTime uint32 = wire.MaxTxInSequenceNum - 1
)

var (
	ErrNegativeAmount = errors.New("fee exceeds total input value")
	ErrAmountCount    = errors.New("amount count does not match outputs")
	ErrSequenceCount  = errors.New("sequence count does not match inputs")
	ErrNoOutputs      = errors.New("need at least one output")
	ErrFinalized      = errors.New("transaction already finalized")
)

// FundingOutPoint is the made up outpoint every funding transaction
// spends. Its hash is 0xdead and 0xbeef as little-endian 64-bit words
// followed by zeros.
var FundingOutPoint = func() wire.OutPoint {
	raw, _ := wirebuf.New().
		Uint64(0xdead).
		Uint64(0xbeef).
		Uint64(0).
		Uint64(0).
		Bytes()

	var hash chainhash.Hash
	copy(hash[:], raw)

	return wire.OutPoint{Hash: hash, Index: FundingIndex}
}()

// FundingTx returns a transaction with a single output of amount paying to
// pkScript.
func FundingTx(pkScript []byte, amount int64) *wire.MsgTx {
	tx := wire.NewMsgTx(TxVersion)
	prevOut := FundingOutPoint
	in := wire.NewTxIn(&prevOut, nil, nil)
	in.Sequence = SequenceFinal
	tx.AddTxIn(in)
	tx.AddTxOut(wire.NewTxOut(amount, pkScript))

	return tx
}

// Assembler builds the spending transaction. Standard outputs keep the
// order they are added in; null data outputs always follow them.
type Assembler struct {
	tx        *wire.MsgTx
	nullData  []*wire.TxOut
	finalized bool
}

// New returns an Assembler for a version 2 transaction with lockTime.
func New(lockTime uint32) *Assembler {
	tx := wire.NewMsgTx(TxVersion)
	tx.LockTime = lockTime

	return &Assembler{tx: tx}
}

// AddInput creates a funding transaction paying amount to pkScript and
// adds an input spending its only output. The funding transaction is
// returned.
func (a *Assembler) AddInput(pkScript []byte, amount int64) (*wire.MsgTx,
	error) {

	if a.finalized {
		return nil, ErrFinalized
	}

	funding := FundingTx(pkScript, amount)
	fundingHash := funding.TxHash()
	a.tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&fundingHash, 0), nil, nil))

	return funding, nil
}

// AddOutput appends a standard output.
func (a *Assembler) AddOutput(amount int64, pkScript []byte) error {
	if a.finalized {
		return ErrFinalized
	}

	a.tx.AddTxOut(wire.NewTxOut(amount, pkScript))

	return nil
}

// AddNullData queues an OP_RETURN output carrying data.
func (a *Assembler) AddNullData(amount int64, data []byte) error {
	if a.finalized {
		return ErrFinalized
	}

	pkScript, err := script.NullData(data)
	if err != nil {
		return err
	}
	a.nullData = append(a.nullData, wire.NewTxOut(amount, pkScript))

	return nil
}

// Finalize appends queued null data outputs and applies the sequence
// policy: every input is final, except that input 0 enables locktime when
// one is set. Explicit sequences, one per input, override both.
func (a *Assembler) Finalize(sequences []uint32) (*wire.MsgTx, error) {
	if a.finalized {
		return nil, ErrFinalized
	}

	if len(sequences) != 0 && len(sequences) != len(a.tx.TxIn) {
		return nil, fmt.Errorf("%w: %d sequences for %d inputs",
			ErrSequenceCount, len(sequences), len(a.tx.TxIn))
	}

	for _, out := range a.nullData {
		a.tx.AddTxOut(out)
	}
	if len(a.tx.TxOut) == 0 {
		return nil, ErrNoOutputs
	}

	for i, in := range a.tx.TxIn {
		switch {
		case len(sequences) != 0:
			in.Sequence = sequences[i]

		case i == 0 && a.tx.LockTime != 0:
			in.Sequence = SequenceLockTime

		default:
			in.Sequence = SequenceFinal
		}
	}

	a.finalized = true

	return a.tx, nil
}

// OutputAmounts splits numIns inputs of perInput, less fee, across numOuts
// outputs. Integer division leaves up to numOuts-1 satoshis as extra fee.
// Explicit amounts, if given, must cover every output and are used as is.
func OutputAmounts(perInput int64, numIns int, fee int64, numOuts int,
	explicit []int64) ([]int64, error) {

	if numOuts < 1 {
		return nil, ErrNoOutputs
	}

	if len(explicit) != 0 {
		if len(explicit) != numOuts {
			return nil, fmt.Errorf("%w: %d amounts for %d outputs",
				ErrAmountCount, len(explicit), numOuts)
		}
		amounts := make([]int64, numOuts)
		copy(amounts, explicit)
		return amounts, nil
	}

	remaining := perInput*int64(numIns) - fee
	if remaining < 0 {
		return nil, fmt.Errorf("%w: inputs %d, fee %d", ErrNegativeAmount,
			perInput*int64(numIns), fee)
	}

	each := remaining / int64(numOuts)
	amounts := make([]int64, numOuts)
	for i := range amounts {
		amounts[i] = each
	}

	return amounts, nil
}
