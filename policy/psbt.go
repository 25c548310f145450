package policy

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/davecgh/go-spew/spew"
)

// CheckPsbt parses a serialized version 0 PSBT with an independent decoder
// and makes sure it is sane and has the expected shape. Anything that fails
// here means the packet must not be handed out.
func CheckPsbt(raw []byte, numIns, numOuts int) (*psbt.Packet, error) {
	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	if err != nil {
		log.Debugw("Error parsing PSBT", "err", err, "psbt", raw)
		return nil, fmt.Errorf("%w: %v", ErrBadPsbt, err)
	}

	log.Debugf("Parsed PSBT packet with unsigned TX: \n%s\nPOutputs: %s",
		spew.Sdump(packet.UnsignedTx), spew.Sdump(packet.Outputs))

	if err := packet.SanityCheck(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPsbt, err)
	}

	if len(packet.Inputs) != numIns || len(packet.Outputs) != numOuts {
		return nil, fmt.Errorf("%w: got %d inputs and %d outputs, "+
			"wanted %d and %d", ErrBadPsbt, len(packet.Inputs),
			len(packet.Outputs), numIns, numOuts)
	}

	for i, in := range packet.Inputs {
		if in.WitnessUtxo == nil && in.NonWitnessUtxo == nil {
			return nil, fmt.Errorf("%w: input %d has no UTXO",
				ErrBadPsbt, i)
		}

		if in.NonWitnessUtxo != nil {
			prevOut := packet.UnsignedTx.TxIn[i].PreviousOutPoint
			if in.NonWitnessUtxo.TxHash() != prevOut.Hash {
				return nil, fmt.Errorf("%w: input %d UTXO does "+
					"not match %v", ErrBadPsbt, i, prevOut)
			}
		}
	}

	return packet, nil
}
