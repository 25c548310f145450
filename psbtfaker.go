// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

package psbtfaker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/nydig/psbtfaker/faker"
	"github.com/nydig/psbtfaker/keyring"
	"github.com/nydig/psbtfaker/policy"
)

const (
	// defaultSingleSigAmount is the value of each single signer input.
	defaultSingleSigAmount = btcutil.SatoshiPerBitcoin

	// defaultMultisigAmount is the value of each multisig input.
	defaultMultisigAmount = 100000
)

// Main is the true entry point for psbtfaker. It accepts a fully populated
// and validated configuration, writes the fake PSBT to the output file and
// prints what it would pay to stdout.
func Main(ctx context.Context, cfg *Config) error {
	// mkErr makes it easy to return logged errors.
	mkErr := func(format string, args ...interface{}) error {
		err := fmt.Errorf(format, args...)
		fakerLog.Errorf("Unable to fake PSBT: %v", err)
		return err
	}

	fakerLog.Infow("Active Bitcoin network", "net",
		cfg.ActiveNetParams.Name)

	params, err := BuildParams(ctx, cfg, nil)
	if err != nil {
		return mkErr("%w", err)
	}

	var result *faker.Result
	if params.Multisig != nil {
		result, err = faker.FakeMultisigTxn(params)
	} else {
		result, err = faker.FakeTxn(params)
	}
	if err != nil {
		return mkErr("%w", err)
	}

	if err := writePsbt(cfg.Args.OutPSBT, result, cfg.Base64); err != nil {
		return mkErr("unable to write %s: %w", cfg.Args.OutPSBT, err)
	}

	fakerLog.Infow("Wrote PSBT", "file", cfg.Args.OutPSBT, "base64",
		cfg.Base64)

	PrintSummary(os.Stdout, result)

	return nil
}

// BuildParams turns a validated config into faker parameters, reading the
// multisig file and fetching the chain tip as needed. A nil client uses a
// fresh cleanhttp client.
func BuildParams(ctx context.Context, cfg *Config,
	client *http.Client) (*faker.Params, error) {

	numOuts := cfg.NumOutputs + cfg.NumChange
	change := make([]int, 0, cfg.NumChange)
	for i := cfg.NumOutputs; i < numOuts; i++ {
		change = append(change, i)
	}

	amounts := make([]btcutil.Amount, 0, len(cfg.Amounts))
	for _, amount := range cfg.Amounts {
		amounts = append(amounts, btcutil.Amount(amount))
	}

	net := cfg.ActiveNetParams
	params := &faker.Params{
		NumInputs:       cfg.NumInputs,
		NumOutputs:      numOuts,
		ChangeOutputs:   change,
		InputAmount:     btcutil.Amount(cfg.InputAmount),
		Fee:             btcutil.Amount(cfg.Fee),
		OutputAmounts:   amounts,
		InputStyle:      cfg.inputStyle,
		ChangeStyle:     cfg.inputStyle,
		OutputStyles:    cfg.outputStyles,
		Net:             &net,
		Sequences:       cfg.Sequences,
		Version:         cfg.version,
		IncludeXPubs:    cfg.XPubs,
		Partial:         cfg.Partial,
		ZeroFingerprint: cfg.ZeroXFP,
		BIP67:           !cfg.NoBIP67,
		NullData:        cfg.nullData,
	}

	if cfg.MultisigFile != "" {
		ms, err := readMultisig(cfg.MultisigFile)
		if err != nil {
			return nil, err
		}
		params.Multisig = ms

		if params.InputAmount == 0 {
			params.InputAmount = defaultMultisigAmount
		}

		fakerLog.Infow("Loaded multisig wallet", "name", ms.Name,
			"policy", fmt.Sprintf("%d of %d", ms.M, ms.N),
			"format", ms.Format)
	} else {
		if !cfg.ZeroXFP {
			master, err := keyring.ParseExtendedKey(cfg.Args.XPub)
			if err != nil {
				return nil, err
			}
			params.MasterKey = master
		}

		if params.InputAmount == 0 {
			params.InputAmount = defaultSingleSigAmount
		}
	}

	params.LockTime = resolveLockTime(ctx, cfg, client)

	return params, nil
}

func readMultisig(path string) (*policy.Multisig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return policy.ParseConfig(f)
}

func writePsbt(path string, result *faker.Result, b64 bool) error {
	if !b64 {
		return os.WriteFile(path, result.Psbt, 0644)
	}

	encoded, err := result.Packet.B64Encode()
	if err != nil {
		return err
	}

	return os.WriteFile(path, []byte(encoded), 0644)
}

// PrintSummary writes what the PSBT pays, one line per output.
func PrintSummary(w io.Writer, result *faker.Result) {
	numIns := len(result.Packet.Inputs)

	_, _ = fmt.Fprintf(w, "\nFake PSBT would send %d inputs (%.8f BTC) "+
		"to:\n", numIns, result.TotalIn.ToBTC())

	for _, out := range result.Outputs {
		switch {
		case out.NullData != nil:
			_, _ = fmt.Fprintf(w, " %.8f => OP_RETURN %x\n",
				out.Amount.ToBTC(), out.NullData)

		case out.IsChange:
			_, _ = fmt.Fprintf(w, " %.8f => %s (change back)\n",
				out.Amount.ToBTC(), out.Address)

		default:
			_, _ = fmt.Fprintf(w, " %.8f => %s\n",
				out.Amount.ToBTC(), out.Address)
		}
	}

	if result.Fee != 0 {
		_, _ = fmt.Fprintf(w, " %.8f => miners fee\n", result.Fee.ToBTC())
	}
}
