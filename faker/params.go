// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

package faker

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/nydig/psbtfaker/keyring"
	"github.com/nydig/psbtfaker/packet"
	"github.com/nydig/psbtfaker/policy"
	"github.com/nydig/psbtfaker/script"
)

// NullData is an OP_RETURN output.
type NullData struct {
	Amount btcutil.Amount
	Data   []byte
}

// Params describes the transaction to fake.
type Params struct {
	NumInputs  int
	NumOutputs int

	// ChangeOutputs lists the indexes of outputs paying back to us.
	ChangeOutputs []int

	// InputAmount is the value of every input.
	InputAmount btcutil.Amount
	Fee         btcutil.Amount

	// OutputAmounts overrides the even split when set. It must have one
	// entry per output.
	OutputAmounts []btcutil.Amount

	InputStyle script.Style

	// ChangeStyle is used for single signer change outputs. It defaults
	// to InputStyle.
	ChangeStyle script.Style

	// OutputStyles holds no styles (cycle through all of them), a single
	// style for every output, or one style per output.
	OutputStyles []script.Style

	Net       *chaincfg.Params
	LockTime  uint32
	Sequences []uint32
	Version   packet.Version

	IncludeXPubs bool

	// Partial marks input 0 as belonging to another wallet.
	Partial bool

	// ZeroFingerprint derives from SimulatorSeed and records a zero
	// fingerprint. It is also used when MasterKey is nil.
	ZeroFingerprint bool
	MasterKey       *keyring.ExtendedKey

	Multisig *policy.Multisig

	// BIP67 sorts multisig keys.
	BIP67 bool

	NullData []NullData

	// Rand fills fake destinations. Defaults to crypto/rand.
	Rand io.Reader
}

func configErr(err error) error {
	return fmt.Errorf("%w: %w", ErrConfig, err)
}

func (p *Params) validate(multisig bool) error {
	if p.NumInputs < 1 || p.NumOutputs < 1 {
		return configErr(fmt.Errorf("%w: %d in, %d out", ErrNoInputs,
			p.NumInputs, p.NumOutputs))
	}

	if p.Net == nil {
		return configErr(ErrNoNetwork)
	}

	if _, err := packet.ParseVersion(uint32(p.Version)); err != nil {
		return configErr(err)
	}

	switch n := len(p.OutputStyles); {
	case n == 0, n == 1, n == p.NumOutputs:
	default:
		return configErr(fmt.Errorf("%w: %d styles for %d outputs",
			ErrStyleCount, n, p.NumOutputs))
	}
	for _, style := range p.OutputStyles {
		if !style.Valid() {
			return configErr(fmt.Errorf("%w: %v",
				script.ErrUnsupportedStyle, style))
		}
	}

	seen := make(map[int]struct{}, len(p.ChangeOutputs))
	for _, idx := range p.ChangeOutputs {
		if _, ok := seen[idx]; ok || idx < 0 || idx >= p.NumOutputs {
			return configErr(fmt.Errorf("%w: %d of %d outputs",
				ErrChangeIndex, idx, p.NumOutputs))
		}
		seen[idx] = struct{}{}
	}

	if multisig {
		if p.Multisig == nil {
			return configErr(ErrNoMultisig)
		}
		if err := p.Multisig.Validate(); err != nil {
			return configErr(err)
		}
		if !p.InputStyle.IsMultisig() {
			return configErr(fmt.Errorf("%w: %v", ErrInputStyle,
				p.InputStyle))
		}
		if p.Partial {
			return configErr(ErrPartialUsage)
		}
		return nil
	}

	if !p.InputStyle.IsSingleKey() {
		return configErr(fmt.Errorf("%w: %v", ErrInputStyle,
			p.InputStyle))
	}
	if !p.changeStyle().IsSingleKey() {
		return configErr(fmt.Errorf("%w: change %v", ErrInputStyle,
			p.changeStyle()))
	}

	return nil
}

func (p *Params) changeStyle() script.Style {
	if p.ChangeStyle == 0 {
		return p.InputStyle
	}
	return p.ChangeStyle
}

// outputStyle picks the style of output i, cycling through defaults when
// no styles were given.
func (p *Params) outputStyle(i int, defaults []script.Style) script.Style {
	switch len(p.OutputStyles) {
	case 0:
		return defaults[i%len(defaults)]
	case 1:
		return p.OutputStyles[0]
	}
	return p.OutputStyles[i]
}

func (p *Params) isChange(i int) bool {
	for _, idx := range p.ChangeOutputs {
		if idx == i {
			return true
		}
	}
	return false
}

func (p *Params) random() io.Reader {
	if p.Rand == nil {
		return rand.Reader
	}
	return p.Rand
}

func (p *Params) outputAmounts() []int64 {
	if len(p.OutputAmounts) == 0 {
		return nil
	}

	amounts := make([]int64, 0, len(p.OutputAmounts))
	for _, amount := range p.OutputAmounts {
		amounts = append(amounts, int64(amount))
	}
	return amounts
}

// keyRing returns the single signer key source. Without a master key, or in
// zero fingerprint mode, keys come from the simulator seed.
func (p *Params) keyRing() (*keyring.KeyRing, error) {
	if p.ZeroFingerprint || p.MasterKey == nil {
		master, err := keyring.SimulatorKey(p.Net)
		if err != nil {
			return nil, err
		}

		return keyring.NewKeyRing(
			master, keyring.ZeroFingerprint, p.Net.HDCoinType,
		), nil
	}

	fp, err := p.MasterKey.Fingerprint()
	if err != nil {
		return nil, err
	}

	return keyring.NewKeyRing(p.MasterKey, fp, p.Net.HDCoinType), nil
}
