// Copyright (C) 2022-2023 Bottlepay and The Lightning Network Developers

package policy

import "errors"

var (
	ErrPolicyRange   = errors.New("need 1 <= M <= N <= 15")
	ErrCosignerCount = errors.New("cosigner count does not match N")
	ErrMissingPolicy = errors.New("no policy line in multisig config")
	ErrBadConfigLine = errors.New("bad multisig config line")
	ErrBadFormat     = errors.New("format cannot wrap a multisig script")
	ErrBadPsbt       = errors.New("PSBT failed self-check")
)
