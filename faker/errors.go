// Copyright (C) 2022-2023 Bottlepay and The Lightning Network Developers

package faker

import "errors"

var (
	// ErrConfig wraps every problem with the requested transaction shape.
	ErrConfig = errors.New("invalid fake transaction parameters")

	ErrStyleCount   = errors.New("need zero, one or one style per output")
	ErrChangeIndex  = errors.New("change index out of range")
	ErrInputStyle   = errors.New("input style not usable here")
	ErrNoInputs     = errors.New("need at least one input and output")
	ErrNoMultisig   = errors.New("no multisig wallet given")
	ErrNoNetwork    = errors.New("no network given")
	ErrPartialUsage = errors.New("partial mode is single signer only")
)
