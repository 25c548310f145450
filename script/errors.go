// Copyright (C) 2022-2023 Bottlepay and The Lightning Network Developers

package script

import "errors"

var (
	ErrUnsupportedStyle   = errors.New("unsupported address style")
	ErrUnrecognizedScript = errors.New("unrecognized output script")
	ErrBadMultisig        = errors.New("bad multisig parameters")
)
