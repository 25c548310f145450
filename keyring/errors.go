// Copyright (C) 2022-2023 Bottlepay and The Lightning Network Developers

package keyring

import "errors"

var (
	ErrBadPathSegment     = errors.New("bad derivation path segment")
	ErrBadFingerprint     = errors.New("fingerprint must be 8 hex digits")
	ErrHardenedFromPublic = errors.New("hardened derivation needs a " +
		"private key")
	ErrBadExtendedKey = errors.New("bad extended key")
)
