package vault

import (
	"errors"
)

var (
	ErrInvalidWalletID        = errors.New("invalid wallet id")
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrWalletExists           = errors.New("wallet already exists")
	ErrInvalidSeedFromStorage = errors.New("invalid seed from storage")
	ErrInvalidSeed            = errors.New("seed must be 16 to 64 hex-encoded bytes")
	ErrInvalidNetwork         = errors.New("invalid network specified")
	ErrNegativeField          = errors.New("field can't be negative")
)
