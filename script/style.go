// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

package script

import (
	"fmt"
	"strings"
)

// Style is an output script template.
type Style uint8

const (
	P2PKH Style = iota + 1
	P2WPKH
	P2SH
	P2WSH
	P2SHP2WPKH
	P2SHP2WSH
	P2TR
)

type styleInfo struct {
	name      string
	segwit    bool
	wrapped   bool
	singleKey bool
	multisig  bool
	purpose   uint32
}

var styles = map[Style]styleInfo{
	P2PKH: {
		name:      "p2pkh",
		singleKey: true,
		purpose:   44,
	},
	P2WPKH: {
		name:      "p2wpkh",
		segwit:    true,
		singleKey: true,
		purpose:   84,
	},
	P2SH: {
		name:     "p2sh",
		multisig: true,
	},
	P2WSH: {
		name:     "p2wsh",
		segwit:   true,
		multisig: true,
	},
	P2SHP2WPKH: {
		name:      "p2sh-p2wpkh",
		segwit:    true,
		wrapped:   true,
		singleKey: true,
		purpose:   49,
	},
	P2SHP2WSH: {
		name:     "p2sh-p2wsh",
		segwit:   true,
		wrapped:  true,
		multisig: true,
	},
	P2TR: {
		name:      "p2tr",
		segwit:    true,
		singleKey: true,
		purpose:   86,
	},
}

var aliases = map[string]Style{
	"p2wpkh-p2sh": P2SHP2WPKH,
	"p2wsh-p2sh":  P2SHP2WSH,
}

var (
	// AllStyles lists every style in declaration order.
	AllStyles = []Style{P2PKH, P2WPKH, P2SH, P2WSH, P2SHP2WPKH, P2SHP2WSH,
		P2TR}

	// MultisigStyles lists the styles a multisig script can be wrapped in.
	MultisigStyles = []Style{P2SH, P2WSH, P2SHP2WSH}
)

// ParseStyle maps a style name, or one of its aliases, to a Style.
func ParseStyle(s string) (Style, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	if style, ok := aliases[s]; ok {
		return style, nil
	}
	for style, info := range styles {
		if info.name == s {
			return style, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnsupportedStyle, s)
}

// ParseStyles parses every name in names.
func ParseStyles(names []string) ([]Style, error) {
	parsed := make([]Style, 0, len(names))
	for _, name := range names {
		style, err := ParseStyle(name)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, style)
	}

	return parsed, nil
}

func (s Style) String() string {
	if info, ok := styles[s]; ok {
		return info.name
	}
	return fmt.Sprintf("Style(%d)", uint8(s))
}

// Valid reports whether s is a known style.
func (s Style) Valid() bool {
	_, ok := styles[s]
	return ok
}

// IsSegwit reports whether spends of s are witness spends, which lets a
// PSBT carry only the spent output instead of the whole funding
// transaction.
func (s Style) IsSegwit() bool {
	return styles[s].segwit
}

// IsWrapped reports whether s nests a witness program inside P2SH.
func (s Style) IsWrapped() bool {
	return styles[s].wrapped
}

// IsSingleKey reports whether s can be built from one public key.
func (s Style) IsSingleKey() bool {
	return styles[s].singleKey
}

// IsMultisig reports whether s can wrap a multisig script.
func (s Style) IsMultisig() bool {
	return styles[s].multisig
}

// Purpose is the BIP44-style purpose used for single key derivation.
func (s Style) Purpose() uint32 {
	return styles[s].purpose
}
