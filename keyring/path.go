// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

package keyring

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
)

// Fingerprint is the first four bytes of hash160 of a master public key.
type Fingerprint [4]byte

var (
	// ZeroFingerprint is recorded when keys come from the simulator seed.
	ZeroFingerprint Fingerprint

	// PartialFingerprint marks an input as belonging to somebody else.
	PartialFingerprint = Fingerprint{'N', 'o', 'p', 'e'}
)

// ParseFingerprint parses 8 hex digits.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint

	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(b) != len(fp) {
		return fp, fmt.Errorf("%w: %q", ErrBadFingerprint, s)
	}
	copy(fp[:], b)

	return fp, nil
}

func (f Fingerprint) String() string {
	return strings.ToUpper(hex.EncodeToString(f[:]))
}

// Uint32 returns the fingerprint in the little-endian integer form used by
// the psbt package.
func (f Fingerprint) Uint32() uint32 {
	return binary.LittleEndian.Uint32(f[:])
}

// DerivationPath is a list of BIP32 child indexes.
type DerivationPath []uint32

// ParsePath parses paths like "m/48'/1h/0p/2". Hardened steps are marked
// with ', h or p. A leading "m" and empty segments are ignored.
func ParsePath(s string) (DerivationPath, error) {
	var path DerivationPath

	for _, seg := range strings.Split(strings.TrimSpace(s), "/") {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "m" || seg == "M" {
			continue
		}

		offset := uint32(0)
		switch seg[len(seg)-1] {
		case '\'', 'h', 'H', 'p', 'P':
			offset = hdkeychain.HardenedKeyStart
			seg = seg[:len(seg)-1]
		}

		idx, err := strconv.ParseUint(seg, 10, 32)
		if err != nil || idx >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("%w: %q", ErrBadPathSegment, seg)
		}

		path = append(path, uint32(idx)+offset)
	}

	return path, nil
}

// Child returns a copy of the path extended by idx.
func (p DerivationPath) Child(idx ...uint32) DerivationPath {
	child := make(DerivationPath, 0, len(p)+len(idx))
	child = append(child, p...)
	return append(child, idx...)
}

func (p DerivationPath) String() string {
	var sb strings.Builder
	sb.WriteString("m")

	for _, idx := range p {
		sb.WriteString("/")
		if idx >= hdkeychain.HardenedKeyStart {
			sb.WriteString(strconv.FormatUint(
				uint64(idx-hdkeychain.HardenedKeyStart), 10,
			))
			sb.WriteString("h")
			continue
		}
		sb.WriteString(strconv.FormatUint(uint64(idx), 10))
	}

	return sb.String()
}

// KeyOrigin is a (fingerprint, path) pair as recorded in PSBT key-origin
// fields.
type KeyOrigin struct {
	Fingerprint Fingerprint
	Path        DerivationPath
}

// Derivation builds the PSBT record for a compressed public key.
func (o KeyOrigin) Derivation(pubKey []byte) *psbt.Bip32Derivation {
	return &psbt.Bip32Derivation{
		PubKey:               pubKey,
		MasterKeyFingerprint: o.Fingerprint.Uint32(),
		Bip32Path:            o.Path.Child(),
	}
}

// TaprootDerivation builds the PSBT record for an x-only key spent through
// the key path.
func (o KeyOrigin) TaprootDerivation(
	xOnlyPubKey []byte) *psbt.TaprootBip32Derivation {

	return &psbt.TaprootBip32Derivation{
		XOnlyPubKey:          xOnlyPubKey,
		MasterKeyFingerprint: o.Fingerprint.Uint32(),
		Bip32Path:            o.Path.Child(),
	}
}

// Serialize returns the fingerprint followed by the little-endian path.
func (o KeyOrigin) Serialize() []byte {
	return psbt.SerializeBIP32Derivation(
		o.Fingerprint.Uint32(), o.Path,
	)
}

func (o KeyOrigin) String() string {
	return o.Fingerprint.String() + strings.TrimPrefix(o.Path.String(), "m")
}
