// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

package policy

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/nydig/psbtfaker/keyring"
	"github.com/nydig/psbtfaker/script"
)

var policyRE = regexp.MustCompile(`(\d+)\D*(\d+)`)

// ParseConfig reads the plain text multisig wallet format:
//
//	# Coldcard multisig setup file
//	Name: MyWallet
//	Policy: 2 of 3
//	Derivation: m/48'/1'/0'/2'
//	Format: P2WSH
//
//	0F056943: tpubD...
//	6BA6CFD0: tpubD...
//	747B698E: tpubD...
//
// A Derivation line applies to the keys after it. A bare extended key line
// gets fingerprint 00000000. Text after # is a comment unless a digit
// follows it. Unknown labels are ignored. Format defaults to p2sh.
func ParseConfig(r io.Reader) (*Multisig, error) {
	var (
		ms = &Multisig{
			Format: script.P2SH,
			M:      -1,
			N:      -1,
		}
		path    keyring.DerivationPath
		scanner = bufio.NewScanner(r)
		lineNum int
	)

	lineErr := func(label string, err error) error {
		return fmt.Errorf("%w: line %d (%s): %v", ErrBadConfigLine,
			lineNum, label, err)
	}

	for scanner.Scan() {
		lineNum++
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}

		var label, value string
		if before, after, found := strings.Cut(line, ":"); found {
			label = strings.ToLower(strings.TrimSpace(before))
			value = strings.TrimSpace(after)
		} else if strings.Contains(line, "pub") {
			label, value = keyring.ZeroFingerprint.String(), line
		} else {
			continue
		}

		switch {
		case label == "name":
			ms.Name = value

		case label == "policy":
			match := policyRE.FindStringSubmatch(value)
			if match == nil {
				return nil, lineErr(label, ErrPolicyRange)
			}
			// The regexp only admits digits.
			ms.M, _ = strconv.Atoi(match[1])
			ms.N, _ = strconv.Atoi(match[2])
			if ms.M < 1 || ms.M > ms.N || ms.N > MaxCosigners {
				return nil, lineErr(label, ErrPolicyRange)
			}

		case label == "derivation":
			if value == "" {
				return nil, lineErr(label,
					keyring.ErrBadPathSegment)
			}
			var err error
			path, err = keyring.ParsePath(value)
			if err != nil {
				return nil, lineErr(label, err)
			}

		case label == "format":
			format, err := script.ParseStyle(value)
			if err != nil {
				return nil, lineErr(label, err)
			}
			if !format.IsMultisig() {
				return nil, lineErr(label, ErrBadFormat)
			}
			ms.Format = format

		case len(label) == 8:
			fp, err := keyring.ParseFingerprint(label)
			if err != nil {
				return nil, lineErr(label, err)
			}
			key, err := keyring.ParseExtendedKey(value)
			if err != nil {
				return nil, lineErr(label, err)
			}
			ms.Cosigners = append(ms.Cosigners, Cosigner{
				Fingerprint: fp,
				Path:        path.Child(),
				Key:         key,
			})

		default:
			log.Debugw("Skipping unknown multisig config label",
				"line", lineNum, "label", label)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if ms.M == -1 {
		return nil, ErrMissingPolicy
	}

	if err := ms.Validate(); err != nil {
		return nil, err
	}

	log.Infow("Loaded multisig config", "name", ms.Name, "m", ms.M,
		"n", ms.N, "format", ms.Format)

	return ms, nil
}

// stripComment drops everything from a # that is not followed by a digit
// and trims the rest. A line starting with # is dropped entirely.
func stripComment(line string) string {
	if strings.HasPrefix(line, "#") {
		return ""
	}

	if idx := strings.Index(line, "#"); idx >= 0 {
		rest := line[idx+1:]
		if rest == "" || rest[0] < '0' || rest[0] > '9' {
			line = line[:idx]
		}
	}

	return strings.TrimSpace(line)
}
