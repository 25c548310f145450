// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

package psbtfaker

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"
	"github.com/nydig/psbtfaker/faker"
	"github.com/nydig/psbtfaker/packet"
	"github.com/nydig/psbtfaker/script"
	"go.uber.org/zap/zapcore"
)

const (
	defaultConfigFilename = "psbtfaker.conf"
	defaultNumInputs      = 3
	defaultNumOutputs     = 1
	defaultNumChange      = 1
	defaultFee            = 1000
	defaultDebugLevel     = "info"

	// LockTimeCurrent asks for the chain tip height as locktime.
	LockTimeCurrent = "current"

	// DefaultTipURL answers a GET with the current block height as a
	// decimal number.
	DefaultTipURL = "https://mempool.space/api/blocks/tip/height"

	// SimulatorXPub is the master public key of the Coldcard simulator,
	// used when no XPUB argument is given.
	SimulatorXPub = "tpubD6NzVbkrYhZ4XzL5Dhayo67Gorv1YMS7j8pRUvVMd5odC2L" +
		"BPLAygka9p7748JtSq82FNGPppFEz5xxZUdasBRCqJqXvUHq6xpnsMcYJzeh"
)

var (
	// DefaultFakerDir is the default directory where psbtfaker looks for
	// its configuration file. This is a directory in the user's
	// application data, for example:
	//   C:\Users\<username>\AppData\Local\Psbtfaker on Windows
	//   ~/.psbtfaker on Linux
	//   ~/Library/Application Support/Psbtfaker on MacOS
	DefaultFakerDir = btcutil.AppDataDir("psbtfaker", false)

	// DefaultConfigFile is the default full path of psbtfaker's
	// configuration file.
	DefaultConfigFile = filepath.Join(DefaultFakerDir, defaultConfigFilename)

	// ErrBadOpReturn is returned for an --op-return value that is not
	// AMOUNT:HEX.
	ErrBadOpReturn = errors.New("op-return must be AMOUNT:HEX")

	// ErrBadLockTime is returned for a --locktime that is neither a
	// number nor "current".
	ErrBadLockTime = errors.New("bad locktime")

	// ErrFlagConflict is returned when mutually exclusive flags are set.
	ErrFlagConflict = errors.New("conflicting flags")
)

// Config defines the configuration options for psbtfaker.
//
// See LoadConfig for further details regarding the configuration
// loading+parsing process.
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level: debug, info, warn or error"`

	NumInputs   int     `short:"i" long:"num-ins" description:"Number of inputs"`
	NumOutputs  int     `short:"n" long:"num-outs" description:"Number of outputs, not counting change"`
	NumChange   int     `short:"c" long:"num-change" description:"Number of change outputs"`
	Fee         int64   `short:"f" long:"fee" description:"Miner's fee in satoshis"`
	InputAmount int64   `long:"input-amount" description:"Value of each input in satoshis (default 1 BTC, or 100000 for multisig)"`
	Amounts     []int64 `long:"amount" description:"Explicit output value in satoshis, one per output including change"`

	Styles  []string `short:"a" long:"styles" description:"Output address style (multiple ok): p2pkh, p2wpkh, p2sh, p2wsh, p2sh-p2wpkh, p2sh-p2wsh, p2tr"`
	Segwit  bool     `short:"s" long:"segwit" description:"Use native segwit inputs and change"`
	Wrapped bool     `short:"w" long:"wrapped" description:"Use P2SH wrapped segwit inputs and change"`
	Taproot bool     `long:"taproot" description:"Use taproot inputs and change (single signer only)"`
	Legacy  bool     `long:"legacy" description:"Use P2SH multisig inputs instead of P2WSH"`

	Base64  bool `short:"6" long:"base64" description:"Write base64 instead of binary"`
	Testnet bool `short:"t" long:"testnet" description:"Use testnet addresses and coin type"`
	Regtest bool `long:"regtest" description:"Use regtest addresses and coin type"`

	Partial bool `short:"p" long:"partial" description:"Make input 0 belong to someone else"`
	ZeroXFP bool `short:"z" long:"zero-xfp" description:"Ignore XPUB and use a zero master fingerprint"`

	MultisigFile string   `short:"m" long:"multisig" description:"Multisig wallet export file"`
	LockTime     string   `short:"l" long:"locktime" description:"nLockTime as a number, or 'current' for the chain tip height (multisig default)"`
	Sequences    []uint32 `long:"sequence" description:"Explicit input sequence, one per input"`
	XPubs        bool     `short:"x" long:"xpubs" description:"Include global xpub records"`
	PsbtVersion  uint32   `short:"V" long:"psbt-version" description:"PSBT version: 0 or 2"`
	NoBIP67      bool     `long:"no-bip67" description:"Keep multisig keys in file order"`
	OpReturns    []string `long:"op-return" description:"Add an OP_RETURN output as AMOUNT:HEX (multiple ok)"`
	TipURL       string   `long:"tipurl" description:"URL returning the current block height"`

	Args struct {
		OutPSBT string `positional-arg-name:"OUTPUT.PSBT" required:"yes"`
		XPub    string `positional-arg-name:"XPUB"`
	} `positional-args:"yes"`

	// ActiveNetParams contains parameters of the target chain.
	ActiveNetParams chaincfg.Params

	// Everything below is filled in by ValidateConfig.
	logLevel     zapcore.Level
	inputStyle   script.Style
	outputStyles []script.Style
	version      packet.Version
	nullData     []faker.NullData
	fetchTip     bool
	lockTime     uint32
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		ConfigFile: DefaultConfigFile,
		DebugLevel: defaultDebugLevel,
		NumInputs:  defaultNumInputs,
		NumOutputs: defaultNumOutputs,
		NumChange:  defaultNumChange,
		Fee:        defaultFee,
		TipURL:     DefaultTipURL,
	}
}

// LoadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func LoadConfig() (*Config, error) {
	// Pre-parse the command line options to pick up an alternative config
	// file.
	preCfg := DefaultConfig()
	if _, err := flags.Parse(&preCfg); err != nil {
		return nil, err
	}

	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)

	// User did specify an explicit --configfile, so we check that it does
	// exist under that path to avoid surprises.
	configFilePath := CleanAndExpandPath(preCfg.ConfigFile)
	if configFilePath != DefaultConfigFile && !fileExists(configFilePath) {
		return nil, fmt.Errorf("specified config file does not exist "+
			"in %s", configFilePath)
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := DefaultConfig()
	fileParser := flags.NewParser(&cfg, flags.Default)
	err := flags.NewIniParser(fileParser).ParseFile(configFilePath)
	if err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		if _, ok := err.(*flags.IniError); ok {
			return nil, err
		}

		configFileError = err
	}

	// Finally, parse the remaining command line options again to ensure
	// they take precedence.
	flagParser := flags.NewParser(&cfg, flags.Default)
	if _, err := flagParser.Parse(); err != nil {
		return nil, err
	}

	// Make sure everything we just loaded makes sense.
	cleanCfg, err := ValidateConfig(cfg)
	if usageErr, ok := err.(*usageError); ok {
		// The logging system might not yet be initialized, so we also
		// write to stderr to make sure the error appears somewhere.
		_, _ = fmt.Fprintln(os.Stderr, usageMessage)
		fakerLog.Warnf("Incorrect usage: %v", usageMessage)
		fakerLog.Warnf("Error validating config: %v", usageErr.err)

		return nil, usageErr.err
	}
	if err != nil {
		fakerLog.Warnf("Error validating config: %v", err)

		return nil, err
	}

	SetLogLevel(cleanCfg.logLevel)

	// A missing default config file is normal, so only mention it when
	// debugging.
	if configFileError != nil {
		fakerLog.Debugf("%v", configFileError)
	}

	return cleanCfg, nil
}

// usageError is an error type that signals a problem with the supplied flags.
type usageError struct {
	err error
}

// Error returns the error string.
//
// NOTE: This is part of the error interface.
func (u *usageError) Error() string {
	return u.err.Error()
}

// Unwrap returns the underlying error.
func (u *usageError) Unwrap() error {
	return u.err
}

// ValidateConfig check the given configuration to be sane. This makes sure no
// illegal values or combination of values are set. The output path is
// normalized. The cleaned up config is returned on success.
func ValidateConfig(cfg Config) (*Config, error) {
	funcName := "ValidateConfig"
	mkErr := func(format string, args ...interface{}) error {
		return &usageError{
			err: fmt.Errorf(funcName+": "+format, args...),
		}
	}

	var err error
	cfg.logLevel, err = zapcore.ParseLevel(cfg.DebugLevel)
	if err != nil {
		return nil, mkErr("invalid debuglevel: %w", err)
	}

	if cfg.Args.OutPSBT == "" {
		return nil, mkErr("output file required")
	}
	cfg.Args.OutPSBT = CleanAndExpandPath(cfg.Args.OutPSBT)
	cfg.MultisigFile = CleanAndExpandPath(cfg.MultisigFile)

	if cfg.Args.XPub == "" {
		cfg.Args.XPub = SimulatorXPub
	}

	switch {
	case cfg.Testnet && cfg.Regtest:
		return nil, mkErr("%w: --testnet and --regtest",
			ErrFlagConflict)

	case cfg.Testnet:
		cfg.ActiveNetParams = chaincfg.TestNet3Params

	case cfg.Regtest:
		cfg.ActiveNetParams = chaincfg.RegressionNetParams

	default:
		cfg.ActiveNetParams = chaincfg.MainNetParams
	}

	cfg.version, err = packet.ParseVersion(cfg.PsbtVersion)
	if err != nil {
		return nil, mkErr("%w", err)
	}

	if cfg.NumInputs < 1 {
		return nil, mkErr("need at least one input")
	}
	if cfg.NumOutputs < 0 || cfg.NumChange < 0 ||
		cfg.NumOutputs+cfg.NumChange < 1 {

		return nil, mkErr("need at least one output")
	}
	if cfg.Fee < 0 || cfg.InputAmount < 0 {
		return nil, mkErr("fee and input amount can't be negative")
	}

	multisig := cfg.MultisigFile != ""
	if err := cfg.resolveInputStyle(multisig); err != nil {
		return nil, mkErr("%w", err)
	}

	cfg.outputStyles, err = script.ParseStyles(cfg.Styles)
	if err != nil {
		return nil, mkErr("%w", err)
	}
	if len(cfg.outputStyles) == 0 {
		cfg.outputStyles = []script.Style{cfg.inputStyle}
	}

	for _, arg := range cfg.OpReturns {
		nd, err := parseOpReturn(arg)
		if err != nil {
			return nil, mkErr("%w", err)
		}
		cfg.nullData = append(cfg.nullData, nd)
	}

	switch {
	case cfg.LockTime == LockTimeCurrent:
		cfg.fetchTip = true

	case cfg.LockTime == "":
		cfg.fetchTip = multisig

	default:
		lockTime, err := strconv.ParseUint(cfg.LockTime, 10, 32)
		if err != nil {
			return nil, mkErr("%w: %q", ErrBadLockTime, cfg.LockTime)
		}
		cfg.lockTime = uint32(lockTime)
	}

	// All good, return the sanitized result.
	return &cfg, nil
}

// resolveInputStyle turns the style flags into the style of inputs and change.
func (c *Config) resolveInputStyle(multisig bool) error {
	set := 0
	for _, flag := range []bool{c.Segwit, c.Wrapped, c.Taproot, c.Legacy} {
		if flag {
			set++
		}
	}
	if set > 1 {
		return fmt.Errorf("%w: pick one of --segwit, --wrapped, "+
			"--taproot and --legacy", ErrFlagConflict)
	}

	if multisig {
		switch {
		case c.Taproot:
			return fmt.Errorf("%w: --taproot with --multisig",
				ErrFlagConflict)

		case c.Partial:
			return fmt.Errorf("%w: --partial with --multisig",
				ErrFlagConflict)

		case c.Legacy:
			c.inputStyle = script.P2SH

		case c.Wrapped:
			c.inputStyle = script.P2SHP2WSH

		default:
			c.inputStyle = script.P2WSH
		}

		return nil
	}

	switch {
	case c.Legacy:
		return fmt.Errorf("%w: --legacy without --multisig",
			ErrFlagConflict)

	case c.Taproot:
		c.inputStyle = script.P2TR

	case c.Wrapped:
		c.inputStyle = script.P2SHP2WPKH

	case c.Segwit:
		c.inputStyle = script.P2WPKH

	default:
		c.inputStyle = script.P2PKH
	}

	return nil
}

// parseOpReturn reads an AMOUNT:HEX pair, where AMOUNT is in satoshis.
func parseOpReturn(arg string) (faker.NullData, error) {
	amountStr, dataHex, ok := strings.Cut(arg, ":")
	if !ok {
		return faker.NullData{}, fmt.Errorf("%w: %q", ErrBadOpReturn,
			arg)
	}

	amount, err := strconv.ParseInt(amountStr, 10, 64)
	if err != nil || amount < 0 {
		return faker.NullData{}, fmt.Errorf("%w: %q", ErrBadOpReturn,
			arg)
	}

	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return faker.NullData{}, fmt.Errorf("%w: %v", ErrBadOpReturn,
			err)
	}

	return faker.NullData{Amount: btcutil.Amount(amount), Data: data}, nil
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}
