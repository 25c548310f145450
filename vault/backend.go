// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

package vault

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"
	"github.com/nydig/psbtfaker/faker"
	"github.com/nydig/psbtfaker/keyring"
	"github.com/nydig/psbtfaker/packet"
	"github.com/nydig/psbtfaker/script"
)

// walletEntry is what we store per wallet.
type walletEntry struct {
	Seed    []byte `json:"seed"`
	Network string `json:"network"`
}

func (b *backend) listWallets(ctx context.Context, req *logical.Request,
	data *framework.FieldData) (*logical.Response, error) {

	wallets, err := req.Storage.List(ctx, walletsPrefix)
	if err != nil {
		b.Logger().Error("Failed to retrieve the list of wallets",
			"error", err)
		return nil, err
	}

	respData := make(map[string]interface{})
	for _, wallet := range wallets {
		_, net, err := b.getWallet(ctx, req.Storage, wallet)
		if err != nil {
			b.Logger().Error("Failed to retrieve wallet info",
				"wallet", wallet, "error", err)
			return nil, err
		}

		respData[wallet] = net.Name
	}

	return &logical.Response{
		Data: respData,
	}, nil
}

func (b *backend) createWallet(ctx context.Context, req *logical.Request,
	data *framework.FieldData) (*logical.Response, error) {

	strNet := data.Get("network").(string)
	net, err := GetNet(strNet)
	if err != nil {
		b.Logger().Error("Failed to parse network", "error", err)
		return nil, err
	}

	var (
		seed   []byte
		master *keyring.ExtendedKey
	)
	defer func() { zero(seed) }()

	err = hdkeychain.ErrUnusableSeed
	for errors.Is(err, hdkeychain.ErrUnusableSeed) {
		seed, err = hdkeychain.GenerateSeed(
			hdkeychain.RecommendedSeedLen,
		)
		if err != nil {
			break
		}
		master, err = keyring.NewMaster(seed, net)
	}
	if err != nil {
		b.Logger().Error("Failed to generate new wallet seed",
			"error", err)
		return nil, err
	}

	id, err := b.storeWallet(ctx, req.Storage, seed, master, strNet)
	if err != nil {
		return nil, err
	}

	b.Logger().Info("Wrote new wallet seed", "wallet", id)

	return &logical.Response{
		Data: map[string]interface{}{
			"wallet": id,
		},
	}, nil
}

func (b *backend) importWallet(ctx context.Context, req *logical.Request,
	data *framework.FieldData) (*logical.Response, error) {

	strNet := data.Get("network").(string)
	net, err := GetNet(strNet)
	if err != nil {
		b.Logger().Error("Failed to parse network", "error", err)
		return nil, err
	}

	seed, err := hex.DecodeString(data.Get("seed").(string))
	if err != nil || len(seed) < hdkeychain.MinSeedBytes ||
		len(seed) > hdkeychain.MaxSeedBytes {

		b.Logger().Error("Invalid seed", "error", err)
		return nil, ErrInvalidSeed
	}
	defer zero(seed)

	master, err := keyring.NewMaster(seed, net)
	if err != nil {
		b.Logger().Error("Failed to derive master key", "error", err)
		return nil, err
	}

	id, err := b.storeWallet(ctx, req.Storage, seed, master, strNet)
	if err != nil {
		return nil, err
	}

	b.Logger().Info("Imported wallet seed", "wallet", id)

	return &logical.Response{
		Data: map[string]interface{}{
			"wallet": id,
		},
	}, nil
}

// storeWallet writes seed under the master fingerprint and returns the
// fingerprint as the wallet id.
func (b *backend) storeWallet(ctx context.Context, storage logical.Storage,
	seed []byte, master *keyring.ExtendedKey, strNet string) (string,
	error) {

	fp, err := master.Fingerprint()
	if err != nil {
		return "", err
	}
	id := strings.ToLower(fp.String())

	existing, err := storage.Get(ctx, walletsPrefix+id)
	if err != nil {
		return "", err
	}
	if existing != nil {
		b.Logger().Error("Wallet already exists", "wallet", id)
		return "", ErrWalletExists
	}

	entry, err := logical.StorageEntryJSON(walletsPrefix+id, &walletEntry{
		Seed:    seed,
		Network: strNet,
	})
	if err != nil {
		return "", err
	}
	entry.SealWrap = true

	if err := storage.Put(ctx, entry); err != nil {
		b.Logger().Error("Failed to save seed for wallet",
			"error", err)
		return "", err
	}

	return id, nil
}

func (b *backend) getWallet(ctx context.Context, storage logical.Storage,
	id string) (*keyring.ExtendedKey, *chaincfg.Params, error) {

	if _, err := keyring.ParseFingerprint(id); err != nil {
		return nil, nil, ErrInvalidWalletID
	}

	entry, err := storage.Get(ctx, walletsPrefix+strings.ToLower(id))
	if err != nil {
		return nil, nil, err
	}

	if entry == nil {
		return nil, nil, ErrWalletNotFound
	}

	var wallet walletEntry
	if err := entry.DecodeJSON(&wallet); err != nil {
		return nil, nil, err
	}
	defer zero(wallet.Seed)

	if len(wallet.Seed) < hdkeychain.MinSeedBytes ||
		len(wallet.Seed) > hdkeychain.MaxSeedBytes {

		return nil, nil, ErrInvalidSeedFromStorage
	}

	net, err := GetNet(wallet.Network)
	if err != nil {
		return nil, nil, err
	}

	master, err := keyring.NewMaster(wallet.Seed, net)
	if err != nil {
		return nil, nil, err
	}

	return master, net, nil
}

func (b *backend) keyRing(ctx context.Context, storage logical.Storage,
	id string) (*keyring.KeyRing, *keyring.ExtendedKey, *chaincfg.Params,
	error) {

	master, net, err := b.getWallet(ctx, storage, id)
	if err != nil {
		b.Logger().Error("Failed to retrieve wallet info",
			"wallet", id, "error", err)
		return nil, nil, nil, err
	}

	fp, err := master.Fingerprint()
	if err != nil {
		return nil, nil, nil, err
	}

	return keyring.NewKeyRing(master, fp, net.HDCoinType), master, net,
		nil
}

func (b *backend) accountXPub(ctx context.Context, req *logical.Request,
	data *framework.FieldData) (*logical.Response, error) {

	strWallet := data.Get("wallet").(string)

	ring, _, _, err := b.keyRing(ctx, req.Storage, strWallet)
	if err != nil {
		return nil, err
	}

	purpose := data.Get("purpose").(int)
	switch purpose {
	case 44, 49, 84, 86:
	default:
		return logical.ErrorResponse(fmt.Sprintf("unsupported "+
			"purpose %d", purpose)), nil
	}

	xpub, origin, err := ring.AccountXPub(uint32(purpose))
	if err != nil {
		b.Logger().Error("Failed to derive account xpub",
			"wallet", strWallet, "error", err)
		return nil, err
	}

	return &logical.Response{
		Data: map[string]interface{}{
			"xpub":        xpub.String(),
			"fingerprint": strings.ToLower(origin.Fingerprint.String()),
			"path":        origin.Path.String(),
		},
	}, nil
}

// intField reads a non-negative integer field.
func intField(data *framework.FieldData, name string) (int, error) {
	v := data.Get(name).(int)
	if v < 0 {
		return 0, fmt.Errorf("%w: %s", ErrNegativeField, name)
	}
	return v, nil
}

// fakeParams turns request fields into faker parameters.
func fakeParams(data *framework.FieldData, master *keyring.ExtendedKey,
	net *chaincfg.Params) (*faker.Params, error) {

	fields := make(map[string]int)
	for _, name := range []string{"num_ins", "num_outs", "num_change",
		"fee", "input_amount", "locktime", "psbt_version"} {

		v, err := intField(data, name)
		if err != nil {
			return nil, err
		}
		fields[name] = v
	}

	style, err := script.ParseStyle(data.Get("style").(string))
	if err != nil {
		return nil, err
	}

	styles, err := script.ParseStyles(data.Get("styles").([]string))
	if err != nil {
		return nil, err
	}
	if len(styles) == 0 {
		styles = []script.Style{style}
	}

	version, err := packet.ParseVersion(uint32(fields["psbt_version"]))
	if err != nil {
		return nil, err
	}

	numOuts := fields["num_outs"] + fields["num_change"]
	change := make([]int, 0, fields["num_change"])
	for i := fields["num_outs"]; i < numOuts; i++ {
		change = append(change, i)
	}

	return &faker.Params{
		NumInputs:     fields["num_ins"],
		NumOutputs:    numOuts,
		ChangeOutputs: change,
		InputAmount:   btcutil.Amount(fields["input_amount"]),
		Fee:           btcutil.Amount(fields["fee"]),
		InputStyle:    style,
		ChangeStyle:   style,
		OutputStyles:  styles,
		Net:           net,
		LockTime:      uint32(fields["locktime"]),
		Version:       version,
		IncludeXPubs:  data.Get("xpubs").(bool),
		Partial:       data.Get("partial").(bool),
		MasterKey:     master,
	}, nil
}

func (b *backend) fakePsbt(ctx context.Context, req *logical.Request,
	data *framework.FieldData) (*logical.Response, error) {

	strWallet := data.Get("wallet").(string)

	_, master, net, err := b.keyRing(ctx, req.Storage, strWallet)
	if err != nil {
		return nil, err
	}

	params, err := fakeParams(data, master, net)
	if err != nil {
		b.Logger().Info("Bad PSBT request", "error", err)
		return logical.ErrorResponse(err.Error()), nil
	}

	result, err := faker.FakeTxn(params)
	if faker.IsConfigError(err) {
		b.Logger().Info("Bad PSBT request", "error", err)
		return logical.ErrorResponse(err.Error()), nil
	}
	if err != nil {
		b.Logger().Error("Failed to fake PSBT", "wallet", strWallet,
			"error", err)
		return nil, err
	}

	encoded, err := result.Packet.B64Encode()
	if err != nil {
		return nil, err
	}

	outputs := make([]map[string]interface{}, 0, len(result.Outputs))
	for _, out := range result.Outputs {
		outputs = append(outputs, map[string]interface{}{
			"amount":  int64(out.Amount),
			"address": out.Address,
			"change":  out.IsChange,
		})
	}

	b.Logger().Info("Faked PSBT", "wallet", strWallet,
		"txid", result.Txid.String())

	return &logical.Response{
		Data: map[string]interface{}{
			"psbt":    encoded,
			"txid":    result.Txid.String(),
			"fee":     int64(result.Fee),
			"outputs": outputs,
		},
	}, nil
}

// GetNet returns the parameters for a network name.
func GetNet(strNet string) (*chaincfg.Params, error) {
	switch strNet {
	case "mainnet":
		return &chaincfg.MainNetParams, nil

	case "testnet":
		return &chaincfg.TestNet3Params, nil

	case "simnet":
		return &chaincfg.SimNetParams, nil

	case "signet":
		return &chaincfg.SigNetParams, nil

	case "regtest":
		return &chaincfg.RegressionNetParams, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidNetwork, strNet)
	}
}

// zero sets all bytes in the passed slice to zero.  This is used to
// explicitly clear private key material from memory.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func Factory(ctx context.Context, conf *logical.BackendConfig) (logical.Backend,
	error) {

	var b backend
	b.Backend = &framework.Backend{
		Help:  "",
		Paths: framework.PathAppend(b.paths()),
		PathsSpecial: &logical.Paths{
			SealWrapStorage: []string{
				walletsPrefix,
			},
		},
		Secrets:     []*framework.Secret{},
		BackendType: logical.TypeLogical,
	}

	err := b.Setup(ctx, conf)
	if err != nil {
		return nil, err
	}

	return &b, nil
}
