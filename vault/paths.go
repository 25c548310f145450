// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

package vault

import (
	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"
)

const (
	walletsPrefix = "wallets/"

	defaultNetwork = "regtest"
)

type backend struct {
	*framework.Backend
}

func wrapOp(f framework.OperationFunc) framework.OperationHandler {
	return &framework.PathOperation{
		Callback: f,
	}
}

func walletField() *framework.FieldSchema {
	return &framework.FieldSchema{
		Type: framework.TypeString,
		Description: "wallet master fingerprint, must be " +
			"8 hex characters",
		Default: "",
	}
}

func networkField() *framework.FieldSchema {
	return &framework.FieldSchema{
		Type: framework.TypeString,
		Description: "Network, one of " +
			"'mainnet', 'testnet', " +
			"'simnet', 'signet', or " +
			"'regtest'",
		Default: defaultNetwork,
	}
}

func (b *backend) basePath() *framework.Path {
	return &framework.Path{
		Pattern: "wallets/?",
		Operations: map[logical.Operation]framework.OperationHandler{
			logical.ReadOperation:   wrapOp(b.listWallets),
			logical.UpdateOperation: wrapOp(b.createWallet),
		},
		HelpSynopsis: "Create and list simulated wallets",
		HelpDescription: `

GET  - list all wallet fingerprints and their networks
POST - generate a new wallet seed and store it indexed by master fingerprint

`,
		Fields: map[string]*framework.FieldSchema{
			"network": networkField(),
		},
	}
}

func (b *backend) importPath() *framework.Path {
	return &framework.Path{
		Pattern: "wallets/import/?",
		Operations: map[logical.Operation]framework.OperationHandler{
			logical.UpdateOperation: wrapOp(b.importWallet),
		},
		HelpSynopsis: "Import a wallet from a BIP32 seed",
		HelpDescription: `

POST - store the given seed indexed by master fingerprint

`,
		Fields: map[string]*framework.FieldSchema{
			"network": networkField(),
			"seed": &framework.FieldSchema{
				Type:        framework.TypeString,
				Description: "hex-encoded BIP32 seed",
				Default:     "",
			},
		},
	}
}

func (b *backend) xpubPath() *framework.Path {
	return &framework.Path{
		Pattern: "wallets/xpub/?",
		Operations: map[logical.Operation]framework.OperationHandler{
			logical.ReadOperation: wrapOp(b.accountXPub),
		},
		HelpSynopsis: "Show a wallet account xpub",
		HelpDescription: `

GET - return the m/purpose'/coin'/0' xpub of the wallet with its key origin

`,
		Fields: map[string]*framework.FieldSchema{
			"wallet": walletField(),
			"purpose": &framework.FieldSchema{
				Type:        framework.TypeInt,
				Description: "BIP43 purpose: 44, 49, 84 or 86",
				Default:     84,
			},
		},
	}
}

func (b *backend) psbtPath() *framework.Path {
	return &framework.Path{
		Pattern: "psbt/?",
		Operations: map[logical.Operation]framework.OperationHandler{
			logical.UpdateOperation: wrapOp(b.fakePsbt),
		},
		HelpSynopsis: "Build a fake PSBT spending from a wallet",
		HelpDescription: `

POST - return a base64 PSBT whose inputs belong to the wallet and spend funds
that never existed

`,
		Fields: map[string]*framework.FieldSchema{
			"wallet": walletField(),
			"num_ins": &framework.FieldSchema{
				Type:        framework.TypeInt,
				Description: "number of inputs",
				Default:     3,
			},
			"num_outs": &framework.FieldSchema{
				Type:        framework.TypeInt,
				Description: "number of outputs, not counting change",
				Default:     1,
			},
			"num_change": &framework.FieldSchema{
				Type:        framework.TypeInt,
				Description: "number of change outputs",
				Default:     1,
			},
			"fee": &framework.FieldSchema{
				Type:        framework.TypeInt,
				Description: "miner's fee in satoshis",
				Default:     1000,
			},
			"input_amount": &framework.FieldSchema{
				Type:        framework.TypeInt,
				Description: "value of each input in satoshis",
				Default:     100000000,
			},
			"style": &framework.FieldSchema{
				Type: framework.TypeString,
				Description: "input and change style: " +
					"p2pkh, p2wpkh, p2sh-p2wpkh " +
					"or p2tr",
				Default: "p2wpkh",
			},
			"styles": &framework.FieldSchema{
				Type:        framework.TypeCommaStringSlice,
				Description: "output styles, default is style",
				Default:     []string{},
			},
			"locktime": &framework.FieldSchema{
				Type:        framework.TypeInt,
				Description: "transaction nLockTime",
				Default:     0,
			},
			"psbt_version": &framework.FieldSchema{
				Type:        framework.TypeInt,
				Description: "PSBT version, 0 or 2",
				Default:     0,
			},
			"partial": &framework.FieldSchema{
				Type:        framework.TypeBool,
				Description: "make input 0 belong to someone else",
				Default:     false,
			},
			"xpubs": &framework.FieldSchema{
				Type:        framework.TypeBool,
				Description: "include the account xpub",
				Default:     false,
			},
		},
	}
}

func (b *backend) paths() []*framework.Path {
	return []*framework.Path{
		b.basePath(),
		b.importPath(),
		b.xpubPath(),
		b.psbtPath(),
	}
}
