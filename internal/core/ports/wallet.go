package ports

import "context"

// Tx is the wallet service's view of a transaction.
type Tx struct {
	TxId          string
	TxHex         string
	Amount        uint64
	Fee           uint64
	InPool        bool
	Confirmations uint64
	Unlocked      bool
}

// TxDestination is one output of a transaction to create.
type TxDestination struct {
	Address string
	Amount  uint64
}

// TxConfig describes a transaction to be created by the wallet service. An
// empty WalletId targets the main wallet, otherwise the multisig wallet with
// the given handle.
type TxConfig struct {
	WalletId     string
	Destinations []TxDestination
	// AccountIndex selects the funding account of the targeted wallet.
	AccountIndex uint32
	// PaymentId tags the transaction for reconciliation, optional.
	PaymentId string
}

// WalletService wraps the external escrow wallet. It creates and opens
// per-trade multisig wallets, drives the multisig key exchange, builds and
// relays transactions and reports balances and transaction state. Wallet
// internals (key derivation, transaction serialization) are not modeled here.
type WalletService interface {
	// CreateOrOpenMultisigWallet returns the handle of the multisig wallet
	// dedicated to the given trade, creating it on first use.
	CreateOrOpenMultisigWallet(ctx context.Context, tradeId string) (string, error)
	// PrepareMultisig produces the local prepared key-exchange blob.
	PrepareMultisig(ctx context.Context, walletId string) (string, error)
	// MakeMultisig consumes the peers' prepared blobs and produces the made
	// blob for the next exchange round.
	MakeMultisig(ctx context.Context, walletId string, peerBlobs []string) (string, error)
	// ExchangeMultisigKeys finalizes the key exchange and returns the
	// resulting multisig address.
	ExchangeMultisigKeys(ctx context.Context, walletId string, peerBlobs []string) (string, error)
	// ImportMultisigHex imports counterparties' updated multisig key material.
	ImportMultisigHex(ctx context.Context, walletId string, hexes []string) error
	// ExportMultisigHex exports the local updated multisig key material.
	ExportMultisigHex(ctx context.Context, walletId string) (string, error)
	// IsMultisigImportNeeded reports whether the wallet cannot spend before
	// importing the counterparties' updated key material.
	IsMultisigImportNeeded(ctx context.Context, walletId string) (bool, error)
	// GetMultisigAddress returns the escrow deposit address of the wallet.
	GetMultisigAddress(ctx context.Context, walletId string) (string, error)
	// CreateTx builds an unrelayed transaction. The returned Tx carries the
	// fee the wallet computed for it.
	CreateTx(ctx context.Context, cfg TxConfig) (*Tx, error)
	// SignMultisigTx adds the local signature to a partially signed multisig
	// transaction and returns the updated hex.
	SignMultisigTx(ctx context.Context, walletId, txHex string) (string, error)
	// RelayTx broadcasts a previously created transaction and returns its id.
	RelayTx(ctx context.Context, walletId, txHex string) (string, error)
	// SweepUnlocked moves the whole unlocked balance of an account to the
	// given address in one or more transactions.
	SweepUnlocked(ctx context.Context, accountIndex uint32, destAddress string) ([]*Tx, error)
	// GetBalance returns the total balance of an account.
	GetBalance(ctx context.Context, accountIndex uint32) (uint64, error)
	// GetUnlockedBalance returns the spendable balance of an account.
	GetUnlockedBalance(ctx context.Context, accountIndex uint32) (uint64, error)
	// GetTx returns the wallet's view of a transaction, or nil if the wallet
	// does not see it yet.
	GetTx(ctx context.Context, walletId, txId string) (*Tx, error)
	// Sync waits for the wallet to catch up with the network.
	Sync(ctx context.Context) error
}
