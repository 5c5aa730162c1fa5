package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"github.com/thanhpk/randstr"

	"github.com/peertrade-network/peertrade-daemon/internal/core/ports"
)

func newTestUUID() uuid.UUID {
	return uuid.New()
}

func newTestIdentity(address string) Identity {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		panic(err)
	}
	return Identity{NodeAddress: address, PrivKey: priv}
}

// fakeBus routes envelopes between in-process fake messengers, one per node
// address, mimicking the relay's direct and mailbox semantics.
type fakeBus struct {
	mtx   sync.Mutex
	nodes map[string]*fakeMessenger
}

func newFakeBus() *fakeBus {
	return &fakeBus{nodes: map[string]*fakeMessenger{}}
}

func (b *fakeBus) messengerFor(address string) *fakeMessenger {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if m, ok := b.nodes[address]; ok {
		return m
	}
	m := &fakeMessenger{
		bus:     b,
		address: address,
		inbound: make(chan ports.Envelope, 128),
	}
	b.nodes[address] = m
	return m
}

func (b *fakeBus) lookup(address string) (*fakeMessenger, bool) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	m, ok := b.nodes[address]
	return m, ok
}

type fakeMessenger struct {
	bus     *fakeBus
	address string
	inbound chan ports.Envelope

	// offline makes direct sends fault and mailbox sends queue.
	offline bool
}

func (m *fakeMessenger) SendDirect(
	ctx context.Context, address, pubKey string, env ports.Envelope,
) (<-chan ports.DeliveryOutcome, error) {
	out := make(chan ports.DeliveryOutcome, 1)
	target, ok := m.bus.lookup(address)
	if !ok || target.offline {
		out <- ports.DeliveryOutcome{
			State: ports.DeliveryFault, Reason: "peer unreachable",
		}
		return out, nil
	}
	target.inbound <- env
	out <- ports.DeliveryOutcome{State: ports.DeliveryArrived}
	return out, nil
}

func (m *fakeMessenger) SendMailbox(
	ctx context.Context, address, pubKey string, env ports.Envelope,
) (<-chan ports.DeliveryOutcome, error) {
	out := make(chan ports.DeliveryOutcome, 1)
	target, ok := m.bus.lookup(address)
	if !ok {
		out <- ports.DeliveryOutcome{
			State: ports.DeliveryFault, Reason: "peer unknown",
		}
		return out, nil
	}
	if target.offline {
		out <- ports.DeliveryOutcome{State: ports.DeliveryStoredInMailbox}
		return out, nil
	}
	target.inbound <- env
	out <- ports.DeliveryOutcome{State: ports.DeliveryArrived}
	return out, nil
}

func (m *fakeMessenger) Inbound() <-chan ports.Envelope {
	return m.inbound
}

func (m *fakeMessenger) Close() error {
	return nil
}

// fakeChain is the shared network view all fake wallets observe.
type fakeChain struct {
	mtx sync.Mutex
	txs map[string]*ports.Tx
}

func newFakeChain() *fakeChain {
	return &fakeChain{txs: map[string]*ports.Tx{}}
}

func (c *fakeChain) add(tx *ports.Tx) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.txs[tx.TxId] = tx
}

func (c *fakeChain) get(txId string) *ports.Tx {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	tx, ok := c.txs[txId]
	if !ok {
		return nil
	}
	cp := *tx
	return &cp
}

// confirmAll marks every known transaction confirmed and unlocked.
func (c *fakeChain) confirmAll() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for _, tx := range c.txs {
		tx.InPool = false
		tx.Confirmations = depositConfirmationsRequired
		tx.Unlocked = true
	}
}

// fakeWallet implements the wallet port over the shared fake chain. Multisig
// material is synthesized from the node name, transaction construction can be
// made to fail on demand to exercise the fee convergence loop.
type fakeWallet struct {
	mtx  sync.Mutex
	name string

	chain            *fakeChain
	reserveBalance   uint64
	txFee            uint64
	createErrQueue   []bool
	alwaysFailCreate bool
	importNeeded     bool

	createdCfgs   []ports.TxConfig
	importedHexes []string
}

func newFakeWallet(name string, chain *fakeChain) *fakeWallet {
	return &fakeWallet{
		name:           name,
		chain:          chain,
		reserveBalance: 1000000000000,
		txFee:          1000,
	}
}

func (w *fakeWallet) CreateOrOpenMultisigWallet(
	ctx context.Context, tradeId string,
) (string, error) {
	return "wallet-" + tradeId, nil
}

func (w *fakeWallet) PrepareMultisig(ctx context.Context, walletId string) (string, error) {
	return w.name + "-prepared", nil
}

func (w *fakeWallet) MakeMultisig(
	ctx context.Context, walletId string, peerBlobs []string,
) (string, error) {
	if len(peerBlobs) != 2 {
		return "", fmt.Errorf("make multisig wants 2 blobs, got %d", len(peerBlobs))
	}
	return w.name + "-made", nil
}

func (w *fakeWallet) ExchangeMultisigKeys(
	ctx context.Context, walletId string, peerBlobs []string,
) (string, error) {
	return "escrow-address", nil
}

func (w *fakeWallet) ImportMultisigHex(
	ctx context.Context, walletId string, hexes []string,
) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.importedHexes = append(w.importedHexes, hexes...)
	return nil
}

func (w *fakeWallet) ExportMultisigHex(ctx context.Context, walletId string) (string, error) {
	return w.name + "-updated-hex", nil
}

func (w *fakeWallet) IsMultisigImportNeeded(ctx context.Context, walletId string) (bool, error) {
	return w.importNeeded, nil
}

func (w *fakeWallet) GetMultisigAddress(ctx context.Context, walletId string) (string, error) {
	return "escrow-address", nil
}

func (w *fakeWallet) CreateTx(ctx context.Context, cfg ports.TxConfig) (*ports.Tx, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.createdCfgs = append(w.createdCfgs, cfg)
	if w.alwaysFailCreate {
		return nil, errors.New("not enough money")
	}
	if len(w.createErrQueue) > 0 {
		fail := w.createErrQueue[0]
		w.createErrQueue = w.createErrQueue[1:]
		if fail {
			return nil, errors.New("not enough money")
		}
	}

	var total uint64
	for _, dest := range cfg.Destinations {
		total += dest.Amount
	}
	txId := w.name + "-tx-" + randstr.Hex(8)
	return &ports.Tx{
		TxId:   txId,
		TxHex:  txId + "-hex",
		Amount: total,
		Fee:    w.txFee,
	}, nil
}

func (w *fakeWallet) SignMultisigTx(
	ctx context.Context, walletId, txHex string,
) (string, error) {
	return txHex + "-signed", nil
}

func (w *fakeWallet) RelayTx(ctx context.Context, walletId, txHex string) (string, error) {
	txId := w.name + "-relayed-" + randstr.Hex(8)
	w.chain.add(&ports.Tx{TxId: txId, TxHex: txHex, InPool: true})
	return txId, nil
}

func (w *fakeWallet) SweepUnlocked(
	ctx context.Context, accountIndex uint32, destAddress string,
) ([]*ports.Tx, error) {
	w.mtx.Lock()
	amount := w.reserveBalance
	w.reserveBalance = 0
	w.mtx.Unlock()
	if amount == 0 {
		return nil, errors.New("no unlocked balance to sweep")
	}
	tx := &ports.Tx{
		TxId:   w.name + "-deposit-" + randstr.Hex(8),
		TxHex:  "deposit-hex",
		Amount: amount,
		Fee:    w.txFee,
		InPool: true,
	}
	w.chain.add(tx)
	return []*ports.Tx{tx}, nil
}

func (w *fakeWallet) GetBalance(ctx context.Context, accountIndex uint32) (uint64, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.reserveBalance, nil
}

func (w *fakeWallet) GetUnlockedBalance(ctx context.Context, accountIndex uint32) (uint64, error) {
	return w.GetBalance(ctx, accountIndex)
}

func (w *fakeWallet) GetTx(ctx context.Context, walletId, txId string) (*ports.Tx, error) {
	return w.chain.get(txId), nil
}

func (w *fakeWallet) Sync(ctx context.Context) error {
	return nil
}

var (
	_ ports.Messenger     = (*fakeMessenger)(nil)
	_ ports.WalletService = (*fakeWallet)(nil)
)
