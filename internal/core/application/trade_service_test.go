package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
	"github.com/peertrade-network/peertrade-daemon/internal/infrastructure/storage/db/inmemory"
)

type protoNode struct {
	identity Identity
	wallet   *fakeWallet
	trades   TradeService
	disputes DisputeService
}

func (n *protoNode) peerInfo() PeerInfo {
	return PeerInfo{NodeAddress: n.identity.NodeAddress, PubKey: n.identity.PubKeyHex()}
}

func startProtoNode(
	t *testing.T, ctx context.Context, bus *fakeBus, chain *fakeChain,
	address string, tweak func(*TradeServiceOpts),
) *protoNode {
	identity := newTestIdentity(address)
	wallet := newFakeWallet(address, chain)
	opts := TradeServiceOpts{
		Identity:    identity,
		RepoManager: inmemory.NewDbManager(),
		Wallet:      wallet,
		Messenger:   bus.messengerFor(address),
		Network: NetworkParams{
			Name:            "stagenet",
			AddressPrefix:   "5",
			DonationAddress: "5donation",
		},
		PaymentAccountId: address + "-account",
		PayoutAddress:    "5" + address + "-payout",
		PollInterval:     10 * time.Millisecond,
		PollTimeout:      5 * time.Second,
	}
	if tweak != nil {
		tweak(&opts)
	}
	trades, disputes := NewServices(opts)
	require.NoError(t, trades.Start(ctx))
	return &protoNode{
		identity: identity, wallet: wallet, trades: trades, disputes: disputes,
	}
}

func newTestTradeParams(maker, arb *protoNode) InitTradeParams {
	return InitTradeParams{
		OfferId:          newTestUUID(),
		Amount:           250000000000,
		Price:            decimal.RequireFromString("142.35"),
		TradeFee:         1000000,
		TxFee:            30000,
		BuyerDepositPct:  decimal.NewFromInt(15),
		SellerDepositPct: decimal.NewFromInt(15),
		// The taker buys, the maker sells.
		IsBuyerMaker: false,
		Maker:        maker.peerInfo(),
		Arbitrator:   arb.peerInfo(),
	}
}

func getTrade(t *testing.T, ctx context.Context, n *protoNode, id uuid.UUID) *domain.Trade {
	trade, err := n.trades.GetTrade(ctx, id)
	require.NoError(t, err)
	return trade
}

// setupSettledTrade drives the three nodes through initiation, key exchange,
// contract signing and escrow funding until both deposits are unlocked.
func setupSettledTrade(
	t *testing.T, ctx context.Context,
) (*fakeChain, *protoNode, *protoNode, *protoNode, uuid.UUID) {
	bus := newFakeBus()
	chain := newFakeChain()
	maker := startProtoNode(t, ctx, bus, chain, "maker", nil)
	arb := startProtoNode(t, ctx, bus, chain, "arbitrator", nil)
	taker := startProtoNode(t, ctx, bus, chain, "taker", nil)

	tradeId, err := taker.trades.InitTrade(ctx, newTestTradeParams(maker, arb))
	require.NoError(t, err)

	// Taker funds first, then the maker verifies and funds in turn.
	require.Eventually(t, func() bool {
		tt, err := taker.trades.GetTrade(ctx, tradeId)
		if err != nil {
			return false
		}
		mt, err := maker.trades.GetTrade(ctx, tradeId)
		if err != nil {
			return false
		}
		return tt.Self().DepositTxId != "" && mt.Self().DepositTxId != ""
	}, 10*time.Second, 20*time.Millisecond)

	chain.confirmAll()

	require.Eventually(t, func() bool {
		tt, _ := taker.trades.GetTrade(ctx, tradeId)
		mt, _ := maker.trades.GetTrade(ctx, tradeId)
		return tt != nil && mt != nil &&
			tt.IsDepositPhaseDone() && mt.IsDepositPhaseDone()
	}, 10*time.Second, 20*time.Millisecond)

	return chain, taker, maker, arb, tradeId
}

func TestThreeNodeHappyPath(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chain, taker, maker, arb, tradeId := setupSettledTrade(t, ctx)

	tt := getTrade(t, ctx, taker, tradeId)
	mt := getTrade(t, ctx, maker, tradeId)
	at := getTrade(t, ctx, arb, tradeId)

	// All three parties hold the same signed contract and escrow address.
	require.Equal(t, "escrow-address", tt.EscrowAddress)
	require.Equal(t, "escrow-address", mt.EscrowAddress)
	require.Equal(t, string(tt.ContractJson), string(mt.ContractJson))
	require.Equal(t, string(tt.ContractJson), string(at.ContractJson))
	require.NotEmpty(t, tt.MakerContractSignature)
	require.NotEmpty(t, at.TakerContractSignature)

	// With the maker selling, the buyer is the taker.
	require.NoError(t, taker.trades.ConfirmPaymentSent(ctx, tradeId))
	require.Eventually(t, func() bool {
		mt, _ := maker.trades.GetTrade(ctx, tradeId)
		return mt != nil && mt.Status.Code >= domain.TradeStatusCodeSellerReceivedPaymentSentMsg
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, maker.trades.ConfirmPaymentReceived(ctx, tradeId))

	mt = getTrade(t, ctx, maker, tradeId)
	require.Equal(t, domain.TradeStatusCodeCompleted, mt.Status.Code)
	require.Equal(t, domain.PayoutStatusCodePublished, mt.PayoutStatus)
	require.NotEmpty(t, mt.PayoutTxId)

	require.Eventually(t, func() bool {
		tt, _ := taker.trades.GetTrade(ctx, tradeId)
		return tt != nil && tt.IsCompleted() && tt.PayoutTxId == mt.PayoutTxId
	}, 5*time.Second, 20*time.Millisecond)

	chain.confirmAll()

	require.Eventually(t, func() bool {
		tt, _ := taker.trades.GetTrade(ctx, tradeId)
		mt, _ := maker.trades.GetTrade(ctx, tradeId)
		return tt != nil && mt != nil &&
			tt.PayoutStatus == domain.PayoutStatusCodeUnlocked && tt.Closed &&
			mt.PayoutStatus == domain.PayoutStatusCodeUnlocked && mt.Closed
	}, 10*time.Second, 20*time.Millisecond)
}

func TestPaymentSentStoredInMailboxWhileSellerOffline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, taker, maker, _, tradeId := setupSettledTrade(t, ctx)

	takerMessenger := taker.trades.(*tradeService).messenger.(*fakeMessenger)
	sellerMessenger, ok := takerMessenger.bus.lookup(maker.identity.NodeAddress)
	require.True(t, ok)
	sellerMessenger.offline = true

	require.NoError(t, taker.trades.ConfirmPaymentSent(ctx, tradeId))

	// The buyer progressed on the mailbox acknowledgement, the seller never
	// saw the message.
	tt := getTrade(t, ctx, taker, tradeId)
	require.Equal(t, domain.TradeStatusCodeBuyerSentPaymentSentMsg, tt.Status.Code)
	mt := getTrade(t, ctx, maker, tradeId)
	require.Less(t, mt.Status.Code, domain.TradeStatusCodeBuyerSentPaymentSentMsg)
}

func TestDisputeOpenMirrorAndClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, taker, maker, arb, tradeId := setupSettledTrade(t, ctx)

	disputeId, err := taker.disputes.OpenDispute(ctx, tradeId, domain.SupportTypeArbitration)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		d, err := arb.disputes.GetDispute(ctx, disputeId)
		return err == nil && d != nil
	}, 5*time.Second, 20*time.Millisecond)

	tt := getTrade(t, ctx, taker, tradeId)
	require.Equal(t, domain.DisputeStatusCodeOpened, tt.DisputeStatus)

	// The arbitrator mirrors the dispute to the non-opening trader after a
	// grace period.
	require.Eventually(t, func() bool {
		d, err := maker.disputes.GetDispute(ctx, disputeId)
		return err == nil && d != nil && d.Mirrored
	}, 10*time.Second, 50*time.Millisecond)

	require.NoError(t, maker.disputes.SendDisputeChat(ctx, disputeId, "uploading bank statement"))
	require.Eventually(t, func() bool {
		d, err := arb.disputes.GetDispute(ctx, disputeId)
		if err != nil {
			return false
		}
		for _, m := range d.ChatMessages {
			if m.Message == "uploading bank statement" {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	closeParams := CloseDisputeParams{
		DisputeId:          disputeId,
		Winner:             domain.DisputeWinnerSeller,
		BuyerPayoutAmount:  37500000000,
		SellerPayoutAmount: 287500000000,
		SummaryNotes:       "buyer never paid",
	}
	require.NoError(t, arb.disputes.CloseDispute(ctx, closeParams))

	at := getTrade(t, ctx, arb, tradeId)
	require.Equal(t, domain.DisputeStatusCodeClosedMsgArrived, at.DisputeStatus)

	// Both traders countersign and publish the arbitrator's payout.
	require.Eventually(t, func() bool {
		tt, _ := taker.trades.GetTrade(ctx, tradeId)
		mt, _ := maker.trades.GetTrade(ctx, tradeId)
		return tt != nil && mt != nil &&
			tt.PayoutStatus >= domain.PayoutStatusCodePublished &&
			mt.PayoutStatus >= domain.PayoutStatusCodePublished
	}, 10*time.Second, 20*time.Millisecond)

	d, err := taker.disputes.GetDispute(ctx, disputeId)
	require.NoError(t, err)
	require.True(t, d.IsClosed)
	require.Equal(t, domain.DisputeWinnerSeller, d.Result.Winner)
	require.NotEmpty(t, d.Result.UnsignedPayoutTxHex)
	require.NotEmpty(t, d.Result.ArbitratorSignature)

	// The persisted result carries the signature the arbitrator produced over
	// the summary text.
	ad, err := arb.disputes.GetDispute(ctx, disputeId)
	require.NoError(t, err)
	require.NotEmpty(t, ad.Result.ArbitratorSignature)
	require.NoError(t, domain.VerifyContractSignature(
		arb.identity.PubKeyHex(),
		[]byte(formatSummaryText(ad, ad.Result)),
		ad.Result.ArbitratorSignature,
	))

	// Re-closing re-sends the stored decision without rebuilding the payout.
	require.NoError(t, arb.disputes.CloseDispute(ctx, closeParams))
}

func TestInitTradeFallsBackToBackupArbitrator(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newFakeBus()
	chain := newFakeChain()
	maker := startProtoNode(t, ctx, bus, chain, "maker", nil)
	backup := startProtoNode(t, ctx, bus, chain, "arbitrator-backup", nil)
	taker := startProtoNode(t, ctx, bus, chain, "taker", func(o *TradeServiceOpts) {
		o.BackupArbitrator = backup.peerInfo()
	})

	params := newTestTradeParams(maker, backup)
	prime := newTestIdentity("arbitrator-prime")
	params.Arbitrator = PeerInfo{
		NodeAddress: prime.NodeAddress, PubKey: prime.PubKeyHex(),
	}

	tradeId, err := taker.trades.InitTrade(ctx, params)
	require.NoError(t, err)

	tt := getTrade(t, ctx, taker, tradeId)
	require.Equal(t, backup.identity.NodeAddress, tt.Arbitrator().NodeAddress)
	require.Equal(t, backup.identity.PubKeyHex(), tt.Arbitrator().PubKey)

	require.Eventually(t, func() bool {
		at, err := backup.trades.GetTrade(ctx, tradeId)
		return err == nil && at != nil && at.Role == domain.RoleArbitrator
	}, 5*time.Second, 20*time.Millisecond)
}

func TestInitTradeFailsWhenMakerUnreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newFakeBus()
	chain := newFakeChain()
	taker := startProtoNode(t, ctx, bus, chain, "taker", nil)

	params := newTestTradeParams(
		&protoNode{identity: newTestIdentity("maker-gone")},
		&protoNode{identity: newTestIdentity("arbitrator-gone")},
	)

	tradeId, err := taker.trades.InitTrade(ctx, params)
	require.ErrorIs(t, err, ErrInitDeliveryFault)

	tt := getTrade(t, ctx, taker, tradeId)
	require.True(t, tt.IsFailed())
	require.Contains(t, tt.ErrorMessage, "send-init-request")
}
