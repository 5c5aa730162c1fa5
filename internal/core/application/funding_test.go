package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
	"github.com/peertrade-network/peertrade-daemon/internal/infrastructure/storage/db/inmemory"
)

func TestApplyDepositObservationFiresMilestonesOnce(t *testing.T) {
	trade := domain.NewTakerTrade(newTestUUID())
	trade.ContractSigned([]byte("contract"), []byte("mk"), []byte("tk"))
	trade.DepositRequestArrived()

	require.True(t, applyDepositObservation(trade, depositObservation{bothSeen: true}))
	require.Equal(t, domain.TradeStatusCodeDepositTxSeenInNetwork, trade.Status.Code)

	// The same observation again is a no-op.
	require.False(t, applyDepositObservation(trade, depositObservation{bothSeen: true}))

	require.True(t, applyDepositObservation(trade, depositObservation{
		bothSeen: true, bothConfirmed: true,
	}))
	require.Equal(t, domain.TradeStatusCodeDepositTxConfirmed, trade.Status.Code)

	require.True(t, applyDepositObservation(trade, depositObservation{
		bothSeen: true, bothConfirmed: true, bothUnlocked: true,
	}))
	require.True(t, trade.IsDepositPhaseDone())

	require.False(t, applyDepositObservation(trade, depositObservation{
		bothSeen: true, bothConfirmed: true, bothUnlocked: true,
	}))
}

func TestApplyDepositObservationSkipsToUnlocked(t *testing.T) {
	// A node that was offline through the confirmation window sees all
	// milestones at once.
	trade := domain.NewTakerTrade(newTestUUID())
	trade.DepositRequestArrived()

	require.True(t, applyDepositObservation(trade, depositObservation{
		bothSeen: true, bothConfirmed: true, bothUnlocked: true,
	}))
	require.True(t, trade.IsDepositPhaseDone())
}

func TestDepositAmountSplit(t *testing.T) {
	trade := domain.NewTakerTrade(newTestUUID())
	trade.Amount = 1000000
	trade.BuyerDepositPct = mustDecimal("15")
	trade.SellerDepositPct = mustDecimal("15")

	require.Equal(t, uint64(150000), depositAmount(trade, true))
	require.Equal(t, uint64(1150000), depositAmount(trade, false))
}

func TestFundEscrowFallsBackToGeneralAccount(t *testing.T) {
	ctx := context.Background()
	wallet := newFakeWallet("w", newFakeChain())
	wallet.reserveBalance = 0
	svc := newTradeService(TradeServiceOpts{
		Identity:    newTestIdentity("w"),
		RepoManager: inmemory.NewDbManager(),
		Wallet:      wallet,
		Messenger:   newFakeBus().messengerFor("w"),
		Network: NetworkParams{
			Name:            "stagenet",
			AddressPrefix:   "5",
			DonationAddress: "5donation",
		},
	})

	trade := domain.NewTakerTrade(newTestUUID())
	trade.Amount = 1000000
	trade.TradeFee = 5000
	trade.BuyerDepositPct = mustDecimal("15")
	trade.SellerDepositPct = mustDecimal("15")
	trade.WalletId = "wallet-1"
	trade.EscrowAddress = "escrow"
	require.NoError(t, svc.tradeRepo().AddTrade(ctx, trade))

	require.NoError(t, svc.fundEscrow(ctx, trade.Id))

	// With an empty reserve, the deposit is funded from the general account
	// and pays the trade fee to the donation address in the same transaction.
	require.Len(t, wallet.createdCfgs, 1)
	cfg := wallet.createdCfgs[0]
	require.Equal(t, generalAccountIndex, cfg.AccountIndex)
	require.Len(t, cfg.Destinations, 2)
	require.Equal(t, "escrow", cfg.Destinations[0].Address)
	require.Equal(t, uint64(150000), cfg.Destinations[0].Amount)
	require.Equal(t, "5donation", cfg.Destinations[1].Address)
	require.Equal(t, uint64(5000), cfg.Destinations[1].Amount)

	funded, err := svc.tradeRepo().GetTrade(ctx, trade.Id)
	require.NoError(t, err)
	require.NotEmpty(t, funded.Self().DepositTxId)
}

func TestWatchPayoutTimesOut(t *testing.T) {
	ctx := context.Background()
	wallet := newFakeWallet("w", newFakeChain())
	svc := newTradeService(TradeServiceOpts{
		Identity:     newTestIdentity("w"),
		RepoManager:  inmemory.NewDbManager(),
		Wallet:       wallet,
		Messenger:    newFakeBus().messengerFor("w"),
		PollInterval: time.Millisecond,
		PollTimeout:  30 * time.Millisecond,
	})

	trade := domain.NewTakerTrade(newTestUUID())
	trade.WalletId = "wallet-1"
	trade.PayoutPublished("never-confirmed-tx")
	require.NoError(t, svc.tradeRepo().AddTrade(ctx, trade))

	// The payout transaction never shows up, the watcher must give up at the
	// poll timeout instead of spinning forever.
	svc.watchPayout(ctx, trade.Id)

	failed, err := svc.tradeRepo().GetTrade(ctx, trade.Id)
	require.NoError(t, err)
	require.True(t, failed.IsFailed())
	require.Equal(t, "payout confirmation timed out", failed.ErrorMessage)
}
