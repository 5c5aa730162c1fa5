package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peertrade-network/peertrade-daemon/internal/core/ports"
	"github.com/peertrade-network/peertrade-daemon/internal/infrastructure/storage/db/inmemory"
)

func newPayoutTestService(wallet *fakeWallet) *tradeService {
	return newTradeService(TradeServiceOpts{
		Identity:    newTestIdentity("payout-node"),
		RepoManager: inmemory.NewDbManager(),
		Wallet:      wallet,
		Messenger:   newFakeBus().messengerFor("payout-node"),
	})
}

func TestConstructPayoutLoserAbsorbsFee(t *testing.T) {
	wallet := newFakeWallet("w", newFakeChain())
	wallet.txFee = 1000
	svc := newPayoutTestService(wallet)

	winner := ports.TxDestination{Address: "winner", Amount: 280000000000}
	loser := ports.TxDestination{Address: "loser", Amount: 7500000000}

	tx, err := svc.constructPayoutTx(context.Background(), "wallet-1", winner, loser)
	require.NoError(t, err)
	require.NotNil(t, tx)

	// Trial at reduced amounts, then the real transaction with the fee taken
	// from the loser's share.
	require.Len(t, wallet.createdCfgs, 2)
	trial := wallet.createdCfgs[0]
	require.Equal(t, winner.Amount*trialAmountPct/100, trial.Destinations[0].Amount)

	final := wallet.createdCfgs[1]
	require.Equal(t, winner.Amount, final.Destinations[0].Amount)
	require.Equal(t, loser.Amount-1000, final.Destinations[1].Amount)
}

func TestConstructPayoutTrialKeepsSmallAmounts(t *testing.T) {
	wallet := newFakeWallet("w", newFakeChain())
	wallet.txFee = 1
	svc := newPayoutTestService(wallet)

	// Amounts below 100 atomic units must still produce non-zero trial
	// outputs.
	winner := ports.TxDestination{Address: "winner", Amount: 50}
	loser := ports.TxDestination{Address: "loser", Amount: 30}

	_, err := svc.constructPayoutTx(context.Background(), "wallet-1", winner, loser)
	require.NoError(t, err)

	trial := wallet.createdCfgs[0]
	require.Equal(t, uint64(45), trial.Destinations[0].Amount)
	require.Equal(t, uint64(27), trial.Destinations[1].Amount)
}

func TestConstructPayoutRaisesFeeOnRejection(t *testing.T) {
	wallet := newFakeWallet("w", newFakeChain())
	wallet.txFee = 1000
	// Trial succeeds, then two rejections before the wallet accepts.
	wallet.createErrQueue = []bool{false, true, true, false}
	svc := newPayoutTestService(wallet)

	winner := ports.TxDestination{Address: "winner", Amount: 280000000000}
	loser := ports.TxDestination{Address: "loser", Amount: 7500000000}

	tx, err := svc.constructPayoutTx(context.Background(), "wallet-1", winner, loser)
	require.NoError(t, err)
	require.NotNil(t, tx)

	// 1000 raised by a tenth twice: 1000 -> 1100 -> 1210.
	require.Len(t, wallet.createdCfgs, 4)
	final := wallet.createdCfgs[3]
	require.Equal(t, loser.Amount-1210, final.Destinations[1].Amount)
}

func TestConstructPayoutLoserTooSmallFailsImmediately(t *testing.T) {
	wallet := newFakeWallet("w", newFakeChain())
	wallet.txFee = 1000
	svc := newPayoutTestService(wallet)

	winner := ports.TxDestination{Address: "winner", Amount: 280000000000}
	loser := ports.TxDestination{Address: "loser", Amount: 500}

	_, err := svc.constructPayoutTx(context.Background(), "wallet-1", winner, loser)
	require.ErrorIs(t, err, ErrLoserPayoutTooSmall)
	// Only the trial transaction was attempted, no retry loop.
	require.Len(t, wallet.createdCfgs, 1)
}

func TestConstructPayoutWinnerAbsorbsFeeWhenLoserGetsNothing(t *testing.T) {
	wallet := newFakeWallet("w", newFakeChain())
	wallet.txFee = 1000
	svc := newPayoutTestService(wallet)

	winner := ports.TxDestination{Address: "winner", Amount: 280000000000}
	loser := ports.TxDestination{Address: "loser", Amount: 0}

	_, err := svc.constructPayoutTx(context.Background(), "wallet-1", winner, loser)
	require.NoError(t, err)

	final := wallet.createdCfgs[len(wallet.createdCfgs)-1]
	require.Len(t, final.Destinations, 1)
	require.Equal(t, winner.Amount-1000, final.Destinations[0].Amount)
}

func TestConstructPayoutGivesUpAfterBoundedAttempts(t *testing.T) {
	wallet := newFakeWallet("w", newFakeChain())
	wallet.txFee = 1000
	svc := newPayoutTestService(wallet)

	winner := ports.TxDestination{Address: "winner", Amount: 280000000000}
	loser := ports.TxDestination{Address: "loser", Amount: 300000000000}

	// The trial succeeds to produce the estimate, afterwards every
	// construction is rejected.
	queue := []bool{false}
	for i := 0; i < maxFeeAttempts; i++ {
		queue = append(queue, true)
	}
	wallet.createErrQueue = queue

	_, err := svc.constructPayoutTx(context.Background(), "wallet-1", winner, loser)
	require.ErrorIs(t, err, ErrFeeConvergenceFailed)
	require.Len(t, wallet.createdCfgs, 1+maxFeeAttempts)
}
