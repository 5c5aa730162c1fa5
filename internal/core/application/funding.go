package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
	"github.com/peertrade-network/peertrade-daemon/internal/core/ports"
)

// fundEscrow moves the local deposit into the escrow address. The reserved
// trade balance is swept first; if the reserve account holds nothing, the
// deposit is funded from the general account, paying the trade fee to the
// donation address atomically in the same transaction.
func (s *tradeService) fundEscrow(ctx context.Context, tradeId uuid.UUID) error {
	trade, err := s.tradeRepo().GetTrade(ctx, tradeId)
	if err != nil {
		return err
	}
	if trade.Self().DepositTxId != "" {
		return nil
	}

	escrowAddress := trade.EscrowAddress
	if escrowAddress == "" {
		escrowAddress, err = s.wallet.GetMultisigAddress(ctx, trade.WalletId)
		if err != nil {
			return err
		}
	}

	var depositTx *ports.Tx
	reserve, err := s.wallet.GetUnlockedBalance(ctx, reserveAccountIndex)
	if err != nil {
		return err
	}
	if reserve > 0 {
		txs, err := s.wallet.SweepUnlocked(ctx, reserveAccountIndex, escrowAddress)
		if err != nil {
			return err
		}
		if len(txs) != 1 {
			return fmt.Errorf("reserve sweep produced %d transactions, want 1", len(txs))
		}
		depositTx = txs[0]
	} else {
		destinations := []ports.TxDestination{{
			Address: escrowAddress,
			Amount:  depositAmount(trade, trade.IsBuyer()),
		}}
		if trade.TradeFee > 0 && s.network.DonationAddress != "" {
			destinations = append(destinations, ports.TxDestination{
				Address: s.network.DonationAddress,
				Amount:  trade.TradeFee,
			})
		}
		tx, err := s.wallet.CreateTx(ctx, ports.TxConfig{
			Destinations: destinations,
			AccountIndex: generalAccountIndex,
			PaymentId:    tradeId.String(),
		})
		if err != nil {
			return err
		}
		if _, err := s.wallet.RelayTx(ctx, "", tx.TxHex); err != nil {
			return err
		}
		depositTx = tx
	}

	updatedHex, err := s.wallet.ExportMultisigHex(ctx, trade.WalletId)
	if err != nil {
		return err
	}

	err = s.tradeRepo().UpdateTrade(
		ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
			self := t.Self()
			self.DepositTxId = depositTx.TxId
			self.UpdatedMultisigHex = updatedHex
			t.DepositRequestSent()
			trade = t
			return t, nil
		},
	)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"trade": tradeId, "tx": depositTx.TxId,
	}).Info("escrow deposit published")

	// Funds already moved: a delivery fault past this point leaves the
	// deposit in the escrow and the trade in a failed send state awaiting
	// manual or dispute resolution, it is not retried blindly.
	if err := s.broadcastToPeers(ctx, trade, msgTypeDepositRequest, DepositRequest{
		TradeId:            tradeId.String(),
		DepositTxId:        depositTx.TxId,
		UpdatedMultisigHex: updatedHex,
	}); err != nil {
		return err
	}

	if err := s.tradeRepo().UpdateTrade(
		ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
			t.DepositRequestArrived()
			trade = t
			return t, nil
		},
	); err != nil {
		return err
	}

	if s.shouldWatchDeposits(trade) {
		s.startDepositWatcher(ctx, tradeId)
	}
	return nil
}

// fundsFirst returns whether the given role publishes its escrow deposit
// before the counterparty.
func fundsFirst(role domain.Role) bool {
	if takerFundsFirst {
		return role == domain.RoleTaker
	}
	return role == domain.RoleMaker
}

// waitTxVisible polls the wallet until the given transaction is seen in the
// pool or a block, bounded by the configured poll timeout.
func (s *tradeService) waitTxVisible(ctx context.Context, walletId, txId string) error {
	rl := ratelimit.New(1, ratelimit.Per(s.pollInterval))
	deadline := time.Now().Add(s.pollTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rl.Take()
		tx, err := s.wallet.GetTx(ctx, walletId, txId)
		if err == nil && tx != nil && (tx.InPool || tx.Confirmations > 0) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrDepositNotVisible, txId)
		}
	}
}

// depositObservation is a snapshot of both deposits' network state.
type depositObservation struct {
	bothSeen      bool
	bothConfirmed bool
	bothUnlocked  bool
}

// applyDepositObservation advances the trade's deposit milestones from the
// observation. Each milestone fires exactly once, re-applying the same
// observation is a no-op.
func applyDepositObservation(t *domain.Trade, obs depositObservation) bool {
	var changed bool
	if obs.bothSeen {
		changed = t.DepositTxSeen() || changed
	}
	if obs.bothConfirmed {
		changed = t.DepositTxConfirmed() || changed
	}
	if obs.bothUnlocked {
		changed = t.DepositTxsUnlocked() || changed
	}
	return changed
}

func (s *tradeService) startDepositWatcher(ctx context.Context, tradeId uuid.UUID) {
	key := "deposit:" + tradeId.String()
	if _, loaded := s.watchers.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	go func() {
		defer s.watchers.Delete(key)
		s.watchDeposits(ctx, tradeId)
	}()
}

func (s *tradeService) watchDeposits(ctx context.Context, tradeId uuid.UUID) {
	rl := ratelimit.New(1, ratelimit.Per(s.pollInterval))
	deadline := time.Now().Add(s.pollTimeout)
	for {
		if ctx.Err() != nil {
			return
		}
		rl.Take()

		trade, err := s.tradeRepo().GetTrade(ctx, tradeId)
		if err != nil {
			log.WithError(err).WithField("trade", tradeId).Warn("deposit watcher: trade lookup failed")
			return
		}
		if trade.IsDepositPhaseDone() || trade.IsFailed() {
			return
		}

		obs, err := s.observeDeposits(ctx, trade)
		if err != nil {
			log.WithError(err).WithField("trade", tradeId).Debug("deposit watcher: observation failed")
			continue
		}

		var done bool
		if err := s.tradeRepo().UpdateTrade(
			ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
				applyDepositObservation(t, obs)
				done = t.IsDepositPhaseDone()
				return t, nil
			},
		); err != nil {
			log.WithError(err).WithField("trade", tradeId).Warn("deposit watcher: update failed")
			return
		}
		if done {
			log.WithField("trade", tradeId).Info("both deposits unlocked")
			return
		}

		if time.Now().After(deadline) {
			if err := s.tradeRepo().UpdateTrade(
				ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
					t.Fail("deposit confirmation timed out")
					return t, nil
				},
			); err == nil {
				tradesFailedCounter.Inc()
			}
			return
		}
	}
}

func (s *tradeService) observeDeposits(
	ctx context.Context, trade *domain.Trade,
) (depositObservation, error) {
	makerTx, err := s.wallet.GetTx(ctx, trade.WalletId, trade.Maker().DepositTxId)
	if err != nil {
		return depositObservation{}, err
	}
	takerTx, err := s.wallet.GetTx(ctx, trade.WalletId, trade.Taker().DepositTxId)
	if err != nil {
		return depositObservation{}, err
	}
	if makerTx == nil || takerTx == nil {
		return depositObservation{}, nil
	}
	seen := func(tx *ports.Tx) bool { return tx.InPool || tx.Confirmations > 0 }
	confirmed := func(tx *ports.Tx) bool { return tx.Confirmations >= depositConfirmationsRequired }
	return depositObservation{
		bothSeen:      seen(makerTx) && seen(takerTx),
		bothConfirmed: confirmed(makerTx) && confirmed(takerTx),
		bothUnlocked:  makerTx.Unlocked && takerTx.Unlocked,
	}, nil
}

func (s *tradeService) startPayoutWatcher(ctx context.Context, tradeId uuid.UUID) {
	key := "payout:" + tradeId.String()
	if _, loaded := s.watchers.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	go func() {
		defer s.watchers.Delete(key)
		s.watchPayout(ctx, tradeId)
	}()
}

func (s *tradeService) watchPayout(ctx context.Context, tradeId uuid.UUID) {
	rl := ratelimit.New(1, ratelimit.Per(s.pollInterval))
	deadline := time.Now().Add(s.pollTimeout)
	for {
		if ctx.Err() != nil {
			return
		}
		rl.Take()

		trade, err := s.tradeRepo().GetTrade(ctx, tradeId)
		if err != nil {
			return
		}
		if trade.PayoutTxId == "" || trade.PayoutStatus == domain.PayoutStatusCodeUnlocked {
			return
		}

		if time.Now().After(deadline) {
			if err := s.tradeRepo().UpdateTrade(
				ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
					t.Fail("payout confirmation timed out")
					return t, nil
				},
			); err == nil {
				tradesFailedCounter.Inc()
			}
			return
		}

		tx, err := s.wallet.GetTx(ctx, trade.WalletId, trade.PayoutTxId)
		if err != nil || tx == nil {
			continue
		}

		var unlocked bool
		if err := s.tradeRepo().UpdateTrade(
			ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
				if tx.Confirmations > 0 {
					t.PayoutConfirmed()
				}
				if tx.Unlocked {
					t.PayoutUnlocked()
					t.MoveToClosed()
				}
				unlocked = tx.Unlocked
				return t, nil
			},
		); err != nil {
			return
		}
		if unlocked {
			log.WithField("trade", tradeId).Info("payout unlocked, trade closed")
			return
		}
	}
}
