package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
	"github.com/peertrade-network/peertrade-daemon/internal/core/ports"
)

// importPeerMultisigHexes imports every counterparty's updated key material
// the local node has collected, then verifies the wallet can actually spend.
func (s *tradeService) importPeerMultisigHexes(
	ctx context.Context, trade *domain.Trade,
) error {
	hexes := make([]string, 0, 2)
	for role, peer := range trade.Peers {
		if role == trade.Role || peer.UpdatedMultisigHex == "" {
			continue
		}
		hexes = append(hexes, peer.UpdatedMultisigHex)
	}
	if len(hexes) > 0 {
		if err := s.wallet.ImportMultisigHex(ctx, trade.WalletId, hexes); err != nil {
			return err
		}
	}
	needed, err := s.wallet.IsMultisigImportNeeded(ctx, trade.WalletId)
	if err != nil {
		return err
	}
	if needed {
		return ErrMultisigImportNeeded
	}
	return nil
}

// constructPayoutTx builds the escrow payout via fee convergence. The wallet
// only reports the fee for a transaction it accepted, so a trial transaction
// at reduced amounts produces the first estimate, then the real transaction
// is attempted with the loser's share absorbing the fee. Every construction
// failure bumps the working fee by a tenth, bounded by maxFeeAttempts.
// The winner absorbs the fee only when the loser's share is zero.
func (s *tradeService) constructPayoutTx(
	ctx context.Context, walletId string,
	winner, loser ports.TxDestination,
) (*ports.Tx, error) {
	trial := []ports.TxDestination{
		{Address: winner.Address, Amount: winner.Amount * trialAmountPct / 100},
	}
	if loser.Amount > 0 {
		trial = append(trial, ports.TxDestination{
			Address: loser.Address, Amount: loser.Amount * trialAmountPct / 100,
		})
	}
	trialTx, err := s.wallet.CreateTx(ctx, ports.TxConfig{
		WalletId: walletId, Destinations: trial,
	})
	if err != nil {
		return nil, fmt.Errorf("payout trial tx: %w", err)
	}

	fee := trialTx.Fee
	for attempt := 0; attempt < maxFeeAttempts; attempt++ {
		winnerOut := winner
		loserOut := loser
		if loser.Amount == 0 {
			if winnerOut.Amount <= fee {
				return nil, ErrLoserPayoutTooSmall
			}
			winnerOut.Amount -= fee
		} else {
			if loser.Amount <= fee {
				return nil, ErrLoserPayoutTooSmall
			}
			loserOut.Amount -= fee
		}

		destinations := []ports.TxDestination{winnerOut}
		if loserOut.Amount > 0 {
			destinations = append(destinations, loserOut)
		}
		tx, err := s.wallet.CreateTx(ctx, ports.TxConfig{
			WalletId: walletId, Destinations: destinations,
		})
		if err == nil {
			return tx, nil
		}
		log.WithError(err).WithFields(log.Fields{
			"attempt": attempt, "fee": fee,
		}).Debug("payout construction rejected, raising fee")
		fee += fee / 10
	}
	return nil, ErrFeeConvergenceFailed
}

// publishHappyPathPayout builds, relays and records the cooperative payout:
// the buyer receives the trade amount on top of its security deposit, the
// seller receives its security deposit back and absorbs the mining fee.
func (s *tradeService) publishHappyPathPayout(ctx context.Context, tradeId uuid.UUID) error {
	trade, err := s.tradeRepo().GetTrade(ctx, tradeId)
	if err != nil {
		return err
	}
	if trade.PayoutStatus >= domain.PayoutStatusCodePublished {
		return nil
	}

	if err := s.importPeerMultisigHexes(ctx, trade); err != nil {
		return err
	}

	buyerDest := ports.TxDestination{
		Address: trade.Buyer().PayoutAddress,
		Amount:  trade.Amount + depositAmount(trade, true),
	}
	sellerDest := ports.TxDestination{
		Address: trade.Seller().PayoutAddress,
		Amount:  depositAmount(trade, false) - trade.Amount,
	}

	tx, err := s.constructPayoutTx(ctx, trade.WalletId, buyerDest, sellerDest)
	if err != nil {
		return err
	}
	txId, err := s.wallet.RelayTx(ctx, trade.WalletId, tx.TxHex)
	if err != nil {
		return err
	}

	if err := s.tradeRepo().UpdateTrade(
		ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
			t.PayoutPublished(txId)
			return t, nil
		},
	); err != nil {
		return err
	}
	log.WithFields(log.Fields{"trade": tradeId, "tx": txId}).Info("payout published")

	s.startPayoutWatcher(ctx, tradeId)
	return nil
}
