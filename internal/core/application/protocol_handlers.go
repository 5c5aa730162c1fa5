package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
	"github.com/peertrade-network/peertrade-daemon/internal/core/ports"
)

// handleInitTradeRequest runs on the maker and on the arbitrator when the
// taker starts the protocol.
func (s *tradeService) handleInitTradeRequest(ctx context.Context, env ports.Envelope) error {
	var req InitTradeRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return err
	}
	offerId, err := uuid.Parse(req.OfferId)
	if err != nil {
		return err
	}

	var trade *domain.Trade
	switch s.identity.NodeAddress {
	case req.MakerNodeAddress:
		trade = domain.NewMakerTrade(offerId)
	case req.ArbitratorNodeAddress:
		trade = domain.NewArbitratorTrade(offerId)
	default:
		return fmt.Errorf("%w: init request does not address this node", ErrUnexpectedSender)
	}

	trade.Amount = req.Amount
	trade.Price = mustDecimal(req.Price)
	trade.TradeFee = req.TradeFee
	trade.TxFee = req.TxFee
	trade.BuyerDepositPct = mustDecimal(req.BuyerDepositPct)
	trade.SellerDepositPct = mustDecimal(req.SellerDepositPct)
	trade.IsBuyerMaker = req.IsBuyerMaker

	maker := trade.Maker()
	maker.NodeAddress = req.MakerNodeAddress
	maker.PubKey = req.MakerPubKey
	taker := trade.Taker()
	taker.NodeAddress = req.TakerNodeAddress
	taker.PubKey = req.TakerPubKey
	taker.PaymentAccountId = req.TakerPaymentAccountId
	taker.PayoutAddress = req.TakerPayoutAddress
	arb := trade.Arbitrator()
	arb.NodeAddress = req.ArbitratorNodeAddress
	arb.PubKey = req.ArbitratorPubKey

	if trade.Role == domain.RoleMaker {
		self := trade.Self()
		self.PaymentAccountId = s.paymentAccountId
		self.PayoutAddress = s.payoutAddress
	}

	if err := s.tradeRepo().AddTrade(ctx, trade); err != nil {
		if err == domain.ErrTradeAlreadyExists {
			// Redelivered init request, the trade already progressed.
			return nil
		}
		return err
	}

	return s.runner.Execute(ctx, trade.Id, []Step{
		{Name: "prepare-multisig", Run: func(ctx context.Context) error {
			return s.prepareMultisig(ctx, trade.Id)
		}},
		{Name: "advance-multisig", Run: func(ctx context.Context) error {
			return s.maybeAdvanceMultisig(ctx, trade.Id)
		}},
	})
}

// handleMultisigBlob stores one round of a peer's key-exchange material and
// advances whatever round became ready.
func (s *tradeService) handleMultisigBlob(ctx context.Context, env ports.Envelope) error {
	var msg MultisigBlobMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	tradeId, err := uuid.Parse(msg.TradeId)
	if err != nil {
		return err
	}
	// A blob broadcast can overtake the init request processing that creates
	// the local trade record.
	if _, err := s.waitForTrade(ctx, tradeId); err != nil {
		return err
	}

	return s.runner.Execute(ctx, tradeId, []Step{
		{Name: "store-multisig-blob", Run: func(ctx context.Context) error {
			return s.tradeRepo().UpdateTrade(
				ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
					peer, err := senderPeer(t, env.SenderPubKey)
					if err != nil {
						return nil, err
					}
					switch env.Type {
					case msgTypeMultisigPrepared:
						peer.PreparedMultisigHex = msg.Blob
					case msgTypeMultisigMade:
						peer.MadeMultisigHex = msg.Blob
					case msgTypeMultisigExchanged:
						peer.ExchangedMultisigHex = msg.Blob
					}
					return t, nil
				},
			)
		}},
		{Name: "advance-multisig", Run: func(ctx context.Context) error {
			return s.maybeAdvanceMultisig(ctx, tradeId)
		}},
	})
}

// maybeAdvanceMultisig drives the key-exchange rounds as far as the
// collected peer material allows. It is idempotent: every advancement is
// guarded by the trade status, so calling it on every received blob is safe.
func (s *tradeService) maybeAdvanceMultisig(ctx context.Context, tradeId uuid.UUID) error {
	trade, err := s.tradeRepo().GetTrade(ctx, tradeId)
	if err != nil {
		return err
	}

	if trade.Status.Code == domain.TradeStatusCodeMultisigPrepared &&
		peersHaveBlobs(trade, func(p *domain.TradingPeer) string { return p.PreparedMultisigHex }) {
		made, err := s.wallet.MakeMultisig(
			ctx, trade.WalletId,
			peerBlobs(trade, func(p *domain.TradingPeer) string { return p.PreparedMultisigHex }),
		)
		if err != nil {
			return err
		}
		if err := s.tradeRepo().UpdateTrade(
			ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
				t.MultisigMade(made)
				trade = t
				return t, nil
			},
		); err != nil {
			return err
		}
		if err := s.broadcastToPeers(ctx, trade, msgTypeMultisigMade, MultisigBlobMessage{
			TradeId: tradeId.String(), Blob: made,
		}); err != nil {
			return err
		}
	}

	if trade.Status.Code == domain.TradeStatusCodeMultisigMade &&
		peersHaveBlobs(trade, func(p *domain.TradingPeer) string { return p.MadeMultisigHex }) {
		address, err := s.wallet.ExchangeMultisigKeys(
			ctx, trade.WalletId,
			peerBlobs(trade, func(p *domain.TradingPeer) string { return p.MadeMultisigHex }),
		)
		if err != nil {
			return err
		}
		exchanged, err := s.wallet.ExportMultisigHex(ctx, trade.WalletId)
		if err != nil {
			return err
		}
		if err := s.tradeRepo().UpdateTrade(
			ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
				t.EscrowAddress = address
				t.MultisigExchanged(exchanged)
				trade = t
				return t, nil
			},
		); err != nil {
			return err
		}
		if err := s.broadcastToPeers(ctx, trade, msgTypeMultisigExchanged, MultisigBlobMessage{
			TradeId: tradeId.String(), Blob: exchanged,
		}); err != nil {
			return err
		}
	}

	if trade.Status.Code == domain.TradeStatusCodeMultisigExchanged &&
		peersHaveBlobs(trade, func(p *domain.TradingPeer) string { return p.ExchangedMultisigHex }) {
		if err := s.tradeRepo().UpdateTrade(
			ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
				t.MultisigCompleted()
				trade = t
				return t, nil
			},
		); err != nil {
			return err
		}
		log.WithField("trade", tradeId).Info("multisig escrow wallet completed")

		if trade.Role == domain.RoleMaker {
			return s.requestContractSignature(ctx, tradeId)
		}
	}
	return nil
}

// requestContractSignature runs on the maker: it constructs the canonical
// contract, signs it and asks the taker to verify and countersign.
func (s *tradeService) requestContractSignature(ctx context.Context, tradeId uuid.UUID) error {
	var trade *domain.Trade
	var contractJson, makerSig []byte
	err := s.tradeRepo().UpdateTrade(
		ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
			contract := buildContract(t)
			raw, err := contract.CanonicalJson()
			if err != nil {
				return nil, err
			}
			contractJson = raw
			makerSig = domain.SignContractJson(s.identity.PrivKey, raw)
			t.ContractJson = raw
			t.MakerContractSignature = makerSig
			t.ContractSignatureRequested()
			trade = t
			return t, nil
		},
	)
	if err != nil {
		return err
	}

	taker := trade.Taker()
	out, err := s.awaitDirect(ctx, PeerInfo{
		NodeAddress: taker.NodeAddress, PubKey: taker.PubKey,
	}, tradeId.String(), msgTypeContractSignatureReq, ContractSignatureRequest{
		TradeId:        tradeId.String(),
		ContractJson:   contractJson,
		MakerSignature: makerSig,
	})
	if err != nil {
		return err
	}
	if out.State != ports.DeliveryArrived {
		return fmt.Errorf("contract signature request delivery faulted: %s", out.Reason)
	}
	return nil
}

// handleContractSignatureRequest runs on the taker: it reconstructs the
// contract from its own data, requires byte-for-byte equality with the
// received serialization, verifies the maker signature and countersigns.
func (s *tradeService) handleContractSignatureRequest(ctx context.Context, env ports.Envelope) error {
	var req ContractSignatureRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return err
	}
	tradeId, err := uuid.Parse(req.TradeId)
	if err != nil {
		return err
	}

	return s.runner.Execute(ctx, tradeId, []Step{
		{Name: "verify-and-sign-contract", Run: func(ctx context.Context) error {
			var trade *domain.Trade
			var takerSig []byte
			err := s.tradeRepo().UpdateTrade(
				ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
					if t.Maker().PubKey != env.SenderPubKey {
						return nil, ErrUnexpectedSender
					}
					received, err := domain.ContractFromJson(req.ContractJson)
					if err != nil {
						return nil, err
					}
					// The maker's account and payout references are learned
					// from the contract itself; everything else must already
					// match the local view.
					t.Maker().PaymentAccountId = received.MakerPaymentAccountId
					t.Maker().PayoutAddress = received.MakerPayoutAddress

					local := buildContract(t)
					if err := domain.VerifyContractMatch(local, req.ContractJson); err != nil {
						return nil, err
					}
					if err := domain.VerifyContractSignature(
						t.Maker().PubKey, req.ContractJson, req.MakerSignature,
					); err != nil {
						return nil, err
					}
					takerSig = domain.SignContractJson(s.identity.PrivKey, req.ContractJson)
					t.ContractSignatureRequested()
					t.ContractSigned(req.ContractJson, req.MakerSignature, takerSig)
					trade = t
					return t, nil
				},
			)
			if err != nil {
				return err
			}
			return s.broadcastToPeers(ctx, trade, msgTypeContractSignatureResp, ContractSignatureResponse{
				TradeId:        tradeId.String(),
				ContractJson:   req.ContractJson,
				MakerSignature: req.MakerSignature,
				TakerSignature: takerSig,
			})
		}},
		{Name: "fund-escrow", Run: func(ctx context.Context) error {
			// The first-funding side publishes its deposit right after
			// signing; the other side funds on the counterparty's deposit
			// request.
			if !fundsFirst(domain.RoleTaker) {
				return nil
			}
			return s.fundEscrow(ctx, tradeId)
		}},
	})
}

// handleContractSignatureResponse runs on the maker and on the arbitrator.
func (s *tradeService) handleContractSignatureResponse(ctx context.Context, env ports.Envelope) error {
	var resp ContractSignatureResponse
	if err := json.Unmarshal(env.Payload, &resp); err != nil {
		return err
	}
	tradeId, err := uuid.Parse(resp.TradeId)
	if err != nil {
		return err
	}

	return s.runner.Execute(ctx, tradeId, []Step{
		{Name: "verify-taker-signature", Run: func(ctx context.Context) error {
			return s.tradeRepo().UpdateTrade(
				ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
					if t.Taker().PubKey != env.SenderPubKey {
						return nil, ErrUnexpectedSender
					}
					contractJson := t.ContractJson
					if len(contractJson) == 0 {
						// The arbitrator learns the contract from the response.
						contractJson = resp.ContractJson
					}
					if err := domain.VerifyContractSignature(
						t.Taker().PubKey, contractJson, resp.TakerSignature,
					); err != nil {
						return nil, err
					}
					if err := domain.VerifyContractSignature(
						t.Maker().PubKey, contractJson, resp.MakerSignature,
					); err != nil {
						return nil, err
					}
					t.ContractSignatureRequested()
					t.ContractSigned(contractJson, resp.MakerSignature, resp.TakerSignature)
					return t, nil
				},
			)
		}},
	})
}

// handleDepositRequest records the sender's deposit transaction and, on the
// maker, verifies the taker's deposit before publishing its own.
func (s *tradeService) handleDepositRequest(ctx context.Context, env ports.Envelope) error {
	var req DepositRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return err
	}
	tradeId, err := uuid.Parse(req.TradeId)
	if err != nil {
		return err
	}

	steps := []Step{
		{Name: "store-deposit-request", Run: func(ctx context.Context) error {
			return s.tradeRepo().UpdateTrade(
				ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
					peer, err := senderPeer(t, env.SenderPubKey)
					if err != nil {
						return nil, err
					}
					peer.DepositTxId = req.DepositTxId
					if req.UpdatedMultisigHex != "" {
						peer.UpdatedMultisigHex = req.UpdatedMultisigHex
					}
					return t, nil
				},
			)
		}},
	}

	trade, err := s.tradeRepo().GetTrade(ctx, tradeId)
	if err != nil {
		return err
	}
	if trade.Role.FundsEscrow() && !fundsFirst(trade.Role) && trade.Self().DepositTxId == "" {
		steps = append(steps,
			Step{Name: "verify-counterparty-deposit", Run: func(ctx context.Context) error {
				return s.waitTxVisible(ctx, trade.WalletId, req.DepositTxId)
			}},
			Step{Name: "fund-escrow", Run: func(ctx context.Context) error {
				return s.fundEscrow(ctx, tradeId)
			}},
		)
	}
	steps = append(steps, Step{Name: "watch-deposits", Run: func(ctx context.Context) error {
		current, err := s.tradeRepo().GetTrade(ctx, tradeId)
		if err != nil {
			return err
		}
		if s.shouldWatchDeposits(current) {
			s.startDepositWatcher(ctx, tradeId)
		}
		return nil
	}})

	return s.runner.Execute(ctx, tradeId, steps)
}

// handlePaymentSent runs on the seller.
func (s *tradeService) handlePaymentSent(ctx context.Context, env ports.Envelope) error {
	var msg PaymentMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	tradeId, err := uuid.Parse(msg.TradeId)
	if err != nil {
		return err
	}

	return s.runner.Execute(ctx, tradeId, []Step{
		{Name: "record-payment-sent", Run: func(ctx context.Context) error {
			return s.tradeRepo().UpdateTrade(
				ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
					if t.Buyer().PubKey != env.SenderPubKey {
						return nil, ErrUnexpectedSender
					}
					t.PaymentSentMsgDelivered()
					t.PaymentSentMsgReceived()
					return t, nil
				},
			)
		}},
	})
}

// handlePaymentReceived runs on the buyer: the seller confirmed the payment
// and published the payout.
func (s *tradeService) handlePaymentReceived(ctx context.Context, env ports.Envelope) error {
	var msg PaymentMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	tradeId, err := uuid.Parse(msg.TradeId)
	if err != nil {
		return err
	}

	return s.runner.Execute(ctx, tradeId, []Step{
		{Name: "record-payment-received", Run: func(ctx context.Context) error {
			err := s.tradeRepo().UpdateTrade(
				ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
					if t.Seller().PubKey != env.SenderPubKey {
						return nil, ErrUnexpectedSender
					}
					t.PaymentReceivedMsgSent()
					if msg.PayoutTxId != "" {
						t.PayoutPublished(msg.PayoutTxId)
					}
					if t.Complete() {
						tradesCompletedCounter.Inc()
					}
					return t, nil
				},
			)
			if err != nil {
				return err
			}
			s.startPayoutWatcher(ctx, tradeId)
			return nil
		}},
	})
}

// waitForTrade returns the trade once it exists locally, tolerating the
// window in which a concurrent handler is still persisting it.
func (s *tradeService) waitForTrade(
	ctx context.Context, tradeId uuid.UUID,
) (*domain.Trade, error) {
	deadline := time.Now().Add(10 * time.Second)
	for {
		trade, err := s.tradeRepo().GetTrade(ctx, tradeId)
		if err == nil {
			return trade, nil
		}
		if err != domain.ErrTradeNotFound || time.Now().After(deadline) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// senderPeer resolves the peer view matching the sender's public key. A
// message from a node that is not a party of the trade is a protocol
// violation.
func senderPeer(t *domain.Trade, senderPubKey string) (*domain.TradingPeer, error) {
	for role, peer := range t.Peers {
		if role == t.Role {
			continue
		}
		if peer.PubKey == senderPubKey {
			return peer, nil
		}
	}
	return nil, ErrUnexpectedSender
}

func peersHaveBlobs(t *domain.Trade, blob func(*domain.TradingPeer) string) bool {
	for role, peer := range t.Peers {
		if role == t.Role {
			continue
		}
		if blob(peer) == "" {
			return false
		}
	}
	return true
}

func peerBlobs(t *domain.Trade, blob func(*domain.TradingPeer) string) []string {
	blobs := make([]string, 0, 2)
	for role, peer := range t.Peers {
		if role == t.Role {
			continue
		}
		blobs = append(blobs, blob(peer))
	}
	return blobs
}
