package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/thanhpk/randstr"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
	"github.com/peertrade-network/peertrade-daemon/internal/core/ports"
)

// DisputeService exposes the dispute operations: traders open disputes and
// exchange evidence, the arbitrator closes them with a binding payout.
type DisputeService interface {
	// OpenDispute opens a dispute against the given trade and notifies the
	// arbitrator. Opening a second dispute for the same trade while the first
	// is still open fails with domain.ErrDisputeAlreadyOpen.
	OpenDispute(
		ctx context.Context, tradeId uuid.UUID, supportType domain.SupportType,
	) (uuid.UUID, error)
	// ReopenDispute re-sends an already opened dispute to the arbitrator,
	// recovering from an earlier delivery failure.
	ReopenDispute(ctx context.Context, disputeId uuid.UUID) error
	// SendDisputeChat appends a chat or evidence message and forwards it to
	// the other end of the dispute channel.
	SendDisputeChat(ctx context.Context, disputeId uuid.UUID, message string) error
	// CloseDispute runs on the arbitrator: it constructs the dispute payout,
	// signs the summary and delivers the decision to both traders.
	CloseDispute(ctx context.Context, params CloseDisputeParams) error
	GetDispute(ctx context.Context, disputeId uuid.UUID) (*domain.Dispute, error)
	ListDisputes(ctx context.Context) ([]*domain.Dispute, error)
}

// CloseDisputeParams is the arbitrator's decision input.
type CloseDisputeParams struct {
	DisputeId          uuid.UUID
	Winner             domain.DisputeWinner
	BuyerPayoutAmount  uint64
	SellerPayoutAmount uint64
	SummaryNotes       string
}

type disputeService struct {
	trades *tradeService
}

func newDisputeService(trades *tradeService) *disputeService {
	return &disputeService{trades: trades}
}

// NewServices wires the trade and dispute services over the same
// collaborators and returns both.
func NewServices(opts TradeServiceOpts) (TradeService, DisputeService) {
	s := newTradeService(opts)
	s.disputeSvc = newDisputeService(s)
	return s, s.disputeSvc
}

func (s *disputeService) disputeRepo() domain.DisputeRepository {
	return s.trades.repoManager.DisputeRepository()
}

func (s *disputeService) OpenDispute(
	ctx context.Context, tradeId uuid.UUID, supportType domain.SupportType,
) (uuid.UUID, error) {
	trade, err := s.trades.tradeRepo().GetTrade(ctx, tradeId)
	if err != nil {
		return uuid.Nil, err
	}
	if !trade.Role.CanDispute() {
		return uuid.Nil, ErrCannotDispute
	}

	selfPubKey := s.trades.identity.PubKeyHex()
	existing, err := s.disputeRepo().GetDisputeByTradeAndTrader(ctx, tradeId, selfPubKey)
	if err != nil && err != domain.ErrDisputeNotFound {
		return uuid.Nil, err
	}
	if existing != nil && !existing.IsClosed {
		return uuid.Nil, domain.ErrDisputeAlreadyOpen
	}

	dispute := domain.NewDispute(
		tradeId, selfPubKey, trade.Arbitrator().PubKey, supportType, trade.ContractJson,
	)
	dispute.AddChatMessage(domain.ChatMessage{
		Id:            randstr.Hex(16),
		TradeId:       tradeId,
		SenderPubKey:  selfPubKey,
		Message:       fmt.Sprintf("Dispute opened by %s", trade.Role),
		SystemMessage: true,
		Timestamp:     time.Now().Unix(),
	})
	if err := s.disputeRepo().AddDispute(ctx, dispute); err != nil {
		return uuid.Nil, err
	}

	if err := s.sendDisputeOpened(ctx, trade, dispute); err != nil {
		return uuid.Nil, err
	}
	return dispute.Id, nil
}

// ReopenDispute re-delivers the dispute-opened message for a dispute whose
// first delivery faulted. The record is kept as is, only the notification is
// retried.
func (s *disputeService) ReopenDispute(ctx context.Context, disputeId uuid.UUID) error {
	dispute, err := s.disputeRepo().GetDispute(ctx, disputeId)
	if err != nil {
		return err
	}
	if dispute.TraderPubKey != s.trades.identity.PubKeyHex() {
		return ErrCannotDispute
	}
	trade, err := s.trades.tradeRepo().GetTrade(ctx, dispute.TradeId)
	if err != nil {
		return err
	}
	return s.sendDisputeOpened(ctx, trade, dispute)
}

// sendDisputeOpened delivers the dispute to the arbitrator's mailbox and
// advances the trade's dispute sub-state on acknowledgement.
func (s *disputeService) sendDisputeOpened(
	ctx context.Context, trade *domain.Trade, dispute *domain.Dispute,
) error {
	msg := DisputeOpenedMessage{
		DisputeId:     dispute.Id.String(),
		TradeId:       dispute.TradeId.String(),
		TraderPubKey:  dispute.TraderPubKey,
		SupportType:   int(dispute.SupportType),
		ContractJson:  dispute.ContractJson,
		SystemMessage: dispute.ChatMessages[0],
	}
	arb := trade.Arbitrator()
	out, err := s.trades.awaitMailbox(ctx, PeerInfo{
		NodeAddress: arb.NodeAddress, PubKey: arb.PubKey,
	}, dispute.TradeId.String(), msgTypeDisputeOpened, msg)
	if err != nil {
		return err
	}
	if out.State == ports.DeliveryFault {
		return fmt.Errorf("dispute-opened delivery faulted: %s", out.Reason)
	}

	return s.trades.tradeRepo().UpdateTrade(
		ctx, dispute.TradeId, func(t *domain.Trade) (*domain.Trade, error) {
			if t.DisputeOpened() {
				disputesOpenedCounter.Inc()
			}
			return t, nil
		},
	)
}

func (s *disputeService) SendDisputeChat(
	ctx context.Context, disputeId uuid.UUID, message string,
) error {
	dispute, err := s.disputeRepo().GetDispute(ctx, disputeId)
	if err != nil {
		return err
	}
	trade, err := s.trades.tradeRepo().GetTrade(ctx, dispute.TradeId)
	if err != nil {
		return err
	}

	chatMsg := domain.ChatMessage{
		Id:           randstr.Hex(16),
		TradeId:      dispute.TradeId,
		SenderPubKey: s.trades.identity.PubKeyHex(),
		Message:      message,
		Timestamp:    time.Now().Unix(),
	}
	if err := s.disputeRepo().UpdateDispute(
		ctx, disputeId, func(d *domain.Dispute) (*domain.Dispute, error) {
			d.AddChatMessage(chatMsg)
			return d, nil
		},
	); err != nil {
		return err
	}

	// Traders talk to the arbitrator, the arbitrator talks to the trader that
	// owns this dispute record.
	var receiver PeerInfo
	if trade.Role == domain.RoleArbitrator {
		receiver, err = peerByPubKey(trade, dispute.TraderPubKey)
		if err != nil {
			return err
		}
	} else {
		receiver = PeerInfo{
			NodeAddress: trade.Arbitrator().NodeAddress,
			PubKey:      trade.Arbitrator().PubKey,
		}
	}
	out, err := s.trades.awaitMailbox(ctx, receiver, dispute.TradeId.String(), msgTypeDisputeChat, DisputeChatMessage{
		DisputeId: disputeId.String(),
		TradeId:   dispute.TradeId.String(),
		Message:   chatMsg,
	})
	if err != nil {
		return err
	}
	if out.State == ports.DeliveryFault {
		return fmt.Errorf("dispute-chat delivery faulted: %s", out.Reason)
	}
	return nil
}

// CloseDispute constructs the dispute payout, frames and signs the summary
// and sends the decision to both traders. Closing an already closed dispute
// re-sends the stored decision; a receiver that already acknowledged a close
// is asked to defer publishing so the other side is not raced.
func (s *disputeService) CloseDispute(ctx context.Context, params CloseDisputeParams) error {
	dispute, err := s.disputeRepo().GetDispute(ctx, params.DisputeId)
	if err != nil {
		return err
	}
	trade, err := s.trades.tradeRepo().GetTrade(ctx, dispute.TradeId)
	if err != nil {
		return err
	}
	if trade.Role != domain.RoleArbitrator {
		return ErrCannotDispute
	}

	resend := dispute.IsClosed
	var result *domain.DisputeResult
	if resend {
		result = dispute.Result
	} else {
		if err := s.trades.importPeerMultisigHexes(ctx, trade); err != nil {
			return err
		}

		winnerDest, loserDest := payoutDestinations(trade, params)
		tx, err := s.trades.constructPayoutTx(ctx, trade.WalletId, winnerDest, loserDest)
		if err != nil {
			return err
		}

		result = &domain.DisputeResult{
			Winner:              params.Winner,
			BuyerPayoutAmount:   params.BuyerPayoutAmount,
			SellerPayoutAmount:  params.SellerPayoutAmount,
			SummaryNotes:        params.SummaryNotes,
			UnsignedPayoutTxHex: tx.TxHex,
		}
		result.ArbitratorSignature = signOverSummary(
			s.trades.identity.PrivKey, formatSummaryText(dispute, result),
		)
		if err := s.disputeRepo().UpdateDispute(
			ctx, params.DisputeId, func(d *domain.Dispute) (*domain.Dispute, error) {
				if err := d.Close(result); err != nil {
					return nil, err
				}
				return d, nil
			},
		); err != nil {
			return err
		}
	}

	arbitratorHex, err := s.trades.wallet.ExportMultisigHex(ctx, trade.WalletId)
	if err != nil {
		return err
	}
	framedSummary := frameSummary(
		formatSummaryText(dispute, result), result.ArbitratorSignature,
	)
	msg := DisputeClosedMessage{
		DisputeId:           params.DisputeId.String(),
		TradeId:             dispute.TradeId.String(),
		Winner:              int(result.Winner),
		BuyerPayoutAmount:   result.BuyerPayoutAmount,
		SellerPayoutAmount:  result.SellerPayoutAmount,
		SignedSummary:       framedSummary,
		UnsignedPayoutTxHex: result.UnsignedPayoutTxHex,
		ArbitratorHex:       arbitratorHex,
	}

	if err := s.trades.tradeRepo().UpdateTrade(
		ctx, dispute.TradeId, func(t *domain.Trade) (*domain.Trade, error) {
			t.DisputeClosedMsgSent()
			return t, nil
		},
	); err != nil {
		return err
	}

	for _, role := range []domain.Role{domain.RoleMaker, domain.RoleTaker} {
		peer := trade.Peers[role]
		peerMsg := msg
		// A receiver is told to defer publishing only when its key material is
		// already imported and it acknowledged a previous close. A receiver
		// that never saw the decision must publish itself.
		peerMsg.DeferPublishPayout = resend &&
			peer.DisputeClosedMsgDelivered && peer.UpdatedMultisigHex != ""

		out, err := s.trades.awaitMailbox(ctx, PeerInfo{
			NodeAddress: peer.NodeAddress, PubKey: peer.PubKey,
		}, dispute.TradeId.String(), msgTypeDisputeClosed, peerMsg)

		arrived := err == nil && out.State == ports.DeliveryArrived
		var apply func(t *domain.Trade) bool
		switch {
		case err != nil || out.State == ports.DeliveryFault:
			apply = (*domain.Trade).DisputeClosedMsgSendFailed
		case out.State == ports.DeliveryStoredInMailbox:
			apply = (*domain.Trade).DisputeClosedMsgStoredInMailbox
		default:
			apply = (*domain.Trade).DisputeClosedMsgArrived
		}
		if updErr := s.trades.tradeRepo().UpdateTrade(
			ctx, dispute.TradeId, func(t *domain.Trade) (*domain.Trade, error) {
				apply(t)
				if arrived {
					t.Peers[role].DisputeClosedMsgDelivered = true
				}
				return t, nil
			},
		); updErr != nil {
			return updErr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// peerByPubKey resolves the trade party matching the given public key.
func peerByPubKey(trade *domain.Trade, pubKey string) (PeerInfo, error) {
	for _, peer := range trade.Peers {
		if peer.PubKey == pubKey {
			return PeerInfo{NodeAddress: peer.NodeAddress, PubKey: peer.PubKey}, nil
		}
	}
	return PeerInfo{}, ErrUnexpectedSender
}

func (s *disputeService) GetDispute(
	ctx context.Context, disputeId uuid.UUID,
) (*domain.Dispute, error) {
	return s.disputeRepo().GetDispute(ctx, disputeId)
}

func (s *disputeService) ListDisputes(ctx context.Context) ([]*domain.Dispute, error) {
	return s.disputeRepo().GetAllDisputes(ctx)
}

func (s *disputeService) handleEnvelope(ctx context.Context, env ports.Envelope) error {
	switch env.Type {
	case msgTypeDisputeOpened:
		return s.handleDisputeOpened(ctx, env)
	case msgTypeDisputeChat:
		return s.handleDisputeChat(ctx, env)
	case msgTypeDisputeClosed:
		return s.handleDisputeClosed(ctx, env)
	}
	return nil
}

// handleDisputeOpened runs on the arbitrator when a trader opens a dispute,
// and on a trader when the arbitrator mirrors the counterparty's dispute.
func (s *disputeService) handleDisputeOpened(ctx context.Context, env ports.Envelope) error {
	var msg DisputeOpenedMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	tradeId, err := uuid.Parse(msg.TradeId)
	if err != nil {
		return err
	}
	disputeId, err := uuid.Parse(msg.DisputeId)
	if err != nil {
		return err
	}
	trade, err := s.trades.tradeRepo().GetTrade(ctx, tradeId)
	if err != nil {
		return err
	}
	if _, err := senderPeer(trade, env.SenderPubKey); err != nil {
		return err
	}

	existing, err := s.disputeRepo().GetDispute(ctx, disputeId)
	if err != nil && err != domain.ErrDisputeNotFound {
		return err
	}
	if existing == nil {
		dispute := &domain.Dispute{
			Id:               disputeId,
			TradeId:          tradeId,
			TraderPubKey:     msg.TraderPubKey,
			SupportType:      domain.SupportType(msg.SupportType),
			ContractJson:     msg.ContractJson,
			ContractHash:     domain.ContractHash(msg.ContractJson),
			ArbitratorPubKey: trade.Arbitrator().PubKey,
			Mirrored:         msg.Mirrored,
			OpeningDate:      time.Now().Unix(),
		}
		dispute.AddChatMessage(msg.SystemMessage)
		for _, warning := range s.validateDisputeContract(trade, msg.ContractJson) {
			dispute.AddValidationWarning(warning)
		}
		if err := s.disputeRepo().AddDispute(ctx, dispute); err != nil &&
			err != domain.ErrDisputeAlreadyOpen {
			return err
		}
	}

	if err := s.trades.tradeRepo().UpdateTrade(
		ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
			if t.DisputeOpened() {
				disputesOpenedCounter.Inc()
			}
			return t, nil
		},
	); err != nil {
		return err
	}

	if trade.Role == domain.RoleArbitrator && !msg.Mirrored {
		go s.mirrorDispute(ctx, trade, msg)
	}
	return nil
}

// mirrorDispute forwards the dispute to the non-opening trader after a short
// delay, so a counterparty opening its own dispute concurrently wins the race
// with its own system message.
func (s *disputeService) mirrorDispute(
	ctx context.Context, trade *domain.Trade, msg DisputeOpenedMessage,
) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(mirrorDisputeDelay):
	}

	other := trade.Maker()
	if other.PubKey == msg.TraderPubKey {
		other = trade.Taker()
	}
	tradeId, _ := uuid.Parse(msg.TradeId)
	if existing, err := s.disputeRepo().GetDisputeByTradeAndTrader(
		ctx, tradeId, other.PubKey,
	); err == nil && existing != nil {
		return
	}

	mirrored := msg
	mirrored.Mirrored = true
	out, err := s.trades.awaitMailbox(ctx, PeerInfo{
		NodeAddress: other.NodeAddress, PubKey: other.PubKey,
	}, msg.TradeId, msgTypeDisputeOpened, mirrored)
	if err != nil || out.State == ports.DeliveryFault {
		log.WithField("trade", msg.TradeId).Warn("mirrored dispute delivery faulted")
	}
}

func (s *disputeService) handleDisputeChat(ctx context.Context, env ports.Envelope) error {
	var msg DisputeChatMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	disputeId, err := uuid.Parse(msg.DisputeId)
	if err != nil {
		return err
	}
	dispute, err := s.disputeRepo().GetDispute(ctx, disputeId)
	if err != nil {
		return err
	}
	trade, err := s.trades.tradeRepo().GetTrade(ctx, dispute.TradeId)
	if err != nil {
		return err
	}
	// Only parties of the trade may append to the dispute history.
	if _, err := senderPeer(trade, env.SenderPubKey); err != nil {
		return err
	}
	return s.disputeRepo().UpdateDispute(
		ctx, disputeId, func(d *domain.Dispute) (*domain.Dispute, error) {
			d.AddChatMessage(msg.Message)
			return d, nil
		},
	)
}

// handleDisputeClosed runs on a trader receiving the arbitrator's decision:
// it verifies the signed summary, records the result and countersigns and
// publishes the payout unless told to defer.
func (s *disputeService) handleDisputeClosed(ctx context.Context, env ports.Envelope) error {
	var msg DisputeClosedMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	tradeId, err := uuid.Parse(msg.TradeId)
	if err != nil {
		return err
	}
	disputeId, err := uuid.Parse(msg.DisputeId)
	if err != nil {
		return err
	}
	trade, err := s.trades.tradeRepo().GetTrade(ctx, tradeId)
	if err != nil {
		return err
	}
	if trade.Arbitrator().PubKey != env.SenderPubKey {
		return ErrUnexpectedSender
	}
	_, arbitratorSig, err := verifySummary(trade.Arbitrator().PubKey, msg.SignedSummary)
	if err != nil {
		return err
	}

	result := &domain.DisputeResult{
		Winner:              domain.DisputeWinner(msg.Winner),
		BuyerPayoutAmount:   msg.BuyerPayoutAmount,
		SellerPayoutAmount:  msg.SellerPayoutAmount,
		ArbitratorSignature: arbitratorSig,
		UnsignedPayoutTxHex: msg.UnsignedPayoutTxHex,
	}
	if err := s.disputeRepo().UpdateDispute(
		ctx, disputeId, func(d *domain.Dispute) (*domain.Dispute, error) {
			if err := d.Close(result); err != nil && err != domain.ErrDisputeAlreadyClosed {
				return nil, err
			}
			return d, nil
		},
	); err != nil && err != domain.ErrDisputeNotFound {
		return err
	}

	return s.trades.runner.Execute(ctx, tradeId, []Step{
		{Name: "publish-dispute-payout", Run: func(ctx context.Context) error {
			return s.publishDisputePayout(ctx, tradeId, msg)
		}},
	})
}

func (s *disputeService) publishDisputePayout(
	ctx context.Context, tradeId uuid.UUID, msg DisputeClosedMessage,
) error {
	trade, err := s.trades.tradeRepo().GetTrade(ctx, tradeId)
	if err != nil {
		return err
	}
	if trade.PayoutStatus >= domain.PayoutStatusCodePublished {
		return nil
	}
	if msg.DeferPublishPayout {
		return s.trades.tradeRepo().UpdateTrade(
			ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
				t.DeferPublishPayout = true
				t.DisputeClosedMsgArrived()
				return t, nil
			},
		)
	}

	if msg.ArbitratorHex != "" {
		if err := s.trades.wallet.ImportMultisigHex(
			ctx, trade.WalletId, []string{msg.ArbitratorHex},
		); err != nil {
			return err
		}
	}
	signedHex, err := s.trades.wallet.SignMultisigTx(ctx, trade.WalletId, msg.UnsignedPayoutTxHex)
	if err != nil {
		return err
	}
	txId, err := s.trades.wallet.RelayTx(ctx, trade.WalletId, signedHex)
	if err != nil {
		return err
	}

	if err := s.trades.tradeRepo().UpdateTrade(
		ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
			t.DisputeClosedMsgArrived()
			t.PayoutPublished(txId)
			return t, nil
		},
	); err != nil {
		return err
	}
	log.WithFields(log.Fields{"trade": tradeId, "tx": txId}).Info("dispute payout published")

	s.trades.startPayoutWatcher(ctx, tradeId)
	return nil
}

// payoutDestinations maps the arbitrator's decision onto winner and loser
// transaction outputs. The loser's output absorbs the mining fee.
func payoutDestinations(
	trade *domain.Trade, params CloseDisputeParams,
) (winner, loser ports.TxDestination) {
	buyer := ports.TxDestination{
		Address: trade.Buyer().PayoutAddress, Amount: params.BuyerPayoutAmount,
	}
	seller := ports.TxDestination{
		Address: trade.Seller().PayoutAddress, Amount: params.SellerPayoutAmount,
	}
	if params.Winner == domain.DisputeWinnerBuyer {
		return buyer, seller
	}
	return seller, buyer
}

// validateDisputeContract checks the peer-supplied contract fields against
// the local trade and network. Findings are warnings for the human
// arbitrator, they never block the dispute.
func (s *disputeService) validateDisputeContract(
	trade *domain.Trade, contractJson []byte,
) []string {
	var warnings []string
	contract, err := domain.ContractFromJson(contractJson)
	if err != nil {
		return []string{fmt.Sprintf("contract does not parse: %v", err)}
	}
	if len(trade.ContractJson) > 0 && string(trade.ContractJson) != string(contractJson) {
		warnings = append(warnings, "contract differs from the locally stored contract")
	}
	if contract.Amount == 0 {
		warnings = append(warnings, "contract amount is zero")
	}
	if prefix := s.trades.network.AddressPrefix; prefix != "" {
		if !strings.HasPrefix(contract.MakerPayoutAddress, prefix) {
			warnings = append(warnings, "maker payout address does not match the network")
		}
		if !strings.HasPrefix(contract.TakerPayoutAddress, prefix) {
			warnings = append(warnings, "taker payout address does not match the network")
		}
	}
	if addr := trade.Maker().NodeAddress; addr != "" && contract.MakerNodeAddress != addr {
		warnings = append(warnings, "maker node address does not match the trade record")
	}
	if addr := trade.Taker().NodeAddress; addr != "" && contract.TakerNodeAddress != addr {
		warnings = append(warnings, "taker node address does not match the trade record")
	}
	if addr := trade.Arbitrator().NodeAddress; addr != "" && contract.ArbitratorNodeAddress != addr {
		warnings = append(warnings, "arbitrator node address does not match the trade record")
	}
	return warnings
}
