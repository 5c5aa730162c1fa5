package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
	"github.com/peertrade-network/peertrade-daemon/internal/core/ports"
)

// TradeService exposes the engine's public trade operations and consumes the
// inbound message stream that drives the protocol forward.
type TradeService interface {
	// Start resumes persisted pipelines and begins consuming inbound
	// messages. It returns once the dispatcher goroutine is running.
	Start(ctx context.Context) error
	// InitTrade runs the taker side of the initiation: it sends the init
	// request to the maker and the arbitrator and, once both acknowledged,
	// prepares the multisig wallet.
	InitTrade(ctx context.Context, params InitTradeParams) (uuid.UUID, error)
	// ConfirmPaymentSent is invoked by the buyer once the fiat payment left.
	ConfirmPaymentSent(ctx context.Context, tradeId uuid.UUID) error
	// ConfirmPaymentReceived is invoked by the seller once the fiat payment
	// arrived; it also publishes the happy-path payout.
	ConfirmPaymentReceived(ctx context.Context, tradeId uuid.UUID) error
	GetTrade(ctx context.Context, tradeId uuid.UUID) (*domain.Trade, error)
	ListTrades(ctx context.Context) ([]*domain.Trade, error)
}

// TradeServiceOpts collects the collaborators and local configuration of the
// trade service.
type TradeServiceOpts struct {
	Identity         Identity
	RepoManager      ports.RepoManager
	Wallet           ports.WalletService
	Messenger        ports.Messenger
	BackupArbitrator PeerInfo
	Network          NetworkParams
	PaymentAccountId string
	PayoutAddress    string
	PollInterval     time.Duration
	PollTimeout      time.Duration
}

type tradeService struct {
	identity         Identity
	repoManager      ports.RepoManager
	wallet           ports.WalletService
	messenger        ports.Messenger
	runner           *pipelineRunner
	backupArbitrator PeerInfo
	network          NetworkParams
	paymentAccountId string
	payoutAddress    string
	pollInterval     time.Duration
	pollTimeout      time.Duration

	// watchers tracks the per-trade deposit/payout listeners so repeated
	// triggers never spawn a second watcher for the same trade.
	watchers sync.Map

	disputeSvc *disputeService
}

// NewTradeService returns a TradeService wired to the given collaborators.
func NewTradeService(opts TradeServiceOpts) TradeService {
	s := newTradeService(opts)
	s.disputeSvc = newDisputeService(s)
	return s
}

func newTradeService(opts TradeServiceOpts) *tradeService {
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Minute
	}
	return &tradeService{
		identity:         opts.Identity,
		repoManager:      opts.RepoManager,
		wallet:           opts.Wallet,
		messenger:        opts.Messenger,
		runner:           newPipelineRunner(opts.RepoManager.TradeRepository()),
		backupArbitrator: opts.BackupArbitrator,
		network:          opts.Network,
		paymentAccountId: opts.PaymentAccountId,
		payoutAddress:    opts.PayoutAddress,
		pollInterval:     pollInterval,
		pollTimeout:      pollTimeout,
	}
}

func (s *tradeService) tradeRepo() domain.TradeRepository {
	return s.repoManager.TradeRepository()
}

func (s *tradeService) Start(ctx context.Context) error {
	if err := s.resumePipelines(ctx); err != nil {
		return err
	}
	go s.dispatchInbound(ctx)
	return nil
}

// resumePipelines reconstructs pipeline positions from the persisted trade
// status, not from any in-memory pipeline sequence position.
func (s *tradeService) resumePipelines(ctx context.Context) error {
	trades, err := s.tradeRepo().GetOpenTrades(ctx)
	if err != nil {
		return err
	}
	for _, t := range trades {
		if t.IsFailed() {
			continue
		}
		if s.shouldWatchDeposits(t) {
			s.startDepositWatcher(ctx, t.Id)
		}
		if t.PayoutStatus == domain.PayoutStatusCodePublished {
			s.startPayoutWatcher(ctx, t.Id)
		}
		log.WithFields(log.Fields{
			"trade": t.Id, "status": t.Status.Code,
		}).Info("resumed trade")
	}
	return nil
}

func (s *tradeService) shouldWatchDeposits(t *domain.Trade) bool {
	if t.IsDepositPhaseDone() {
		return false
	}
	return t.Maker().DepositTxId != "" && t.Taker().DepositTxId != ""
}

func (s *tradeService) dispatchInbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-s.messenger.Inbound():
			if !ok {
				return
			}
			go s.handleEnvelope(ctx, env)
		}
	}
}

func (s *tradeService) handleEnvelope(ctx context.Context, env ports.Envelope) {
	var err error
	switch env.Type {
	case msgTypeInitTradeRequest:
		err = s.handleInitTradeRequest(ctx, env)
	case msgTypeMultisigPrepared, msgTypeMultisigMade, msgTypeMultisigExchanged:
		err = s.handleMultisigBlob(ctx, env)
	case msgTypeContractSignatureReq:
		err = s.handleContractSignatureRequest(ctx, env)
	case msgTypeContractSignatureResp:
		err = s.handleContractSignatureResponse(ctx, env)
	case msgTypeDepositRequest:
		err = s.handleDepositRequest(ctx, env)
	case msgTypePaymentSent:
		err = s.handlePaymentSent(ctx, env)
	case msgTypePaymentReceived:
		err = s.handlePaymentReceived(ctx, env)
	case msgTypeDisputeOpened, msgTypeDisputeChat, msgTypeDisputeClosed:
		if s.disputeSvc != nil {
			err = s.disputeSvc.handleEnvelope(ctx, env)
		}
	default:
		log.WithField("type", env.Type).Warn("dropping message of unknown type")
	}
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"trade": env.TradeId, "type": env.Type,
		}).Warn("inbound message handling failed")
	}
}

func (s *tradeService) InitTrade(
	ctx context.Context, params InitTradeParams,
) (uuid.UUID, error) {
	trade := domain.NewTakerTrade(params.OfferId)
	trade.Amount = params.Amount
	trade.Price = params.Price
	trade.TradeFee = params.TradeFee
	trade.TxFee = params.TxFee
	trade.BuyerDepositPct = params.BuyerDepositPct
	trade.SellerDepositPct = params.SellerDepositPct
	trade.IsBuyerMaker = params.IsBuyerMaker

	self := trade.Self()
	self.NodeAddress = s.identity.NodeAddress
	self.PubKey = s.identity.PubKeyHex()
	self.PaymentAccountId = s.paymentAccountId
	self.PayoutAddress = s.payoutAddress

	maker := trade.Maker()
	maker.NodeAddress = params.Maker.NodeAddress
	maker.PubKey = params.Maker.PubKey

	arb := trade.Arbitrator()
	arb.NodeAddress = params.Arbitrator.NodeAddress
	arb.PubKey = params.Arbitrator.PubKey

	if err := s.tradeRepo().AddTrade(ctx, trade); err != nil {
		return uuid.Nil, err
	}

	steps := []Step{
		{Name: "send-init-request", Run: func(ctx context.Context) error {
			return s.sendInitRequest(ctx, trade.Id)
		}},
		{Name: "prepare-multisig", Run: func(ctx context.Context) error {
			return s.prepareMultisig(ctx, trade.Id)
		}},
	}
	if err := s.runner.Execute(ctx, trade.Id, steps); err != nil {
		return trade.Id, err
	}
	return trade.Id, nil
}

// sendInitRequest performs the two-way initiation join: the request goes to
// the maker and the arbitrator in parallel and the step completes only when
// both deliveries are acknowledged arrived. An unreachable arbitrator is
// retried once against the backup arbitrator before the trade is failed.
func (s *tradeService) sendInitRequest(ctx context.Context, tradeId uuid.UUID) error {
	trade, err := s.tradeRepo().GetTrade(ctx, tradeId)
	if err != nil {
		return err
	}

	req := InitTradeRequest{
		OfferId:               trade.Id.String(),
		Amount:                trade.Amount,
		Price:                 trade.Price.String(),
		TradeFee:              trade.TradeFee,
		TxFee:                 trade.TxFee,
		BuyerDepositPct:       trade.BuyerDepositPct.String(),
		SellerDepositPct:      trade.SellerDepositPct.String(),
		IsBuyerMaker:          trade.IsBuyerMaker,
		TakerNodeAddress:      trade.Taker().NodeAddress,
		TakerPubKey:           trade.Taker().PubKey,
		TakerPaymentAccountId: trade.Taker().PaymentAccountId,
		TakerPayoutAddress:    trade.Taker().PayoutAddress,
		MakerNodeAddress:      trade.Maker().NodeAddress,
		MakerPubKey:           trade.Maker().PubKey,
		ArbitratorNodeAddress: trade.Arbitrator().NodeAddress,
		ArbitratorPubKey:      trade.Arbitrator().PubKey,
	}

	var makerArrived, arbArrived, usedBackup bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := s.awaitDirect(gctx, PeerInfo{
			NodeAddress: trade.Maker().NodeAddress, PubKey: trade.Maker().PubKey,
		}, tradeId.String(), msgTypeInitTradeRequest, req)
		if err != nil {
			return err
		}
		if out.State != ports.DeliveryArrived {
			return fmt.Errorf("%w: maker: %s", ErrInitDeliveryFault, out.Reason)
		}
		makerArrived = true
		return nil
	})
	g.Go(func() error {
		out, err := s.awaitDirect(gctx, PeerInfo{
			NodeAddress: trade.Arbitrator().NodeAddress, PubKey: trade.Arbitrator().PubKey,
		}, tradeId.String(), msgTypeInitTradeRequest, req)
		if err == nil && out.State == ports.DeliveryArrived {
			arbArrived = true
			return nil
		}
		// Single-retry fallback against the backup arbitrator, not unbounded.
		if s.backupArbitrator.NodeAddress == "" {
			return fmt.Errorf("%w: arbitrator unreachable, no backup configured", ErrInitDeliveryFault)
		}
		backupReq := req
		backupReq.ArbitratorNodeAddress = s.backupArbitrator.NodeAddress
		backupReq.ArbitratorPubKey = s.backupArbitrator.PubKey
		out, err = s.awaitDirect(
			gctx, s.backupArbitrator, tradeId.String(), msgTypeInitTradeRequest, backupReq,
		)
		if err != nil {
			return err
		}
		if out.State != ports.DeliveryArrived {
			return fmt.Errorf("%w: backup arbitrator: %s", ErrInitDeliveryFault, out.Reason)
		}
		usedBackup = true
		arbArrived = true
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if !makerArrived || !arbArrived {
		return ErrInitDeliveryFault
	}

	if !usedBackup {
		return nil
	}
	return s.tradeRepo().UpdateTrade(
		ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
			t.Arbitrator().NodeAddress = s.backupArbitrator.NodeAddress
			t.Arbitrator().PubKey = s.backupArbitrator.PubKey
			return t, nil
		},
	)
}

// prepareMultisig creates the trade's dedicated multisig wallet, produces the
// prepared key-exchange blob and announces it to the other parties.
func (s *tradeService) prepareMultisig(ctx context.Context, tradeId uuid.UUID) error {
	walletId, err := s.wallet.CreateOrOpenMultisigWallet(ctx, tradeId.String())
	if err != nil {
		return err
	}
	prepared, err := s.wallet.PrepareMultisig(ctx, walletId)
	if err != nil {
		return err
	}

	var trade *domain.Trade
	err = s.tradeRepo().UpdateTrade(
		ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
			t.WalletId = walletId
			t.MultisigPrepared(prepared)
			trade = t
			return t, nil
		},
	)
	if err != nil {
		return err
	}

	return s.broadcastToPeers(ctx, trade, msgTypeMultisigPrepared, MultisigBlobMessage{
		TradeId: tradeId.String(), Blob: prepared,
	})
}

func (s *tradeService) ConfirmPaymentSent(ctx context.Context, tradeId uuid.UUID) error {
	trade, err := s.tradeRepo().GetTrade(ctx, tradeId)
	if err != nil {
		return err
	}
	if !trade.IsBuyer() {
		return ErrNotBuyer
	}
	if !trade.IsDepositPhaseDone() {
		return ErrDepositPhaseNotDone
	}

	return s.runner.Execute(ctx, tradeId, []Step{
		{Name: "send-payment-sent", Run: func(ctx context.Context) error {
			seller := trade.Seller()
			out, err := s.awaitMailbox(ctx, PeerInfo{
				NodeAddress: seller.NodeAddress, PubKey: seller.PubKey,
			}, tradeId.String(), msgTypePaymentSent, PaymentMessage{TradeId: tradeId.String()})
			if err != nil {
				return err
			}
			if out.State == ports.DeliveryFault {
				// The trade status stays at the pre-send value so the buyer
				// can resend.
				return fmt.Errorf("payment-sent delivery faulted: %s", out.Reason)
			}
			return s.tradeRepo().UpdateTrade(
				ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
					t.PaymentSentMsgDelivered()
					return t, nil
				},
			)
		}},
	})
}

func (s *tradeService) ConfirmPaymentReceived(ctx context.Context, tradeId uuid.UUID) error {
	trade, err := s.tradeRepo().GetTrade(ctx, tradeId)
	if err != nil {
		return err
	}
	if trade.IsBuyer() || trade.Role == domain.RoleArbitrator {
		return ErrNotSeller
	}
	if !trade.IsDepositPhaseDone() {
		return ErrDepositPhaseNotDone
	}

	return s.runner.Execute(ctx, tradeId, []Step{
		{Name: "publish-payout", Run: func(ctx context.Context) error {
			return s.publishHappyPathPayout(ctx, tradeId)
		}},
		{Name: "send-payment-received", Run: func(ctx context.Context) error {
			current, err := s.tradeRepo().GetTrade(ctx, tradeId)
			if err != nil {
				return err
			}
			buyer := current.Buyer()
			out, err := s.awaitMailbox(ctx, PeerInfo{
				NodeAddress: buyer.NodeAddress, PubKey: buyer.PubKey,
			}, tradeId.String(), msgTypePaymentReceived, PaymentMessage{
				TradeId: tradeId.String(), PayoutTxId: current.PayoutTxId,
			})
			if err != nil {
				return err
			}
			if out.State == ports.DeliveryFault {
				return fmt.Errorf("payment-received delivery faulted: %s", out.Reason)
			}
			return s.tradeRepo().UpdateTrade(
				ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
					t.PaymentReceivedMsgSent()
					if t.Complete() {
						tradesCompletedCounter.Inc()
					}
					return t, nil
				},
			)
		}},
	})
}

func (s *tradeService) GetTrade(
	ctx context.Context, tradeId uuid.UUID,
) (*domain.Trade, error) {
	return s.tradeRepo().GetTrade(ctx, tradeId)
}

func (s *tradeService) ListTrades(ctx context.Context) ([]*domain.Trade, error) {
	return s.tradeRepo().GetAllTrades(ctx)
}

// awaitDirect sends a direct message and blocks until its delivery outcome.
func (s *tradeService) awaitDirect(
	ctx context.Context, peer PeerInfo, tradeId, msgType string, payload interface{},
) (ports.DeliveryOutcome, error) {
	env, err := newEnvelope(tradeId, msgType, s.identity.NodeAddress, s.identity.PubKeyHex(), payload)
	if err != nil {
		return ports.DeliveryOutcome{}, err
	}
	ch, err := s.messenger.SendDirect(ctx, peer.NodeAddress, peer.PubKey, env)
	if err != nil {
		return ports.DeliveryOutcome{}, err
	}
	return awaitOutcome(ctx, ch)
}

// awaitMailbox sends a mailbox message and blocks until its delivery outcome.
func (s *tradeService) awaitMailbox(
	ctx context.Context, peer PeerInfo, tradeId, msgType string, payload interface{},
) (ports.DeliveryOutcome, error) {
	env, err := newEnvelope(tradeId, msgType, s.identity.NodeAddress, s.identity.PubKeyHex(), payload)
	if err != nil {
		return ports.DeliveryOutcome{}, err
	}
	ch, err := s.messenger.SendMailbox(ctx, peer.NodeAddress, peer.PubKey, env)
	if err != nil {
		return ports.DeliveryOutcome{}, err
	}
	return awaitOutcome(ctx, ch)
}

func awaitOutcome(
	ctx context.Context, ch <-chan ports.DeliveryOutcome,
) (ports.DeliveryOutcome, error) {
	select {
	case out := <-ch:
		return out, nil
	case <-ctx.Done():
		return ports.DeliveryOutcome{}, ctx.Err()
	}
}

// broadcastToPeers sends the same message to every remote party of the trade
// and fails on any delivery fault. Before funds move, a fault aborts the
// trade.
func (s *tradeService) broadcastToPeers(
	ctx context.Context, trade *domain.Trade, msgType string, payload interface{},
) error {
	g, gctx := errgroup.WithContext(ctx)
	for role, peer := range trade.Peers {
		if role == trade.Role || peer.NodeAddress == "" {
			continue
		}
		info := PeerInfo{NodeAddress: peer.NodeAddress, PubKey: peer.PubKey}
		g.Go(func() error {
			out, err := s.awaitDirect(gctx, info, trade.Id.String(), msgType, payload)
			if err != nil {
				return err
			}
			if out.State == ports.DeliveryFault {
				return fmt.Errorf("%s delivery to %s faulted: %s", msgType, info.NodeAddress, out.Reason)
			}
			return nil
		})
	}
	return g.Wait()
}
