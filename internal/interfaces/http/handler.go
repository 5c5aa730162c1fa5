package httpinterface

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/peertrade-network/peertrade-daemon/internal/core/application"
	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
)

// handler exposes the operator interface over HTTP/JSON. It is a local
// control surface for the trader and the arbitrator, not a public API.
type handler struct {
	tradeSvc   application.TradeService
	disputeSvc application.DisputeService
}

// NewRouter mounts the operator endpoints and the metrics handler.
func NewRouter(
	tradeSvc application.TradeService, disputeSvc application.DisputeService,
) http.Handler {
	h := &handler{tradeSvc: tradeSvc, disputeSvc: disputeSvc}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/trades", func(r chi.Router) {
			r.Post("/", h.initTrade)
			r.Get("/", h.listTrades)
			r.Get("/{tradeId}", h.getTrade)
			r.Post("/{tradeId}/payment-sent", h.confirmPaymentSent)
			r.Post("/{tradeId}/payment-received", h.confirmPaymentReceived)
			r.Post("/{tradeId}/disputes", h.openDispute)
		})
		r.Route("/disputes", func(r chi.Router) {
			r.Get("/", h.listDisputes)
			r.Get("/{disputeId}", h.getDispute)
			r.Post("/{disputeId}/chat", h.sendDisputeChat)
			r.Post("/{disputeId}/close", h.closeDispute)
			r.Post("/{disputeId}/reopen", h.reopenDispute)
		})
	})
	return r
}

type initTradeRequest struct {
	OfferId               string `json:"offerId"`
	Amount                uint64 `json:"amount"`
	Price                 string `json:"price"`
	TradeFee              uint64 `json:"tradeFee"`
	TxFee                 uint64 `json:"txFee"`
	BuyerDepositPct       string `json:"buyerDepositPct"`
	SellerDepositPct      string `json:"sellerDepositPct"`
	IsBuyerMaker          bool   `json:"isBuyerMaker"`
	MakerNodeAddress      string `json:"makerNodeAddress"`
	MakerPubKey           string `json:"makerPubKey"`
	ArbitratorNodeAddress string `json:"arbitratorNodeAddress"`
	ArbitratorPubKey      string `json:"arbitratorPubKey"`
	PaymentAccountId      string `json:"paymentAccountId"`
	PayoutAddress         string `json:"payoutAddress"`
}

func (h *handler) initTrade(w http.ResponseWriter, r *http.Request) {
	var req initTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	offerId, err := uuid.Parse(req.OfferId)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	buyerPct, err := decimal.NewFromString(req.BuyerDepositPct)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sellerPct, err := decimal.NewFromString(req.SellerDepositPct)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tradeId, err := h.tradeSvc.InitTrade(r.Context(), application.InitTradeParams{
		OfferId:          offerId,
		Amount:           req.Amount,
		Price:            price,
		TradeFee:         req.TradeFee,
		TxFee:            req.TxFee,
		BuyerDepositPct:  buyerPct,
		SellerDepositPct: sellerPct,
		IsBuyerMaker:     req.IsBuyerMaker,
		Maker: application.PeerInfo{
			NodeAddress: req.MakerNodeAddress, PubKey: req.MakerPubKey,
		},
		Arbitrator: application.PeerInfo{
			NodeAddress: req.ArbitratorNodeAddress, PubKey: req.ArbitratorPubKey,
		},
		PaymentAccountId: req.PaymentAccountId,
		PayoutAddress:    req.PayoutAddress,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"tradeId": tradeId.String()})
}

func (h *handler) listTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.tradeSvc.ListTrades(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	views := make([]tradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, newTradeView(t))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) getTrade(w http.ResponseWriter, r *http.Request) {
	tradeId, err := uuid.Parse(chi.URLParam(r, "tradeId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	trade, err := h.tradeSvc.GetTrade(r.Context(), tradeId)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTradeView(trade))
}

func (h *handler) confirmPaymentSent(w http.ResponseWriter, r *http.Request) {
	tradeId, err := uuid.Parse(chi.URLParam(r, "tradeId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.tradeSvc.ConfirmPaymentSent(r.Context(), tradeId); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) confirmPaymentReceived(w http.ResponseWriter, r *http.Request) {
	tradeId, err := uuid.Parse(chi.URLParam(r, "tradeId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.tradeSvc.ConfirmPaymentReceived(r.Context(), tradeId); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) openDispute(w http.ResponseWriter, r *http.Request) {
	tradeId, err := uuid.Parse(chi.URLParam(r, "tradeId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		SupportType int `json:"supportType"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	disputeId, err := h.disputeSvc.OpenDispute(
		r.Context(), tradeId, domain.SupportType(req.SupportType),
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"disputeId": disputeId.String()})
}

func (h *handler) reopenDispute(w http.ResponseWriter, r *http.Request) {
	disputeId, err := uuid.Parse(chi.URLParam(r, "disputeId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.disputeSvc.ReopenDispute(r.Context(), disputeId); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listDisputes(w http.ResponseWriter, r *http.Request) {
	disputes, err := h.disputeSvc.ListDisputes(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	views := make([]disputeView, 0, len(disputes))
	for _, d := range disputes {
		views = append(views, newDisputeView(d))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) getDispute(w http.ResponseWriter, r *http.Request) {
	disputeId, err := uuid.Parse(chi.URLParam(r, "disputeId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	dispute, err := h.disputeSvc.GetDispute(r.Context(), disputeId)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDisputeView(dispute))
}

func (h *handler) sendDisputeChat(w http.ResponseWriter, r *http.Request) {
	disputeId, err := uuid.Parse(chi.URLParam(r, "disputeId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.disputeSvc.SendDisputeChat(r.Context(), disputeId, req.Message); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) closeDispute(w http.ResponseWriter, r *http.Request) {
	disputeId, err := uuid.Parse(chi.URLParam(r, "disputeId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Winner             int    `json:"winner"`
		BuyerPayoutAmount  uint64 `json:"buyerPayoutAmount"`
		SellerPayoutAmount uint64 `json:"sellerPayoutAmount"`
		SummaryNotes       string `json:"summaryNotes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.disputeSvc.CloseDispute(r.Context(), application.CloseDisputeParams{
		DisputeId:          disputeId,
		Winner:             domain.DisputeWinner(req.Winner),
		BuyerPayoutAmount:  req.BuyerPayoutAmount,
		SellerPayoutAmount: req.SellerPayoutAmount,
		SummaryNotes:       req.SummaryNotes,
	}); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("writing http response failed")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTradeNotFound),
		errors.Is(err, domain.ErrDisputeNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrTradeAlreadyExists),
		errors.Is(err, domain.ErrDisputeAlreadyOpen),
		errors.Is(err, domain.ErrDisputeAlreadyClosed):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, application.ErrNotBuyer),
		errors.Is(err, application.ErrNotSeller),
		errors.Is(err, application.ErrCannotDispute),
		errors.Is(err, application.ErrDepositPhaseNotDone):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
