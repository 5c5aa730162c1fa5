package httpinterface

import (
	"encoding/hex"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
)

type tradeView struct {
	Id            string `json:"id"`
	Role          string `json:"role"`
	Amount        uint64 `json:"amount"`
	Price         string `json:"price"`
	IsBuyerMaker  bool   `json:"isBuyerMaker"`
	EscrowAddress string `json:"escrowAddress,omitempty"`
	StatusCode    int    `json:"statusCode"`
	Failed        bool   `json:"failed"`
	DisputeStatus int    `json:"disputeStatus"`
	PayoutStatus  int    `json:"payoutStatus"`
	PayoutTxId    string `json:"payoutTxId,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	OpeningDate   int64  `json:"openingDate"`
	ClosingDate   int64  `json:"closingDate,omitempty"`
	Closed        bool   `json:"closed"`
}

func newTradeView(t *domain.Trade) tradeView {
	return tradeView{
		Id:            t.Id.String(),
		Role:          t.Role.String(),
		Amount:        t.Amount,
		Price:         t.Price.String(),
		IsBuyerMaker:  t.IsBuyerMaker,
		EscrowAddress: t.EscrowAddress,
		StatusCode:    t.Status.Code,
		Failed:        t.Status.Failed,
		DisputeStatus: t.DisputeStatus,
		PayoutStatus:  t.PayoutStatus,
		PayoutTxId:    t.PayoutTxId,
		ErrorMessage:  t.ErrorMessage,
		OpeningDate:   t.OpeningDate,
		ClosingDate:   t.ClosingDate,
		Closed:        t.Closed,
	}
}

type chatMessageView struct {
	Id            string `json:"id"`
	SenderPubKey  string `json:"senderPubKey"`
	Message       string `json:"message"`
	SystemMessage bool   `json:"systemMessage"`
	Timestamp     int64  `json:"timestamp"`
}

type disputeResultView struct {
	Winner             string `json:"winner"`
	BuyerPayoutAmount  uint64 `json:"buyerPayoutAmount"`
	SellerPayoutAmount uint64 `json:"sellerPayoutAmount"`
	SummaryNotes       string `json:"summaryNotes,omitempty"`
	ClosingDate        int64  `json:"closingDate"`
}

type disputeView struct {
	Id                 string             `json:"id"`
	TradeId            string             `json:"tradeId"`
	TraderPubKey       string             `json:"traderPubKey"`
	SupportType        string             `json:"supportType"`
	ContractHash       string             `json:"contractHash"`
	Mirrored           bool               `json:"mirrored"`
	ValidationWarnings []string           `json:"validationWarnings,omitempty"`
	ChatMessages       []chatMessageView  `json:"chatMessages"`
	Result             *disputeResultView `json:"result,omitempty"`
	IsClosed           bool               `json:"isClosed"`
	OpeningDate        int64              `json:"openingDate"`
}

func newDisputeView(d *domain.Dispute) disputeView {
	msgs := make([]chatMessageView, 0, len(d.ChatMessages))
	for _, m := range d.ChatMessages {
		msgs = append(msgs, chatMessageView{
			Id:            m.Id,
			SenderPubKey:  m.SenderPubKey,
			Message:       m.Message,
			SystemMessage: m.SystemMessage,
			Timestamp:     m.Timestamp,
		})
	}
	view := disputeView{
		Id:                 d.Id.String(),
		TradeId:            d.TradeId.String(),
		TraderPubKey:       d.TraderPubKey,
		SupportType:        d.SupportType.String(),
		ContractHash:       hex.EncodeToString(d.ContractHash),
		Mirrored:           d.Mirrored,
		ValidationWarnings: d.ValidationWarnings,
		ChatMessages:       msgs,
		IsClosed:           d.IsClosed,
		OpeningDate:        d.OpeningDate,
	}
	if d.Result != nil {
		view.Result = &disputeResultView{
			Winner:             d.Result.Winner.String(),
			BuyerPayoutAmount:  d.Result.BuyerPayoutAmount,
			SellerPayoutAmount: d.Result.SellerPayoutAmount,
			SummaryNotes:       d.Result.SummaryNotes,
			ClosingDate:        d.Result.ClosingDate,
		}
	}
	return view
}
