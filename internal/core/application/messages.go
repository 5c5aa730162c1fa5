package application

import (
	"encoding/json"

	"github.com/thanhpk/randstr"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
	"github.com/peertrade-network/peertrade-daemon/internal/core/ports"
)

// InitTradeRequest is sent by the taker to the maker and the arbitrator to
// start the protocol.
type InitTradeRequest struct {
	OfferId               string `json:"offerId"`
	Amount                uint64 `json:"amount"`
	Price                 string `json:"price"`
	TradeFee              uint64 `json:"tradeFee"`
	TxFee                 uint64 `json:"txFee"`
	BuyerDepositPct       string `json:"buyerDepositPct"`
	SellerDepositPct      string `json:"sellerDepositPct"`
	IsBuyerMaker          bool   `json:"isBuyerMaker"`
	TakerNodeAddress      string `json:"takerNodeAddress"`
	TakerPubKey           string `json:"takerPubKey"`
	TakerPaymentAccountId string `json:"takerPaymentAccountId"`
	TakerPayoutAddress    string `json:"takerPayoutAddress"`
	MakerNodeAddress      string `json:"makerNodeAddress"`
	MakerPubKey           string `json:"makerPubKey"`
	ArbitratorNodeAddress string `json:"arbitratorNodeAddress"`
	ArbitratorPubKey      string `json:"arbitratorPubKey"`
}

// MultisigBlobMessage carries one round of multisig key-exchange material.
// The same payload shape serves the prepared, made and exchanged rounds, the
// envelope type tells them apart.
type MultisigBlobMessage struct {
	TradeId string `json:"tradeId"`
	Blob    string `json:"blob"`
}

// ContractSignatureRequest carries the maker-signed canonical contract.
type ContractSignatureRequest struct {
	TradeId        string `json:"tradeId"`
	ContractJson   []byte `json:"contractJson"`
	MakerSignature []byte `json:"makerSignature"`
}

// ContractSignatureResponse carries the taker's countersignature. The
// contract and the maker signature ride along so the arbitrator, which never
// receives the signature request, learns the contract too.
type ContractSignatureResponse struct {
	TradeId        string `json:"tradeId"`
	ContractJson   []byte `json:"contractJson"`
	MakerSignature []byte `json:"makerSignature"`
	TakerSignature []byte `json:"takerSignature"`
}

// DepositRequest announces the sender's deposit transaction.
type DepositRequest struct {
	TradeId            string `json:"tradeId"`
	DepositTxId        string `json:"depositTxId"`
	UpdatedMultisigHex string `json:"updatedMultisigHex"`
}

// PaymentMessage serves both the buyer's payment-sent and the seller's
// payment-received notifications.
type PaymentMessage struct {
	TradeId string `json:"tradeId"`
	Note    string `json:"note"`
	// PayoutTxId is set on the payment-received message once the seller
	// published the happy-path payout.
	PayoutTxId string `json:"payoutTxId,omitempty"`
}

// DisputeOpenedMessage carries a dispute to the arbitrator, or a mirrored
// dispute from the arbitrator to the non-opening trader.
type DisputeOpenedMessage struct {
	DisputeId     string             `json:"disputeId"`
	TradeId       string             `json:"tradeId"`
	TraderPubKey  string             `json:"traderPubKey"`
	SupportType   int                `json:"supportType"`
	ContractJson  []byte             `json:"contractJson"`
	Mirrored      bool               `json:"mirrored"`
	SystemMessage domain.ChatMessage `json:"systemMessage"`
}

// DisputeChatMessage carries one chat or evidence line.
type DisputeChatMessage struct {
	DisputeId string             `json:"disputeId"`
	TradeId   string             `json:"tradeId"`
	Message   domain.ChatMessage `json:"message"`
}

// DisputeClosedMessage carries the arbitrator's binding decision.
type DisputeClosedMessage struct {
	DisputeId           string `json:"disputeId"`
	TradeId             string `json:"tradeId"`
	Winner              int    `json:"winner"`
	BuyerPayoutAmount   uint64 `json:"buyerPayoutAmount"`
	SellerPayoutAmount  uint64 `json:"sellerPayoutAmount"`
	SignedSummary       string `json:"signedSummary"`
	UnsignedPayoutTxHex string `json:"unsignedPayoutTxHex"`
	ArbitratorHex       string `json:"arbitratorHex"`
	// DeferPublishPayout tells the receiver not to publish the payout
	// itself, trusting the other side to publish imminently.
	DeferPublishPayout bool `json:"deferPublishPayout"`
}

func newEnvelope(
	tradeId, msgType, senderAddress, senderPubKey string, payload interface{},
) (ports.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ports.Envelope{}, err
	}
	return ports.Envelope{
		Id:            randstr.Hex(16),
		TradeId:       tradeId,
		Type:          msgType,
		SenderAddress: senderAddress,
		SenderPubKey:  senderPubKey,
		Payload:       raw,
	}, nil
}
