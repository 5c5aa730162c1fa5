package domain

import (
	"time"

	"github.com/google/uuid"
)

// SupportType is the escalation tier of a dispute.
type SupportType int

const (
	SupportTypeMediation SupportType = iota
	SupportTypeArbitration
)

func (s SupportType) String() string {
	if s == SupportTypeMediation {
		return "mediation"
	}
	return "arbitration"
}

// DisputeWinner identifies the side awarded by the arbitrator.
type DisputeWinner int

const (
	DisputeWinnerBuyer DisputeWinner = iota
	DisputeWinnerSeller
)

func (w DisputeWinner) String() string {
	if w == DisputeWinnerBuyer {
		return "buyer"
	}
	return "seller"
}

// ChatMessage is one entry of a dispute's append-only message list. Some
// messages are system-generated, the rest is evidence and free-form chat.
type ChatMessage struct {
	Id            string
	TradeId       uuid.UUID
	SenderPubKey  string
	Message       string
	SystemMessage bool
	Timestamp     int64
}

// DisputeResult is the arbitrator's binding decision, produced once when the
// dispute is closed and immutable afterwards. It is persisted as part of the
// chat message history for auditability.
type DisputeResult struct {
	Winner              DisputeWinner
	BuyerPayoutAmount   uint64
	SellerPayoutAmount  uint64
	SummaryNotes        string
	ArbitratorSignature []byte
	UnsignedPayoutTxHex string
	ClosingDate         int64
}

// Dispute is opened by one trader against exactly one trade. Multiple
// disputes can exist for the same trade, one per party that opened one; they
// are unified only at the arbitrator.
type Dispute struct {
	Id               uuid.UUID
	TradeId          uuid.UUID
	TraderPubKey     string
	SupportType      SupportType
	ContractJson     []byte
	ContractHash     []byte
	ArbitratorPubKey string
	ChatMessages     []ChatMessage
	// Mirrored marks disputes the arbitrator constructed on behalf of the
	// non-opening trader.
	Mirrored bool
	// ValidationWarnings collects malformed peer-supplied fields found while
	// validating the embedded contract. They flag the dispute for human
	// attention, they never block the protocol.
	ValidationWarnings []string
	Result             *DisputeResult
	IsClosed           bool
	OpeningDate        int64
}

// NewDispute returns an open dispute referencing the trade's current
// contract snapshot.
func NewDispute(
	tradeId uuid.UUID, traderPubKey, arbitratorPubKey string,
	supportType SupportType, contractJson []byte,
) *Dispute {
	return &Dispute{
		Id:               uuid.New(),
		TradeId:          tradeId,
		TraderPubKey:     traderPubKey,
		SupportType:      supportType,
		ContractJson:     contractJson,
		ContractHash:     ContractHash(contractJson),
		ArbitratorPubKey: arbitratorPubKey,
		OpeningDate:      time.Now().Unix(),
	}
}

// AddChatMessage appends a message to the dispute history. Messages with an
// id already present are dropped so redelivered messages do not duplicate.
func (d *Dispute) AddChatMessage(msg ChatMessage) bool {
	for _, m := range d.ChatMessages {
		if m.Id == msg.Id {
			return false
		}
	}
	d.ChatMessages = append(d.ChatMessages, msg)
	return true
}

// AddValidationWarning records a non-fatal validation finding.
func (d *Dispute) AddValidationWarning(warning string) {
	d.ValidationWarnings = append(d.ValidationWarnings, warning)
}

// Close attaches the arbitrator's result and closes the dispute. Closing an
// already closed dispute with a result is idempotent; the first result wins.
func (d *Dispute) Close(result *DisputeResult) error {
	if d.IsClosed {
		return ErrDisputeAlreadyClosed
	}
	result.ClosingDate = time.Now().Unix()
	d.Result = result
	d.IsClosed = true
	return nil
}
