package domain

// Trade status codes. The order of declaration is the order of the protocol
// happy path: a transition is applied only if the target code is greater than
// the current one, so duplicated or late messages can never rewind a trade.
const (
	TradeStatusCodeInit = iota
	TradeStatusCodeMultisigPrepared
	TradeStatusCodeMultisigMade
	TradeStatusCodeMultisigExchanged
	TradeStatusCodeMultisigCompleted
	TradeStatusCodeContractSignatureRequested
	TradeStatusCodeContractSigned
	TradeStatusCodeDepositRequestSent
	TradeStatusCodeDepositRequestArrived
	TradeStatusCodeDepositTxSeenInNetwork
	TradeStatusCodeDepositTxConfirmed
	TradeStatusCodeDepositTxsUnlocked
	TradeStatusCodeBuyerSentPaymentSentMsg
	TradeStatusCodeSellerReceivedPaymentSentMsg
	TradeStatusCodeSellerSentPaymentReceivedMsg
	TradeStatusCodeCompleted
)

// Dispute status codes, independent of the trade status. The three delivery
// outcomes of the closed message are ordered after the sent code so that each
// outcome is forward progress from "sent".
const (
	DisputeStatusCodeNoDispute = iota
	DisputeStatusCodeOpened
	DisputeStatusCodeClosedMsgSent
	DisputeStatusCodeClosedMsgArrived
	DisputeStatusCodeClosedMsgStoredInMailbox
	DisputeStatusCodeClosedMsgSendFailed
)

// Payout status codes, independent of both trade and dispute status.
const (
	PayoutStatusCodeNoPayout = iota
	PayoutStatusCodePublished
	PayoutStatusCodeConfirmed
	PayoutStatusCodeUnlocked
)

// Status represents the progress of a trade along the protocol happy path.
// Failed is set when the trade aborted; the code then records how far it got.
type Status struct {
	Code   int
	Failed bool
}
