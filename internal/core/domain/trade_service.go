package domain

import "time"

// advanceStatus applies the set-if-progress guard on the main status code.
// It returns whether the transition was applied. A transition that does not
// represent forward progress is silently dropped: messages may arrive out of
// order or be retried and the status must stay monotonic.
func (t *Trade) advanceStatus(code int) bool {
	if code <= t.Status.Code {
		return false
	}
	t.Status.Code = code
	return true
}

// MultisigPrepared records the local prepared key-exchange blob and advances
// the trade out of Init. A dropped transition leaves the recorded key
// material untouched.
func (t *Trade) MultisigPrepared(preparedHex string) bool {
	if !t.advanceStatus(TradeStatusCodeMultisigPrepared) {
		return false
	}
	if preparedHex != "" {
		t.Self().PreparedMultisigHex = preparedHex
	}
	return true
}

// MultisigMade records the made key-exchange blob produced from the peers'
// prepared blobs.
func (t *Trade) MultisigMade(madeHex string) bool {
	if !t.advanceStatus(TradeStatusCodeMultisigMade) {
		return false
	}
	if madeHex != "" {
		t.Self().MadeMultisigHex = madeHex
	}
	return true
}

// MultisigExchanged records the final round of key material exchange.
func (t *Trade) MultisigExchanged(exchangedHex string) bool {
	if !t.advanceStatus(TradeStatusCodeMultisigExchanged) {
		return false
	}
	if exchangedHex != "" {
		t.Self().ExchangedMultisigHex = exchangedHex
	}
	return true
}

// MultisigCompleted marks the 2-of-3 wallet as fully set up for all parties.
func (t *Trade) MultisigCompleted() bool {
	return t.advanceStatus(TradeStatusCodeMultisigCompleted)
}

// ContractSignatureRequested marks that the maker asked the taker to verify
// and countersign the contract.
func (t *Trade) ContractSignatureRequested() bool {
	return t.advanceStatus(TradeStatusCodeContractSignatureRequested)
}

// ContractSigned stores the canonical contract JSON together with both
// signatures. From this point the economic terms of the trade are immutable.
func (t *Trade) ContractSigned(contractJson, makerSig, takerSig []byte) bool {
	if !t.advanceStatus(TradeStatusCodeContractSigned) {
		return false
	}
	t.ContractJson = contractJson
	t.MakerContractSignature = makerSig
	t.TakerContractSignature = takerSig
	return true
}

// DepositRequestSent marks the outbound deposit request as dispatched.
func (t *Trade) DepositRequestSent() bool {
	return t.advanceStatus(TradeStatusCodeDepositRequestSent)
}

// DepositRequestArrived marks the deposit request as acknowledged by the
// receiving peer.
func (t *Trade) DepositRequestArrived() bool {
	return t.advanceStatus(TradeStatusCodeDepositRequestArrived)
}

// DepositTxSeen marks the deposit transactions as visible in the wallet's
// view of the network.
func (t *Trade) DepositTxSeen() bool {
	return t.advanceStatus(TradeStatusCodeDepositTxSeenInNetwork)
}

// DepositTxConfirmed marks the deposit transactions as confirmed.
func (t *Trade) DepositTxConfirmed() bool {
	return t.advanceStatus(TradeStatusCodeDepositTxConfirmed)
}

// DepositTxsUnlocked marks the deposit transactions as spendable.
func (t *Trade) DepositTxsUnlocked() bool {
	return t.advanceStatus(TradeStatusCodeDepositTxsUnlocked)
}

// PaymentSentMsgDelivered marks the buyer's payment-sent message as delivered.
func (t *Trade) PaymentSentMsgDelivered() bool {
	return t.advanceStatus(TradeStatusCodeBuyerSentPaymentSentMsg)
}

// PaymentSentMsgReceived marks the seller as having received the payment-sent
// message.
func (t *Trade) PaymentSentMsgReceived() bool {
	return t.advanceStatus(TradeStatusCodeSellerReceivedPaymentSentMsg)
}

// PaymentReceivedMsgSent marks the seller's payment-received message as
// dispatched.
func (t *Trade) PaymentReceivedMsgSent() bool {
	return t.advanceStatus(TradeStatusCodeSellerSentPaymentReceivedMsg)
}

// Complete brings the trade to its terminal happy-path status.
func (t *Trade) Complete() bool {
	if !t.advanceStatus(TradeStatusCodeCompleted) {
		return false
	}
	t.ClosingDate = time.Now().Unix()
	return true
}

// Fail marks the trade as aborted, keeping the status code as a record of how
// far the protocol got. Calling Fail on an already failed trade keeps the
// first recorded error.
func (t *Trade) Fail(reason string) {
	if t.Status.Failed {
		return
	}
	t.Status.Failed = true
	t.ErrorMessage = reason
}

// IsFailed returns whether the trade aborted.
func (t *Trade) IsFailed() bool {
	return t.Status.Failed
}

// IsCompleted returns whether the trade reached its terminal status.
func (t *Trade) IsCompleted() bool {
	return t.Status.Code == TradeStatusCodeCompleted
}

// IsDepositPhaseDone returns whether both deposits are confirmed and
// unlocked, the gate for the payment phase.
func (t *Trade) IsDepositPhaseDone() bool {
	return t.Status.Code >= TradeStatusCodeDepositTxsUnlocked
}

// MoveToClosed archives the trade. Trades are never deleted.
func (t *Trade) MoveToClosed() {
	if t.Closed {
		return
	}
	t.Closed = true
	if t.ClosingDate == 0 {
		t.ClosingDate = time.Now().Unix()
	}
}

func (t *Trade) advanceDisputeStatus(code int) bool {
	if code <= t.DisputeStatus {
		return false
	}
	t.DisputeStatus = code
	return true
}

// DisputeOpened advances the dispute sub-state out of NoDispute.
func (t *Trade) DisputeOpened() bool {
	return t.advanceDisputeStatus(DisputeStatusCodeOpened)
}

// DisputeClosedMsgSent marks the arbitrator's closed message as dispatched.
func (t *Trade) DisputeClosedMsgSent() bool {
	return t.advanceDisputeStatus(DisputeStatusCodeClosedMsgSent)
}

// DisputeClosedMsgArrived marks the closed message as acknowledged by the
// receiving trader.
func (t *Trade) DisputeClosedMsgArrived() bool {
	return t.advanceDisputeStatus(DisputeStatusCodeClosedMsgArrived)
}

// DisputeClosedMsgStoredInMailbox marks the closed message as queued for an
// offline trader.
func (t *Trade) DisputeClosedMsgStoredInMailbox() bool {
	return t.advanceDisputeStatus(DisputeStatusCodeClosedMsgStoredInMailbox)
}

// DisputeClosedMsgSendFailed marks the closed message delivery as faulted.
func (t *Trade) DisputeClosedMsgSendFailed() bool {
	return t.advanceDisputeStatus(DisputeStatusCodeClosedMsgSendFailed)
}

// HasDispute returns whether a dispute was opened against this trade.
func (t *Trade) HasDispute() bool {
	return t.DisputeStatus > DisputeStatusCodeNoDispute
}

func (t *Trade) advancePayoutStatus(code int) bool {
	if code <= t.PayoutStatus {
		return false
	}
	t.PayoutStatus = code
	return true
}

// PayoutPublished records the payout transaction id and advances the payout
// sub-state.
func (t *Trade) PayoutPublished(txId string) bool {
	if !t.advancePayoutStatus(PayoutStatusCodePublished) {
		return false
	}
	t.PayoutTxId = txId
	return true
}

// PayoutConfirmed marks the payout transaction as confirmed.
func (t *Trade) PayoutConfirmed() bool {
	return t.advancePayoutStatus(PayoutStatusCodeConfirmed)
}

// PayoutUnlocked marks the payout transaction as spendable by the receivers.
func (t *Trade) PayoutUnlocked() bool {
	return t.advancePayoutStatus(PayoutStatusCodeUnlocked)
}
