package application

import "time"

const (
	// takerFundsFirst fixes the escrow funding order: the taker always
	// publishes its deposit before the maker. The policy is a trust
	// asymmetry (the taker exposes funds first) kept as a constant rather
	// than negotiated per trade.
	takerFundsFirst = true

	// reserveAccountIndex is the wallet account holding the pre-reserved,
	// fully unlocked trade balance swept into the escrow on funding.
	reserveAccountIndex uint32 = 1
	// generalAccountIndex is the fallback funding account. Funding from it
	// pays the trade fee atomically in the same transaction.
	generalAccountIndex uint32 = 0

	// maxFeeAttempts bounds the payout fee convergence loop.
	maxFeeAttempts = 50
	// trialAmountPct is the share of the full payout amounts used to build
	// the trial transaction for fee estimation.
	trialAmountPct = 90

	// depositConfirmationsRequired gates the trade past the deposit phase.
	depositConfirmationsRequired = 10

	// mirrorDisputeDelay is waited before sending the mirrored dispute to
	// the counterparty, so two independently opened disputes do not
	// overwrite each other's system message.
	mirrorDisputeDelay = 3 * time.Second
)

// Protocol message types carried in the envelope Type field.
const (
	msgTypeInitTradeRequest      = "init-trade-request"
	msgTypeMultisigPrepared      = "multisig-prepared"
	msgTypeMultisigMade          = "multisig-made"
	msgTypeMultisigExchanged     = "multisig-exchanged"
	msgTypeContractSignatureReq  = "contract-signature-request"
	msgTypeContractSignatureResp = "contract-signature-response"
	msgTypeDepositRequest        = "deposit-request"
	msgTypePaymentSent           = "payment-sent"
	msgTypePaymentReceived       = "payment-received"
	msgTypeDisputeOpened         = "dispute-opened"
	msgTypeDisputeChat           = "dispute-chat"
	msgTypeDisputeClosed         = "dispute-closed"
)
