package application

import "errors"

var (
	// ErrTradeNotInitable is thrown when an init request targets a trade that
	// already progressed past Init
	ErrTradeNotInitable = errors.New("trade already initialized")
	// ErrInitDeliveryFault is thrown when the init request could not be
	// delivered to the maker or to any arbitrator
	ErrInitDeliveryFault = errors.New("init request delivery faulted")
	// ErrDepositNotVisible is thrown when the counterparty's deposit did not
	// become visible within the polling timeout
	ErrDepositNotVisible = errors.New("counterparty deposit not visible within timeout")
	// ErrDepositPhaseNotDone is thrown when confirming a payment before both
	// deposits are unlocked
	ErrDepositPhaseNotDone = errors.New("deposit transactions not unlocked yet")
	// ErrNotBuyer ...
	ErrNotBuyer = errors.New("only the buyer can confirm the payment was sent")
	// ErrNotSeller ...
	ErrNotSeller = errors.New("only the seller can confirm the payment was received")
	// ErrUnexpectedSender is thrown when a protocol message comes from a node
	// that is not a party of the trade
	ErrUnexpectedSender = errors.New("message from unexpected sender")
	// ErrMultisigImportNeeded is thrown when the arbitrator cannot construct
	// a payout before a party publishes its updated multisig key material
	ErrMultisigImportNeeded = errors.New("multisig import needed, a party must publish first")
	// ErrLoserPayoutTooSmall is thrown when the loser's payout amount cannot
	// absorb the estimated transaction fee
	ErrLoserPayoutTooSmall = errors.New("loser payout too small to cover fee")
	// ErrFeeConvergenceFailed is thrown when the payout transaction could not
	// be constructed within the bounded number of fee attempts
	ErrFeeConvergenceFailed = errors.New("payout transaction construction did not converge")
	// ErrCannotDispute is thrown when the local role cannot open disputes
	ErrCannotDispute = errors.New("role cannot open a dispute")
	// ErrInvalidSummarySignature ...
	ErrInvalidSummarySignature = errors.New("dispute summary signature is not valid")
	// ErrMalformedSummary ...
	ErrMalformedSummary = errors.New("dispute summary framing is malformed")
)
