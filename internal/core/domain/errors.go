package domain

import "errors"

var (
	// ErrTradeNotFound ...
	ErrTradeNotFound = errors.New("trade not found")
	// ErrTradeAlreadyExists ...
	ErrTradeAlreadyExists = errors.New("trade already exists")
	// ErrContractMismatch is thrown when the taker's reconstruction of the
	// contract does not serialize to the exact bytes received from the maker
	ErrContractMismatch = errors.New("contract JSON does not match the received serialization")
	// ErrInvalidContractSignature ...
	ErrInvalidContractSignature = errors.New("contract signature is not valid")
	// ErrInvalidPubKey ...
	ErrInvalidPubKey = errors.New("public key is not valid")
	// ErrDisputeNotFound ...
	ErrDisputeNotFound = errors.New("dispute not found")
	// ErrDisputeAlreadyOpen is thrown when a dispute for the same trade and
	// trader is already open
	ErrDisputeAlreadyOpen = errors.New("dispute already open")
	// ErrDisputeAlreadyClosed ...
	ErrDisputeAlreadyClosed = errors.New("dispute already closed")
)
