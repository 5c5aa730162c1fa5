package ports

import (
	"context"
	"encoding/json"
)

// DeliveryState is the outcome of one message send.
type DeliveryState int

const (
	// DeliveryArrived means the recipient acknowledged the message.
	DeliveryArrived DeliveryState = iota
	// DeliveryStoredInMailbox means the recipient is offline and the message
	// was queued for its next connection.
	DeliveryStoredInMailbox
	// DeliveryFault means the message could not be delivered nor queued.
	DeliveryFault
)

func (s DeliveryState) String() string {
	switch s {
	case DeliveryArrived:
		return "arrived"
	case DeliveryStoredInMailbox:
		return "stored-in-mailbox"
	default:
		return "fault"
	}
}

// DeliveryOutcome is the single result value reported for a sent message.
type DeliveryOutcome struct {
	State  DeliveryState
	Reason string
}

// Envelope is an addressed protocol message. The payload is an opaque JSON
// document interpreted by the protocol layer; the transport only encrypts and
// routes it.
type Envelope struct {
	Id            string          `json:"id"`
	TradeId       string          `json:"tradeId"`
	Type          string          `json:"type"`
	SenderAddress string          `json:"senderAddress"`
	SenderPubKey  string          `json:"senderPubKey"`
	Payload       json.RawMessage `json:"payload"`
}

// Messenger wraps the encrypted store-and-forward message channel. Sends are
// asynchronous: the returned channel reports exactly one DeliveryOutcome per
// send. The messenger is shared and safe for concurrent use by many trades.
type Messenger interface {
	// SendDirect sends an encrypted message to an online peer. The outcome is
	// either Arrived or Fault.
	SendDirect(
		ctx context.Context, address, pubKey string, env Envelope,
	) (<-chan DeliveryOutcome, error)
	// SendMailbox sends an encrypted message that may be queued if the peer
	// is offline. The outcome is Arrived, StoredInMailbox or Fault.
	SendMailbox(
		ctx context.Context, address, pubKey string, env Envelope,
	) (<-chan DeliveryOutcome, error)
	// Inbound streams messages addressed to the local node.
	Inbound() <-chan Envelope
	Close() error
}
