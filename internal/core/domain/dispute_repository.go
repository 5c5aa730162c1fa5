package domain

import (
	"context"

	"github.com/google/uuid"
)

// DisputeRepository is the abstraction for any kind of database intended to
// persist Disputes.
type DisputeRepository interface {
	// AddDispute persists a new dispute. It returns ErrDisputeAlreadyOpen if
	// an open dispute for the same trade and trader already exists.
	AddDispute(ctx context.Context, dispute *Dispute) error
	// GetDispute returns the dispute with the given id.
	GetDispute(ctx context.Context, disputeId uuid.UUID) (*Dispute, error)
	// GetDisputeByTradeAndTrader returns the dispute opened by the given
	// trader against the given trade, if any.
	GetDisputeByTradeAndTrader(
		ctx context.Context, tradeId uuid.UUID, traderPubKey string,
	) (*Dispute, error)
	// GetDisputesByTrade returns all disputes referencing the given trade.
	GetDisputesByTrade(ctx context.Context, tradeId uuid.UUID) ([]*Dispute, error)
	// GetAllDisputes returns every dispute stored in the repository.
	GetAllDisputes(ctx context.Context) ([]*Dispute, error)
	// UpdateDispute commits multiple changes to the same dispute in a
	// transactional way.
	UpdateDispute(
		ctx context.Context,
		disputeId uuid.UUID,
		updateFn func(d *Dispute) (*Dispute, error),
	) error
}
