package domain

import (
	"context"

	"github.com/google/uuid"
)

// TradeRepository is the abstraction for any kind of database intended to
// persist Trades.
type TradeRepository interface {
	// AddTrade persists a new trade, failing if one with the same id exists.
	AddTrade(ctx context.Context, trade *Trade) error
	// GetTrade returns the trade with the given id.
	GetTrade(ctx context.Context, tradeId uuid.UUID) (*Trade, error)
	// GetAllTrades returns every trade stored in the repository, open and
	// closed ones alike.
	GetAllTrades(ctx context.Context) ([]*Trade, error)
	// GetOpenTrades returns the trades not yet moved to the closed
	// collection, used to resume pipelines at startup.
	GetOpenTrades(ctx context.Context) ([]*Trade, error)
	// UpdateTrade commits multiple changes to the same trade in a
	// transactional way.
	UpdateTrade(
		ctx context.Context,
		tradeId uuid.UUID,
		updateFn func(t *Trade) (*Trade, error),
	) error
}
