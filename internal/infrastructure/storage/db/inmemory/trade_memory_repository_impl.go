package inmemory

import (
	"context"

	"github.com/google/uuid"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
)

type tradeRepositoryImpl struct {
	store *tradeInmemoryStore
}

// NewTradeRepositoryImpl returns a new inmemory TradeRepository implementation.
func NewTradeRepositoryImpl(store *tradeInmemoryStore) domain.TradeRepository {
	return &tradeRepositoryImpl{store}
}

func (r tradeRepositoryImpl) AddTrade(_ context.Context, trade *domain.Trade) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	if _, ok := r.store.trades[trade.Id]; ok {
		return domain.ErrTradeAlreadyExists
	}
	r.store.trades[trade.Id] = trade
	return nil
}

func (r tradeRepositoryImpl) GetTrade(
	_ context.Context, tradeId uuid.UUID,
) (*domain.Trade, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	return r.getTrade(tradeId)
}

func (r tradeRepositoryImpl) GetAllTrades(_ context.Context) ([]*domain.Trade, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	trades := make([]*domain.Trade, 0, len(r.store.trades))
	for _, trade := range r.store.trades {
		trades = append(trades, trade)
	}
	return trades, nil
}

func (r tradeRepositoryImpl) GetOpenTrades(_ context.Context) ([]*domain.Trade, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	trades := make([]*domain.Trade, 0)
	for _, trade := range r.store.trades {
		if !trade.Closed {
			trades = append(trades, trade)
		}
	}
	return trades, nil
}

func (r tradeRepositoryImpl) UpdateTrade(
	_ context.Context,
	tradeId uuid.UUID,
	updateFn func(t *domain.Trade) (*domain.Trade, error),
) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	currentTrade, err := r.getTrade(tradeId)
	if err != nil {
		return err
	}

	updatedTrade, err := updateFn(currentTrade)
	if err != nil {
		return err
	}

	r.store.trades[tradeId] = updatedTrade
	return nil
}

func (r tradeRepositoryImpl) getTrade(tradeId uuid.UUID) (*domain.Trade, error) {
	trade, ok := r.store.trades[tradeId]
	if !ok {
		return nil, domain.ErrTradeNotFound
	}
	return trade, nil
}
