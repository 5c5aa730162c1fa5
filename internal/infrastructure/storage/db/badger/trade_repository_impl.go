package dbbadger

import (
	"context"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
)

type tradeRepositoryImpl struct {
	db *DbManager
}

func NewTradeRepositoryImpl(db *DbManager) domain.TradeRepository {
	return tradeRepositoryImpl{
		db: db,
	}
}

func (t tradeRepositoryImpl) AddTrade(
	ctx context.Context, trade *domain.Trade,
) error {
	if err := t.db.TradeStore.Insert(trade.Id, trade); err != nil {
		if err == badgerhold.ErrKeyExists {
			return domain.ErrTradeAlreadyExists
		}
		return err
	}
	return nil
}

func (t tradeRepositoryImpl) GetTrade(
	ctx context.Context, tradeId uuid.UUID,
) (*domain.Trade, error) {
	return t.getTrade(tradeId)
}

func (t tradeRepositoryImpl) GetAllTrades(
	ctx context.Context,
) ([]*domain.Trade, error) {
	return t.findTrades(&badgerhold.Query{})
}

func (t tradeRepositoryImpl) GetOpenTrades(
	ctx context.Context,
) ([]*domain.Trade, error) {
	query := badgerhold.Where("Closed").Eq(false)
	return t.findTrades(query)
}

func (t tradeRepositoryImpl) UpdateTrade(
	ctx context.Context,
	tradeId uuid.UUID,
	updateFn func(t *domain.Trade) (*domain.Trade, error),
) error {
	currentTrade, err := t.getTrade(tradeId)
	if err != nil {
		return err
	}

	updatedTrade, err := updateFn(currentTrade)
	if err != nil {
		return err
	}

	return t.db.TradeStore.Update(updatedTrade.Id, updatedTrade)
}

func (t tradeRepositoryImpl) getTrade(tradeId uuid.UUID) (*domain.Trade, error) {
	var trade domain.Trade
	if err := t.db.TradeStore.Get(tradeId, &trade); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrTradeNotFound
		}
		return nil, err
	}
	return &trade, nil
}

func (t tradeRepositoryImpl) findTrades(
	query *badgerhold.Query,
) ([]*domain.Trade, error) {
	var found []domain.Trade
	if err := t.db.TradeStore.Find(&found, query); err != nil {
		return nil, err
	}
	trades := make([]*domain.Trade, 0, len(found))
	for i := range found {
		trades = append(trades, &found[i])
	}
	return trades, nil
}
