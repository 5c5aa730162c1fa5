package dbbadger

import (
	"context"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
)

type disputeRepositoryImpl struct {
	db *DbManager
}

func NewDisputeRepositoryImpl(db *DbManager) domain.DisputeRepository {
	return disputeRepositoryImpl{
		db: db,
	}
}

func (d disputeRepositoryImpl) AddDispute(
	ctx context.Context, dispute *domain.Dispute,
) error {
	existing, err := d.GetDisputeByTradeAndTrader(
		ctx, dispute.TradeId, dispute.TraderPubKey,
	)
	if err != nil && err != domain.ErrDisputeNotFound {
		return err
	}
	if existing != nil && !existing.IsClosed {
		return domain.ErrDisputeAlreadyOpen
	}
	if err := d.db.DisputeStore.Insert(dispute.Id, dispute); err != nil {
		if err == badgerhold.ErrKeyExists {
			return domain.ErrDisputeAlreadyOpen
		}
		return err
	}
	return nil
}

func (d disputeRepositoryImpl) GetDispute(
	ctx context.Context, disputeId uuid.UUID,
) (*domain.Dispute, error) {
	var dispute domain.Dispute
	if err := d.db.DisputeStore.Get(disputeId, &dispute); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrDisputeNotFound
		}
		return nil, err
	}
	return &dispute, nil
}

func (d disputeRepositoryImpl) GetDisputeByTradeAndTrader(
	ctx context.Context, tradeId uuid.UUID, traderPubKey string,
) (*domain.Dispute, error) {
	query := badgerhold.Where("TradeId").Eq(tradeId).
		And("TraderPubKey").Eq(traderPubKey)
	disputes, err := d.findDisputes(query)
	if err != nil {
		return nil, err
	}
	if len(disputes) == 0 {
		return nil, domain.ErrDisputeNotFound
	}
	return disputes[0], nil
}

func (d disputeRepositoryImpl) GetDisputesByTrade(
	ctx context.Context, tradeId uuid.UUID,
) ([]*domain.Dispute, error) {
	query := badgerhold.Where("TradeId").Eq(tradeId)
	return d.findDisputes(query)
}

func (d disputeRepositoryImpl) GetAllDisputes(
	ctx context.Context,
) ([]*domain.Dispute, error) {
	return d.findDisputes(&badgerhold.Query{})
}

func (d disputeRepositoryImpl) UpdateDispute(
	ctx context.Context,
	disputeId uuid.UUID,
	updateFn func(d *domain.Dispute) (*domain.Dispute, error),
) error {
	currentDispute, err := d.GetDispute(ctx, disputeId)
	if err != nil {
		return err
	}

	updatedDispute, err := updateFn(currentDispute)
	if err != nil {
		return err
	}

	return d.db.DisputeStore.Update(updatedDispute.Id, updatedDispute)
}

func (d disputeRepositoryImpl) findDisputes(
	query *badgerhold.Query,
) ([]*domain.Dispute, error) {
	var found []domain.Dispute
	if err := d.db.DisputeStore.Find(&found, query); err != nil {
		return nil, err
	}
	disputes := make([]*domain.Dispute, 0, len(found))
	for i := range found {
		disputes = append(disputes, &found[i])
	}
	return disputes, nil
}
