package inmemory

import (
	"context"

	"github.com/google/uuid"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
)

type disputeRepositoryImpl struct {
	store *disputeInmemoryStore
}

// NewDisputeRepositoryImpl returns a new inmemory DisputeRepository
// implementation.
func NewDisputeRepositoryImpl(store *disputeInmemoryStore) domain.DisputeRepository {
	return &disputeRepositoryImpl{store}
}

func (r disputeRepositoryImpl) AddDispute(
	_ context.Context, dispute *domain.Dispute,
) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	for _, d := range r.store.disputes {
		if d.TradeId == dispute.TradeId &&
			d.TraderPubKey == dispute.TraderPubKey && !d.IsClosed {
			return domain.ErrDisputeAlreadyOpen
		}
	}
	if _, ok := r.store.disputes[dispute.Id]; ok {
		return domain.ErrDisputeAlreadyOpen
	}
	r.store.disputes[dispute.Id] = dispute
	return nil
}

func (r disputeRepositoryImpl) GetDispute(
	_ context.Context, disputeId uuid.UUID,
) (*domain.Dispute, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	return r.getDispute(disputeId)
}

func (r disputeRepositoryImpl) GetDisputeByTradeAndTrader(
	_ context.Context, tradeId uuid.UUID, traderPubKey string,
) (*domain.Dispute, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	for _, d := range r.store.disputes {
		if d.TradeId == tradeId && d.TraderPubKey == traderPubKey {
			return d, nil
		}
	}
	return nil, domain.ErrDisputeNotFound
}

func (r disputeRepositoryImpl) GetDisputesByTrade(
	_ context.Context, tradeId uuid.UUID,
) ([]*domain.Dispute, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	disputes := make([]*domain.Dispute, 0)
	for _, d := range r.store.disputes {
		if d.TradeId == tradeId {
			disputes = append(disputes, d)
		}
	}
	return disputes, nil
}

func (r disputeRepositoryImpl) GetAllDisputes(
	_ context.Context,
) ([]*domain.Dispute, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	disputes := make([]*domain.Dispute, 0, len(r.store.disputes))
	for _, d := range r.store.disputes {
		disputes = append(disputes, d)
	}
	return disputes, nil
}

func (r disputeRepositoryImpl) UpdateDispute(
	_ context.Context,
	disputeId uuid.UUID,
	updateFn func(d *domain.Dispute) (*domain.Dispute, error),
) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	currentDispute, err := r.getDispute(disputeId)
	if err != nil {
		return err
	}

	updatedDispute, err := updateFn(currentDispute)
	if err != nil {
		return err
	}

	r.store.disputes[disputeId] = updatedDispute
	return nil
}

func (r disputeRepositoryImpl) getDispute(disputeId uuid.UUID) (*domain.Dispute, error) {
	dispute, ok := r.store.disputes[disputeId]
	if !ok {
		return nil, domain.ErrDisputeNotFound
	}
	return dispute, nil
}
