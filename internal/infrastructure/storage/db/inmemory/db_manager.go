package inmemory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
	"github.com/peertrade-network/peertrade-daemon/internal/core/ports"
)

type tradeInmemoryStore struct {
	trades map[uuid.UUID]*domain.Trade
	locker *sync.Mutex
}

type disputeInmemoryStore struct {
	disputes map[uuid.UUID]*domain.Dispute
	locker   *sync.Mutex
}

// DbManager is the in-memory implementation of the repository manager, meant
// for tests and throwaway environments. Nothing survives a restart.
type DbManager struct {
	tradeStore   *tradeInmemoryStore
	disputeStore *disputeInmemoryStore

	tradeRepository   domain.TradeRepository
	disputeRepository domain.DisputeRepository
}

// NewDbManager returns an empty in-memory repository manager.
func NewDbManager() *DbManager {
	db := &DbManager{
		tradeStore: &tradeInmemoryStore{
			trades: map[uuid.UUID]*domain.Trade{},
			locker: &sync.Mutex{},
		},
		disputeStore: &disputeInmemoryStore{
			disputes: map[uuid.UUID]*domain.Dispute{},
			locker:   &sync.Mutex{},
		},
	}
	db.tradeRepository = NewTradeRepositoryImpl(db.tradeStore)
	db.disputeRepository = NewDisputeRepositoryImpl(db.disputeStore)
	return db
}

func (d *DbManager) TradeRepository() domain.TradeRepository {
	return d.tradeRepository
}

func (d *DbManager) DisputeRepository() domain.DisputeRepository {
	return d.disputeRepository
}

func (d *DbManager) Close() error {
	return nil
}

var _ ports.RepoManager = (*DbManager)(nil)
