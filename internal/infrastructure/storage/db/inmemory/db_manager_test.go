package inmemory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
)

var ctx = context.Background()

func TestTradeRepository(t *testing.T) {
	repo := NewDbManager().TradeRepository()

	trade := domain.NewTakerTrade(uuid.New())
	require.NoError(t, repo.AddTrade(ctx, trade))
	require.Equal(t, domain.ErrTradeAlreadyExists, repo.AddTrade(ctx, trade))

	found, err := repo.GetTrade(ctx, trade.Id)
	require.NoError(t, err)
	require.Equal(t, trade.Id, found.Id)

	_, err = repo.GetTrade(ctx, uuid.New())
	require.Equal(t, domain.ErrTradeNotFound, err)

	err = repo.UpdateTrade(ctx, trade.Id, func(t *domain.Trade) (*domain.Trade, error) {
		t.EscrowAddress = "escrow"
		return t, nil
	})
	require.NoError(t, err)
	found, err = repo.GetTrade(ctx, trade.Id)
	require.NoError(t, err)
	require.Equal(t, "escrow", found.EscrowAddress)

	err = repo.UpdateTrade(ctx, uuid.New(), func(t *domain.Trade) (*domain.Trade, error) {
		return t, nil
	})
	require.Equal(t, domain.ErrTradeNotFound, err)
}

func TestTradeRepositoryOpenTrades(t *testing.T) {
	repo := NewDbManager().TradeRepository()

	open := domain.NewMakerTrade(uuid.New())
	closed := domain.NewMakerTrade(uuid.New())
	closed.MoveToClosed()
	require.NoError(t, repo.AddTrade(ctx, open))
	require.NoError(t, repo.AddTrade(ctx, closed))

	all, err := repo.GetAllTrades(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	openTrades, err := repo.GetOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, openTrades, 1)
	require.Equal(t, open.Id, openTrades[0].Id)
}

func TestDisputeRepository(t *testing.T) {
	repo := NewDbManager().DisputeRepository()

	tradeId := uuid.New()
	dispute := domain.NewDispute(
		tradeId, "02trader", "02arbitrator",
		domain.SupportTypeArbitration, []byte(`{"tradeId":"x"}`),
	)
	require.NoError(t, repo.AddDispute(ctx, dispute))

	// A second open dispute by the same trader on the same trade is rejected.
	duplicate := domain.NewDispute(
		tradeId, "02trader", "02arbitrator",
		domain.SupportTypeArbitration, []byte(`{"tradeId":"x"}`),
	)
	require.Equal(t, domain.ErrDisputeAlreadyOpen, repo.AddDispute(ctx, duplicate))

	// The counterparty can open its own dispute on the same trade.
	other := domain.NewDispute(
		tradeId, "02counterparty", "02arbitrator",
		domain.SupportTypeArbitration, []byte(`{"tradeId":"x"}`),
	)
	require.NoError(t, repo.AddDispute(ctx, other))

	found, err := repo.GetDisputeByTradeAndTrader(ctx, tradeId, "02trader")
	require.NoError(t, err)
	require.Equal(t, dispute.Id, found.Id)

	_, err = repo.GetDisputeByTradeAndTrader(ctx, tradeId, "02stranger")
	require.Equal(t, domain.ErrDisputeNotFound, err)

	byTrade, err := repo.GetDisputesByTrade(ctx, tradeId)
	require.NoError(t, err)
	require.Len(t, byTrade, 2)

	err = repo.UpdateDispute(ctx, dispute.Id, func(d *domain.Dispute) (*domain.Dispute, error) {
		return d, d.Close(&domain.DisputeResult{Winner: domain.DisputeWinnerBuyer})
	})
	require.NoError(t, err)
	found, err = repo.GetDispute(ctx, dispute.Id)
	require.NoError(t, err)
	require.True(t, found.IsClosed)
}
