package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
	"github.com/peertrade-network/peertrade-daemon/internal/infrastructure/storage/db/inmemory"
)

func TestPipelineRunsStepsInOrder(t *testing.T) {
	repo := inmemory.NewDbManager().TradeRepository()
	runner := newPipelineRunner(repo)
	trade := domain.NewTakerTrade(newTestUUID())
	require.NoError(t, repo.AddTrade(context.Background(), trade))

	var order []string
	err := runner.Execute(context.Background(), trade.Id, []Step{
		{Name: "first", Run: func(ctx context.Context) error {
			order = append(order, "first")
			return nil
		}},
		{Name: "second", Run: func(ctx context.Context) error {
			order = append(order, "second")
			return nil
		}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, order)
}

func TestPipelineStepErrorFailsTrade(t *testing.T) {
	repo := inmemory.NewDbManager().TradeRepository()
	runner := newPipelineRunner(repo)
	trade := domain.NewTakerTrade(newTestUUID())
	require.NoError(t, repo.AddTrade(context.Background(), trade))

	stepErr := errors.New("wallet unreachable")
	var secondRan bool
	err := runner.Execute(context.Background(), trade.Id, []Step{
		{Name: "broken", Run: func(ctx context.Context) error {
			return stepErr
		}},
		{Name: "never", Run: func(ctx context.Context) error {
			secondRan = true
			return nil
		}},
	})
	require.ErrorIs(t, err, stepErr)
	require.False(t, secondRan)

	failed, err := repo.GetTrade(context.Background(), trade.Id)
	require.NoError(t, err)
	require.True(t, failed.IsFailed())
	require.Contains(t, failed.ErrorMessage, "broken")
	require.Contains(t, failed.ErrorMessage, "wallet unreachable")
}

func TestPipelineSerializesPerTrade(t *testing.T) {
	repo := inmemory.NewDbManager().TradeRepository()
	runner := newPipelineRunner(repo)
	trade := domain.NewTakerTrade(newTestUUID())
	require.NoError(t, repo.AddTrade(context.Background(), trade))

	var mtx sync.Mutex
	var running int
	var maxRunning int

	step := Step{Name: "track-overlap", Run: func(ctx context.Context) error {
		mtx.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mtx.Unlock()

		time.Sleep(10 * time.Millisecond)

		mtx.Lock()
		running--
		mtx.Unlock()
		return nil
	}}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = runner.Execute(context.Background(), trade.Id, []Step{step})
		}()
	}
	wg.Wait()

	require.Equal(t, 1, maxRunning)
}
