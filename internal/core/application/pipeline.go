package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
)

// Step is one protocol step of a trade pipeline. Run executes synchronously;
// steps that issue asynchronous operations (message sends, wallet I/O) block
// on the operation's outcome before returning, so completion is still
// expressed as the function returning.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// pipelineRunner executes ordered step sequences against one trade at a time.
// Each trade has its own execution lock, independent trades progress fully
// concurrently. A step returning an error aborts the remaining steps and
// records the failure on the trade; the trade is left in its last persisted
// state.
type pipelineRunner struct {
	tradeRepo domain.TradeRepository
	locks     sync.Map
}

func newPipelineRunner(tradeRepo domain.TradeRepository) *pipelineRunner {
	return &pipelineRunner{tradeRepo: tradeRepo}
}

func (r *pipelineRunner) lockFor(tradeId uuid.UUID) *sync.Mutex {
	v, _ := r.locks.LoadOrStore(tradeId, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Execute runs the given steps strictly in order. No step for the same trade
// begins before the previous one completed.
func (r *pipelineRunner) Execute(
	ctx context.Context, tradeId uuid.UUID, steps []Step,
) error {
	mu := r.lockFor(tradeId)
	mu.Lock()
	defer mu.Unlock()

	for _, step := range steps {
		log.WithFields(log.Fields{
			"trade": tradeId, "step": step.Name,
		}).Debug("running pipeline step")

		if err := step.Run(ctx); err != nil {
			stepsRunCounter.WithLabelValues(step.Name, "failed").Inc()
			log.WithError(err).WithFields(log.Fields{
				"trade": tradeId, "step": step.Name,
			}).Warn("pipeline step failed, aborting remaining steps")
			r.failTrade(ctx, tradeId, step.Name, err)
			return err
		}
		stepsRunCounter.WithLabelValues(step.Name, "complete").Inc()
	}
	return nil
}

func (r *pipelineRunner) failTrade(
	ctx context.Context, tradeId uuid.UUID, stepName string, cause error,
) {
	err := r.tradeRepo.UpdateTrade(
		ctx, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
			t.Fail(fmt.Sprintf("%s: %s", stepName, cause))
			return t, nil
		},
	)
	if err != nil {
		log.WithError(err).WithField("trade", tradeId).
			Error("failed to record pipeline failure on trade")
		return
	}
	tradesFailedCounter.Inc()
}
