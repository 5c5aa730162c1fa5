package ports

import (
	"github.com/peertrade-network/peertrade-daemon/internal/core/domain"
)

// RepoManager aggregates all the repositories of the daemon behind a single
// entrypoint.
type RepoManager interface {
	TradeRepository() domain.TradeRepository
	DisputeRepository() domain.DisputeRepository
	Close() error
}
