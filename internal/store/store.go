package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-xref/internal/config"
	"github.com/sells-group/provider-xref/internal/model"
)

// Artifacts is the full output of one pipeline run, published as a set.
type Artifacts struct {
	Entities  []model.ProviderEntity
	Chains    []model.LinkageChain
	Payments  []model.PaymentAggregate
	Conflicts []model.ConflictRecord
	Summary   model.RunSummary
}

// Store persists the published artifacts and the run log. PublishRun is
// atomic: either every artifact table is replaced and the run recorded, or
// nothing changes and previously published artifacts stay intact.
type Store interface {
	Migrate(ctx context.Context) error

	PublishRun(ctx context.Context, a *Artifacts) error
	RecordFailure(ctx context.Context, summary model.RunSummary) error

	LastSuccessfulRun(ctx context.Context) (*model.RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error)

	Entities(ctx context.Context) ([]model.ProviderEntity, error)
	Chains(ctx context.Context) ([]model.LinkageChain, error)
	Payments(ctx context.Context) ([]model.PaymentAggregate, error)
	Conflicts(ctx context.Context) ([]model.ConflictRecord, error)

	Close() error
}

// New opens the store named by the config.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	}
	return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
}
