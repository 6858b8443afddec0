// Package store persists the pipeline run log and published merged datasets
// behind a driver-selectable interface.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/civicsignal/docket-cli/internal/config"
	"github.com/civicsignal/docket-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status   model.RunStatus `json:"status,omitempty"`
	DocketID string          `json:"docket_id,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run log.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, docketID, command string) (*model.PipelineRun, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID, message string) error
	GetRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)

	// Published datasets
	ReplaceMergedRows(ctx context.Context, docketID string, rows []*model.MergedRow) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates a Store for the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
