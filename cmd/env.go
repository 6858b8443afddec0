package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicsignal/docket-cli/internal/dataset"
	"github.com/civicsignal/docket-cli/internal/model"
	"github.com/civicsignal/docket-cli/internal/store"
	"github.com/civicsignal/docket-cli/pkg/regulations"
)

// initStore opens the run-log store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initRegulations builds the regulations.gov client from config.
func initRegulations() (regulations.Client, error) {
	if cfg.Regulations.Key == "" {
		return nil, eris.New("regulations.gov API key is required (DOCKET_REGULATIONS_KEY)")
	}
	opts := []regulations.Option{}
	if cfg.Regulations.BaseURL != "" {
		opts = append(opts, regulations.WithBaseURL(cfg.Regulations.BaseURL))
	}
	if cfg.Regulations.RatePerMinute > 0 {
		opts = append(opts, regulations.WithRatePerMinute(cfg.Regulations.RatePerMinute))
	}
	return regulations.NewClient(cfg.Regulations.Key, opts...), nil
}

// docketPaths resolves artifact locations for one docket's dataset.
func docketPaths(docketID string) dataset.Paths {
	return dataset.Paths{Dir: filepath.Join(cfg.Data.Dir, docketID)}
}

// loadTable loads the lookup table artifact, failing with a hint when the
// dataset has not been built yet.
func loadTable(paths dataset.Paths) ([]*model.LookupEntry, error) {
	if !dataset.Exists(paths.LookupTable()) {
		return nil, eris.Errorf("no lookup table at %s (run build first)", paths.LookupTable())
	}
	return dataset.LoadLookupTable(paths.LookupTable())
}

// loadRaw loads the raw records artifact.
func loadRaw(paths dataset.Paths) ([]*model.RawRecord, error) {
	if !dataset.Exists(paths.RawData()) {
		return nil, eris.Errorf("no raw data at %s (run build first)", paths.RawData())
	}
	return dataset.LoadRawRecords(paths.RawData())
}

// recordedRun wraps a command body with run-log bookkeeping: a running row
// is inserted up front and flipped to complete or failed when the body
// returns. Store failures are logged, not fatal; the pipeline artifacts are
// the source of truth and the run log is advisory.
func recordedRun(ctx context.Context, docketID, command string, body func() (*model.RunResult, error)) error {
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("run log unavailable", zap.Error(err))
		_, bodyErr := body()
		return bodyErr
	}
	defer st.Close() //nolint:errcheck

	run, err := st.CreateRun(ctx, docketID, command)
	if err != nil {
		zap.L().Warn("create run failed", zap.Error(err))
		_, bodyErr := body()
		return bodyErr
	}

	start := time.Now()
	result, bodyErr := body()
	if result == nil {
		result = &model.RunResult{}
	}
	result.DurationMS = time.Since(start).Milliseconds()

	if bodyErr != nil {
		if ferr := st.FailRun(ctx, run.ID, bodyErr.Error()); ferr != nil {
			zap.L().Warn("fail run failed", zap.Error(ferr))
		}
		return bodyErr
	}
	if cerr := st.CompleteRun(ctx, run.ID, result); cerr != nil {
		zap.L().Warn("complete run failed", zap.Error(cerr))
	}
	return nil
}
