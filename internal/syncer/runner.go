package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosight/campaignsync/internal/activity"
	"github.com/gosight/campaignsync/internal/rollup"
	"github.com/gosight/campaignsync/internal/storage"
)

// ErrSyncInProgress is returned when a sync is requested while another runs
var ErrSyncInProgress = errors.New("sync already in progress")

// DatasetSyncer produces the unified dataset for a set of accounts
type DatasetSyncer interface {
	SyncAll(ctx context.Context, accounts []activity.Account) (*rollup.Dataset, Report)
}

// Publisher announces sync results downstream
type Publisher interface {
	PublishOverviews(ctx context.Context, runID string, overviews []rollup.CampaignOverview) error
	PublishRun(ctx context.Context, run storage.SyncRun) error
}

// Runner owns the lifecycle of a full sync: log the run, build the dataset,
// replace the sink contents, close out the run and publish the results.
type Runner struct {
	syncer    DatasetSyncer
	sink      storage.Sink
	publisher Publisher
	accounts  []activity.Account
	running   atomic.Bool
}

// NewRunner creates a runner. publisher may be nil.
func NewRunner(syncer DatasetSyncer, sink storage.Sink, publisher Publisher, accounts []activity.Account) *Runner {
	return &Runner{
		syncer:    syncer,
		sink:      sink,
		publisher: publisher,
		accounts:  accounts,
	}
}

// Running reports whether a sync is in progress
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Run performs one sync and blocks until it is recorded
func (r *Runner) Run(ctx context.Context) (storage.SyncRun, error) {
	if !r.running.CompareAndSwap(false, true) {
		return storage.SyncRun{}, ErrSyncInProgress
	}
	defer r.running.Store(false)
	return r.run(ctx)
}

// Start begins a sync in the background. It fails fast when one is already running.
func (r *Runner) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	go func() {
		defer r.running.Store(false)
		if _, err := r.run(ctx); err != nil {
			log.Error().Err(err).Msg("Background sync failed")
		}
	}()
	return nil
}

func (r *Runner) run(ctx context.Context) (storage.SyncRun, error) {
	run, err := r.sink.StartRun(ctx, storage.RunTypeFull)
	if err != nil {
		return storage.SyncRun{}, fmt.Errorf("start run: %w", err)
	}
	log.Info().Str("run_id", run.ID).Int("accounts", len(r.accounts)).Msg("Sync started")

	dataset, report := r.syncer.SyncAll(ctx, r.accounts)
	written, writeErr := r.sink.ReplaceDataset(ctx, dataset)

	run.FinishedAt = time.Now().UTC()
	run.CampaignsFailed = report.CampaignsFailed
	run.AccountsFailed = report.AccountsFailed
	run.RecordsProcessed = written.Total()
	run.Breakdown = written.Written
	if writeErr != nil {
		run.Status = storage.RunFailed
		run.ErrorMessage = writeErr.Error()
	} else {
		run.Status = storage.RunCompleted
	}

	// the run must be closed out even when the sync was cancelled
	finishCtx := context.WithoutCancel(ctx)
	if err := r.sink.FinishRun(finishCtx, run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to record sync run")
	}

	if r.publisher != nil {
		if run.Status == storage.RunCompleted {
			if err := r.publisher.PublishOverviews(finishCtx, run.ID, dataset.Overview); err != nil {
				log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to publish campaign overviews")
			}
		}
		if err := r.publisher.PublishRun(finishCtx, run); err != nil {
			log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to publish sync run")
		}
	}

	log.Info().
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Int("records", run.RecordsProcessed).
		Int("failed_batches", written.FailedBatches).
		Dur("took", run.FinishedAt.Sub(run.StartedAt)).
		Msg("Sync recorded")

	if writeErr != nil {
		return run, fmt.Errorf("replace dataset: %w", writeErr)
	}
	return run, nil
}

// LastRun returns the most recent sync run
func (r *Runner) LastRun(ctx context.Context) (storage.SyncRun, error) {
	return r.sink.LastRun(ctx)
}
