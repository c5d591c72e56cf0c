package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/restalytics/etl-engine/pkg/apperrors"
	"github.com/restalytics/etl-engine/pkg/extract"
	"github.com/restalytics/etl-engine/pkg/models"
	"github.com/restalytics/etl-engine/pkg/repositories"
	"github.com/restalytics/etl-engine/pkg/retry"
)

// Orchestrator drives the pipeline: pull a batch past the checkpoint,
// transform and load each record independently, then advance the
// checkpoint. One bad record never aborts the batch; it is counted and
// reported while the rest proceed.
type Orchestrator struct {
	extractor   extract.Extractor
	transformer *Transformer
	loader      *Loader
	tracker     repositories.SyncTrackerRepository

	restaurantID   int64
	restaurantName string
	retryCfg       *retry.Config
	batchSize      int
	logger         *zap.Logger
}

// NewOrchestrator wires the pipeline stages together. retryCfg applies
// to the pull and to each record's load; nil uses retry defaults.
func NewOrchestrator(
	extractor extract.Extractor,
	transformer *Transformer,
	loader *Loader,
	tracker repositories.SyncTrackerRepository,
	restaurantID int64,
	restaurantName string,
	retryCfg *retry.Config,
	batchSize int,
	logger *zap.Logger,
) *Orchestrator {
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &Orchestrator{
		extractor:      extractor,
		transformer:    transformer,
		loader:         loader,
		tracker:        tracker,
		restaurantID:   restaurantID,
		restaurantName: restaurantName,
		retryCfg:       retryCfg,
		batchSize:      batchSize,
		logger:         logger.Named("orchestrator"),
	}
}

// RunBatch processes one batch of at most batchSize records and returns
// its summary. The checkpoint advances only over records that were
// loaded or skipped as duplicates; a failed record leaves it in place
// so the record is retried on the next run.
func (o *Orchestrator) RunBatch(ctx context.Context) (*models.BatchSummary, error) {
	summary := &models.BatchSummary{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
	}

	cursor, err := o.loadCursor(ctx)
	if err != nil {
		return summary, err
	}

	records, err := retry.DoWithResultIfRetryable(ctx, o.retryCfg, func() ([]models.RawOrder, error) {
		return o.extractor.Pull(ctx, cursor, o.batchSize)
	})
	if err != nil {
		return summary, err
	}
	summary.Pulled = len(records)

	var maxID int64
	var maxDate time.Time
	var synced int64
	anyFailed := false

	for _, raw := range records {
		if ctx.Err() != nil {
			break
		}

		draft, err := o.transformer.Transform(raw)
		if err != nil {
			o.recordFailure(summary, raw.ID, err)
			anyFailed = true
			continue
		}

		// Retrying re-enters Load whole, so dimensions are resolved
		// again on each attempt. That is safe: the failed attempt's
		// transaction rolled back, and resolving an unchanged snapshot
		// writes nothing.
		var result models.LoadResult
		err = retry.DoIfRetryable(ctx, o.retryCfg, func() error {
			var loadErr error
			result, loadErr = o.loader.Load(ctx, draft)
			return loadErr
		})
		if err != nil {
			o.recordFailure(summary, raw.ID, err)
			anyFailed = true
			continue
		}

		switch result.Status {
		case models.StatusLoaded:
			summary.Succeeded++
			synced++
		case models.StatusSkipped:
			summary.Skipped++
		}

		// Records arrive oldest first. The checkpoint only advances
		// through the contiguous prefix before the first failure, so a
		// failed record is pulled again next run; anything re-loaded
		// behind it is skipped as a duplicate.
		if !anyFailed {
			if raw.ID > maxID {
				maxID = raw.ID
			}
			if raw.CreatedAt.After(maxDate) {
				maxDate = raw.CreatedAt
			}
		}
	}

	if maxID > 0 {
		checkpoint := &models.SyncCheckpoint{
			RestaurantID:   o.restaurantID,
			RestaurantName: o.restaurantName,
			LastOrderID:    maxID,
			LastOrderDate:  maxDate,
			TotalSynced:    synced,
		}
		if err := o.tracker.Upsert(ctx, checkpoint); err != nil {
			return summary, err
		}
	}

	summary.FinishedAt = time.Now()
	o.logger.Info("batch finished",
		zap.String("run_id", summary.RunID.String()),
		zap.Int("pulled", summary.Pulled),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)))
	return summary, nil
}

// Run executes batches until the source is drained, a batch stops
// making progress, or the context is cancelled. Returns the
// accumulated totals across batches.
func (o *Orchestrator) Run(ctx context.Context) (*models.BatchSummary, error) {
	total := &models.BatchSummary{RunID: uuid.New(), StartedAt: time.Now()}

	for {
		if ctx.Err() != nil {
			total.FinishedAt = time.Now()
			return total, ctx.Err()
		}

		batch, err := o.RunBatch(ctx)
		total.Pulled += batch.Pulled
		total.Succeeded += batch.Succeeded
		total.Skipped += batch.Skipped
		total.Failed += batch.Failed
		total.Failures = append(total.Failures, batch.Failures...)
		if err != nil {
			total.FinishedAt = time.Now()
			return total, err
		}
		if batch.Pulled == 0 {
			break
		}
		// A failed record holds the checkpoint in place, so the next
		// pull would return the same window. Stop here instead of
		// re-pulling it forever; the failures are in the summary and
		// the records are retried on the next scheduled run.
		if batch.Failed > 0 {
			break
		}
	}

	total.FinishedAt = time.Now()
	return total, nil
}

func (o *Orchestrator) loadCursor(ctx context.Context) (extract.Cursor, error) {
	checkpoint, err := o.tracker.Get(ctx, o.restaurantID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return extract.Cursor{}, nil
		}
		return extract.Cursor{}, err
	}
	return extract.Cursor{
		LastOrderID:   checkpoint.LastOrderID,
		LastOrderDate: checkpoint.LastOrderDate,
	}, nil
}

func (o *Orchestrator) recordFailure(summary *models.BatchSummary, orderID int64, err error) {
	summary.Failed++
	summary.Failures = append(summary.Failures, models.RecordFailure{
		OrderID: orderID,
		Reason:  err.Error(),
	})
	o.logger.Warn("record failed",
		zap.Int64("order_id", orderID),
		zap.Bool("transient", retry.IsRetryable(err)),
		zap.Error(err))
}
