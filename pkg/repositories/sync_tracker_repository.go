package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/restalytics/etl-engine/pkg/apperrors"
	"github.com/restalytics/etl-engine/pkg/database"
	"github.com/restalytics/etl-engine/pkg/models"
)

// SyncTrackerRepository persists per-restaurant sync checkpoints so a
// restarted run resumes where the previous one stopped.
type SyncTrackerRepository interface {
	Get(ctx context.Context, restaurantID int64) (*models.SyncCheckpoint, error)
	// Upsert advances the checkpoint. The stored order ID and date only
	// ever move forward, so replayed batches cannot rewind it.
	Upsert(ctx context.Context, checkpoint *models.SyncCheckpoint) error
}

type syncTrackerRepository struct{}

// NewSyncTrackerRepository creates a new sync tracker repository.
func NewSyncTrackerRepository() SyncTrackerRepository {
	return &syncTrackerRepository{}
}

func (r *syncTrackerRepository) Get(ctx context.Context, restaurantID int64) (*models.SyncCheckpoint, error) {
	q, ok := database.QuerierFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	query := `
		SELECT restaurant_id, restaurant_name, last_order_id, last_order_date, last_sync_at, total_orders_synced
		FROM etl_sync_tracker
		WHERE restaurant_id = $1`

	var cp models.SyncCheckpoint
	err := q.QueryRow(ctx, query, restaurantID).Scan(
		&cp.RestaurantID,
		&cp.RestaurantName,
		&cp.LastOrderID,
		&cp.LastOrderDate,
		&cp.LastSyncAt,
		&cp.TotalSynced,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sync checkpoint: %w", err)
	}

	return &cp, nil
}

func (r *syncTrackerRepository) Upsert(ctx context.Context, checkpoint *models.SyncCheckpoint) error {
	q, ok := database.QuerierFrom(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	query := `
		INSERT INTO etl_sync_tracker (
			restaurant_id, restaurant_name, last_order_id, last_order_date, last_sync_at, total_orders_synced
		)
		VALUES ($1, $2, $3, $4, now(), $5)
		ON CONFLICT (restaurant_id) DO UPDATE SET
			restaurant_name     = EXCLUDED.restaurant_name,
			last_order_id       = GREATEST(etl_sync_tracker.last_order_id, EXCLUDED.last_order_id),
			last_order_date     = GREATEST(etl_sync_tracker.last_order_date, EXCLUDED.last_order_date),
			last_sync_at        = now(),
			total_orders_synced = etl_sync_tracker.total_orders_synced + EXCLUDED.total_orders_synced`

	_, err := q.Exec(ctx, query,
		checkpoint.RestaurantID,
		checkpoint.RestaurantName,
		checkpoint.LastOrderID,
		checkpoint.LastOrderDate,
		checkpoint.TotalSynced,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sync checkpoint: %w", err)
	}

	return nil
}
