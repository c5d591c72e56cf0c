package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/restalytics/etl-engine/pkg/apperrors"
	"github.com/restalytics/etl-engine/pkg/database"
	"github.com/restalytics/etl-engine/pkg/models"
)

// TimeBucketRepository defines data access for the pre-built time
// dimension.
type TimeBucketRepository interface {
	// UpsertBatch stores buckets, skipping any bucket_start that already
	// exists. Returns the number of rows actually inserted.
	UpsertBatch(ctx context.Context, buckets []models.TimeBucket) (int64, error)
	// Lookup returns the surrogate key for an exact bucket start.
	Lookup(ctx context.Context, bucketStart time.Time) (int64, error)
	// CoveredRange returns the earliest and latest bucket starts, or
	// (nil, nil) when the dimension is empty.
	CoveredRange(ctx context.Context) (*time.Time, *time.Time, error)
}

type timeBucketRepository struct{}

// NewTimeBucketRepository creates a new time bucket repository.
func NewTimeBucketRepository() TimeBucketRepository {
	return &timeBucketRepository{}
}

func (r *timeBucketRepository) UpsertBatch(ctx context.Context, buckets []models.TimeBucket) (int64, error) {
	q, ok := database.QuerierFrom(ctx)
	if !ok {
		return 0, fmt.Errorf("no querier in context")
	}

	query := `
		INSERT INTO dim_time_bucket (
			bucket_start, bucket_date, year, quarter, month, day, hour, minute,
			day_of_week, is_weekend, is_holiday, is_business_hours, is_peak_hour, day_part
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (bucket_start) DO NOTHING`

	var inserted int64
	for _, b := range buckets {
		result, err := q.Exec(ctx, query,
			b.BucketStart,
			b.Date,
			b.Year,
			b.Quarter,
			b.Month,
			b.Day,
			b.Hour,
			b.Minute,
			b.DayOfWeek,
			b.IsWeekend,
			b.IsHoliday,
			b.IsBusinessHours,
			b.IsPeakHour,
			b.DayPart,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to upsert time bucket %s: %w", b.BucketStart, err)
		}
		inserted += result.RowsAffected()
	}

	return inserted, nil
}

func (r *timeBucketRepository) Lookup(ctx context.Context, bucketStart time.Time) (int64, error) {
	q, ok := database.QuerierFrom(ctx)
	if !ok {
		return 0, fmt.Errorf("no querier in context")
	}

	var key int64
	err := q.QueryRow(ctx,
		`SELECT datetime_key FROM dim_time_bucket WHERE bucket_start = $1`,
		bucketStart,
	).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.ErrNotFound
		}
		return 0, fmt.Errorf("failed to look up time bucket: %w", err)
	}

	return key, nil
}

func (r *timeBucketRepository) CoveredRange(ctx context.Context) (*time.Time, *time.Time, error) {
	q, ok := database.QuerierFrom(ctx)
	if !ok {
		return nil, nil, fmt.Errorf("no querier in context")
	}

	var first, last *time.Time
	err := q.QueryRow(ctx,
		`SELECT min(bucket_start), max(bucket_start) FROM dim_time_bucket`,
	).Scan(&first, &last)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get covered range: %w", err)
	}

	return first, last, nil
}
