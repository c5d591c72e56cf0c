//go:build integration

package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restalytics/etl-engine/pkg/apperrors"
	"github.com/restalytics/etl-engine/pkg/database"
	"github.com/restalytics/etl-engine/pkg/models"
	"github.com/restalytics/etl-engine/pkg/repositories"
	"github.com/restalytics/etl-engine/pkg/testhelpers"
)

func warehouseCtx(t *testing.T) (context.Context, *database.DB) {
	t.Helper()
	tdb := testhelpers.SetupTestDB(t)
	ctx := database.WithQuerier(context.Background(), tdb.DB.Pool)
	tdb.TruncateAll(ctx, t)
	return ctx, tdb.DB
}

func seedBucket(ctx context.Context, t *testing.T, start time.Time) int64 {
	t.Helper()
	repo := repositories.NewTimeBucketRepository()
	_, err := repo.UpsertBatch(ctx, []models.TimeBucket{{
		BucketStart: start,
		Date:        time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		Year:        start.Year(), Quarter: 1, Month: int(start.Month()), Day: start.Day(),
		Hour: start.Hour(), Minute: start.Minute(),
		DayOfWeek: models.ISOWeekday(start.Weekday()),
		DayPart:   "lunch",
	}})
	require.NoError(t, err)

	key, err := repo.Lookup(ctx, start)
	require.NoError(t, err)
	return key
}

func seedDimension(ctx context.Context, t *testing.T, dimType, naturalKey string) int64 {
	t.Helper()
	repo := repositories.NewDimensionRepository()
	row := &models.DimensionRow{
		DimensionType: dimType, NaturalKey: naturalKey,
		Attributes: map[string]string{},
		ValidFrom:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), IsCurrent: true,
	}
	require.NoError(t, repo.Insert(ctx, row))
	return row.SurrogateKey
}

func TestTimeBucketRepository_UpsertIsIdempotent(t *testing.T) {
	ctx, _ := warehouseCtx(t)
	repo := repositories.NewTimeBucketRepository()
	start := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	bucket := models.TimeBucket{
		BucketStart: start, Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Year: 2024, Quarter: 1, Month: 3, Day: 5, Hour: 12,
		DayOfWeek: 2, DayPart: "lunch",
	}

	inserted, err := repo.UpsertBatch(ctx, []models.TimeBucket{bucket})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)

	inserted, err = repo.UpsertBatch(ctx, []models.TimeBucket{bucket})
	require.NoError(t, err)
	assert.Equal(t, int64(0), inserted, "conflicting bucket_start must not insert")

	_, err = repo.Lookup(ctx, start.Add(15*time.Minute))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTimeBucketRepository_CoveredRange(t *testing.T) {
	ctx, _ := warehouseCtx(t)
	repo := repositories.NewTimeBucketRepository()

	first, last, err := repo.CoveredRange(ctx)
	require.NoError(t, err)
	assert.Nil(t, first, "empty dimension has no range")
	assert.Nil(t, last)

	early := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 3, 9, 23, 45, 0, 0, time.UTC)
	seedBucket(ctx, t, early)
	seedBucket(ctx, t, late)

	first, last, err = repo.CoveredRange(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NotNil(t, last)
	assert.True(t, first.Equal(early))
	assert.True(t, last.Equal(late))
}

func TestFactRepository_OrderFactIdempotence(t *testing.T) {
	ctx, _ := warehouseCtx(t)
	repo := repositories.NewFactRepository()

	bucketKey := seedBucket(ctx, t, time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC))
	customerKey := seedDimension(ctx, t, models.DimCustomer, "42")
	restaurantKey := seedDimension(ctx, t, models.DimRestaurant, "7")

	exists, err := repo.OrderFactExists(ctx, 1001)
	require.NoError(t, err)
	assert.False(t, exists)

	fact := &models.OrderFact{
		OrderID: 1001, DateTimeKey: bucketKey,
		CustomerKey: customerKey, RestaurantKey: restaurantKey,
		Total: 42.5,
	}
	require.NoError(t, repo.InsertOrderFact(ctx, fact))
	require.NoError(t, repo.InsertOrderFact(ctx, fact), "re-insert must be a no-op, not an error")

	exists, err = repo.OrderFactExists(ctx, 1001)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFactRepository_PaymentFactInsert(t *testing.T) {
	ctx, _ := warehouseCtx(t)
	repo := repositories.NewFactRepository()

	bucketKey := seedBucket(ctx, t, time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC))
	methodKey := seedDimension(ctx, t, models.DimPaymentMethod, "2")

	fact := &models.PaymentFact{
		PaymentID: 9001, OrderID: 1001, DateTimeKey: bucketKey,
		PaymentMethodKey: methodKey, Amount: 42.5, Tip: 5,
	}
	require.NoError(t, repo.InsertPaymentFact(ctx, fact))
	require.NoError(t, repo.InsertPaymentFact(ctx, fact))
}

func TestSyncTrackerRepository_MonotonicAdvance(t *testing.T) {
	ctx, _ := warehouseCtx(t)
	repo := repositories.NewSyncTrackerRepository()

	_, err := repo.Get(ctx, 77)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	d1 := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, &models.SyncCheckpoint{
		RestaurantID: 77, RestaurantName: "Corner Deli",
		LastOrderID: 1002, LastOrderDate: d1, TotalSynced: 2,
	}))

	// A replayed, older checkpoint must not rewind the stored one.
	require.NoError(t, repo.Upsert(ctx, &models.SyncCheckpoint{
		RestaurantID: 77, RestaurantName: "Corner Deli",
		LastOrderID: 900, LastOrderDate: d1.AddDate(0, 0, -1), TotalSynced: 1,
	}))

	cp, err := repo.Get(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, int64(1002), cp.LastOrderID)
	assert.True(t, cp.LastOrderDate.Equal(d1))
	assert.Equal(t, int64(3), cp.TotalSynced, "synced totals accumulate")
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx, db := warehouseCtx(t)
	repo := repositories.NewDimensionRepository()

	err := db.WithTx(ctx, func(txCtx context.Context) error {
		row := &models.DimensionRow{
			DimensionType: models.DimCustomer, NaturalKey: "rollback-me",
			Attributes: map[string]string{},
			ValidFrom:  time.Now().UTC(), IsCurrent: true,
		}
		if err := repo.Insert(txCtx, row); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = repo.GetCurrent(ctx, models.DimCustomer, "rollback-me")
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "rolled-back insert must not be visible")
}
