package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/restalytics/etl-engine/pkg/apperrors"
	"github.com/restalytics/etl-engine/pkg/models"
	"github.com/restalytics/etl-engine/pkg/repositories"
)

// TxRunner executes fn inside one database transaction, committing on
// nil and rolling back on error.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Loader persists one record draft: it resolves every dimension
// reference to a surrogate key, substitutes the keys into the fact
// rows, and writes the facts. All writes for one record happen in one
// transaction, so a failed record leaves nothing behind.
type Loader struct {
	db       TxRunner
	resolver *SurrogateKeyResolver
	buckets  repositories.TimeBucketRepository
	facts    repositories.FactRepository
	logger   *zap.Logger
}

// NewLoader creates a loader over the given transaction runner and
// repositories.
func NewLoader(
	db TxRunner,
	resolver *SurrogateKeyResolver,
	buckets repositories.TimeBucketRepository,
	facts repositories.FactRepository,
	logger *zap.Logger,
) *Loader {
	return &Loader{
		db:       db,
		resolver: resolver,
		buckets:  buckets,
		facts:    facts,
		logger:   logger.Named("loader"),
	}
}

// Load writes the draft's facts. A draft whose order fact already
// exists is skipped without touching dimensions. The returned result
// always carries the record's status; on failure the error is returned
// alongside it.
func (l *Loader) Load(ctx context.Context, draft *models.RecordDraft) (models.LoadResult, error) {
	result := models.LoadResult{OrderID: draft.OrderID, Status: models.StatusLoaded}

	err := l.db.WithTx(ctx, func(ctx context.Context) error {
		exists, err := l.facts.OrderFactExists(ctx, draft.OrderID)
		if err != nil {
			return err
		}
		if exists {
			result.Status = models.StatusSkipped
			result.Reason = "duplicate order"
			return nil
		}

		reqs := make(map[string]models.DimensionRequest, len(draft.Dimensions))
		for _, req := range draft.Dimensions {
			reqs[req.RefKey()] = req
		}

		// A payment's method dimension is resolved as of the payment's
		// own effective time, which can differ from the order's when a
		// payment settles later. Every other dimension resolves at the
		// order's effective time.
		paymentRefs := make(map[string]bool, len(draft.Payments))
		for _, pay := range draft.Payments {
			paymentRefs[pay.MethodRef] = true
		}

		keys := make(map[string]int64, len(draft.Dimensions))
		for ref, req := range reqs {
			if paymentRefs[ref] {
				continue
			}
			key, err := l.resolver.Resolve(ctx, req, draft.EffectiveAt)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", ref, err)
			}
			keys[ref] = key
		}

		orderFact, err := l.buildOrderFact(ctx, draft, keys)
		if err != nil {
			return err
		}
		if err := l.facts.InsertOrderFact(ctx, orderFact); err != nil {
			return err
		}

		for _, pay := range draft.Payments {
			methodKey, err := l.resolver.Resolve(ctx, reqs[pay.MethodRef], pay.EffectiveAt)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", pay.MethodRef, err)
			}
			payFact, err := l.buildPaymentFact(ctx, draft.OrderID, pay, methodKey)
			if err != nil {
				return err
			}
			if err := l.facts.InsertPaymentFact(ctx, payFact); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		result.Status = models.StatusFailed
		result.Reason = err.Error()
		return result, err
	}

	if result.Status == models.StatusSkipped {
		l.logger.Debug("order already loaded", zap.Int64("order_id", draft.OrderID))
	}
	return result, nil
}

func (l *Loader) buildOrderFact(ctx context.Context, draft *models.RecordDraft, keys map[string]int64) (*models.OrderFact, error) {
	dateTimeKey, err := l.lookupBucket(ctx, draft.OrderID, draft.BucketStart)
	if err != nil {
		return nil, err
	}

	fact := &models.OrderFact{
		OrderID:       draft.OrderID,
		DateTimeKey:   dateTimeKey,
		CustomerKey:   keys[draft.Order.CustomerRef],
		RestaurantKey: keys[draft.Order.RestaurantRef],
		OrderStatus:   draft.Order.Status,
		DeliveryType:  draft.Order.DeliveryType,
		OrderMethod:   draft.Order.OrderMethod,
		SubTotal:      draft.Order.SubTotal,
		DeliveryFee:   draft.Order.DeliveryFee,
		ServiceCharge: draft.Order.ServiceCharge,
		Discount:      draft.Order.Discount,
		Total:         draft.Order.Total,
		UsedPoints:    draft.Order.UsedPoints,
	}
	if draft.Order.PromotionRef != "" {
		key := keys[draft.Order.PromotionRef]
		fact.PromotionKey = &key
	}
	return fact, nil
}

func (l *Loader) buildPaymentFact(ctx context.Context, orderID int64, pay models.PaymentFactDraft, methodKey int64) (*models.PaymentFact, error) {
	dateTimeKey, err := l.lookupBucket(ctx, orderID, pay.BucketStart)
	if err != nil {
		return nil, err
	}

	return &models.PaymentFact{
		PaymentID:        pay.PaymentID,
		OrderID:          orderID,
		DateTimeKey:      dateTimeKey,
		PaymentMethodKey: methodKey,
		Amount:           pay.Amount,
		Tip:              pay.Tip,
		Tax:              pay.Tax,
		PaymentStatus:    pay.Status,
	}, nil
}

// lookupBucket maps a bucket start to its surrogate key. A missing
// bucket means the time dimension does not cover the record's
// timestamp, which is an integrity failure, not a transient one.
func (l *Loader) lookupBucket(ctx context.Context, orderID int64, bucketStart time.Time) (int64, error) {
	key, err := l.buckets.Lookup(ctx, bucketStart)
	if errors.Is(err, apperrors.ErrNotFound) {
		return 0, &apperrors.IntegrityError{
			Entity: "dim_time_bucket",
			Reason: fmt.Sprintf("no bucket covers %s (order %d); extend time dimension coverage", bucketStart.Format("2006-01-02 15:04"), orderID),
		}
	}
	if err != nil {
		return 0, err
	}
	return key, nil
}
