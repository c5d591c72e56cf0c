package repositories

import (
	"context"
	"fmt"

	"github.com/restalytics/etl-engine/pkg/database"
	"github.com/restalytics/etl-engine/pkg/models"
)

// FactRepository defines append-only data access for fact rows. Inserts
// are conflict-safe on the source natural key so a retried transaction
// can never duplicate a fact.
type FactRepository interface {
	OrderFactExists(ctx context.Context, orderID int64) (bool, error)
	InsertOrderFact(ctx context.Context, fact *models.OrderFact) error
	InsertPaymentFact(ctx context.Context, fact *models.PaymentFact) error
}

type factRepository struct{}

// NewFactRepository creates a new fact repository.
func NewFactRepository() FactRepository {
	return &factRepository{}
}

func (r *factRepository) OrderFactExists(ctx context.Context, orderID int64) (bool, error) {
	q, ok := database.QuerierFrom(ctx)
	if !ok {
		return false, fmt.Errorf("no querier in context")
	}

	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM fact_orders WHERE order_id = $1)`,
		orderID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check fact existence: %w", err)
	}

	return exists, nil
}

func (r *factRepository) InsertOrderFact(ctx context.Context, fact *models.OrderFact) error {
	q, ok := database.QuerierFrom(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	query := `
		INSERT INTO fact_orders (
			order_id, datetime_key, customer_key, restaurant_key, promotion_key,
			order_status, delivery_type, order_method,
			sub_total, delivery_fee, service_charge, discount, total, used_points
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (order_id) DO NOTHING`

	_, err := q.Exec(ctx, query,
		fact.OrderID,
		fact.DateTimeKey,
		fact.CustomerKey,
		fact.RestaurantKey,
		fact.PromotionKey,
		fact.OrderStatus,
		fact.DeliveryType,
		fact.OrderMethod,
		fact.SubTotal,
		fact.DeliveryFee,
		fact.ServiceCharge,
		fact.Discount,
		fact.Total,
		fact.UsedPoints,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order fact: %w", err)
	}

	return nil
}

func (r *factRepository) InsertPaymentFact(ctx context.Context, fact *models.PaymentFact) error {
	q, ok := database.QuerierFrom(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	query := `
		INSERT INTO fact_payments (
			payment_id, order_id, datetime_key, payment_method_key,
			amount, tip, tax, payment_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (payment_id) DO NOTHING`

	_, err := q.Exec(ctx, query,
		fact.PaymentID,
		fact.OrderID,
		fact.DateTimeKey,
		fact.PaymentMethodKey,
		fact.Amount,
		fact.Tip,
		fact.Tax,
		fact.PaymentStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment fact: %w", err)
	}

	return nil
}
