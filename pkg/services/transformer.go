package services

import (
	"strconv"
	"time"

	"github.com/restalytics/etl-engine/pkg/apperrors"
	"github.com/restalytics/etl-engine/pkg/models"
)

// Transformer maps one raw order record to the dimension lookups and
// fact drafts it implies. It is pure: no persistence side effects, and
// a record missing a required field is rejected as a ValidationError
// rather than zero-filled.
type Transformer struct {
	interval time.Duration
	policies map[string]models.ChangePolicy
}

// NewTransformer creates a transformer with the bucket interval and the
// per-dimension change policies from configuration.
func NewTransformer(interval time.Duration, policies map[string]models.ChangePolicy) *Transformer {
	return &Transformer{interval: interval, policies: policies}
}

// Transform validates raw and derives its record draft.
func (t *Transformer) Transform(raw models.RawOrder) (*models.RecordDraft, error) {
	if raw.ID == 0 {
		return nil, &apperrors.ValidationError{Field: "ID", Reason: "is missing"}
	}
	if raw.CreatedAt.IsZero() {
		return nil, &apperrors.ValidationError{Field: "CreationDate", Reason: "is missing"}
	}
	if raw.Total == nil {
		return nil, &apperrors.ValidationError{Field: "Total", Reason: "is missing"}
	}
	if raw.Customer.ID == 0 {
		return nil, &apperrors.ValidationError{Field: "Customer.ID", Reason: "is missing"}
	}
	if raw.Restaurant.ID == 0 {
		return nil, &apperrors.ValidationError{Field: "Restaurant.ID", Reason: "is missing"}
	}

	draft := &models.RecordDraft{
		OrderID:     raw.ID,
		EffectiveAt: raw.CreatedAt,
		BucketStart: models.BucketStart(raw.CreatedAt, t.interval),
	}

	customer := t.dimensionRequest(models.DimCustomer, raw.Customer.ID, map[string]string{
		"full_name":       raw.Customer.FullName,
		"email":           raw.Customer.Email,
		"mobile":          raw.Customer.Mobile,
		"email_marketing": strconv.FormatBool(raw.Customer.EmailMarketing),
		"sms_marketing":   strconv.FormatBool(raw.Customer.SMSMarketing),
	})
	restaurant := t.dimensionRequest(models.DimRestaurant, raw.Restaurant.ID, map[string]string{
		"name":         raw.Restaurant.Name,
		"company_id":   strconv.FormatInt(raw.Restaurant.CompanyID, 10),
		"company_name": raw.Restaurant.CompanyName,
	})

	requests := map[string]models.DimensionRequest{
		customer.RefKey():   customer,
		restaurant.RefKey(): restaurant,
	}

	draft.Order = models.OrderFactDraft{
		CustomerRef:   customer.RefKey(),
		RestaurantRef: restaurant.RefKey(),
		Status:        raw.Status,
		DeliveryType:  raw.DeliveryType,
		OrderMethod:   raw.OrderMethod,
		SubTotal:      raw.SubTotal,
		DeliveryFee:   raw.DeliveryFee,
		ServiceCharge: raw.ServiceCharge,
		Discount:      raw.Discount,
		Total:         *raw.Total,
		UsedPoints:    raw.UsedPoints,
	}

	if raw.Promotion != nil {
		promotion := t.dimensionRequest(models.DimPromotion, raw.Promotion.ID, map[string]string{
			"name":            raw.Promotion.Name,
			"coupon_code":     raw.Promotion.CouponCode,
			"discount_amount": strconv.FormatFloat(raw.Promotion.DiscountAmount, 'f', -1, 64),
		})
		requests[promotion.RefKey()] = promotion
		draft.Order.PromotionRef = promotion.RefKey()
	}

	for i, pay := range raw.Payments {
		if pay.ID == 0 {
			return nil, &apperrors.ValidationError{
				Field:  "Payments[" + strconv.Itoa(i) + "].ID",
				Reason: "is missing",
			}
		}
		methodKey, methodName := paymentMethodIdentity(pay)
		if methodKey == "" {
			return nil, &apperrors.ValidationError{
				Field:  "Payments[" + strconv.Itoa(i) + "].PaymentMethod",
				Reason: "is missing",
			}
		}

		method := models.DimensionRequest{
			DimensionType: models.DimPaymentMethod,
			NaturalKey:    methodKey,
			Attributes:    map[string]string{"name": methodName},
			Policy:        t.policyFor(models.DimPaymentMethod),
		}
		requests[method.RefKey()] = method

		effectiveAt := pay.PaidAt
		if effectiveAt.IsZero() {
			effectiveAt = raw.CreatedAt
		}

		draft.Payments = append(draft.Payments, models.PaymentFactDraft{
			PaymentID:   pay.ID,
			MethodRef:   method.RefKey(),
			EffectiveAt: effectiveAt,
			BucketStart: models.BucketStart(effectiveAt, t.interval),
			Amount:      pay.Amount,
			Tip:         pay.Tip,
			Tax:         pay.Tax,
			Status:      pay.Status,
		})
	}

	draft.Dimensions = make([]models.DimensionRequest, 0, len(requests))
	for _, req := range requests {
		draft.Dimensions = append(draft.Dimensions, req)
	}

	return draft, nil
}

func (t *Transformer) dimensionRequest(dimType string, naturalKey int64, attrs map[string]string) models.DimensionRequest {
	return models.DimensionRequest{
		DimensionType: dimType,
		NaturalKey:    strconv.FormatInt(naturalKey, 10),
		Attributes:    attrs,
		Policy:        t.policyFor(dimType),
	}
}

func (t *Transformer) policyFor(dimType string) models.ChangePolicy {
	if policy, ok := t.policies[dimType]; ok {
		return policy
	}
	return models.PolicyOverwrite
}

// paymentMethodIdentity prefers the numeric method ID as natural key,
// falling back to the name for platforms that omit IDs.
func paymentMethodIdentity(pay models.RawPayment) (key, name string) {
	name = pay.MethodName
	if pay.MethodID != 0 {
		return strconv.FormatInt(pay.MethodID, 10), name
	}
	if name != "" {
		return name, name
	}
	return "", ""
}
