package models

import "time"

// RecordDraft is the transformed form of one source record: the
// dimension lookups it needs plus its fact rows with surrogate keys
// still unresolved. Producing a draft has no persistence side effects.
type RecordDraft struct {
	OrderID     int64
	EffectiveAt time.Time
	BucketStart time.Time
	Dimensions  []DimensionRequest
	Order       OrderFactDraft
	Payments    []PaymentFactDraft
}

// OrderFactDraft holds the order measures with dimension references by
// request RefKey instead of surrogate key.
type OrderFactDraft struct {
	CustomerRef   string
	RestaurantRef string
	PromotionRef  string // empty when the order has no promotion
	Status        int
	DeliveryType  int
	OrderMethod   int
	SubTotal      float64
	DeliveryFee   float64
	ServiceCharge float64
	Discount      float64
	Total         float64
	UsedPoints    int
}

// PaymentFactDraft holds one payment's measures with its method
// dimension referenced by RefKey.
type PaymentFactDraft struct {
	PaymentID   int64
	MethodRef   string
	EffectiveAt time.Time
	BucketStart time.Time
	Amount      float64
	Tip         float64
	Tax         float64
	Status      int
}
