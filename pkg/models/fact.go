package models

// OrderFact is one loaded order event. OrderID is the source system's
// identifier and the idempotence key: reprocessing the same order must
// not create a second row.
type OrderFact struct {
	OrderKey      int64
	OrderID       int64
	DateTimeKey   int64
	CustomerKey   int64
	RestaurantKey int64
	PromotionKey  *int64
	OrderStatus   int
	DeliveryType  int
	OrderMethod   int
	SubTotal      float64
	DeliveryFee   float64
	ServiceCharge float64
	Discount      float64
	Total         float64
	UsedPoints    int
}

// PaymentFact is one loaded payment event, keyed by the source payment
// ID for idempotence.
type PaymentFact struct {
	PaymentKey       int64
	PaymentID        int64
	OrderID          int64
	DateTimeKey      int64
	PaymentMethodKey int64
	Amount           float64
	Tip              float64
	Tax              float64
	PaymentStatus    int
}
