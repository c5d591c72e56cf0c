package models

import "time"

// RawOrder is one order as returned by the ordering platform API,
// already decoded from the wire but not yet validated or transformed.
// Total is a pointer so a missing amount is distinguishable from zero.
type RawOrder struct {
	ID            int64
	CreatedAt     time.Time
	Status        int
	DeliveryType  int
	OrderMethod   int
	SubTotal      float64
	DeliveryFee   float64
	ServiceCharge float64
	Discount      float64
	Total         *float64
	UsedPoints    int
	Customer      RawCustomer
	Restaurant    RawRestaurant
	Promotion     *RawPromotion
	Payments      []RawPayment
}

// RawCustomer is the customer snapshot embedded in an order.
type RawCustomer struct {
	ID             int64
	FullName       string
	Email          string
	Mobile         string
	EmailMarketing bool
	SMSMarketing   bool
}

// RawRestaurant is the restaurant snapshot embedded in an order.
type RawRestaurant struct {
	ID          int64
	Name        string
	CompanyID   int64
	CompanyName string
}

// RawPromotion is the optional promotion applied to an order.
type RawPromotion struct {
	ID             int64
	Name           string
	CouponCode     string
	DiscountAmount float64
}

// RawPayment is one payment attached to an order. PaidAt may be zero,
// in which case the order timestamp applies.
type RawPayment struct {
	ID         int64
	MethodID   int64
	MethodName string
	Amount     float64
	Tip        float64
	Tax        float64
	Status     int
	PaidAt     time.Time
}
