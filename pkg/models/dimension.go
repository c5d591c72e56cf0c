package models

import "time"

// ChangePolicy controls how attribute changes to a dimension entity are
// applied: overwrite mutates the row in place with no history, versioned
// closes the current row and opens a new one with a new surrogate key.
type ChangePolicy string

const (
	PolicyOverwrite ChangePolicy = "overwrite"
	PolicyVersioned ChangePolicy = "versioned"
)

// Valid reports whether p is a known change policy.
func (p ChangePolicy) Valid() bool {
	return p == PolicyOverwrite || p == PolicyVersioned
}

// Dimension types produced by the transformer.
const (
	DimCustomer      = "customer"
	DimRestaurant    = "restaurant"
	DimPromotion     = "promotion"
	DimPaymentMethod = "payment_method"
)

// DimensionRow is one version of a dimension entity. The surrogate key
// is issued by the warehouse and immutable once assigned; the natural
// key is the source system's identifier and stable across versions.
// Exactly one row per (dimension_type, natural_key) is current at any
// time.
type DimensionRow struct {
	SurrogateKey  int64
	DimensionType string
	NaturalKey    string
	Attributes    map[string]string
	ValidFrom     time.Time
	ValidTo       *time.Time
	IsCurrent     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ContainsInstant reports whether the row's validity interval contains t.
func (r *DimensionRow) ContainsInstant(t time.Time) bool {
	if t.Before(r.ValidFrom) {
		return false
	}
	return r.ValidTo == nil || t.Before(*r.ValidTo)
}

// DimensionRequest asks the resolver for the surrogate key of a natural
// key given its current attribute snapshot.
type DimensionRequest struct {
	DimensionType string
	NaturalKey    string
	Attributes    map[string]string
	Policy        ChangePolicy
}

// RefKey identifies the request inside one record draft, so fact drafts
// can reference the resolved surrogate key before it exists.
func (r DimensionRequest) RefKey() string {
	return r.DimensionType + ":" + r.NaturalKey
}
