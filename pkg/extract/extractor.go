package extract

import (
	"context"
	"time"

	"github.com/restalytics/etl-engine/pkg/models"
)

// Cursor marks the resumption point for pulls: the newest order already
// loaded. A zero Cursor means pull from the beginning.
type Cursor struct {
	LastOrderID   int64
	LastOrderDate time.Time
}

// Extractor pulls raw order records newer than a cursor, oldest first,
// up to limit records per call. Implementations must support repeated
// calls with the same cursor returning the same records, so a retried
// or resumed run neither skips nor re-fetches indefinitely.
type Extractor interface {
	Pull(ctx context.Context, cursor Cursor, limit int) ([]models.RawOrder, error)
}
