package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/restalytics/etl-engine/pkg/apperrors"
	"github.com/restalytics/etl-engine/pkg/extract"
	"github.com/restalytics/etl-engine/pkg/models"
)

// In-memory repository fakes shared by the service tests. They mirror
// the SQL semantics closely enough for the state machines to be
// exercised without a database; the repositories' own SQL is covered by
// the integration tests.

type fakeDimensionRepository struct {
	mu      sync.Mutex
	rows    []*models.DimensionRow
	nextKey int64
	inserts int
	updates int
}

func newFakeDimensionRepository() *fakeDimensionRepository {
	return &fakeDimensionRepository{nextKey: 1}
}

func (f *fakeDimensionRepository) GetCurrent(_ context.Context, dimensionType, naturalKey string) (*models.DimensionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.DimensionType == dimensionType && r.NaturalKey == naturalKey && r.IsCurrent {
			return copyRow(r), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeDimensionRepository) GetAsOf(_ context.Context, dimensionType, naturalKey string, asOf time.Time) (*models.DimensionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.DimensionRow
	for _, r := range f.rows {
		if r.DimensionType != dimensionType || r.NaturalKey != naturalKey {
			continue
		}
		if !r.ContainsInstant(asOf) {
			continue
		}
		if best == nil || r.ValidFrom.After(best.ValidFrom) {
			best = r
		}
	}
	if best == nil {
		return nil, apperrors.ErrNotFound
	}
	return copyRow(best), nil
}

func (f *fakeDimensionRepository) GetEarliest(_ context.Context, dimensionType, naturalKey string) (*models.DimensionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var earliest *models.DimensionRow
	for _, r := range f.rows {
		if r.DimensionType != dimensionType || r.NaturalKey != naturalKey {
			continue
		}
		if earliest == nil || r.ValidFrom.Before(earliest.ValidFrom) {
			earliest = r
		}
	}
	if earliest == nil {
		return nil, apperrors.ErrNotFound
	}
	return copyRow(earliest), nil
}

func (f *fakeDimensionRepository) Insert(_ context.Context, row *models.DimensionRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.DimensionType == row.DimensionType && r.NaturalKey == row.NaturalKey && r.IsCurrent && row.IsCurrent {
			return &apperrors.ConflictError{
				DimensionType: row.DimensionType,
				NaturalKey:    row.NaturalKey,
				Reason:        "current version already exists",
			}
		}
	}
	row.SurrogateKey = f.nextKey
	f.nextKey++
	row.CreatedAt = time.Now()
	row.UpdatedAt = row.CreatedAt
	f.rows = append(f.rows, copyRow(row))
	f.inserts++
	return nil
}

func (f *fakeDimensionRepository) CloseVersion(_ context.Context, surrogateKey int64, validTo time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.SurrogateKey == surrogateKey && r.IsCurrent {
			to := validTo
			r.ValidTo = &to
			r.IsCurrent = false
			r.UpdatedAt = time.Now()
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (f *fakeDimensionRepository) UpdateAttributes(_ context.Context, surrogateKey int64, attributes map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.SurrogateKey == surrogateKey {
			r.Attributes = copyAttrs(attributes)
			r.UpdatedAt = time.Now()
			f.updates++
			return nil
		}
	}
	return apperrors.ErrNotFound
}

// versions returns all rows for an entity ordered by validity start.
func (f *fakeDimensionRepository) versions(dimensionType, naturalKey string) []*models.DimensionRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.DimensionRow
	for _, r := range f.rows {
		if r.DimensionType == dimensionType && r.NaturalKey == naturalKey {
			out = append(out, copyRow(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidFrom.Before(out[j].ValidFrom) })
	return out
}

func copyRow(r *models.DimensionRow) *models.DimensionRow {
	c := *r
	c.Attributes = copyAttrs(r.Attributes)
	if r.ValidTo != nil {
		to := *r.ValidTo
		c.ValidTo = &to
	}
	return &c
}

func copyAttrs(attrs map[string]string) map[string]string {
	c := make(map[string]string, len(attrs))
	for k, v := range attrs {
		c[k] = v
	}
	return c
}

type fakeTimeBucketRepository struct {
	mu      sync.Mutex
	buckets map[time.Time]int64
	nextKey int64
}

func newFakeTimeBucketRepository() *fakeTimeBucketRepository {
	return &fakeTimeBucketRepository{buckets: make(map[time.Time]int64), nextKey: 1}
}

func (f *fakeTimeBucketRepository) UpsertBatch(_ context.Context, buckets []models.TimeBucket) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var inserted int64
	for _, b := range buckets {
		key := b.BucketStart.UTC()
		if _, ok := f.buckets[key]; ok {
			continue
		}
		f.buckets[key] = f.nextKey
		f.nextKey++
		inserted++
	}
	return inserted, nil
}

func (f *fakeTimeBucketRepository) Lookup(_ context.Context, bucketStart time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.buckets[bucketStart.UTC()]
	if !ok {
		return 0, apperrors.ErrNotFound
	}
	return key, nil
}

func (f *fakeTimeBucketRepository) CoveredRange(_ context.Context) (*time.Time, *time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.buckets) == 0 {
		return nil, nil, nil
	}
	var first, last time.Time
	for t := range f.buckets {
		if first.IsZero() || t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}
	return &first, &last, nil
}

type fakeFactRepository struct {
	mu       sync.Mutex
	orders   map[int64]*models.OrderFact
	payments map[int64]*models.PaymentFact
}

func newFakeFactRepository() *fakeFactRepository {
	return &fakeFactRepository{
		orders:   make(map[int64]*models.OrderFact),
		payments: make(map[int64]*models.PaymentFact),
	}
}

func (f *fakeFactRepository) OrderFactExists(_ context.Context, orderID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.orders[orderID]
	return ok, nil
}

func (f *fakeFactRepository) InsertOrderFact(_ context.Context, fact *models.OrderFact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[fact.OrderID]; ok {
		return nil
	}
	c := *fact
	f.orders[fact.OrderID] = &c
	return nil
}

func (f *fakeFactRepository) InsertPaymentFact(_ context.Context, fact *models.PaymentFact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.payments[fact.PaymentID]; ok {
		return nil
	}
	c := *fact
	f.payments[fact.PaymentID] = &c
	return nil
}

type fakeSyncTracker struct {
	mu          sync.Mutex
	checkpoints map[int64]*models.SyncCheckpoint
}

func newFakeSyncTracker() *fakeSyncTracker {
	return &fakeSyncTracker{checkpoints: make(map[int64]*models.SyncCheckpoint)}
}

func (f *fakeSyncTracker) Get(_ context.Context, restaurantID int64) (*models.SyncCheckpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp, ok := f.checkpoints[restaurantID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c := *cp
	return &c, nil
}

func (f *fakeSyncTracker) Upsert(_ context.Context, checkpoint *models.SyncCheckpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.checkpoints[checkpoint.RestaurantID]
	if !ok {
		c := *checkpoint
		c.LastSyncAt = time.Now()
		f.checkpoints[checkpoint.RestaurantID] = &c
		return nil
	}
	if checkpoint.LastOrderID > existing.LastOrderID {
		existing.LastOrderID = checkpoint.LastOrderID
	}
	if checkpoint.LastOrderDate.After(existing.LastOrderDate) {
		existing.LastOrderDate = checkpoint.LastOrderDate
	}
	existing.TotalSynced += checkpoint.TotalSynced
	existing.LastSyncAt = time.Now()
	existing.RestaurantName = checkpoint.RestaurantName
	return nil
}

// passthroughTx satisfies TxRunner without a database: fn runs directly
// against the fakes, which are not transactional.
type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// repeatingExtractor serves a fixed backlog, filtering by the cursor on
// every call the way the real client does. A record the checkpoint
// never passes keeps coming back on every pull.
type repeatingExtractor struct {
	mu        sync.Mutex
	backlog   []models.RawOrder
	pullCalls int
}

func (f *repeatingExtractor) Pull(_ context.Context, cursor extract.Cursor, limit int) ([]models.RawOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullCalls++

	var out []models.RawOrder
	for _, r := range f.backlog {
		cp := models.SyncCheckpoint{LastOrderID: cursor.LastOrderID, LastOrderDate: cursor.LastOrderDate}
		if cp.ShouldProcess(r.ID, r.CreatedAt) {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// scriptedExtractor returns canned batches, optionally failing the
// first few calls.
type scriptedExtractor struct {
	mu        sync.Mutex
	batches   [][]models.RawOrder
	failures  []error
	pullCalls int
}

func (f *scriptedExtractor) Pull(_ context.Context, cursor extract.Cursor, limit int) ([]models.RawOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullCalls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]

	var out []models.RawOrder
	for _, r := range batch {
		cp := models.SyncCheckpoint{LastOrderID: cursor.LastOrderID, LastOrderDate: cursor.LastOrderDate}
		if cp.ShouldProcess(r.ID, r.CreatedAt) {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
