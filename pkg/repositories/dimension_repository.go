package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/restalytics/etl-engine/pkg/apperrors"
	"github.com/restalytics/etl-engine/pkg/database"
	"github.com/restalytics/etl-engine/pkg/models"
)

// DimensionRepository defines data access for slowly-changing dimension
// rows. All methods use the querier carried in the context, so they run
// against the pool or inside a loader transaction unchanged.
type DimensionRepository interface {
	// GetCurrent returns the row marked current for the natural key.
	GetCurrent(ctx context.Context, dimensionType, naturalKey string) (*models.DimensionRow, error)
	// GetAsOf returns the version whose validity interval contains asOf.
	GetAsOf(ctx context.Context, dimensionType, naturalKey string, asOf time.Time) (*models.DimensionRow, error)
	// GetEarliest returns the oldest known version for the natural key.
	GetEarliest(ctx context.Context, dimensionType, naturalKey string) (*models.DimensionRow, error)
	// Insert stores a new row and fills in its issued surrogate key.
	Insert(ctx context.Context, row *models.DimensionRow) error
	// CloseVersion ends a row's validity at validTo and clears its
	// current flag.
	CloseVersion(ctx context.Context, surrogateKey int64, validTo time.Time) error
	// UpdateAttributes replaces a row's attributes in place.
	UpdateAttributes(ctx context.Context, surrogateKey int64, attributes map[string]string) error
}

type dimensionRepository struct{}

// NewDimensionRepository creates a new dimension repository.
func NewDimensionRepository() DimensionRepository {
	return &dimensionRepository{}
}

const dimensionColumns = `surrogate_key, dimension_type, natural_key, attributes, valid_from, valid_to, is_current, created_at, updated_at`

func (r *dimensionRepository) GetCurrent(ctx context.Context, dimensionType, naturalKey string) (*models.DimensionRow, error) {
	q, ok := database.QuerierFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	query := `
		SELECT ` + dimensionColumns + `
		FROM dim_entity
		WHERE dimension_type = $1 AND natural_key = $2 AND is_current`

	return scanDimensionRow(q.QueryRow(ctx, query, dimensionType, naturalKey))
}

func (r *dimensionRepository) GetAsOf(ctx context.Context, dimensionType, naturalKey string, asOf time.Time) (*models.DimensionRow, error) {
	q, ok := database.QuerierFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	query := `
		SELECT ` + dimensionColumns + `
		FROM dim_entity
		WHERE dimension_type = $1 AND natural_key = $2
		  AND valid_from <= $3
		  AND (valid_to IS NULL OR valid_to > $3)
		ORDER BY valid_from DESC
		LIMIT 1`

	return scanDimensionRow(q.QueryRow(ctx, query, dimensionType, naturalKey, asOf))
}

func (r *dimensionRepository) GetEarliest(ctx context.Context, dimensionType, naturalKey string) (*models.DimensionRow, error) {
	q, ok := database.QuerierFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	query := `
		SELECT ` + dimensionColumns + `
		FROM dim_entity
		WHERE dimension_type = $1 AND natural_key = $2
		ORDER BY valid_from ASC
		LIMIT 1`

	return scanDimensionRow(q.QueryRow(ctx, query, dimensionType, naturalKey))
}

func (r *dimensionRepository) Insert(ctx context.Context, row *models.DimensionRow) error {
	q, ok := database.QuerierFrom(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	attrs, err := json.Marshal(row.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	query := `
		INSERT INTO dim_entity (dimension_type, natural_key, attributes, valid_from, valid_to, is_current)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING surrogate_key, created_at, updated_at`

	err = q.QueryRow(ctx, query,
		row.DimensionType,
		row.NaturalKey,
		attrs,
		row.ValidFrom,
		row.ValidTo,
		row.IsCurrent,
	).Scan(&row.SurrogateKey, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert dimension row: %w", err)
	}

	return nil
}

func (r *dimensionRepository) CloseVersion(ctx context.Context, surrogateKey int64, validTo time.Time) error {
	q, ok := database.QuerierFrom(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	query := `
		UPDATE dim_entity
		SET valid_to = $2, is_current = FALSE, updated_at = now()
		WHERE surrogate_key = $1`

	result, err := q.Exec(ctx, query, surrogateKey, validTo)
	if err != nil {
		return fmt.Errorf("failed to close dimension version: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *dimensionRepository) UpdateAttributes(ctx context.Context, surrogateKey int64, attributes map[string]string) error {
	q, ok := database.QuerierFrom(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	attrs, err := json.Marshal(attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	query := `
		UPDATE dim_entity
		SET attributes = $2, updated_at = now()
		WHERE surrogate_key = $1`

	result, err := q.Exec(ctx, query, surrogateKey, attrs)
	if err != nil {
		return fmt.Errorf("failed to update dimension attributes: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func scanDimensionRow(row pgx.Row) (*models.DimensionRow, error) {
	var dim models.DimensionRow
	var attrs []byte

	err := row.Scan(
		&dim.SurrogateKey,
		&dim.DimensionType,
		&dim.NaturalKey,
		&attrs,
		&dim.ValidFrom,
		&dim.ValidTo,
		&dim.IsCurrent,
		&dim.CreatedAt,
		&dim.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dimension row: %w", err)
	}

	if err := json.Unmarshal(attrs, &dim.Attributes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
	}

	return &dim, nil
}
