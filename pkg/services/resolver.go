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

// SurrogateKeyResolver maps a dimension natural key plus its attribute
// snapshot to a stable surrogate key, creating rows or versions per the
// dimension's change policy.
//
// Resolution is serialized per (dimension_type, natural_key): two
// concurrent resolutions for the same entity cannot both insert a
// version, the second observes the first's result. The partial unique
// index on current rows enforces the same invariant across processes.
type SurrogateKeyResolver struct {
	dims   repositories.DimensionRepository
	locks  *keyMutex
	logger *zap.Logger
}

// NewSurrogateKeyResolver creates a resolver over the given dimension
// store.
func NewSurrogateKeyResolver(dims repositories.DimensionRepository, logger *zap.Logger) *SurrogateKeyResolver {
	return &SurrogateKeyResolver{
		dims:   dims,
		locks:  newKeyMutex(),
		logger: logger.Named("resolver"),
	}
}

// Resolve returns the surrogate key for the natural key valid as of
// asOf. Unchanged attributes produce no write; changed attributes are
// applied per the request's policy. For a versioned dimension an asOf
// earlier than the current version resolves against history and never
// mutates existing version boundaries.
func (r *SurrogateKeyResolver) Resolve(ctx context.Context, req models.DimensionRequest, asOf time.Time) (int64, error) {
	if !req.Policy.Valid() {
		return 0, fmt.Errorf("dimension %s: unknown change policy %q", req.DimensionType, req.Policy)
	}
	if req.NaturalKey == "" {
		return 0, &apperrors.ValidationError{Field: "natural_key", Reason: "is empty"}
	}

	unlock := r.locks.Lock(req.DimensionType + "/" + req.NaturalKey)
	defer unlock()

	current, err := r.dims.GetCurrent(ctx, req.DimensionType, req.NaturalKey)
	if errors.Is(err, apperrors.ErrNotFound) {
		return r.insertFirstVersion(ctx, req, asOf)
	}
	if err != nil {
		return 0, err
	}

	// A late-arriving record for a versioned dimension resolves against
	// the version valid at its own timestamp, leaving history untouched.
	if req.Policy == models.PolicyVersioned && asOf.Before(current.ValidFrom) {
		return r.resolveHistorical(ctx, req, asOf)
	}

	equal, missing := attributesEqual(current.Attributes, req.Attributes)
	if missing != "" {
		return 0, &apperrors.ConflictError{
			DimensionType: req.DimensionType,
			NaturalKey:    req.NaturalKey,
			Reason:        fmt.Sprintf("incoming snapshot is missing tracked attribute %q", missing),
		}
	}
	if equal {
		return current.SurrogateKey, nil
	}

	switch req.Policy {
	case models.PolicyOverwrite:
		if err := r.dims.UpdateAttributes(ctx, current.SurrogateKey, req.Attributes); err != nil {
			return 0, err
		}
		return current.SurrogateKey, nil

	case models.PolicyVersioned:
		if err := r.dims.CloseVersion(ctx, current.SurrogateKey, asOf); err != nil {
			return 0, err
		}
		validFrom := asOf
		next := &models.DimensionRow{
			DimensionType: req.DimensionType,
			NaturalKey:    req.NaturalKey,
			Attributes:    req.Attributes,
			ValidFrom:     validFrom,
			IsCurrent:     true,
		}
		if err := r.dims.Insert(ctx, next); err != nil {
			return 0, err
		}
		r.logger.Debug("opened new dimension version",
			zap.String("dimension_type", req.DimensionType),
			zap.String("natural_key", req.NaturalKey),
			zap.Int64("closed_key", current.SurrogateKey),
			zap.Int64("new_key", next.SurrogateKey))
		return next.SurrogateKey, nil
	}

	return 0, fmt.Errorf("unreachable policy %q", req.Policy)
}

func (r *SurrogateKeyResolver) insertFirstVersion(ctx context.Context, req models.DimensionRequest, asOf time.Time) (int64, error) {
	row := &models.DimensionRow{
		DimensionType: req.DimensionType,
		NaturalKey:    req.NaturalKey,
		Attributes:    req.Attributes,
		ValidFrom:     asOf,
		IsCurrent:     true,
	}
	if err := r.dims.Insert(ctx, row); err != nil {
		return 0, err
	}
	return row.SurrogateKey, nil
}

// resolveHistorical finds the version whose validity interval contains
// asOf. An asOf predating the first known version resolves to that
// first version; closed boundaries are never reopened.
func (r *SurrogateKeyResolver) resolveHistorical(ctx context.Context, req models.DimensionRequest, asOf time.Time) (int64, error) {
	row, err := r.dims.GetAsOf(ctx, req.DimensionType, req.NaturalKey, asOf)
	if errors.Is(err, apperrors.ErrNotFound) {
		row, err = r.dims.GetEarliest(ctx, req.DimensionType, req.NaturalKey)
	}
	if err != nil {
		return 0, err
	}
	return row.SurrogateKey, nil
}

// attributesEqual compares tracked attributes by value. It returns the
// name of a tracked attribute absent from the incoming snapshot, in
// which case equality cannot be determined.
func attributesEqual(current, incoming map[string]string) (bool, string) {
	for name := range current {
		if _, ok := incoming[name]; !ok {
			return false, name
		}
	}
	if len(incoming) != len(current) {
		return false, ""
	}
	for name, have := range current {
		if incoming[name] != have {
			return false, ""
		}
	}
	return true, ""
}
