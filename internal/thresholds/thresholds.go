// Package thresholds owns the lifecycle of per-parameter bounds.
package thresholds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/prite36/floraseven/internal/health"
)

// Repository persists thresholds.
type Repository interface {
	LoadThresholds(ctx context.Context) (map[health.Parameter]health.Threshold, error)
	SaveThreshold(ctx context.Context, p health.Parameter, t health.Threshold) error
	SeedThresholds(ctx context.Context, defaults map[health.Parameter]health.Threshold) error
}

// Update carries optional new bounds for one parameter.
type Update struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	malformed bool
}

// UnmarshalJSON accepts any JSON value. An entry that is not an object of
// numeric bounds is marked malformed and rejected by Store.Update, so one bad
// entry does not fail the decode of its siblings.
func (u *Update) UnmarshalJSON(data []byte) error {
	var bounds struct {
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
	}
	if err := json.Unmarshal(data, &bounds); err != nil {
		*u = Update{malformed: true}
		return nil
	}
	*u = Update{Min: bounds.Min, Max: bounds.Max}
	return nil
}

// UpdateRequest is a partial update keyed by parameter.
type UpdateRequest map[health.Parameter]Update

// UpdateResult lists what an update accepted and why the rest was rejected.
type UpdateResult struct {
	Updated    []health.Parameter                   `json:"updated_parameters"`
	Rejected   map[health.Parameter]string          `json:"rejected,omitempty"`
	Thresholds map[health.Parameter]health.Threshold `json:"updated_thresholds"`
}

// Store serves thresholds with defaults substituted for unset parameters.
type Store struct {
	repo     Repository
	defaults map[health.Parameter]health.Threshold
	mu       sync.Mutex
}

func NewStore(repo Repository, defaults map[health.Parameter]health.Threshold) *Store {
	merged := health.DefaultThresholds()
	for p, t := range defaults {
		merged[p] = t
	}
	return &Store{repo: repo, defaults: merged}
}

// Init seeds the repository with defaults for parameters never set.
func (s *Store) Init(ctx context.Context) error {
	if err := s.repo.SeedThresholds(ctx, s.defaults); err != nil {
		return fmt.Errorf("failed to initialise thresholds: %w", err)
	}
	return nil
}

// Thresholds returns the full current set. Parameters without a stored
// value get their default. A repository failure falls back to the defaults.
func (s *Store) Thresholds(ctx context.Context) map[health.Parameter]health.Threshold {
	stored, err := s.repo.LoadThresholds(ctx)
	if err != nil {
		log.Printf("[WARN] Failed to load thresholds, using defaults: %v", err)
		stored = nil
	}
	return s.withDefaults(stored)
}

func (s *Store) withDefaults(stored map[health.Parameter]health.Threshold) map[health.Parameter]health.Threshold {
	out := copyThresholds(s.defaults)
	for p, t := range stored {
		if !p.Valid() {
			continue
		}
		if err := t.Validate(); err != nil {
			log.Printf("[WARN] Stored threshold for %s is invalid (%v-%v), using default", p, t.Min, t.Max)
			continue
		}
		out[p] = t
	}
	return out
}

// Update merges each entry with the current bounds, validates it and
// persists the accepted ones. Invalid entries are rejected individually.
// The returned error joins persistence failures; those parameters are
// reported as rejected.
func (s *Store) Update(ctx context.Context, req UpdateRequest) (UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := UpdateResult{
		Updated:    []health.Parameter{},
		Rejected:   map[health.Parameter]string{},
		Thresholds: map[health.Parameter]health.Threshold{},
	}

	stored, err := s.repo.LoadThresholds(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load current thresholds: %w", err)
	}
	current := s.withDefaults(stored)

	var errs []error
	for _, p := range orderedKeys(req) {
		upd := req[p]
		if !p.Valid() {
			result.Rejected[p] = "unknown parameter"
			continue
		}
		if upd.malformed {
			result.Rejected[p] = "bounds must be an object with numeric min and max"
			continue
		}
		if upd.Min == nil && upd.Max == nil {
			result.Rejected[p] = "no bounds supplied"
			continue
		}
		if invalidBound(upd.Min) || invalidBound(upd.Max) {
			result.Rejected[p] = "bounds must be finite numbers"
			continue
		}

		next := current[p]
		if upd.Min != nil {
			next.Min = *upd.Min
		}
		if upd.Max != nil {
			next.Max = *upd.Max
		}
		if err := next.Validate(); err != nil {
			result.Rejected[p] = fmt.Sprintf("min %v exceeds max %v", next.Min, next.Max)
			continue
		}

		if err := s.repo.SaveThreshold(ctx, p, next); err != nil {
			result.Rejected[p] = "failed to save"
			errs = append(errs, err)
			continue
		}
		current[p] = next
		result.Updated = append(result.Updated, p)
		result.Thresholds[p] = next
	}

	if len(result.Updated) > 0 {
		log.Printf("[INFO] Thresholds updated: %v", result.Updated)
	}
	if len(result.Rejected) > 0 {
		log.Printf("[WARN] Threshold updates rejected: %v", result.Rejected)
	}
	return result, errors.Join(errs...)
}

func invalidBound(v *float64) bool {
	return v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0))
}

// orderedKeys returns known parameters in display order followed by any
// unknown keys.
func orderedKeys(req UpdateRequest) []health.Parameter {
	keys := make([]health.Parameter, 0, len(req))
	for _, p := range health.Parameters {
		if _, ok := req[p]; ok {
			keys = append(keys, p)
		}
	}
	for p := range req {
		if !p.Valid() {
			keys = append(keys, p)
		}
	}
	return keys
}

func copyThresholds(in map[health.Parameter]health.Threshold) map[health.Parameter]health.Threshold {
	out := make(map[health.Parameter]health.Threshold, len(in))
	for p, t := range in {
		out[p] = t
	}
	return out
}
