// Package learn holds the numeric pieces of the preference engine: a running
// standard scaler, an incremental logistic classifier and the synthetic
// bootstrap sampler. Every function is a pure transformation of its inputs;
// state goes in and a new copy comes out.
package learn

import (
	"fmt"
	"math"

	"github.com/ewilliams-labs/persona/internal/core/domain"
)

// DefaultEpsilon floors the standard deviation used by Transform.
const DefaultEpsilon = 1e-6

// Scaled is a feature vector already standardized by Transform. It can only be
// built by Transform, so the model never sees raw descriptors.
type Scaled struct {
	values []float64
}

// Len returns the dimensionality.
func (s Scaled) Len() int {
	return len(s.values)
}

// Values returns a copy of the standardized values.
func (s Scaled) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// FitScaler computes mean and variance statistics over a non-empty batch.
func FitScaler(batch []domain.FeatureVector) (domain.ScalerState, error) {
	if len(batch) == 0 {
		return domain.ScalerState{}, fmt.Errorf("learn: fit scaler: %w", domain.ErrInsufficientData)
	}

	dim := len(batch[0])
	state := domain.ScalerState{
		Mean: make([]float64, dim),
		M2:   make([]float64, dim),
	}
	for _, x := range batch {
		if len(x) != dim {
			return domain.ScalerState{}, fmt.Errorf("learn: fit scaler: %w", &domain.DimensionMismatchError{Want: dim, Got: len(x)})
		}
		observe(&state, x)
	}
	return state, nil
}

// UpdateScaler folds one observation into a copy of state.
func UpdateScaler(state domain.ScalerState, x domain.FeatureVector) (domain.ScalerState, error) {
	if len(x) != len(state.Mean) || len(state.M2) != len(state.Mean) {
		return domain.ScalerState{}, fmt.Errorf("learn: update scaler: %w", &domain.DimensionMismatchError{Want: len(state.Mean), Got: len(x)})
	}
	next := state.Clone()
	observe(&next, x)
	return next, nil
}

// observe is one Welford step. Constant inputs leave M2 at exactly zero.
func observe(s *domain.ScalerState, x domain.FeatureVector) {
	s.Count++
	n := float64(s.Count)
	for i, v := range x {
		delta := v - s.Mean[i]
		s.Mean[i] += delta / n
		s.M2[i] += delta * (v - s.Mean[i])
	}
}

// StdDev returns the population standard deviation per dimension.
func StdDev(state domain.ScalerState) []float64 {
	out := make([]float64, len(state.M2))
	if state.Count == 0 {
		return out
	}
	n := float64(state.Count)
	for i, m2 := range state.M2 {
		out[i] = math.Sqrt(math.Max(m2/n, 0))
	}
	return out
}

// Transform standardizes x as (x - mean) / max(std, eps).
func Transform(x domain.FeatureVector, state domain.ScalerState, eps float64) (Scaled, error) {
	if state.Count == 0 {
		return Scaled{}, fmt.Errorf("learn: transform: %w", domain.ErrInsufficientData)
	}
	if len(x) != len(state.Mean) {
		return Scaled{}, fmt.Errorf("learn: transform: %w", &domain.DimensionMismatchError{Want: len(state.Mean), Got: len(x)})
	}
	if eps <= 0 {
		eps = DefaultEpsilon
	}

	std := StdDev(state)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - state.Mean[i]) / math.Max(std[i], eps)
	}
	return Scaled{values: out}, nil
}
