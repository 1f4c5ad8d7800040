package learn

import (
	"fmt"
	"math"

	"github.com/ewilliams-labs/persona/internal/core/domain"
)

// Params controls the SGD step of UpdateModel.
type Params struct {
	// LearningRate is the initial step size (eta0).
	LearningRate float64 `koanf:"learning_rate" validate:"gt=0,lte=1"`
	// Decay shrinks the step as eta0 / (1 + Decay*t).
	Decay float64 `koanf:"decay" validate:"gte=0"`
	// MinLearningRate keeps late feedback effective.
	MinLearningRate float64 `koanf:"min_learning_rate" validate:"gte=0"`
	// L2 is the weight penalty.
	L2 float64 `koanf:"l2" validate:"gte=0"`
	// GradClip bounds the L2 norm of one step's gradient (weights and bias).
	GradClip float64 `koanf:"grad_clip" validate:"gt=0"`
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		LearningRate:    0.05,
		Decay:           0.001,
		MinLearningRate: 0.001,
		L2:              1e-4,
		GradClip:        5,
	}
}

// Rate returns the step size for iteration t.
func (p Params) Rate(t int64) float64 {
	eta := p.LearningRate / (1 + p.Decay*float64(t))
	if eta < p.MinLearningRate {
		eta = p.MinLearningRate
	}
	return eta
}

// InitModel returns zero weights and bias for dim features.
func InitModel(dim int) domain.ModelState {
	return domain.ModelState{Weights: make([]float64, dim)}
}

// Logit returns w.x + b.
func Logit(x Scaled, m domain.ModelState) (float64, error) {
	if x.Len() != len(m.Weights) {
		return 0, &domain.DimensionMismatchError{Want: len(m.Weights), Got: x.Len()}
	}
	z := m.Bias
	for i, w := range m.Weights {
		z += w * x.values[i]
	}
	return z, nil
}

// Score returns the probability that x is liked.
func Score(x Scaled, m domain.ModelState) (float64, error) {
	z, err := Logit(x, m)
	if err != nil {
		return 0, fmt.Errorf("learn: score: %w", err)
	}
	return sigmoid(z), nil
}

// UpdateModel applies one L2-regularized logistic SGD step and returns the new state.
func UpdateModel(x Scaled, label domain.Label, m domain.ModelState, p Params) (domain.ModelState, error) {
	z, err := Logit(x, m)
	if err != nil {
		return domain.ModelState{}, fmt.Errorf("learn: update model: %w", err)
	}

	g := sigmoid(z) - label.Target()
	grad := make([]float64, len(m.Weights))
	norm := g * g
	for i, w := range m.Weights {
		grad[i] = g*x.values[i] + p.L2*w
		norm += grad[i] * grad[i]
	}
	norm = math.Sqrt(norm)

	scale := 1.0
	if p.GradClip > 0 && norm > p.GradClip {
		scale = p.GradClip / norm
	}
	eta := p.Rate(m.Iterations) * scale

	next := m.Clone()
	for i := range next.Weights {
		next.Weights[i] -= eta * grad[i]
	}
	next.Bias -= eta * g
	next.Iterations++
	return next, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
