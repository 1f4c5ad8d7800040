package learn

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/ewilliams-labs/persona/internal/core/domain"
)

func vec(vals ...float64) domain.FeatureVector {
	return domain.FeatureVector(vals)
}

func floatEquals(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestFitScaler(t *testing.T) {
	tests := []struct {
		name     string
		batch    []domain.FeatureVector
		wantErr  error
		wantMean []float64
		wantStd  []float64
	}{
		{
			name:    "empty batch",
			batch:   nil,
			wantErr: domain.ErrInsufficientData,
		},
		{
			name:    "ragged batch",
			batch:   []domain.FeatureVector{vec(1, 2), vec(1)},
			wantErr: domain.ErrDimensionMismatch,
		},
		{
			name:     "population statistics",
			batch:    []domain.FeatureVector{vec(1, 10), vec(3, 10), vec(5, 10)},
			wantMean: []float64{3, 10},
			wantStd:  []float64{math.Sqrt(8.0 / 3.0), 0},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := FitScaler(tc.batch)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Count != int64(len(tc.batch)) {
				t.Fatalf("count: got %d, want %d", got.Count, len(tc.batch))
			}
			std := StdDev(got)
			for i := range tc.wantMean {
				if !floatEquals(got.Mean[i], tc.wantMean[i], 1e-12) {
					t.Fatalf("mean[%d]: got %v, want %v", i, got.Mean[i], tc.wantMean[i])
				}
				if !floatEquals(std[i], tc.wantStd[i], 1e-12) {
					t.Fatalf("std[%d]: got %v, want %v", i, std[i], tc.wantStd[i])
				}
			}
		})
	}
}

func TestUpdateScaler_MatchesBatchFit(t *testing.T) {
	batch := []domain.FeatureVector{vec(0.2, 120), vec(0.8, 95), vec(0.5, 140), vec(0.1, 60), vec(0.9, 180)}

	full, err := FitScaler(batch)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	inc, err := FitScaler(batch[:1])
	if err != nil {
		t.Fatalf("fit first: %v", err)
	}
	for _, x := range batch[1:] {
		before := inc.Count
		inc, err = UpdateScaler(inc, x)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if inc.Count != before+1 {
			t.Fatalf("count: got %d, want %d", inc.Count, before+1)
		}
	}

	for i := range full.Mean {
		if !floatEquals(full.Mean[i], inc.Mean[i], 1e-9) || !floatEquals(full.M2[i], inc.M2[i], 1e-9) {
			t.Fatalf("dim %d: batch %v/%v, incremental %v/%v", i, full.Mean[i], full.M2[i], inc.Mean[i], inc.M2[i])
		}
	}
}

func TestUpdateScaler_DoesNotMutateInput(t *testing.T) {
	state, err := FitScaler([]domain.FeatureVector{vec(1, 2)})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	snapshot := state.Clone()

	if _, err := UpdateScaler(state, vec(5, 7)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !reflect.DeepEqual(state, snapshot) {
		t.Fatalf("input state mutated: %+v", state)
	}

	if _, err := UpdateScaler(state, vec(1)); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestTransform_ConstantDimensionIsZero(t *testing.T) {
	for _, reps := range []int{1, 2, 10, 1000} {
		batch := make([]domain.FeatureVector, 0, reps)
		for i := 0; i < reps; i++ {
			batch = append(batch, vec(0.42, float64(i)))
		}
		state, err := FitScaler(batch)
		if err != nil {
			t.Fatalf("fit: %v", err)
		}
		for i := 0; i < 5; i++ {
			state, err = UpdateScaler(state, vec(0.42, float64(i)))
			if err != nil {
				t.Fatalf("update: %v", err)
			}
		}

		got, err := Transform(vec(0.42, 3), state, DefaultEpsilon)
		if err != nil {
			t.Fatalf("transform: %v", err)
		}
		v := got.Values()
		if v[0] != 0 || math.IsNaN(v[1]) || math.IsInf(v[1], 0) {
			t.Fatalf("reps=%d: constant dimension gave %v", reps, v)
		}
	}
}

func TestTransform_Errors(t *testing.T) {
	if _, err := Transform(vec(1), domain.ScalerState{}, 0); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected insufficient data, got %v", err)
	}
	state, _ := FitScaler([]domain.FeatureVector{vec(1, 2)})
	if _, err := Transform(vec(1, 2, 3), state, 0); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestScore_ZeroModelIsNeutral(t *testing.T) {
	m := InitModel(3)
	p, err := Score(Scaled{values: []float64{1, -2, 3}}, m)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if p != 0.5 {
		t.Fatalf("expected 0.5, got %v", p)
	}
	if _, err := Score(Scaled{values: []float64{1}}, m); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestUpdateModel_MovesTowardLabel(t *testing.T) {
	x := Scaled{values: []float64{0.5, -1.2, 2.0, 0.3}}
	tests := []struct {
		name  string
		label domain.Label
		lower bool
	}{
		{name: "dislike lowers score", label: domain.Dislike, lower: true},
		{name: "like raises score", label: domain.Like, lower: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := InitModel(4)
			m.Weights = []float64{0.3, 0.1, -0.2, 0.05}
			before, _ := Score(x, m)

			next, err := UpdateModel(x, tc.label, m, DefaultParams())
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			after, _ := Score(x, next)

			if tc.lower && !(after < before) {
				t.Fatalf("expected score to drop: before %v after %v", before, after)
			}
			if !tc.lower && !(after > before) {
				t.Fatalf("expected score to rise: before %v after %v", before, after)
			}
			if next.Iterations != m.Iterations+1 {
				t.Fatalf("iterations: got %d", next.Iterations)
			}
			if m.Weights[0] != 0.3 {
				t.Fatalf("input model mutated")
			}
		})
	}
}

func TestUpdateModel_StepIsBounded(t *testing.T) {
	p := DefaultParams()
	m := InitModel(3)
	outlier := Scaled{values: []float64{1e9, -1e9, 1e9}}

	next, err := UpdateModel(outlier, domain.Like, m, p)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	var step float64
	for i := range next.Weights {
		d := next.Weights[i] - m.Weights[i]
		step += d * d
	}
	step += (next.Bias - m.Bias) * (next.Bias - m.Bias)
	step = math.Sqrt(step)

	if step > p.LearningRate*p.GradClip+1e-12 {
		t.Fatalf("step %v exceeds bound %v", step, p.LearningRate*p.GradClip)
	}
	if step == 0 {
		t.Fatalf("expected a non-zero step")
	}
	for _, w := range next.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			t.Fatalf("weights diverged: %v", next.Weights)
		}
	}
}

func TestUpdateModel_DimensionMismatch(t *testing.T) {
	_, err := UpdateModel(Scaled{values: []float64{1, 2}}, domain.Like, InitModel(3), DefaultParams())
	var dm *domain.DimensionMismatchError
	if !errors.As(err, &dm) {
		t.Fatalf("expected *DimensionMismatchError, got %v", err)
	}
	if dm.Want != 3 || dm.Got != 2 {
		t.Fatalf("unexpected mismatch detail: %+v", dm)
	}
}

func TestParams_Rate(t *testing.T) {
	p := Params{LearningRate: 0.1, Decay: 1, MinLearningRate: 0.01}
	if got := p.Rate(0); got != 0.1 {
		t.Fatalf("rate(0): got %v", got)
	}
	if got := p.Rate(1); !floatEquals(got, 0.05, 1e-12) {
		t.Fatalf("rate(1): got %v", got)
	}
	if got := p.Rate(1_000_000); got != 0.01 {
		t.Fatalf("rate floor: got %v", got)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a, err := Generate(50, 7)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := Generate(50, 7)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed produced different sequences")
	}

	c, _ := Generate(50, 8)
	if reflect.DeepEqual(a, c) {
		t.Fatalf("different seeds produced identical sequences")
	}
}

func TestGenerate_BalancedAndInRange(t *testing.T) {
	for _, n := range []int{2, 10, 200} {
		examples, err := Generate(n, 42)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(examples) != n {
			t.Fatalf("len: got %d, want %d", len(examples), n)
		}

		likes := 0
		for _, ex := range examples {
			if ex.Label == domain.Like {
				likes++
			}
			if err := ex.Features.Validate(); err != nil {
				t.Fatalf("invalid vector: %v", err)
			}
			for j, d := range domain.Descriptors {
				v := ex.Features[j]
				if v < d.Lo || v > d.Hi {
					t.Fatalf("%s out of band: %v", d.Name, v)
				}
				if d.Discrete && v != math.Trunc(v) {
					t.Fatalf("%s should be integral: %v", d.Name, v)
				}
			}
		}
		if likes != n/2 {
			t.Fatalf("n=%d: likes %d, want %d", n, likes, n/2)
		}
	}
}

func TestGenerate_RejectsNonPositive(t *testing.T) {
	for _, n := range []int{0, -3} {
		if _, err := Generate(n, 1); !errors.Is(err, domain.ErrInsufficientData) {
			t.Fatalf("n=%d: expected insufficient data, got %v", n, err)
		}
	}
}
