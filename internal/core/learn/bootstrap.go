package learn

import (
	"fmt"
	"math/rand"

	"github.com/ewilliams-labs/persona/internal/core/domain"
)

// Generate returns n synthetic examples spread over each descriptor's
// plausible band. Labels alternate like/dislike starting with like, so even n
// is exactly balanced. The same (n, seed) always yields the same sequence.
func Generate(n int, seed int64) ([]domain.LabeledExample, error) {
	if n <= 0 {
		return nil, fmt.Errorf("learn: bootstrap size %d: %w", n, domain.ErrInsufficientData)
	}

	// #nosec G404 -- Deterministic RNG for reproducible bootstrap data, not security-sensitive
	rng := rand.New(rand.NewSource(seed))

	between := func(min, max float64) float64 {
		return min + rng.Float64()*(max-min)
	}

	out := make([]domain.LabeledExample, 0, n)
	for i := 0; i < n; i++ {
		v := make(domain.FeatureVector, domain.Dimensions)
		for j, d := range domain.Descriptors {
			if d.Discrete {
				v[j] = d.Lo + float64(rng.Intn(int(d.Hi-d.Lo)+1))
				continue
			}
			v[j] = between(d.Lo, d.Hi)
		}
		label := domain.Like
		if i%2 == 1 {
			label = domain.Dislike
		}
		out = append(out, domain.LabeledExample{Features: v, Label: label})
	}
	return out, nil
}
