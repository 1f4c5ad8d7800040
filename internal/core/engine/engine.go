// Package engine is the recommendation state machine. It owns no I/O: a
// Session carries one user's (scaler, model, rated set) tuple and the Engine
// applies bootstrap, ranking and feedback to it in memory. Persistence is the
// caller's job (load before use, save after mutation).
package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/persona/internal/core/domain"
	"github.com/ewilliams-labs/persona/internal/core/learn"
)

// Status is the session lifecycle state.
type Status int

const (
	Uninitialized Status = iota
	Ready
)

func (s Status) String() string {
	if s == Ready {
		return "ready"
	}
	return "uninitialized"
}

// Config tunes bootstrap and learning.
type Config struct {
	BootstrapSize int          `koanf:"bootstrap_size" validate:"gt=0"`
	Seed          int64        `koanf:"seed"`
	Epsilon       float64      `koanf:"epsilon" validate:"gt=0"`
	Learn         learn.Params `koanf:"learn"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BootstrapSize: 200,
		Seed:          42,
		Epsilon:       learn.DefaultEpsilon,
		Learn:         learn.DefaultParams(),
	}
}

// Session is the per-user context object. Engine methods do not lock it:
// callers hold Lock for the span of an engine operation plus its
// persistence so one user has a single writer.
type Session struct {
	mu     sync.Mutex
	userID string
	state  domain.EngineState
	status Status
}

// NewSession returns an uninitialized session.
func NewSession(userID string) *Session {
	return &Session{userID: userID, state: domain.EngineState{Rated: domain.RatedSet{}}}
}

// RestoreSession wraps a persisted state as a ready session.
func RestoreSession(userID string, st domain.EngineState) (*Session, error) {
	s := NewSession(userID)
	if err := s.Restore(st); err != nil {
		return nil, err
	}
	return s, nil
}

// Restore installs a persisted state and marks the session ready.
func (s *Session) Restore(st domain.EngineState) error {
	if len(st.Scaler.Mean) != domain.Dimensions || len(st.Scaler.M2) != domain.Dimensions {
		return fmt.Errorf("engine: restore scaler: %w", &domain.DimensionMismatchError{Want: domain.Dimensions, Got: len(st.Scaler.Mean)})
	}
	if len(st.Model.Weights) != domain.Dimensions {
		return fmt.Errorf("engine: restore model: %w", &domain.DimensionMismatchError{Want: domain.Dimensions, Got: len(st.Model.Weights)})
	}
	if st.Rated == nil {
		st.Rated = domain.RatedSet{}
	}
	s.state = st
	s.status = Ready
	return nil
}

// Lock acquires the session for one read-modify-save cycle. Every Engine
// method and every Session accessor below expects the caller to hold it.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// Cursor returns the catalog page reached for key, zero when unseen.
func (s *Session) Cursor(key string) int { return s.state.Cursors[key] }

// SetCursor records the catalog page reached for key.
func (s *Session) SetCursor(key string, page int) {
	if s.state.Cursors == nil {
		s.state.Cursors = make(map[string]int)
	}
	s.state.Cursors[key] = page
}

// UserID returns the session owner.
func (s *Session) UserID() string { return s.userID }

// Status reports the lifecycle state.
func (s *Session) Status() Status { return s.status }

// Snapshot returns a deep copy of the state.
func (s *Session) Snapshot() domain.EngineState { return s.state.Clone() }

// Reset replaces the state with a previous snapshot, used to undo a mutation
// whose persistence failed.
func (s *Session) Reset(st domain.EngineState, status Status) {
	s.state = st
	s.status = status
}

// Ranked is one scored candidate.
type Ranked struct {
	TrackID string
	Score   float64
	// Position is the candidate's index in the input batch.
	Position int
}

// ScoreFunc maps a raw feature vector to a like probability.
type ScoreFunc func(domain.FeatureVector) (float64, error)

// Engine applies the preference-learning operations to sessions.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// New validates cfg and builds an Engine.
func New(cfg Config, logger zerolog.Logger) (*Engine, error) {
	if cfg.BootstrapSize <= 0 {
		return nil, fmt.Errorf("engine: bootstrap size must be positive, got %d", cfg.BootstrapSize)
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = learn.DefaultEpsilon
	}
	if cfg.Learn.LearningRate <= 0 || cfg.Learn.GradClip <= 0 {
		return nil, fmt.Errorf("engine: learning rate and gradient clip must be positive")
	}
	return &Engine{
		cfg:    cfg,
		logger: logger.With().Str("component", "engine").Logger(),
		now:    time.Now,
	}, nil
}

// InitializeIfAbsent bootstraps an uninitialized session and reports whether
// it did any work. A ready session is left untouched.
func (e *Engine) InitializeIfAbsent(s *Session) (bool, error) {
	if s.status == Ready {
		return false, nil
	}

	examples, err := learn.Generate(e.cfg.BootstrapSize, e.cfg.Seed)
	if err != nil {
		return false, fmt.Errorf("engine: bootstrap: %w", err)
	}

	batch := make([]domain.FeatureVector, len(examples))
	for i, ex := range examples {
		batch[i] = ex.Features
	}
	scaler, err := learn.FitScaler(batch)
	if err != nil {
		return false, fmt.Errorf("engine: bootstrap scaler: %w", err)
	}

	model := learn.InitModel(domain.Dimensions)
	for _, ex := range examples {
		x, err := learn.Transform(ex.Features, scaler, e.cfg.Epsilon)
		if err != nil {
			return false, fmt.Errorf("engine: bootstrap transform: %w", err)
		}
		model, err = learn.UpdateModel(x, ex.Label, model, e.cfg.Learn)
		if err != nil {
			return false, fmt.Errorf("engine: bootstrap model: %w", err)
		}
	}

	rated := s.state.Rated
	if rated == nil {
		rated = domain.RatedSet{}
	}
	s.state = domain.EngineState{
		Scaler:         scaler,
		Model:          model,
		Rated:          rated,
		Stats:          s.state.Stats,
		BootstrappedAt: e.now().UTC(),
		Cursors:        s.state.Cursors,
	}
	s.status = Ready

	e.logger.Debug().
		Str("user_id", s.userID).
		Int("examples", len(examples)).
		Int64("seed", e.cfg.Seed).
		Msg("bootstrapped preference model")
	return true, nil
}

// Score returns the like probability of x under the session's current state.
func (e *Engine) Score(s *Session, x domain.FeatureVector) (float64, error) {
	if s.status != Ready {
		return 0, domain.ErrNotInitialized
	}
	return e.scorer(s.state.Scaler, s.state.Model)(x)
}

// Recommend returns the unrated candidate with the highest score. Ties go to
// the candidate that appears first in the input.
func (e *Engine) Recommend(s *Session, candidates []domain.Candidate) (Ranked, error) {
	ranked, err := e.RankAll(s, candidates, 1)
	if err != nil {
		return Ranked{}, err
	}
	return ranked[0], nil
}

// RankAll returns up to k unrated candidates ordered by descending score,
// using the same tie rule as Recommend. k <= 0 returns every candidate.
func (e *Engine) RankAll(s *Session, candidates []domain.Candidate, k int) ([]Ranked, error) {
	if s.status != Ready {
		return nil, domain.ErrNotInitialized
	}
	ranked, err := Rank(candidates, s.state.Rated, e.scorer(s.state.Scaler, s.state.Model))
	if err != nil {
		return nil, err
	}
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// SubmitFeedback learns from one rating. The scaler absorbs x first and the
// model step uses the updated scaling. Either everything is applied or nothing.
func (e *Engine) SubmitFeedback(s *Session, trackID string, x domain.FeatureVector, label domain.Label) error {
	if s.status != Ready {
		return domain.ErrNotInitialized
	}
	if trackID == "" {
		return domain.ErrEmptyTrackID
	}
	if label != domain.Like && label != domain.Dislike {
		return domain.ErrInvalidLabel
	}
	if s.state.Rated.Has(trackID) {
		return &domain.DuplicateFeedbackError{TrackID: trackID}
	}
	if err := x.Validate(); err != nil {
		return fmt.Errorf("engine: feedback for %s: %w", trackID, err)
	}

	scaler, err := learn.UpdateScaler(s.state.Scaler, x)
	if err != nil {
		return fmt.Errorf("engine: feedback scaler: %w", err)
	}
	scaled, err := learn.Transform(x, scaler, e.cfg.Epsilon)
	if err != nil {
		return fmt.Errorf("engine: feedback transform: %w", err)
	}
	model, err := learn.UpdateModel(scaled, label, s.state.Model, e.cfg.Learn)
	if err != nil {
		return fmt.Errorf("engine: feedback model: %w", err)
	}

	s.state.Scaler = scaler
	s.state.Model = model
	s.state.Rated.Add(trackID)
	if label == domain.Like {
		s.state.Stats.Likes++
	} else {
		s.state.Stats.Dislikes++
	}
	return nil
}

// Skip removes trackID from future candidate pools without learning from it.
// Skipping an id that already has a decision is a no-op.
func (e *Engine) Skip(s *Session, trackID string) error {
	if s.status != Ready {
		return domain.ErrNotInitialized
	}
	if trackID == "" {
		return domain.ErrEmptyTrackID
	}
	if s.state.Rated.Has(trackID) {
		return nil
	}
	s.state.Rated.Add(trackID)
	s.state.Stats.Skips++
	return nil
}

// scorer closes over a snapshot of the scaler and model.
func (e *Engine) scorer(scaler domain.ScalerState, model domain.ModelState) ScoreFunc {
	eps := e.cfg.Epsilon
	return func(x domain.FeatureVector) (float64, error) {
		if err := x.Validate(); err != nil {
			return 0, err
		}
		scaled, err := learn.Transform(x, scaler, eps)
		if err != nil {
			return 0, err
		}
		return learn.Score(scaled, model)
	}
}

// Rank scores every candidate not in rated and orders them by descending
// score. The sort is stable, so equal scores keep input order. Repeated ids
// keep their first occurrence.
func Rank(candidates []domain.Candidate, rated domain.RatedSet, score ScoreFunc) ([]Ranked, error) {
	out := make([]Ranked, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for i, c := range candidates {
		if rated.Has(c.TrackID) {
			continue
		}
		if _, dup := seen[c.TrackID]; dup {
			continue
		}
		seen[c.TrackID] = struct{}{}

		p, err := score(c.Features)
		if err != nil {
			return nil, fmt.Errorf("engine: score %s: %w", c.TrackID, err)
		}
		out = append(out, Ranked{TrackID: c.TrackID, Score: p, Position: i})
	}
	if len(out) == 0 {
		return nil, domain.ErrNoCandidates
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, nil
}
