package domain

import (
	"maps"
	"sort"
	"strings"
	"time"
)

// Label is the binary preference signal.
type Label int

const (
	Dislike Label = 0
	Like    Label = 1
)

// ParseLabel accepts "like"/"dislike" (case-insensitive) and "1"/"0".
func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "like", "1":
		return Like, nil
	case "dislike", "0":
		return Dislike, nil
	}
	return Dislike, ErrInvalidLabel
}

func (l Label) String() string {
	if l == Like {
		return "like"
	}
	return "dislike"
}

// Target is the regression target for the label: 1 for like, 0 for dislike.
func (l Label) Target() float64 {
	if l == Like {
		return 1
	}
	return 0
}

// LabeledExample is one training observation.
type LabeledExample struct {
	Features FeatureVector
	Label    Label
}

// ScalerState holds running per-dimension statistics (Welford).
type ScalerState struct {
	Count int64     `json:"count"`
	Mean  []float64 `json:"mean"`
	M2    []float64 `json:"m2"`
}

// Clone returns a deep copy.
func (s ScalerState) Clone() ScalerState {
	return ScalerState{Count: s.Count, Mean: cloneFloats(s.Mean), M2: cloneFloats(s.M2)}
}

// ModelState holds the linear classifier parameters.
type ModelState struct {
	Weights    []float64 `json:"weights"`
	Bias       float64   `json:"bias"`
	Iterations int64     `json:"iterations"`
}

// Clone returns a deep copy.
func (m ModelState) Clone() ModelState {
	return ModelState{Weights: cloneFloats(m.Weights), Bias: m.Bias, Iterations: m.Iterations}
}

// RatedSet is the set of track ids that already received a decision.
type RatedSet map[string]struct{}

func (r RatedSet) Has(id string) bool {
	_, ok := r[id]
	return ok
}

func (r RatedSet) Add(id string) {
	r[id] = struct{}{}
}

func (r RatedSet) Len() int {
	return len(r)
}

// IDs returns the members in sorted order.
func (r RatedSet) IDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r RatedSet) Clone() RatedSet {
	out := make(RatedSet, len(r))
	for id := range r {
		out[id] = struct{}{}
	}
	return out
}

// FeedbackStats counts real user decisions. Bootstrap examples are never counted.
type FeedbackStats struct {
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
	Skips    int64 `json:"skips"`
}

// Total is the number of like/dislike decisions.
func (s FeedbackStats) Total() int64 {
	return s.Likes + s.Dislikes
}

// EngineState is the unit handed to the persistence store.
type EngineState struct {
	Scaler         ScalerState
	Model          ModelState
	Rated          RatedSet
	Stats          FeedbackStats
	BootstrappedAt time.Time
	// Cursors is the catalog page each candidate query has reached.
	Cursors map[string]int
}

// Clone returns a deep copy so callers can roll back a failed mutation.
func (s EngineState) Clone() EngineState {
	rated := s.Rated
	if rated != nil {
		rated = rated.Clone()
	}
	return EngineState{
		Scaler:         s.Scaler.Clone(),
		Model:          s.Model.Clone(),
		Rated:          rated,
		Stats:          s.Stats,
		BootstrappedAt: s.BootstrappedAt,
		Cursors:        maps.Clone(s.Cursors),
	}
}

// FeedbackEvent is one durable feedback record.
type FeedbackEvent struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	TrackID   string        `json:"track_id"`
	Label     Label         `json:"label"`
	Features  FeatureVector `json:"features"`
	CreatedAt time.Time     `json:"created_at"`
}

func cloneFloats(in []float64) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	copy(out, in)
	return out
}

func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Label) UnmarshalText(b []byte) error {
	parsed, err := ParseLabel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
