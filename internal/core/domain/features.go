package domain

import "math"

// Dimensions is the fixed length of every FeatureVector.
const Dimensions = 11

// Descriptor describes one audio descriptor and its natural range.
// Lo/Hi is the band synthetic data is drawn from; it may be narrower than
// Min/Max when the full range is mostly empty in real catalogs (loudness, tempo).
type Descriptor struct {
	Name     string
	Min, Max float64
	Lo, Hi   float64
	Discrete bool
}

// Descriptors lists the audio descriptors in vector order.
var Descriptors = [Dimensions]Descriptor{
	{Name: "danceability", Min: 0, Max: 1, Lo: 0, Hi: 1},
	{Name: "energy", Min: 0, Max: 1, Lo: 0, Hi: 1},
	{Name: "key", Min: 0, Max: 11, Lo: 0, Hi: 11, Discrete: true},
	{Name: "loudness", Min: -60, Max: 0, Lo: -30, Hi: -2},
	{Name: "mode", Min: 0, Max: 1, Lo: 0, Hi: 1, Discrete: true},
	{Name: "speechiness", Min: 0, Max: 1, Lo: 0, Hi: 1},
	{Name: "acousticness", Min: 0, Max: 1, Lo: 0, Hi: 1},
	{Name: "instrumentalness", Min: 0, Max: 1, Lo: 0, Hi: 1},
	{Name: "liveness", Min: 0, Max: 1, Lo: 0, Hi: 1},
	{Name: "valence", Min: 0, Max: 1, Lo: 0, Hi: 1},
	{Name: "tempo", Min: 0, Max: 250, Lo: 60, Hi: 200},
}

// FeatureVector is an ordered tuple of audio descriptors, see Descriptors.
type FeatureVector []float64

// Validate checks shape and finiteness.
func (v FeatureVector) Validate() error {
	if len(v) != Dimensions {
		return &DimensionMismatchError{Want: Dimensions, Got: len(v)}
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ErrInvalidFeature
		}
	}
	return nil
}

// Clone returns an independent copy.
func (v FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(v))
	copy(out, v)
	return out
}

// Map returns the vector keyed by descriptor name.
func (v FeatureVector) Map() map[string]float64 {
	out := make(map[string]float64, len(v))
	for i, x := range v {
		if i < Dimensions {
			out[Descriptors[i].Name] = x
		}
	}
	return out
}

// FeatureVectorFrom builds a vector from named descriptors; missing names are 0.
func FeatureVectorFrom(named map[string]float64) FeatureVector {
	v := make(FeatureVector, Dimensions)
	for i, d := range Descriptors {
		v[i] = named[d.Name]
	}
	return v
}

// AudioFeatures is the named form of a FeatureVector.
type AudioFeatures struct {
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Key              float64 `json:"key"`
	Loudness         float64 `json:"loudness"`
	Mode             float64 `json:"mode"`
	Speechiness      float64 `json:"speechiness"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Liveness         float64 `json:"liveness"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
}

// Vector flattens the features in descriptor order.
func (f AudioFeatures) Vector() FeatureVector {
	return FeatureVector{
		f.Danceability,
		f.Energy,
		f.Key,
		f.Loudness,
		f.Mode,
		f.Speechiness,
		f.Acousticness,
		f.Instrumentalness,
		f.Liveness,
		f.Valence,
		f.Tempo,
	}
}

// AudioFeaturesFrom is the inverse of AudioFeatures.Vector.
func AudioFeaturesFrom(v FeatureVector) (AudioFeatures, error) {
	if len(v) != Dimensions {
		return AudioFeatures{}, &DimensionMismatchError{Want: Dimensions, Got: len(v)}
	}
	return AudioFeatures{
		Danceability:     v[0],
		Energy:           v[1],
		Key:              v[2],
		Loudness:         v[3],
		Mode:             v[4],
		Speechiness:      v[5],
		Acousticness:     v[6],
		Instrumentalness: v[7],
		Liveness:         v[8],
		Valence:          v[9],
		Tempo:            v[10],
	}, nil
}

// Candidate pairs a track identifier with its descriptors.
type Candidate struct {
	TrackID  string
	Features FeatureVector
}
