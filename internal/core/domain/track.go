package domain

// FeatureSource records where a track's audio descriptors came from.
type FeatureSource string

const (
	// SourceCatalog means the descriptors came from the catalog's audio-features endpoint.
	SourceCatalog FeatureSource = "catalog"
	// SourceSynthetic means the catalog had no descriptors and a deterministic fill was used.
	SourceSynthetic FeatureSource = "synthetic"
	// SourcePreview means synthetic descriptors were refined by analyzing the preview clip.
	SourcePreview FeatureSource = "preview"
)

// Track represents a musical track in the domain layer.
type Track struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Artist        string        `json:"artist"`
	Album         string        `json:"album,omitempty"`
	DurationMs    int           `json:"duration_ms,omitempty"`
	Popularity    int           `json:"popularity,omitempty"`
	ISRC          string        `json:"isrc,omitempty"` // International Standard Recording Code
	CoverURL      string        `json:"cover_url,omitempty"`
	PreviewURL    string        `json:"preview_url,omitempty"`
	ExternalURL   string        `json:"external_url,omitempty"`
	Features      AudioFeatures `json:"features"`
	FeatureSource FeatureSource `json:"feature_source,omitempty"`
}

// Candidate returns the (id, vector) pair the engine scores.
func (t Track) Candidate() Candidate {
	return Candidate{TrackID: t.ID, Features: t.Features.Vector()}
}

// Candidates converts a batch of tracks, preserving order.
func Candidates(tracks []Track) []Candidate {
	out := make([]Candidate, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.Candidate())
	}
	return out
}
