package ports

import (
	"context"

	"github.com/ewilliams-labs/persona/internal/core/domain"
)

// CandidateQuery selects one page of catalog tracks. With no Query and no
// Artist, Genres asks for a discovery page that spreads Limit tracks across
// those genres and several release eras.
type CandidateQuery struct {
	Query  string
	Artist string
	Genres []string
	Limit  int
	Offset int
}

// CatalogProvider supplies candidate tracks with their audio features.
// Tracks whose features could not be fetched carry domain.SourceSynthetic.
type CatalogProvider interface {
	Candidates(ctx context.Context, q CandidateQuery) ([]domain.Track, error)
}
