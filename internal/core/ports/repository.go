package ports

import (
	"context"
	"time"

	"github.com/ewilliams-labs/persona/internal/core/domain"
)

// StateStore persists one EngineState per user. Load returns
// domain.ErrNotFound for a user that was never initialized.
type StateStore interface {
	Load(ctx context.Context, userID string) (domain.EngineState, error)
	Save(ctx context.Context, userID string, st domain.EngineState) error
}

// FeedbackLog is the append-only history of ratings.
type FeedbackLog interface {
	Append(ctx context.Context, ev domain.FeedbackEvent) error
	History(ctx context.Context, userID string, limit int) ([]domain.FeedbackEvent, error)
}

// TrackRepository caches catalog tracks and candidate batches.
type TrackRepository interface {
	SaveTracks(ctx context.Context, tracks []domain.Track) error
	GetTrack(ctx context.Context, id string) (domain.Track, error)
	// CachedBatch returns the tracks saved for key no longer than ttl ago,
	// or domain.ErrNotFound.
	CachedBatch(ctx context.Context, key string, ttl time.Duration) ([]domain.Track, error)
	SaveBatch(ctx context.Context, key string, tracks []domain.Track) error
	UpdateTrackFeatures(ctx context.Context, id string, f domain.AudioFeatures, src domain.FeatureSource) error
}
