package spotify

import (
	"context"
	"hash/fnv"
	"math/rand"
	"net/url"
	"strings"

	"github.com/ewilliams-labs/persona/internal/core/domain"
)

// audioFeaturesBatchSize is the API's id limit per audio-features call.
const audioFeaturesBatchSize = 100

// getAudioFeaturesBatch fetches descriptors for ids in chunks. Ids the API
// has nothing for are absent from the result.
func (c *Client) getAudioFeaturesBatch(ctx context.Context, trackIDs []string) (map[string]spotifyAudioFeatures, error) {
	result := make(map[string]spotifyAudioFeatures, len(trackIDs))
	for start := 0; start < len(trackIDs); start += audioFeaturesBatchSize {
		end := min(start+audioFeaturesBatchSize, len(trackIDs))

		u, err := c.endpoint("/audio-features", url.Values{"ids": {strings.Join(trackIDs[start:end], ",")}})
		if err != nil {
			return result, err
		}
		var body audioFeaturesResponse
		if err := c.getJSON(ctx, "audio-features", u, &body); err != nil {
			return result, err
		}
		for _, f := range body.AudioFeatures {
			if f != nil && f.ID != "" {
				result[f.ID] = *f
			}
		}
	}
	return result, nil
}

// withFeatures attaches descriptors to tracks. A failed features call is not
// fatal: affected tracks fall back to synthetic descriptors.
func (c *Client) withFeatures(ctx context.Context, tracks []spotifyTrack) []domain.Track {
	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if t.ID != "" {
			ids = append(ids, t.ID)
		}
	}

	features, err := c.getAudioFeaturesBatch(ctx, ids)
	if err != nil {
		c.logger.Warn().Err(err).Int("tracks", len(ids)).Msg("audio features unavailable, using synthetic descriptors")
	}

	out := make([]domain.Track, 0, len(ids))
	for _, st := range tracks {
		if st.ID == "" {
			continue
		}
		var f *spotifyAudioFeatures
		if feat, ok := features[st.ID]; ok {
			f = &feat
		}
		out = append(out, mapTrackToDomain(st, f))
	}
	return out
}

// generateDeterministicFeatures fills every descriptor from an RNG seeded by
// the track id, so a track always gets the same synthetic vector.
func generateDeterministicFeatures(trackID string) domain.AudioFeatures {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(trackID))
	seed := int64(hasher.Sum32())
	// #nosec G404 -- Deterministic RNG for reproducible audio features, not security-sensitive
	rng := rand.New(rand.NewSource(seed))

	between := func(min, max float64) float64 {
		return min + rng.Float64()*(max-min)
	}

	v := make(domain.FeatureVector, domain.Dimensions)
	for i, d := range domain.Descriptors {
		switch {
		case d.Discrete:
			v[i] = d.Lo + float64(rng.Intn(int(d.Hi-d.Lo)+1))
		case d.Min == 0 && d.Max == 1:
			v[i] = between(0.1, 0.9)
		default:
			v[i] = between(d.Lo, d.Hi)
		}
	}
	features, _ := domain.AudioFeaturesFrom(v)
	return features
}

// allFeaturesZero detects placeholder records the API returns for tracks it
// never analyzed.
func allFeaturesZero(f spotifyAudioFeatures) bool {
	return f.Danceability == 0 &&
		f.Energy == 0 &&
		f.Valence == 0 &&
		f.Tempo == 0 &&
		f.Instrumentalness == 0 &&
		f.Acousticness == 0 &&
		f.Speechiness == 0 &&
		f.Liveness == 0 &&
		f.Loudness == 0
}
