package spotify

import (
	"strings"

	"github.com/ewilliams-labs/persona/internal/core/domain"
)

// mapTrackToDomain flattens a wire track. A nil or all-zero features record
// is replaced by the deterministic fill and marked synthetic.
func mapTrackToDomain(st spotifyTrack, features *spotifyAudioFeatures) domain.Track {
	track := domain.Track{
		ID:          st.ID,
		Title:       st.Name,
		Artist:      fallbackIfEmpty(joinArtistNames(st.Artists, ", "), "Unknown Artist"),
		Album:       st.Album.Name,
		DurationMs:  st.DurationMs,
		Popularity:  st.Popularity,
		ISRC:        st.ExternalIDs.ISRC,
		PreviewURL:  st.PreviewURL,
		ExternalURL: st.ExternalURLs.Spotify,
	}
	if len(st.Album.Images) > 0 {
		track.CoverURL = st.Album.Images[0].URL
	}

	if features == nil || allFeaturesZero(*features) {
		track.Features = generateDeterministicFeatures(st.ID)
		track.FeatureSource = domain.SourceSynthetic
		return track
	}

	track.Features = domain.AudioFeatures{
		Danceability:     features.Danceability,
		Energy:           features.Energy,
		Key:              features.Key,
		Loudness:         features.Loudness,
		Mode:             features.Mode,
		Speechiness:      features.Speechiness,
		Acousticness:     features.Acousticness,
		Instrumentalness: features.Instrumentalness,
		Liveness:         features.Liveness,
		Valence:          features.Valence,
		Tempo:            features.Tempo,
	}
	track.FeatureSource = domain.SourceCatalog
	return track
}

func joinArtistNames(artists []spotifyArtist, sep string) string {
	parts := make([]string, 0, len(artists))
	for _, artist := range artists {
		if artist.Name != "" {
			parts = append(parts, artist.Name)
		}
	}
	return strings.Join(parts, sep)
}

func fallbackIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
