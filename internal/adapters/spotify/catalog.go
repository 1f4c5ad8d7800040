package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ewilliams-labs/persona/internal/core/domain"
	"github.com/ewilliams-labs/persona/internal/core/ports"
)

const (
	defaultLimit = 20
	maxLimit     = 50
)

var errEmptyQuery = errors.New("spotify adapter: candidate query needs a search string, an artist or genres")

// discoveryEras are the release windows a discovery page sweeps, newest
// first. The empty filter lets the catalog pick across all years.
var discoveryEras = []string{"", "year:2020-2029", "year:2010-2019", "year:2000-2009"}

// Candidates returns one page of tracks with audio descriptors. An artist
// without a search string pages through that artist's top tracks, genres
// alone produce a discovery page, and otherwise the search string is used,
// narrowed to the artist when one is given.
func (c *Client) Candidates(ctx context.Context, q ports.CandidateQuery) ([]domain.Track, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	offset := max(q.Offset, 0)

	query := cleanSearchQuery(q.Query)
	artist := strings.TrimSpace(q.Artist)

	var (
		tracks []spotifyTrack
		err    error
	)
	switch {
	case query == "" && artist == "" && len(q.Genres) == 0:
		return nil, errEmptyQuery
	case query == "" && artist == "":
		tracks, err = c.discover(ctx, q.Genres, limit, offset)
		if err != nil {
			return nil, err
		}
	case query == "":
		tracks, err = c.artistTopTracks(ctx, artist)
		if err != nil {
			return nil, err
		}
		tracks = page(tracks, offset, limit)
	default:
		if artist != "" {
			query = fmt.Sprintf("%s artist:%q", query, artist)
		}
		tracks, err = c.searchTracks(ctx, query, limit, offset)
		if err != nil {
			return nil, err
		}
	}

	out := c.withFeatures(ctx, tracks)
	c.logger.Debug().
		Str("query", query).
		Str("artist", artist).
		Strs("genres", q.Genres).
		Int("offset", offset).
		Int("tracks", len(out)).
		Msg("fetched candidate page")
	return out, nil
}

// discover fills one page from small searches over every era and genre
// pair, era by era so each genre is represented before any gets a second
// slot. Duplicates keep their first position. A failed search is skipped
// unless nothing at all was found.
func (c *Client) discover(ctx context.Context, genres []string, limit, offset int) ([]spotifyTrack, error) {
	terms := make([]string, 0, len(genres))
	for _, g := range genres {
		if g = cleanWords(strings.ToLower(g)); g != "" {
			terms = append(terms, "genre:"+quoteIfPhrase(g))
		}
	}
	if len(terms) == 0 {
		return nil, errEmptyQuery
	}

	perSearch := max(1, limit/len(terms))
	searchOffset := (offset / limit) * perSearch

	var (
		out     = make([]spotifyTrack, 0, limit)
		seen    = make(map[string]struct{}, limit)
		lastErr error
	)
	for _, era := range discoveryEras {
		for _, term := range terms {
			if len(out) >= limit {
				return out, nil
			}
			query := strings.TrimSpace(term + " " + era)
			found, err := c.searchTracks(ctx, query, perSearch, searchOffset)
			if err != nil {
				lastErr = err
				c.logger.Warn().Err(err).Str("query", query).Msg("discovery search failed")
				continue
			}
			for _, t := range found {
				if _, dup := seen[t.ID]; dup || t.ID == "" {
					continue
				}
				seen[t.ID] = struct{}{}
				out = append(out, t)
				if len(out) >= limit {
					break
				}
			}
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

func (c *Client) searchTracks(ctx context.Context, query string, limit, offset int) ([]spotifyTrack, error) {
	u, err := c.endpoint("/search", url.Values{
		"q":      {query},
		"type":   {"track"},
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
		"market": {c.market},
	})
	if err != nil {
		return nil, err
	}

	var body searchTracksResponse
	if err := c.getJSON(ctx, "search", u, &body); err != nil {
		return nil, err
	}
	return body.Tracks.Items, nil
}

// artistTopTracks resolves the artist by name and returns their top tracks
// (the API caps this at 10).
func (c *Client) artistTopTracks(ctx context.Context, artistName string) ([]spotifyTrack, error) {
	artist, err := c.searchArtist(ctx, artistName)
	if err != nil {
		return nil, fmt.Errorf("spotify adapter: failed to find artist %q: %w", artistName, err)
	}

	u, err := c.endpoint("/artists/"+url.PathEscape(artist.ID)+"/top-tracks", url.Values{"market": {c.market}})
	if err != nil {
		return nil, err
	}
	var body topTracksResponse
	if err := c.getJSON(ctx, "top-tracks", u, &body); err != nil {
		return nil, fmt.Errorf("spotify adapter: failed to get top tracks for artist %q: %w", artistName, err)
	}
	return body.Tracks, nil
}

func (c *Client) searchArtist(ctx context.Context, artistName string) (spotifyArtist, error) {
	u, err := c.endpoint("/search", url.Values{
		"q":      {artistName},
		"type":   {"artist"},
		"limit":  {"5"},
		"market": {c.market},
	})
	if err != nil {
		return spotifyArtist{}, err
	}

	var body searchArtistsResponse
	if err := c.getJSON(ctx, "search-artist", u, &body); err != nil {
		return spotifyArtist{}, err
	}

	best, ok := bestArtistMatch(artistName, body.Artists.Items)
	if !ok {
		return spotifyArtist{}, domain.ErrNotFound
	}
	return best, nil
}

func page(tracks []spotifyTrack, offset, limit int) []spotifyTrack {
	if offset >= len(tracks) {
		return nil
	}
	end := min(offset+limit, len(tracks))
	return tracks[offset:end]
}
