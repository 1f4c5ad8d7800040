package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ewilliams-labs/persona/internal/core/domain"
)

const trackColumns = `
	t.id, t.title, t.artist, t.album, t.duration_ms, t.popularity, t.isrc,
	t.cover_url, t.preview_url, t.external_url,
	IFNULL(t.danceability, 0), IFNULL(t.energy, 0), IFNULL(t.musical_key, 0),
	IFNULL(t.loudness, 0), IFNULL(t.mode, 0), IFNULL(t.speechiness, 0),
	IFNULL(t.acousticness, 0), IFNULL(t.instrumentalness, 0), IFNULL(t.liveness, 0),
	IFNULL(t.valence, 0), IFNULL(t.tempo, 0), t.feature_source`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(row scanner) (domain.Track, error) {
	var (
		track                                 domain.Track
		album, isrc, cover, preview, external sql.NullString
		duration, popularity                  sql.NullInt64
		source                                string
	)
	f := &track.Features
	if err := row.Scan(
		&track.ID, &track.Title, &track.Artist, &album, &duration, &popularity, &isrc,
		&cover, &preview, &external,
		&f.Danceability, &f.Energy, &f.Key,
		&f.Loudness, &f.Mode, &f.Speechiness,
		&f.Acousticness, &f.Instrumentalness, &f.Liveness,
		&f.Valence, &f.Tempo, &source,
	); err != nil {
		return domain.Track{}, err
	}
	track.Album = album.String
	track.DurationMs = int(duration.Int64)
	track.Popularity = int(popularity.Int64)
	track.ISRC = isrc.String
	track.CoverURL = cover.String
	track.PreviewURL = preview.String
	track.ExternalURL = external.String
	track.FeatureSource = domain.FeatureSource(source)
	return track, nil
}

// SaveTracks upserts track metadata and features. Features refined from a
// preview are kept when the catalog still only offers synthetic ones.
func (a *Adapter) SaveTracks(ctx context.Context, tracks []domain.Track) error {
	if len(tracks) == 0 {
		return nil
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safety net: auto-rollback if we error/panic before commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tracks (
			id, title, artist, album, duration_ms, popularity, isrc, cover_url, preview_url, external_url,
			danceability, energy, musical_key, loudness, mode, speechiness,
			acousticness, instrumentalness, liveness, valence, tempo,
			feature_source, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title,
			artist=excluded.artist,
			album=excluded.album,
			duration_ms=excluded.duration_ms,
			popularity=excluded.popularity,
			isrc=excluded.isrc,
			cover_url=excluded.cover_url,
			preview_url=excluded.preview_url,
			external_url=excluded.external_url,
			updated_at=excluded.updated_at,
			danceability=CASE WHEN `+keepFeatures+` THEN tracks.danceability ELSE excluded.danceability END,
			energy=CASE WHEN `+keepFeatures+` THEN tracks.energy ELSE excluded.energy END,
			musical_key=CASE WHEN `+keepFeatures+` THEN tracks.musical_key ELSE excluded.musical_key END,
			loudness=CASE WHEN `+keepFeatures+` THEN tracks.loudness ELSE excluded.loudness END,
			mode=CASE WHEN `+keepFeatures+` THEN tracks.mode ELSE excluded.mode END,
			speechiness=CASE WHEN `+keepFeatures+` THEN tracks.speechiness ELSE excluded.speechiness END,
			acousticness=CASE WHEN `+keepFeatures+` THEN tracks.acousticness ELSE excluded.acousticness END,
			instrumentalness=CASE WHEN `+keepFeatures+` THEN tracks.instrumentalness ELSE excluded.instrumentalness END,
			liveness=CASE WHEN `+keepFeatures+` THEN tracks.liveness ELSE excluded.liveness END,
			valence=CASE WHEN `+keepFeatures+` THEN tracks.valence ELSE excluded.valence END,
			tempo=CASE WHEN `+keepFeatures+` THEN tracks.tempo ELSE excluded.tempo END,
			feature_source=CASE WHEN `+keepFeatures+` THEN tracks.feature_source ELSE excluded.feature_source END;
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare track upsert: %w", err)
	}
	defer stmt.Close()

	now := a.now().UnixNano()
	for _, t := range tracks {
		src := t.FeatureSource
		if src == "" {
			src = domain.SourceCatalog
		}
		f := t.Features
		if _, err := stmt.ExecContext(
			ctx,
			t.ID, t.Title, t.Artist, t.Album, t.DurationMs, t.Popularity, t.ISRC,
			t.CoverURL, t.PreviewURL, t.ExternalURL,
			f.Danceability, f.Energy, f.Key, f.Loudness, f.Mode, f.Speechiness,
			f.Acousticness, f.Instrumentalness, f.Liveness, f.Valence, f.Tempo,
			string(src), now,
		); err != nil {
			return fmt.Errorf("failed to save track %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transaction commit failed: %w", err)
	}
	return nil
}

// keepFeatures is true when the stored row was refined from a preview and the
// incoming row is only synthetic.
const keepFeatures = `(tracks.feature_source = 'preview' AND excluded.feature_source = 'synthetic')`

// GetTrack returns one cached track, or domain.ErrNotFound.
func (a *Adapter) GetTrack(ctx context.Context, id string) (domain.Track, error) {
	row := a.db.QueryRowContext(ctx, "SELECT "+trackColumns+" FROM tracks t WHERE t.id = ?", id)
	track, err := scanTrack(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Track{}, domain.ErrNotFound
		}
		return domain.Track{}, fmt.Errorf("failed to load track: %w", err)
	}
	return track, nil
}

// CachedBatch returns the tracks stored under key, in catalog order,
// when the batch is younger than ttl. Otherwise domain.ErrNotFound.
func (a *Adapter) CachedBatch(ctx context.Context, key string, ttl time.Duration) ([]domain.Track, error) {
	cutoff := a.now().Add(-ttl).UnixNano()
	rows, err := a.db.QueryContext(ctx, `
		SELECT `+trackColumns+`
		FROM catalog_batches b
		JOIN tracks t ON t.id = b.track_id
		WHERE b.batch_key = ? AND b.fetched_at >= ?
		ORDER BY b.position ASC
	`, key, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch: %w", err)
	}
	defer rows.Close()

	var tracks []domain.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch track: %w", err)
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate batch: %w", err)
	}
	if len(tracks) == 0 {
		return nil, domain.ErrNotFound
	}
	return tracks, nil
}

// SaveBatch records the ordered track ids of one catalog page. The tracks
// must already be saved.
func (a *Adapter) SaveBatch(ctx context.Context, key string, tracks []domain.Track) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safety net: auto-rollback if we error/panic before commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM catalog_batches WHERE batch_key = ?", key); err != nil {
		return fmt.Errorf("failed to clear batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalog_batches (batch_key, position, track_id, fetched_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	now := a.now().UnixNano()
	for i, t := range tracks {
		if _, err := stmt.ExecContext(ctx, key, i, t.ID, now); err != nil {
			return fmt.Errorf("failed to link batch track %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transaction commit failed: %w", err)
	}
	return nil
}

// UpdateTrackFeatures overwrites all descriptors of a track.
func (a *Adapter) UpdateTrackFeatures(ctx context.Context, trackID string, f domain.AudioFeatures, src domain.FeatureSource) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE tracks
		SET
			danceability = ?,
			energy = ?,
			musical_key = ?,
			loudness = ?,
			mode = ?,
			speechiness = ?,
			acousticness = ?,
			instrumentalness = ?,
			liveness = ?,
			valence = ?,
			tempo = ?,
			feature_source = ?,
			updated_at = ?
		WHERE id = ?
	`,
		f.Danceability, f.Energy, f.Key, f.Loudness, f.Mode, f.Speechiness,
		f.Acousticness, f.Instrumentalness, f.Liveness, f.Valence, f.Tempo,
		string(src), a.now().UnixNano(), trackID,
	)
	if err != nil {
		return fmt.Errorf("failed to update track features: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
