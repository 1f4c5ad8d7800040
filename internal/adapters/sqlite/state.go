package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/persona/internal/core/domain"
)

// Load returns the persisted engine state, or domain.ErrNotFound.
func (a *Adapter) Load(ctx context.Context, userID string) (domain.EngineState, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT scaler_count, scaler_mean, scaler_m2, weights, bias, iterations,
			likes, dislikes, skips, bootstrapped_at
		FROM engine_state WHERE user_id = ?
	`, userID)

	var (
		st                  domain.EngineState
		mean, m2, weights   string
		bootstrappedAtNanos int64
	)
	if err := row.Scan(
		&st.Scaler.Count,
		&mean,
		&m2,
		&weights,
		&st.Model.Bias,
		&st.Model.Iterations,
		&st.Stats.Likes,
		&st.Stats.Dislikes,
		&st.Stats.Skips,
		&bootstrappedAtNanos,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.EngineState{}, domain.ErrNotFound
		}
		return domain.EngineState{}, fmt.Errorf("failed to load engine state: %w", err)
	}

	for _, col := range []struct {
		raw string
		dst *[]float64
	}{
		{mean, &st.Scaler.Mean},
		{m2, &st.Scaler.M2},
		{weights, &st.Model.Weights},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return domain.EngineState{}, fmt.Errorf("failed to decode engine state vector: %w", err)
		}
	}
	st.BootstrappedAt = time.Unix(0, bootstrappedAtNanos).UTC()

	rows, err := a.db.QueryContext(ctx, "SELECT track_id FROM rated_tracks WHERE user_id = ?", userID)
	if err != nil {
		return domain.EngineState{}, fmt.Errorf("failed to load rated tracks: %w", err)
	}
	defer rows.Close()

	st.Rated = domain.RatedSet{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return domain.EngineState{}, fmt.Errorf("failed to scan rated track: %w", err)
		}
		st.Rated.Add(id)
	}
	if err := rows.Err(); err != nil {
		return domain.EngineState{}, fmt.Errorf("failed to iterate rated tracks: %w", err)
	}

	cursors, err := a.loadCursors(ctx, userID)
	if err != nil {
		return domain.EngineState{}, err
	}
	st.Cursors = cursors

	return st, nil
}

// loadCursors returns nil when the user has not paged past any first batch.
func (a *Adapter) loadCursors(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := a.db.QueryContext(ctx, "SELECT cursor_key, page FROM catalog_cursors WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog cursors: %w", err)
	}
	defer rows.Close()

	var cursors map[string]int
	for rows.Next() {
		var (
			key  string
			page int
		)
		if err := rows.Scan(&key, &page); err != nil {
			return nil, fmt.Errorf("failed to scan catalog cursor: %w", err)
		}
		if cursors == nil {
			cursors = make(map[string]int)
		}
		cursors[key] = page
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate catalog cursors: %w", err)
	}
	return cursors, nil
}

// Save replaces the user's engine state, rated set and catalog cursors in one
// transaction.
func (a *Adapter) Save(ctx context.Context, userID string, st domain.EngineState) error {
	mean, err := json.Marshal(st.Scaler.Mean)
	if err != nil {
		return fmt.Errorf("failed to encode scaler mean: %w", err)
	}
	m2, err := json.Marshal(st.Scaler.M2)
	if err != nil {
		return fmt.Errorf("failed to encode scaler m2: %w", err)
	}
	weights, err := json.Marshal(st.Model.Weights)
	if err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safety net: auto-rollback if we error/panic before commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO engine_state (
			user_id, scaler_count, scaler_mean, scaler_m2, weights, bias, iterations,
			likes, dislikes, skips, bootstrapped_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			scaler_count=excluded.scaler_count,
			scaler_mean=excluded.scaler_mean,
			scaler_m2=excluded.scaler_m2,
			weights=excluded.weights,
			bias=excluded.bias,
			iterations=excluded.iterations,
			likes=excluded.likes,
			dislikes=excluded.dislikes,
			skips=excluded.skips,
			bootstrapped_at=excluded.bootstrapped_at,
			updated_at=excluded.updated_at;
	`,
		userID,
		st.Scaler.Count,
		string(mean),
		string(m2),
		string(weights),
		st.Model.Bias,
		st.Model.Iterations,
		st.Stats.Likes,
		st.Stats.Dislikes,
		st.Stats.Skips,
		st.BootstrappedAt.UnixNano(),
		a.now().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to save engine state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM rated_tracks WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to clear rated tracks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO rated_tracks (user_id, track_id) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare rated insert: %w", err)
	}
	defer stmt.Close()

	for _, id := range st.Rated.IDs() {
		if _, err := stmt.ExecContext(ctx, userID, id); err != nil {
			return fmt.Errorf("failed to save rated track %s: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM catalog_cursors WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to clear catalog cursors: %w", err)
	}
	for key, page := range st.Cursors {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO catalog_cursors (user_id, cursor_key, page) VALUES (?, ?, ?)",
			userID, key, page,
		); err != nil {
			return fmt.Errorf("failed to save catalog cursor %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transaction commit failed: %w", err)
	}
	return nil
}
