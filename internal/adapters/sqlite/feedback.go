package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/persona/internal/core/domain"
)

// Append stores one feedback event.
func (a *Adapter) Append(ctx context.Context, ev domain.FeedbackEvent) error {
	features, err := json.Marshal(ev.Features)
	if err != nil {
		return fmt.Errorf("failed to encode feedback features: %w", err)
	}
	if _, err := a.db.ExecContext(ctx, `
		INSERT INTO feedback_events (id, user_id, track_id, label, features, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.UserID, ev.TrackID, int(ev.Label), string(features), ev.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to append feedback: %w", err)
	}
	return nil
}

// History returns up to limit events for userID, newest first.
func (a *Adapter) History(ctx context.Context, userID string, limit int) ([]domain.FeedbackEvent, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, user_id, track_id, label, features, created_at
		FROM feedback_events
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback history: %w", err)
	}
	defer rows.Close()

	events := []domain.FeedbackEvent{}
	for rows.Next() {
		var (
			ev       domain.FeedbackEvent
			label    int
			features string
			created  int64
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.TrackID, &label, &features, &created); err != nil {
			return nil, fmt.Errorf("failed to scan feedback event: %w", err)
		}
		if err := json.Unmarshal([]byte(features), &ev.Features); err != nil {
			return nil, fmt.Errorf("failed to decode feedback features: %w", err)
		}
		ev.Label = domain.Label(label)
		ev.CreatedAt = time.Unix(0, created).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback history: %w", err)
	}
	return events, nil
}
