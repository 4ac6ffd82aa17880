package database

import (
	"context"
	"encoding/json"
	"fmt"

	"filetree-server/internal/models"
)

const maxEventsPerPage = 100

func (q *Queries) LogEvent(ctx context.Context, userID int64, eventBytes []byte, eventType string) error {
	query := `INSERT INTO event_journal (user_id, event_type, payload) VALUES ($1, $2, $3)`
	_, err := q.db.Exec(ctx, query, userID, eventType, eventBytes)
	return translate(err, "event")
}

func (q *Queries) GetEventsSince(ctx context.Context, userID int64, sinceID int64) ([]models.Event, error) {
	query := `
		SELECT id, event_type, event_time, payload
		FROM event_journal
		WHERE user_id = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`
	rows, err := q.db.Query(ctx, query, userID, sinceID, maxEventsPerPage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.EventType, &e.EventTime, &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Publish journals the event and then pushes it to the user's live connections.
func (s *Store) Publish(ctx context.Context, userID int64, eventType string, payload any) error {
	eventBytes, err := json.Marshal(map[string]any{
		"event_type": eventType,
		"payload":    payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	if err := s.LogEvent(ctx, userID, eventBytes, eventType); err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.PublishEvent(userID, eventBytes)
	}
	return nil
}
