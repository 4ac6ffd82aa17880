package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"filetree-server/internal/clock"
	"filetree-server/internal/models"
)

// Publisher pushes encoded events to live subscribers of a user.
type Publisher interface {
	PublishEvent(userID int64, eventData []byte)
}

type journalEntry struct {
	userID int64
	event  models.Event
}

// Journal keeps the per-user event history in memory.
type Journal struct {
	mu      sync.RWMutex
	entries []journalEntry
	clock   clock.Clock
	hub     Publisher
}

func NewJournal(c clock.Clock, hub Publisher) *Journal {
	if c == nil {
		c = clock.System()
	}
	return &Journal{clock: c, hub: hub}
}

func (j *Journal) Publish(_ context.Context, userID int64, eventType string, payload any) error {
	eventBytes, err := json.Marshal(map[string]any{
		"event_type": eventType,
		"payload":    payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	j.mu.Lock()
	j.entries = append(j.entries, journalEntry{
		userID: userID,
		event: models.Event{
			ID:        int64(len(j.entries) + 1),
			EventType: eventType,
			EventTime: j.clock.Now(),
			Payload:   eventBytes,
		},
	})
	j.mu.Unlock()

	if j.hub != nil {
		j.hub.PublishEvent(userID, eventBytes)
	}
	return nil
}

func (j *Journal) GetEventsSince(_ context.Context, userID int64, sinceID int64) ([]models.Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	events := []models.Event{}
	for _, e := range j.entries {
		if e.userID == userID && e.event.ID > sinceID {
			events = append(events, e.event)
			if len(events) == 100 {
				break
			}
		}
	}
	return events, nil
}
