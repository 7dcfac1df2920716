package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dignitybank/dignity-be/internal/models"
	"github.com/dignitybank/dignity-be/internal/ws"
)

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	Record(ctx context.Context, eventType, level, message string, accountNumber *string) error
	RecentEvents(ctx context.Context, limit int) ([]models.Event, error)
}

// EventService keeps the durable audit feed of ledger activity and pushes
// each entry to connected activity-feed clients.
type EventService struct {
	db  *sql.DB
	hub *ws.Hub
}

// NewEventService creates a new EventService. The hub may be nil when no
// live feed is wanted (tests, one-off tools).
func NewEventService(db *sql.DB, hub *ws.Hub) *EventService {
	return &EventService{db: db, hub: hub}
}

// Record writes a new event and notifies feed subscribers.
func (s *EventService) Record(ctx context.Context, eventType, level, message string, accountNumber *string) error {
	event := models.Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Level:         level,
		Message:       message,
		AccountNumber: accountNumber,
		CreatedAt:     time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (id, type, level, message, account_number, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		event.ID, event.Type, event.Level, event.Message, event.AccountNumber, event.CreatedAt)
	if err != nil {
		return err
	}

	s.publish(event)
	return nil
}

// publish pushes the event to feed subscribers; the durable write already
// succeeded, so feed failures only get logged.
func (s *EventService) publish(event models.Event) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to encode event for the activity feed")
		return
	}
	if event.AccountNumber != nil {
		s.hub.BroadcastTo(*event.AccountNumber, payload)
		return
	}
	s.hub.Broadcast <- payload
}

// RecentEvents retrieves the most recent events, newest first.
func (s *EventService) RecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, type, level, message, account_number, created_at FROM events ORDER BY created_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var event models.Event
		if err := rows.Scan(&event.ID, &event.Type, &event.Level, &event.Message, &event.AccountNumber, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
