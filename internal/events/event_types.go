package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ads-users/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserCreated EventType = "user_created"
	EventUserUpdated EventType = "user_updated"
	EventUserDeleted EventType = "user_deleted"
)

// UserEventTypes lists every user lifecycle event.
var UserEventTypes = []EventType{EventUserCreated, EventUserUpdated, EventUserDeleted}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    int64       `json:"user_id"`
	Actor     string      `json:"actor,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// UserPayload is the snapshot carried by created/updated events.
type UserPayload struct {
	Username    string      `json:"username"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	Role        domain.Role `json:"role"`
	Age         int         `json:"age"`
	LocationIDs []int64     `json:"location_ids"`
}

// NewUserEvent stamps a new event for the user.
func NewUserEvent(eventType EventType, userID int64, actor string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// NewUserPayload snapshots the persisted user.
func NewUserPayload(user *domain.User) UserPayload {
	ids := make([]int64, 0, len(user.Locations))
	for _, loc := range user.Locations {
		ids = append(ids, loc.ID)
	}
	return UserPayload{
		Username:    user.Username,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Role:        user.Role,
		Age:         user.Age,
		LocationIDs: ids,
	}
}
