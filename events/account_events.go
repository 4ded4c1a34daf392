package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// UserRegisteredEvent is emitted when a new account signs up.
type UserRegisteredEvent struct {
	UserID       uint      `json:"user_id"`
	Username     string    `json:"username"`
	RegisteredAt time.Time `json:"registered_at"`
}

// UserRegisteredV1 is the typed event definition for sign-ups.
// Subject: events.account.v1.user-registered
var UserRegisteredV1 = helper.EventDefinition[UserRegisteredEvent](
	"account", "UserRegistered", "v1",
)

// UserDeletedEvent is emitted when an account and its owned products are removed.
type UserDeletedEvent struct {
	UserID    uint      `json:"user_id"`
	ActorID   uint      `json:"actor_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// UserDeletedV1 is the typed event definition for account removal.
var UserDeletedV1 = helper.EventDefinition[UserDeletedEvent](
	"account", "UserDeleted", "v1",
)
