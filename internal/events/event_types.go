package events

import (
	"time"

	"github.com/fieldops/auth-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAccountRegistered      EventType = "account_registered"
	EventPasswordChanged        EventType = "password_changed"
	EventPasswordResetRequested EventType = "password_reset_requested"
	EventPhoneLinked            EventType = "phone_linked"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	AccountID string      `json:"account_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// AccountRegisteredPayload payload.
type AccountRegisteredPayload struct {
	Role    domain.Role `json:"role"`
	Channel string      `json:"channel"`
}

// PasswordChangedPayload payload.
type PasswordChangedPayload struct {
	Email string `json:"email,omitempty"`
	Reset bool   `json:"reset"`
}

// PasswordResetRequestedPayload carries what the mailer needs to deliver a reset link.
type PasswordResetRequestedPayload struct {
	Email     string    `json:"email"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PhoneLinkedPayload payload.
type PhoneLinkedPayload struct {
	Phone string `json:"phone"`
}
