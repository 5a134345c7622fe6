package events

import (
	"time"

	"github.com/spec-kit/auth-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventConfirmationRequested  EventType = "email_confirmation_requested"
	EventSignInLinkRequested    EventType = "sign_in_link_requested"
	EventPasswordResetRequested EventType = "password_reset_requested"
	EventEmailChangeRequested   EventType = "email_change_requested"
)

// MailEventTypes lists every event that results in an outbound email.
var MailEventTypes = []EventType{
	EventConfirmationRequested,
	EventSignInLinkRequested,
	EventPasswordResetRequested,
	EventEmailChangeRequested,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SubjectID string      `json:"subject_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// MailPayload carries what is needed to render a link email. Token is a
// bearer credential and must not be logged.
type MailPayload struct {
	Recipient string              `json:"recipient"`
	Token     string              `json:"-"`
	Purpose   domain.TokenPurpose `json:"purpose"`
	// FirstSignIn marks a sign-in link sent to a freshly created identity.
	FirstSignIn bool `json:"first_sign_in,omitempty"`
}
