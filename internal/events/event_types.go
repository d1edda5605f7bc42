package events

import (
	"time"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketEscalated       EventType = "ticket_escalated"
	EventTicketVoted           EventType = "ticket_voted"
	EventTimelineEventAdded    EventType = "timeline_event_added"
	EventCommissionerResponded EventType = "commissioner_responded"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	AuthorityID string          `json:"authority_id"`
	Severity    domain.Severity `json:"severity"`
	Title       string          `json:"title"`
	Address     string          `json:"address"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	OldSeverity domain.Severity `json:"old_severity"`
	NewSeverity domain.Severity `json:"new_severity"`
	AgeMinutes  int64           `json:"age_minutes"`
}

// TicketVotedPayload payload.
type TicketVotedPayload struct {
	Votes int `json:"votes"`
}

// TimelineEventAddedPayload payload.
type TimelineEventAddedPayload struct {
	Title string `json:"title"`
	Icon  string `json:"icon"`
}

// CommissionerRespondedPayload payload.
type CommissionerRespondedPayload struct {
	Preview string `json:"preview"`
}
