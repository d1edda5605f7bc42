package domain

import (
	"fmt"
	"strings"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "Open"
	TicketStatusSubmitted  TicketStatus = "Submitted"
	TicketStatusInProgress TicketStatus = "In Progress"
	TicketStatusResolved   TicketStatus = "Resolved"
	TicketStatusEscalated  TicketStatus = "Escalated"
)

// TicketStatuses lists every status in lifecycle order.
var TicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusSubmitted,
	TicketStatusInProgress,
	TicketStatusResolved,
	TicketStatusEscalated,
}

// Valid reports whether s is one of the enumerated statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusSubmitted, TicketStatusInProgress, TicketStatusResolved, TicketStatusEscalated:
		return true
	}
	return false
}

// ParseTicketStatus accepts the stored form and the compact "InProgress" spelling.
func ParseTicketStatus(raw string) (TicketStatus, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "")
	for _, s := range TicketStatuses {
		if strings.ReplaceAll(strings.ToLower(string(s)), " ", "") == normalized {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown ticket status %q", raw)
}

// Severity is the ordered urgency scale used for routing and escalation.
type Severity string

const (
	SeverityLow       Severity = "Low"
	SeverityMedium    Severity = "Medium"
	SeverityHigh      Severity = "High"
	SeverityEmergency Severity = "Emergency"
)

// Severities lists every severity from lowest to highest.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityEmergency}

// Rank orders severities; unknown values rank below Low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityEmergency:
		return 4
	}
	return 0
}

// Valid reports whether s is one of the enumerated severities.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// AtLeast reports whether s is ranked at or above other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ParseSeverity matches case-insensitively.
func ParseSeverity(raw string) (Severity, error) {
	trimmed := strings.TrimSpace(raw)
	for _, s := range Severities {
		if strings.EqualFold(string(s), trimmed) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown severity %q", raw)
}

// Coordinates is a WGS84 point. The zero value is the "unknown location" sentinel.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether c is the (0,0) sentinel.
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

// AIAnalysis captures what the detection stage reported.
type AIAnalysis struct {
	DetectedObjects  []string `json:"detectedObjects"`
	Confidence       float64  `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
	DetectedSeverity Severity `json:"detectedSeverity,omitempty"`
}

// Drafts is the generated outreach text. Written once, by the pipeline.
type Drafts struct {
	EmailSubject    string `json:"emailSubject"`
	EmailBody       string `json:"emailBody"`
	WhatsappMessage string `json:"whatsappMessage"`
}

// Ticket is the aggregate for a reported civic issue. Timestamps are epoch milliseconds.
type Ticket struct {
	ID                   string          `json:"id"`
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	ImageURL             string          `json:"imageUrl,omitempty"`
	Severity             Severity        `json:"severity"`
	Status               TicketStatus    `json:"status"`
	Location             Coordinates     `json:"location"`
	Address              string          `json:"address"`
	CreatedAt            int64           `json:"createdAt"`
	UpdatedAt            int64           `json:"updatedAt"`
	Votes                int             `json:"votes"`
	AuthorityID          string          `json:"authorityId"`
	AIAnalysis           *AIAnalysis     `json:"aiAnalysis,omitempty"`
	Drafts               *Drafts         `json:"drafts,omitempty"`
	Timeline             []TimelineEvent `json:"timeline"`
	CommissionerResponse string          `json:"commissionerResponse,omitempty"`
}

// Clone returns a deep copy so callers can derive a new value without touching shared state.
func (t Ticket) Clone() Ticket {
	out := t
	if t.AIAnalysis != nil {
		analysis := *t.AIAnalysis
		analysis.DetectedObjects = append([]string(nil), t.AIAnalysis.DetectedObjects...)
		out.AIAnalysis = &analysis
	}
	if t.Drafts != nil {
		drafts := *t.Drafts
		out.Drafts = &drafts
	}
	out.Timeline = append([]TimelineEvent(nil), t.Timeline...)
	return out
}

// WithEvent returns a copy with event prepended to the timeline.
func (t Ticket) WithEvent(event TimelineEvent) Ticket {
	out := t.Clone()
	out.Timeline = append([]TimelineEvent{event}, t.Timeline...)
	return out
}

// Validate checks the persisted-ticket invariants.
func (t Ticket) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("ticket id required")
	}
	if len(t.Timeline) == 0 {
		return fmt.Errorf("ticket %s: timeline must not be empty", t.ID)
	}
	if !t.Severity.Valid() {
		return fmt.Errorf("ticket %s: invalid severity %q", t.ID, t.Severity)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("ticket %s: invalid status %q", t.ID, t.Status)
	}
	return nil
}
