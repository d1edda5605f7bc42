package dto

import (
	"github.com/spec-kit/civic-ticket-service/internal/domain"
)

// CreateTicketRequest commits a reviewed analysis. Severity, when set,
// overrides the detected severity.
type CreateTicketRequest struct {
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	Severity         string              `json:"severity"`
	DetectedSeverity string              `json:"detected_severity"`
	AuthorityID      string              `json:"authority_id"`
	Location         *domain.Coordinates `json:"location"`
	Address          string              `json:"address"`
	ImageURL         string              `json:"image_url"`
	DetectedObjects  []string            `json:"detected_objects"`
	Confidence       float64             `json:"confidence"`
	Reasoning        string              `json:"reasoning"`
	Drafts           *DraftsPayload      `json:"drafts"`
}

// DraftsPayload carries the generated outreach text.
type DraftsPayload struct {
	EmailSubject    string `json:"email_subject"`
	EmailBody       string `json:"email_body"`
	WhatsappMessage string `json:"whatsapp_message"`
}

// TimelineEventRequest payload.
type TimelineEventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Timestamp   int64  `json:"timestamp"`
}

// TimelineEventResponse represents one timeline entry.
type TimelineEventResponse struct {
	Timestamp   int64  `json:"timestamp"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// AIAnalysisResponse is the stored detection summary.
type AIAnalysisResponse struct {
	DetectedObjects  []string        `json:"detected_objects"`
	Confidence       float64         `json:"confidence"`
	Reasoning        string          `json:"reasoning"`
	DetectedSeverity domain.Severity `json:"detected_severity,omitempty"`
}

// TicketResponse provides full ticket info.
type TicketResponse struct {
	ID                   string                  `json:"id"`
	Title                string                  `json:"title"`
	Description          string                  `json:"description"`
	ImageURL             string                  `json:"image_url,omitempty"`
	Severity             domain.Severity         `json:"severity"`
	Status               domain.TicketStatus     `json:"status"`
	Location             domain.Coordinates      `json:"location"`
	Address              string                  `json:"address"`
	CreatedAt            int64                   `json:"created_at"`
	UpdatedAt            int64                   `json:"updated_at"`
	Votes                int                     `json:"votes"`
	AuthorityID          string                  `json:"authority_id"`
	AIAnalysis           *AIAnalysisResponse     `json:"ai_analysis,omitempty"`
	Drafts               *DraftsPayload          `json:"drafts,omitempty"`
	Timeline             []TimelineEventResponse `json:"timeline"`
	CommissionerResponse string                  `json:"commissioner_response,omitempty"`
}

// AnalysisResponse is the reviewable output of stages one and two.
type AnalysisResponse struct {
	State           string             `json:"state"`
	Fallback        bool               `json:"fallback"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Severity        domain.Severity    `json:"severity"`
	AuthorityType   string             `json:"authority_type"`
	DetectedObjects []string           `json:"detected_objects"`
	Confidence      float64            `json:"confidence"`
	Reasoning       string             `json:"reasoning"`
	Authority       AuthorityResponse  `json:"authority"`
	Location        domain.Coordinates `json:"location"`
	Address         string             `json:"address"`
	ImageURL        string             `json:"image_url,omitempty"`
	Drafts          DraftsPayload      `json:"drafts"`
}

// AuthorityResponse describes a routing target.
type AuthorityResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Email    string `json:"email"`
	Whatsapp string `json:"whatsapp"`
}

// StatsResponse summarizes the corrected collection.
type StatsResponse struct {
	Total      int            `json:"total"`
	Votes      int            `json:"votes"`
	ByStatus   map[string]int `json:"by_status"`
	BySeverity map[string]int `json:"by_severity"`
}

// HazardResponse is a ticket near a route.
type HazardResponse struct {
	DistanceKm float64        `json:"distance_km"`
	Ticket     TicketResponse `json:"ticket"`
}

// HazardReportResponse is the route plus the flagged tickets.
type HazardReportResponse struct {
	From            domain.Coordinates   `json:"from"`
	To              domain.Coordinates   `json:"to"`
	Path            []domain.Coordinates `json:"path"`
	DistanceMeters  float64              `json:"distance_meters"`
	DurationSeconds float64              `json:"duration_seconds"`
	Hazards         []HazardResponse     `json:"hazards"`
}
