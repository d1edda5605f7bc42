package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-ticket-service/internal/api/dto"
	"github.com/spec-kit/civic-ticket-service/internal/domain"
	"github.com/spec-kit/civic-ticket-service/internal/genai"
	"github.com/spec-kit/civic-ticket-service/internal/pipeline"
	"github.com/spec-kit/civic-ticket-service/internal/service"
	apperrors "github.com/spec-kit/civic-ticket-service/pkg/util"
)

// PersonaQueue schedules a commissioner reply for a ticket.
type PersonaQueue interface {
	Enqueue(id string) bool
}

// TicketsHandler manages the citizen ticket endpoints.
type TicketsHandler struct {
	service  *service.TicketService
	personas PersonaQueue
}

// NewTicketsHandler constructs handler. personas may be nil.
func NewTicketsHandler(ticketService *service.TicketService, personas PersonaQueue) *TicketsHandler {
	return &TicketsHandler{service: ticketService, personas: personas}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Title) == "" {
		return apperrors.NewValidationError("title required", nil)
	}

	var override domain.Severity
	if req.Severity != "" {
		sev, err := domain.ParseSeverity(req.Severity)
		if err != nil {
			return apperrors.NewValidationError("invalid severity", map[string]any{"severity": req.Severity})
		}
		override = sev
	}
	var detected domain.Severity
	if req.DetectedSeverity != "" {
		sev, err := domain.ParseSeverity(req.DetectedSeverity)
		if err != nil {
			return apperrors.NewValidationError("invalid detected_severity", map[string]any{"detected_severity": req.DetectedSeverity})
		}
		detected = sev
	}
	if override == "" && detected == "" {
		return apperrors.NewValidationError("severity or detected_severity required", nil)
	}

	analysis := pipeline.Analysis{
		Detection: genai.Detection{
			Title:           req.Title,
			Description:     req.Description,
			Severity:        detected,
			DetectedObjects: req.DetectedObjects,
			Confidence:      req.Confidence,
			Reasoning:       req.Reasoning,
		},
		Authority: domain.Authority{ID: req.AuthorityID},
		Address:   req.Address,
		ImageURL:  req.ImageURL,
	}
	if req.Location != nil {
		analysis.Location = *req.Location
	}
	if req.Drafts != nil {
		analysis.Drafts = domain.Drafts{
			EmailSubject:    req.Drafts.EmailSubject,
			EmailBody:       req.Drafts.EmailBody,
			WhatsappMessage: req.Drafts.WhatsappMessage,
		}
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), pipeline.TicketDraft(analysis, override))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListTickets GET /tickets. A non-empty q runs a search instead.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	var (
		tickets []domain.Ticket
		err     error
	)
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		tickets, err = h.service.Search(c.UserContext(), q)
	} else {
		tickets, err = h.service.ListTickets(c.UserContext())
	}
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Stats GET /tickets/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return err
	}
	resp := dto.StatsResponse{
		Total:      stats.Total,
		Votes:      stats.Votes,
		ByStatus:   make(map[string]int, len(stats.ByStatus)),
		BySeverity: make(map[string]int, len(stats.BySeverity)),
	}
	for k, v := range stats.ByStatus {
		resp.ByStatus[string(k)] = v
	}
	for k, v := range stats.BySeverity {
		resp.BySeverity[string(k)] = v
	}
	return c.JSON(fiber.Map{"data": resp})
}

// GetTicket GET /tickets/:id. Viewing a ticket without a commissioner reply
// schedules one.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if ticket.CommissionerResponse == "" && h.personas != nil {
		h.personas.Enqueue(ticket.ID)
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Vote POST /tickets/:id/votes.
func (h *TicketsHandler) Vote(c *fiber.Ctx) error {
	ticket, err := h.service.Vote(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// AddTimelineEvent POST /tickets/:id/timeline.
func (h *TicketsHandler) AddTimelineEvent(c *fiber.Ctx) error {
	var req dto.TimelineEventRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Title) == "" {
		return apperrors.NewValidationError("title required", nil)
	}
	ticket, err := h.service.AppendTimelineEvent(c.UserContext(), c.Params("id"), domain.TimelineEvent{
		Timestamp:   req.Timestamp,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Icon:        req.Icon,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	timeline := make([]dto.TimelineEventResponse, 0, len(ticket.Timeline))
	for _, e := range ticket.Timeline {
		timeline = append(timeline, dto.TimelineEventResponse{
			Timestamp:   e.Timestamp,
			Title:       e.Title,
			Description: e.Description,
			Icon:        e.Icon,
		})
	}
	resp := dto.TicketResponse{
		ID:                   ticket.ID,
		Title:                ticket.Title,
		Description:          ticket.Description,
		ImageURL:             ticket.ImageURL,
		Severity:             ticket.Severity,
		Status:               ticket.Status,
		Location:             ticket.Location,
		Address:              ticket.Address,
		CreatedAt:            ticket.CreatedAt,
		UpdatedAt:            ticket.UpdatedAt,
		Votes:                ticket.Votes,
		AuthorityID:          ticket.AuthorityID,
		Timeline:             timeline,
		CommissionerResponse: ticket.CommissionerResponse,
	}
	if ticket.AIAnalysis != nil {
		resp.AIAnalysis = &dto.AIAnalysisResponse{
			DetectedObjects:  ticket.AIAnalysis.DetectedObjects,
			Confidence:       ticket.AIAnalysis.Confidence,
			Reasoning:        ticket.AIAnalysis.Reasoning,
			DetectedSeverity: ticket.AIAnalysis.DetectedSeverity,
		}
	}
	if ticket.Drafts != nil {
		resp.Drafts = &dto.DraftsPayload{
			EmailSubject:    ticket.Drafts.EmailSubject,
			EmailBody:       ticket.Drafts.EmailBody,
			WhatsappMessage: ticket.Drafts.WhatsappMessage,
		}
	}
	return resp
}

func authorityResponse(a domain.Authority) dto.AuthorityResponse {
	return dto.AuthorityResponse{
		ID:       a.ID,
		Name:     a.Name,
		Type:     string(a.Category),
		Email:    a.Email,
		Whatsapp: a.Whatsapp,
	}
}
