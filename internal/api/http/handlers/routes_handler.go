package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-ticket-service/internal/api/dto"
	"github.com/spec-kit/civic-ticket-service/internal/geo"
	apperrors "github.com/spec-kit/civic-ticket-service/pkg/util"
)

// RoutesHandler serves the hazard map.
type RoutesHandler struct {
	finder *geo.HazardFinder
}

// NewRoutesHandler constructs handler.
func NewRoutesHandler(finder *geo.HazardFinder) *RoutesHandler {
	return &RoutesHandler{finder: finder}
}

// Hazards GET /routes/hazards?from=&to=.
func (h *RoutesHandler) Hazards(c *fiber.Ctx) error {
	from := strings.TrimSpace(c.Query("from"))
	to := strings.TrimSpace(c.Query("to"))
	if from == "" || to == "" {
		return apperrors.NewValidationError("from and to required", nil)
	}
	report, err := h.finder.Find(c.UserContext(), from, to)
	if err != nil {
		if errors.Is(err, geo.ErrNoResults) {
			return apperrors.NewNotFound("location", err, map[string]any{"from": from, "to": to})
		}
		return apperrors.NewUpstreamError("route lookup failed", err)
	}

	hazards := make([]dto.HazardResponse, 0, len(report.Hazards))
	for i := range report.Hazards {
		hazards = append(hazards, dto.HazardResponse{
			DistanceKm: report.Hazards[i].DistanceKm,
			Ticket:     ticketResponse(&report.Hazards[i].Ticket),
		})
	}
	return c.JSON(fiber.Map{"data": dto.HazardReportResponse{
		From:            report.From,
		To:              report.To,
		Path:            report.Route.Path,
		DistanceMeters:  report.Route.DistanceMeters,
		DurationSeconds: report.Route.DurationSeconds,
		Hazards:         hazards,
	}})
}
