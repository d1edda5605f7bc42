package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-ticket-service/internal/api/dto"
	"github.com/spec-kit/civic-ticket-service/internal/repository"
)

// AuthoritiesHandler lists routing targets.
type AuthoritiesHandler struct {
	registry repository.AuthorityRegistry
}

// NewAuthoritiesHandler constructs handler.
func NewAuthoritiesHandler(registry repository.AuthorityRegistry) *AuthoritiesHandler {
	return &AuthoritiesHandler{registry: registry}
}

// List GET /authorities.
func (h *AuthoritiesHandler) List(c *fiber.Ctx) error {
	list := h.registry.List()
	items := make([]dto.AuthorityResponse, 0, len(list))
	for _, a := range list {
		items = append(items, authorityResponse(a))
	}
	return c.JSON(fiber.Map{"data": items, "default_id": h.registry.Default().ID})
}
