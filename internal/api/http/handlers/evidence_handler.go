package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-ticket-service/internal/evidence"
	apperrors "github.com/spec-kit/civic-ticket-service/pkg/util"
)

// EvidenceHandler serves stored report images.
type EvidenceHandler struct {
	store *evidence.Store
}

// NewEvidenceHandler constructs handler.
func NewEvidenceHandler(store *evidence.Store) *EvidenceHandler {
	return &EvidenceHandler{store: store}
}

// Get GET /evidence/:key.
func (h *EvidenceHandler) Get(c *fiber.Ctx) error {
	key := c.Params("key")
	f, obj, err := h.store.Open(key)
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			return apperrors.NewNotFound("evidence", err, map[string]any{"key": key})
		}
		return err
	}
	c.Set(fiber.HeaderContentType, obj.MediaType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
	return c.SendStream(f, int(obj.Size))
}
