package handlers

import (
	"walletledger/internal/services/settlement"
	"walletledger/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type WebhookHandler struct {
	reconciler *settlement.Reconciler
}

func NewWebhookHandler(reconciler *settlement.Reconciler) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// Receive verifies and applies a provider notification. Duplicates are
// acknowledged with 200 so the provider stops retrying.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	source := c.Params("source")
	header, ok := h.reconciler.SignatureHeader(source)
	if !ok {
		return response.Error(c, fiber.StatusNotFound, "unknown webhook source")
	}

	// fasthttp reuses the request buffer once the handler returns.
	body := append([]byte(nil), c.Body()...)

	event, err := h.reconciler.HandleWebhook(c.UserContext(), source, c.Get(header), c.IP(), body)
	if err != nil {
		return response.FromError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":  "ok",
		"event":   event.ID,
		"outcome": event.Status,
	})
}
