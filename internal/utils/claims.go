package utils

import (
	"errors"

	"walletledger/internal/models"

	"github.com/gofiber/fiber/v2"
)

const PrincipalKey = "principal"

// GetPrincipal extracts the authenticated principal from the Fiber context.
func GetPrincipal(c *fiber.Ctx) (models.Principal, error) {
	p, ok := c.Locals(PrincipalKey).(models.Principal)
	if !ok {
		return models.Principal{}, errors.New("principal not found in context")
	}
	return p, nil
}
