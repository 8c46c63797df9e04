// Package handlers adapts the ledger services to fiber. Handlers parse and
// validate input, pull the Principal set by the auth middleware and map
// domain errors to HTTP responses.
package handlers

import (
	"walletledger/internal/models"
	"walletledger/internal/utils"
	"walletledger/internal/utils/response"
	"walletledger/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// principal reads the caller or writes a 401.
func principal(c *fiber.Ctx) (models.Principal, bool) {
	p, err := utils.GetPrincipal(c)
	if err != nil {
		_ = response.Unauthorized(c)
		return models.Principal{}, false
	}
	return p, true
}

// bind parses the body into dst and validates it. It writes the 400 itself
// and returns false on failure.
func bind(c *fiber.Ctx, dst interface{}) bool {
	if err := c.BodyParser(dst); err != nil {
		_ = response.BadRequest(c, "invalid request format")
		return false
	}
	if err := validation.Struct(dst); err != nil {
		_ = response.FromError(c, err)
		return false
	}
	return true
}
