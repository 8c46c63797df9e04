package handlers

import (
	"time"

	"walletledger/internal/models"
	"walletledger/internal/services/ledger"
	"walletledger/internal/utils"
	"walletledger/internal/utils/response"
	"walletledger/internal/validation"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AccountHandler struct {
	engine    *ledger.Engine
	jwtSecret string
	tokenTTL  time.Duration
	logger    *zap.Logger
}

func NewAccountHandler(engine *ledger.Engine, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{engine: engine, jwtSecret: jwtSecret, tokenTTL: tokenTTL, logger: logger}
}

// OpenAccount creates a customer with a wallet and returns an access token.
func (h *AccountHandler) OpenAccount(c *fiber.Ctx) error {
	var req validation.OpenAccountRequest
	if !bind(c, &req) {
		return nil
	}

	acct, err := h.engine.OpenAccount(c.UserContext(), ledger.OpenAccountRequest{
		Email: req.Email,
		Name:  req.Name,
		Phone: req.Phone,
		Pin:   req.Pin,
	})
	if err != nil {
		return response.FromError(c, err)
	}

	token, err := utils.GenerateToken(h.jwtSecret, models.UserClaims{
		UserID:      acct.User.ID,
		Email:       acct.User.Email,
		Role:        acct.User.Role,
		Permissions: models.GetDefaultPermissions(acct.User.Role),
	}, h.tokenTTL)
	if err != nil {
		h.logger.Error("failed to sign token", zap.Error(err))
		return response.FromError(c, err)
	}

	return response.Created(c, "Account opened", fiber.Map{
		"user":         acct.User,
		"wallet":       acct.Wallet,
		"access_token": token,
	})
}

func (h *AccountHandler) ChangePin(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	var req validation.ChangePinRequest
	if !bind(c, &req) {
		return nil
	}
	if err := h.engine.SetPin(c.UserContext(), p, req.OldPin, req.NewPin); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "PIN updated", nil)
}
