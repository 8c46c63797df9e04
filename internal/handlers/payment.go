package handlers

import (
	"walletledger/internal/services/payment"
	"walletledger/internal/utils/response"
	"walletledger/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type PaymentHandler struct {
	payments *payment.Service
}

func NewPaymentHandler(payments *payment.Service) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

func (h *PaymentHandler) Initiate(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	var req validation.PaymentRequest
	if !bind(c, &req) {
		return nil
	}
	gp, err := h.payments.Initiate(c.UserContext(), p, req.Amount, req.Provider)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Payment initiated", gp)
}

func (h *PaymentHandler) Get(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	gp, err := h.payments.Get(c.UserContext(), p, c.Params("reference"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Payment retrieved", gp)
}
