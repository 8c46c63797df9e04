package handlers

import (
	"walletledger/internal/services/bills"
	"walletledger/internal/utils/response"
	"walletledger/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type BillHandler struct {
	bills *bills.Service
}

func NewBillHandler(svc *bills.Service) *BillHandler {
	return &BillHandler{bills: svc}
}

func (h *BillHandler) Categories(c *fiber.Ctx) error {
	return response.Success(c, "Bill categories", h.bills.Categories())
}

func (h *BillHandler) Purchase(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	var req validation.BillRequest
	if !bind(c, &req) {
		return nil
	}

	receipt, err := h.bills.Purchase(c.UserContext(), p, bills.PurchaseRequest{
		Category:  c.Params("category"),
		Provider:  req.Provider,
		Customer:  req.Customer,
		PlanCode:  req.PlanCode,
		MeterType: req.MeterType,
		Amount:    req.Amount,
		Pin:       req.Pin,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	if receipt.Bill.Status == bills.StatusPending {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message": "Bill payment is being confirmed with the biller",
			"data": fiber.Map{
				"transaction": receipt.Transaction,
				"bill":        receipt.Bill,
			},
		})
	}
	return response.Created(c, "Bill payment successful", fiber.Map{
		"transaction": receipt.Transaction,
		"bill":        receipt.Bill,
	})
}
