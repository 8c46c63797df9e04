package handlers

import (
	"walletledger/internal/services/ledger"
	"walletledger/internal/utils/response"
	"walletledger/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type TransferHandler struct {
	engine *ledger.Engine
}

func NewTransferHandler(engine *ledger.Engine) *TransferHandler {
	return &TransferHandler{engine: engine}
}

func (h *TransferHandler) Transfer(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	var req validation.TransferRequest
	if !bind(c, &req) {
		return nil
	}

	w, err := h.engine.WalletForOwner(c.UserContext(), p)
	if err != nil {
		return response.FromError(c, err)
	}
	result, err := h.engine.Transfer(c.UserContext(), p, ledger.TransferRequest{
		SourceWalletID:   w.ID,
		RecipientAccount: req.RecipientAccount,
		Amount:           req.Amount,
		Pin:              req.Pin,
		Narration:        req.Narration,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Transfer successful", fiber.Map{
		"transaction": result.Debit,
		"fee":         result.Debit.Fee,
		"total":       result.Debit.TotalAmount,
		"balance":     result.Debit.BalanceAfter,
	})
}

// Withdraw queues a bank withdrawal for approval.
func (h *TransferHandler) Withdraw(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	var req validation.WithdrawalRequest
	if !bind(c, &req) {
		return nil
	}

	tx, err := h.engine.RequestWithdrawal(c.UserContext(), p, ledger.WithdrawalRequest{
		Amount:        req.Amount,
		Pin:           req.Pin,
		BankCode:      req.BankCode,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		Narration:     req.Narration,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Withdrawal pending approval",
		"data":    tx,
	})
}
