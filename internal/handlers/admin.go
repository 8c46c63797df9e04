package handlers

import (
	"strconv"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"
	"walletledger/internal/repositories"
	"walletledger/internal/services/approval"
	"walletledger/internal/services/ledger"
	"walletledger/internal/utils/pagination"
	"walletledger/internal/utils/response"
	"walletledger/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AdminHandler serves the staff endpoints: the approval queue, reversals,
// freezes and the transaction audit.
type AdminHandler struct {
	engine    *ledger.Engine
	approvals *approval.Service
}

func NewAdminHandler(engine *ledger.Engine, approvals *approval.Service) *AdminHandler {
	return &AdminHandler{engine: engine, approvals: approvals}
}

func (h *AdminHandler) PendingWithdrawals(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	pg := pagination.ParseFromRequest(c)
	page, err := h.approvals.Pending(c.UserContext(), p, pg.Page, pg.Limit)
	if err != nil {
		return response.FromError(c, err)
	}
	pg.Total = page.Total
	return c.JSON(pagination.Response(pg, page.Items))
}

func (h *AdminHandler) Flagged(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	pg := pagination.ParseFromRequest(c)
	page, err := h.approvals.Flagged(c.UserContext(), p, pg.Page, pg.Limit)
	if err != nil {
		return response.FromError(c, err)
	}
	pg.Total = page.Total
	return c.JSON(pagination.Response(pg, page.Items))
}

func (h *AdminHandler) Approve(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	tx, err := h.approvals.Approve(c.UserContext(), p, c.Params("reference"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Withdrawal approved", tx)
}

func (h *AdminHandler) Reject(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	var req validation.OptionalReasonRequest
	if len(c.Body()) > 0 && !bind(c, &req) {
		return nil
	}
	refund, err := h.approvals.Reject(c.UserContext(), p, c.Params("reference"), req.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Withdrawal rejected", refund)
}

func (h *AdminHandler) Reverse(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	var req validation.ReasonRequest
	if !bind(c, &req) {
		return nil
	}
	refund, err := h.engine.Reverse(c.UserContext(), p, c.Params("reference"), req.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Transaction reversed", refund)
}

func (h *AdminHandler) Freeze(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "invalid wallet id")
	}
	var req validation.OptionalReasonRequest
	if len(c.Body()) > 0 && !bind(c, &req) {
		return nil
	}
	w, err := h.engine.Freeze(c.UserContext(), p, id, req.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Wallet frozen", w)
}

func (h *AdminHandler) Unfreeze(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "invalid wallet id")
	}
	w, err := h.engine.Unfreeze(c.UserContext(), p, id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Wallet unfrozen", w)
}

// ListTransactions filters the whole ledger by wallet, type, status and
// approval flag.
func (h *AdminHandler) ListTransactions(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	pg := pagination.ParseFromRequest(c)
	filter := repositories.TransactionFilter{
		Type:   models.TransactionType(c.Query("type")),
		Status: models.TransactionStatus(c.Query("status")),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	}
	if raw := c.Query("wallet_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return response.FromError(c, apperrors.Wrap(apperrors.ErrValidation, "invalid wallet_id"))
		}
		filter.WalletID = &id
	}
	if raw := c.Query("requires_approval"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return response.FromError(c, apperrors.Wrap(apperrors.ErrValidation, "invalid requires_approval"))
		}
		filter.RequiresApproval = &v
	}

	rows, total, err := h.engine.ListTransactions(c.UserContext(), p, filter)
	if err != nil {
		return response.FromError(c, err)
	}
	pg.Total = total
	return c.JSON(pagination.Response(pg, rows))
}

// Credit posts a manual deposit, e.g. a cash lodgement at a branch.
func (h *AdminHandler) Credit(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "invalid wallet id")
	}
	var req validation.CreditRequest
	if !bind(c, &req) {
		return nil
	}
	tx, err := h.engine.Credit(c.UserContext(), p, ledger.CreditRequest{
		WalletID:          id,
		Amount:            req.Amount,
		Type:              models.TransactionTypeDeposit,
		Description:       req.Description,
		ExternalReference: req.Reference,
		Metadata:          models.JSON{"credited_by": p.UserID.String()},
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Wallet credited", tx)
}
