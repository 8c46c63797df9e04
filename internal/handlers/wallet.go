package handlers

import (
	"walletledger/internal/services/ledger"
	"walletledger/internal/utils/pagination"
	"walletledger/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type WalletHandler struct {
	engine *ledger.Engine
}

func NewWalletHandler(engine *ledger.Engine) *WalletHandler {
	return &WalletHandler{engine: engine}
}

func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	w, err := h.engine.WalletForOwner(c.UserContext(), p)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Wallet retrieved", w)
}

func (h *WalletHandler) History(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	w, err := h.engine.WalletForOwner(c.UserContext(), p)
	if err != nil {
		return response.FromError(c, err)
	}

	pg := pagination.ParseFromRequest(c)
	page, err := h.engine.History(c.UserContext(), p, w.ID, pg.Page, pg.Limit)
	if err != nil {
		return response.FromError(c, err)
	}
	pg.Total = page.Total
	return c.JSON(pagination.Response(pg, page.Items))
}

func (h *WalletHandler) GetTransaction(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	tx, err := h.engine.Transaction(c.UserContext(), p, c.Params("reference"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Transaction retrieved", tx)
}
