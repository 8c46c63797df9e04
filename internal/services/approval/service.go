package approval

import (
	"context"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"
	"walletledger/internal/repositories"

	"go.uber.org/zap"
)

// Ledger is the part of the engine the workflow delegates to.
type Ledger interface {
	ApproveWithdrawal(ctx context.Context, p models.Principal, reference string) (*models.Transaction, error)
	RejectWithdrawal(ctx context.Context, p models.Principal, reference, reason string) (*models.Transaction, error)
}

type Page struct {
	Items []models.Transaction `json:"items"`
	Total int64                `json:"total"`
	Page  int                  `json:"page"`
	Size  int                  `json:"size"`
}

type Service struct {
	ledger Ledger
	store  repositories.TransactionStore
	logger *zap.Logger
}

func NewService(ledger Ledger, store repositories.TransactionStore, logger *zap.Logger) *Service {
	if ledger == nil || store == nil {
		panic("approval: ledger and store are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{ledger: ledger, store: store, logger: logger}
}

func authorize(p models.Principal) error {
	if !p.Can(models.PermissionWithdrawalApprove) {
		return apperrors.Wrap(apperrors.ErrForbidden, "approval queue requires %s", models.PermissionWithdrawalApprove)
	}
	return nil
}

func normalize(page, size int) (int, int) {
	if size < 1 || size > 100 {
		size = 20
	}
	page, _ = repositories.PageOffset(page, size)
	return page, size
}

// Pending lists withdrawals awaiting a decision, oldest first.
func (s *Service) Pending(ctx context.Context, p models.Principal, page, size int) (*Page, error) {
	if err := authorize(p); err != nil {
		return nil, err
	}
	page, size = normalize(page, size)
	flagged := true
	items, total, err := s.store.ListTransactions(ctx, repositories.TransactionFilter{
		Type:             models.TransactionTypeWithdrawal,
		Status:           models.TransactionStatusPending,
		RequiresApproval: &flagged,
		OldestFirst:      true,
		Limit:            size,
		Offset:           (page - 1) * size,
	})
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Page: page, Size: size}, nil
}

// Flagged lists the non-withdrawal rows the policy marked at creation.
func (s *Service) Flagged(ctx context.Context, p models.Principal, page, size int) (*Page, error) {
	if err := authorize(p); err != nil {
		return nil, err
	}
	page, size = normalize(page, size)
	flagged := true
	items, total, err := s.store.ListTransactions(ctx, repositories.TransactionFilter{
		RequiresApproval: &flagged,
		ExcludeType:      models.TransactionTypeWithdrawal,
		Limit:            size,
		Offset:           (page - 1) * size,
	})
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Page: page, Size: size}, nil
}

func (s *Service) Approve(ctx context.Context, p models.Principal, reference string) (*models.Transaction, error) {
	if err := authorize(p); err != nil {
		return nil, err
	}
	tx, err := s.ledger.ApproveWithdrawal(ctx, p, reference)
	if err != nil {
		s.logger.Warn("approval failed",
			zap.String("reference", reference),
			zap.String("approver", p.Name),
			zap.Error(err),
		)
		return nil, err
	}
	return tx, nil
}

// Reject returns the refund row written for the rejected withdrawal.
func (s *Service) Reject(ctx context.Context, p models.Principal, reference, reason string) (*models.Transaction, error) {
	if err := authorize(p); err != nil {
		return nil, err
	}
	refund, err := s.ledger.RejectWithdrawal(ctx, p, reference, reason)
	if err != nil {
		s.logger.Warn("rejection failed",
			zap.String("reference", reference),
			zap.String("approver", p.Name),
			zap.Error(err),
		)
		return nil, err
	}
	return refund, nil
}
