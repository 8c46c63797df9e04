package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ledgerRepository struct {
	db          *gorm.DB
	lockTimeout time.Duration
	inTx        bool
}

// NewLedgerRepository returns the Postgres-backed store. lockTimeout bounds
// every row-lock wait inside a unit of work.
func NewLedgerRepository(db *gorm.DB, lockTimeout time.Duration) LedgerRepository {
	return &ledgerRepository{
		db:          db,
		lockTimeout: lockTimeout,
	}
}

func (r *ledgerRepository) ExecuteInTransaction(ctx context.Context, fn func(LedgerRepository) error) error {
	if r.inTx {
		return fn(r)
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.lockTimeout > 0 && tx.Dialector.Name() == "postgres" {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(&ledgerRepository{db: tx, lockTimeout: r.lockTimeout, inTx: true})
	})
	return mapError(err)
}

func (r *ledgerRepository) forUpdate(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

// Users

func (r *ledgerRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", mapError(err))
	}
	return nil
}

func (r *ledgerRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *ledgerRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *ledgerRepository) UpdateUserPin(ctx context.Context, id uuid.UUID, pinHash string) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"pin_hash": pinHash, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return fmt.Errorf("failed to update pin: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// Wallets

func (r *ledgerRepository) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	if err := r.db.WithContext(ctx).Create(wallet).Error; err != nil {
		return fmt.Errorf("failed to create wallet: %w", mapError(err))
	}
	return nil
}

func (r *ledgerRepository) getWallet(q *gorm.DB, query string, arg interface{}) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := q.Where(query, arg).Take(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", mapError(err))
	}
	return &wallet, nil
}

func (r *ledgerRepository) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return r.getWallet(r.db.WithContext(ctx), "id = ?", id)
}

func (r *ledgerRepository) GetWalletByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Wallet, error) {
	return r.getWallet(r.db.WithContext(ctx), "owner_id = ?", ownerID)
}

func (r *ledgerRepository) FindWalletByAccountNumber(ctx context.Context, accountNumber string) (*models.Wallet, error) {
	return r.getWallet(r.db.WithContext(ctx), "account_number = ?", accountNumber)
}

func (r *ledgerRepository) LockWallets(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error) {
	locked := make(map[uuid.UUID]*models.Wallet, len(ids))
	// One statement per row keeps the acquisition order explicit.
	for _, id := range SortWalletIDs(ids) {
		wallet, err := r.getWallet(r.forUpdate(ctx), "id = ?", id)
		if err != nil {
			return nil, err
		}
		locked[id] = wallet
	}
	return locked, nil
}

func (r *ledgerRepository) ApplyDelta(ctx context.Context, id uuid.UUID, delta, ledgerDelta decimal.Decimal) (*models.Wallet, error) {
	result := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ? AND balance + ? >= 0", id, delta).
		Updates(map[string]interface{}{
			"balance":        gorm.Expr("balance + ?", delta),
			"ledger_balance": gorm.Expr("ledger_balance + ?", ledgerDelta),
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to apply balance delta: %w", mapError(result.Error))
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetWallet(ctx, id); err != nil {
			return nil, err
		}
		return nil, apperrors.ErrInsufficientFunds
	}
	return r.GetWallet(ctx, id)
}

func (r *ledgerRepository) UpdateWalletStatus(ctx context.Context, wallet *models.Wallet) error {
	result := r.db.WithContext(ctx).Model(&models.Wallet{}).Where("id = ?", wallet.ID).
		Updates(map[string]interface{}{
			"is_frozen":     wallet.IsFrozen,
			"freeze_reason": wallet.FreezeReason,
			"is_active":     wallet.IsActive,
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update wallet status: %w", mapError(result.Error))
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrWalletNotFound
	}
	return nil
}

// Transactions

func (r *ledgerRepository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to create transaction: %w", mapError(err))
	}
	return nil
}

func (r *ledgerRepository) UpdateTransaction(ctx context.Context, tx *models.Transaction) error {
	result := r.db.WithContext(ctx).Model(&models.Transaction{}).Where("id = ?", tx.ID).
		Select("status", "external_reference", "approved_by", "approved_at", "completed_at", "metadata", "updated_at").
		Updates(tx)
	if result.Error != nil {
		return fmt.Errorf("failed to update transaction: %w", mapError(result.Error))
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrTransactionNotFound
	}
	return nil
}

func (r *ledgerRepository) getTransaction(q *gorm.DB, query string, arg interface{}) (*models.Transaction, error) {
	var tx models.Transaction
	if err := q.Where(query, arg).Take(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", mapError(err))
	}
	return &tx, nil
}

func (r *ledgerRepository) FindTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return r.getTransaction(r.db.WithContext(ctx), "reference = ?", reference)
}

func (r *ledgerRepository) LockTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return r.getTransaction(r.forUpdate(ctx), "reference = ?", reference)
}

// FindReversalOf returns the compensating row for reference, or nil when the
// transaction has not been compensated.
func (r *ledgerRepository) FindReversalOf(ctx context.Context, reference string) (*models.Transaction, error) {
	tx, err := r.getTransaction(r.db.WithContext(ctx), "reverses_reference = ?", reference)
	if errors.Is(err, apperrors.ErrTransactionNotFound) {
		return nil, nil
	}
	return tx, err
}

func (r *ledgerRepository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Transaction{})
	if filter.WalletID != nil {
		q = q.Where("wallet_id = ?", *filter.WalletID)
	}
	if filter.OwnerID != nil {
		q = q.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.ExcludeType != "" {
		q = q.Where("type <> ?", filter.ExcludeType)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.RequiresApproval != nil {
		q = q.Where("requires_approval = ?", *filter.RequiresApproval)
	}
	if filter.HasExternalRef != nil {
		if *filter.HasExternalRef {
			q = q.Where("external_reference IS NOT NULL")
		} else {
			q = q.Where("external_reference IS NULL")
		}
	}
	if filter.UpdatedBefore != nil {
		q = q.Where("updated_at < ?", *filter.UpdatedBefore)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	order := "created_at DESC"
	if filter.OldestFirst {
		order = "created_at ASC"
	}
	q = q.Order(order)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var txs []models.Transaction
	if err := q.Find(&txs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, total, nil
}

// Settlement records

func (r *ledgerRepository) CreateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to log webhook event: %w", err)
	}
	return nil
}

func (r *ledgerRepository) UpdateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	if err := r.db.WithContext(ctx).Save(event).Error; err != nil {
		return fmt.Errorf("failed to update webhook event: %w", err)
	}
	return nil
}

func (r *ledgerRepository) CreateGatewayPayment(ctx context.Context, payment *models.GatewayPayment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", mapError(err))
	}
	return nil
}

func (r *ledgerRepository) UpdateGatewayPayment(ctx context.Context, payment *models.GatewayPayment) error {
	if err := r.db.WithContext(ctx).Save(payment).Error; err != nil {
		return fmt.Errorf("failed to update payment: %w", mapError(err))
	}
	return nil
}

func (r *ledgerRepository) getPayment(q *gorm.DB, reference string) (*models.GatewayPayment, error) {
	var payment models.GatewayPayment
	if err := q.Where("reference = ?", reference).Take(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", mapError(err))
	}
	return &payment, nil
}

func (r *ledgerRepository) FindGatewayPayment(ctx context.Context, reference string) (*models.GatewayPayment, error) {
	return r.getPayment(r.db.WithContext(ctx), reference)
}

func (r *ledgerRepository) LockGatewayPayment(ctx context.Context, reference string) (*models.GatewayPayment, error) {
	return r.getPayment(r.forUpdate(ctx), reference)
}

func (r *ledgerRepository) AbandonStalePayments(ctx context.Context, createdBefore time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.GatewayPayment{}).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, createdBefore).
		Updates(map[string]interface{}{
			"status":     models.PaymentStatusAbandoned,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to abandon stale payments: %w", mapError(result.Error))
	}
	return result.RowsAffected, nil
}

func (r *ledgerRepository) CreateBillPayment(ctx context.Context, bill *models.BillPayment) error {
	if err := r.db.WithContext(ctx).Create(bill).Error; err != nil {
		return fmt.Errorf("failed to create bill payment: %w", err)
	}
	return nil
}

func (r *ledgerRepository) UpdateBillPayment(ctx context.Context, bill *models.BillPayment) error {
	result := r.db.WithContext(ctx).Model(&models.BillPayment{}).
		Where("id = ?", bill.ID).
		Updates(map[string]interface{}{
			"status":        bill.Status,
			"token":         bill.Token,
			"response_data": bill.ResponseData,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update bill payment: %w", mapError(result.Error))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("bill payment %s not found", bill.ID)
	}
	return nil
}

func (r *ledgerRepository) ListBillPayments(ctx context.Context, status string, createdBefore time.Time, limit int) ([]models.BillPayment, error) {
	var bills []models.BillPayment
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", status, createdBefore).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&bills).Error; err != nil {
		return nil, fmt.Errorf("failed to list bill payments: %w", mapError(err))
	}
	return bills, nil
}
