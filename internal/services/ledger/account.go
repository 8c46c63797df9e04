package ledger

import (
	"context"
	"errors"
	"math/big"
	"regexp"
	"strings"
	"time"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"
	"walletledger/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const AccountNumberPrefix = "20"

var pinPattern = regexp.MustCompile(`^[0-9]{4}$`)

// NewAccountNumber returns "20" followed by the first eight decimal digits
// of a random uuid.
func NewAccountNumber() string {
	id := uuid.New()
	digits := new(big.Int).SetBytes(id[:]).String()
	for len(digits) < 8 {
		digits = "0" + digits
	}
	return AccountNumberPrefix + digits[:8]
}

// OpenAccount creates a user and their wallet in one unit. Account number
// collisions are retried with a fresh number.
func (e *Engine) OpenAccount(ctx context.Context, req OpenAccountRequest) (account *Account, err error) {
	defer e.observe("open_account", time.Now(), &err)

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || strings.TrimSpace(req.Name) == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "email and name are required")
	}
	if !pinPattern.MatchString(req.Pin) {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "PIN must be 4 digits")
	}
	role := req.Role
	if role == "" {
		role = models.RoleCustomer
	}
	if _, err := e.repo.GetUserByEmail(ctx, email); err == nil {
		return nil, apperrors.Wrap(apperrors.ErrDuplicateReference, "email %s already registered", email)
	} else if !errors.Is(err, apperrors.ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Pin), e.config.PinCost)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= e.config.AccountOpenRetries; attempt++ {
		number := e.accountNumbers()
		if _, err := e.repo.FindWalletByAccountNumber(ctx, number); err == nil {
			continue
		}

		user := &models.User{
			ID:      uuid.New(),
			Email:   email,
			Name:    strings.TrimSpace(req.Name),
			Phone:   req.Phone,
			PinHash: string(hash),
			Role:    role,
			Status:  models.UserStatusActive,
		}
		wallet := &models.Wallet{
			ID:            uuid.New(),
			OwnerID:       user.ID,
			AccountNumber: number,
			Balance:       decimal.Zero,
			LedgerBalance: decimal.Zero,
			Currency:      e.config.Currency,
			IsActive:      true,
		}
		err = e.repo.ExecuteInTransaction(ctx, func(repo repositories.LedgerRepository) error {
			if err := repo.CreateUser(ctx, user); err != nil {
				return err
			}
			return repo.CreateWallet(ctx, wallet)
		})
		if err == nil {
			e.logger.Info("account opened",
				zap.String("user_id", user.ID.String()),
				zap.String("account_number", number),
			)
			return &Account{User: user, Wallet: wallet}, nil
		}
		if !errors.Is(err, apperrors.ErrDuplicateReference) {
			return nil, err
		}
		if _, lookupErr := e.repo.GetUserByEmail(ctx, email); lookupErr == nil {
			return nil, apperrors.Wrap(apperrors.ErrDuplicateReference, "email %s already registered", email)
		}
		e.logger.Warn("account number collision, retrying",
			zap.String("account_number", number),
			zap.Int("attempt", attempt),
		)
	}
	return nil, apperrors.Wrap(apperrors.ErrBusy, "could not allocate an account number")
}

// SetPin replaces the caller's transaction PIN after checking the old one.
func (e *Engine) SetPin(ctx context.Context, p models.Principal, oldPin, newPin string) (err error) {
	defer e.observe("set_pin", time.Now(), &err)
	if !pinPattern.MatchString(newPin) {
		return apperrors.Wrap(apperrors.ErrValidation, "PIN must be 4 digits")
	}
	user, err := e.repo.GetUserByID(ctx, p.UserID)
	if err != nil {
		return err
	}
	if user.PinHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PinHash), []byte(oldPin)); err != nil {
			return apperrors.ErrInvalidPin
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPin), e.config.PinCost)
	if err != nil {
		return err
	}
	return e.repo.UpdateUserPin(ctx, user.ID, string(hash))
}

// verifyPin checks pin against the principal's stored hash. System
// principals act without a PIN.
func (e *Engine) verifyPin(ctx context.Context, p models.Principal, pin string) error {
	if p.System {
		return nil
	}
	user, err := e.repo.GetUserByID(ctx, p.UserID)
	if err != nil {
		return err
	}
	if user.PinHash == "" || pin == "" {
		return apperrors.ErrInvalidPin
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PinHash), []byte(pin)); err != nil {
		return apperrors.ErrInvalidPin
	}
	return nil
}

// VerifyPin exposes the PIN check to services that debit through the
// external settlement path.
func (e *Engine) VerifyPin(ctx context.Context, p models.Principal, pin string) error {
	return e.verifyPin(ctx, p, pin)
}
