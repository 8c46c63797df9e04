package repositories

import (
	"errors"
	"sort"

	apperrors "walletledger/internal/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the ledger reacts to.
const (
	pgLockNotAvailable     = "55P03"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
)

// mapError translates driver errors into domain errors. Lock waits that run
// into lock_timeout, deadlocks and serialization failures all surface as
// ErrBusy so callers can retry with backoff.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var de *apperrors.DomainError
	if errors.As(err, &de) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFailure:
			return apperrors.WithCause(apperrors.ErrBusy, err)
		case pgUniqueViolation:
			return apperrors.WithCause(apperrors.ErrDuplicateReference, err)
		case pgCheckViolation:
			return apperrors.WithCause(apperrors.ErrInsufficientFunds, err)
		}
	}
	return err
}

// SortWalletIDs returns ids deduplicated and in the global lock order.
func SortWalletIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
