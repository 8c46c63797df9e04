// Package memory is an in-process implementation of the ledger store. It
// keeps the same contract as the Postgres store: row locks with a bounded
// wait, conditional balance updates, and units of work that commit all of
// their writes or none of them. It backs the test suites and the
// STORE_DRIVER=memory development mode.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"
	"walletledger/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultLockTimeout = 3 * time.Second

type state struct {
	mu           sync.RWMutex
	users        map[uuid.UUID]models.User
	wallets      map[uuid.UUID]models.Wallet
	transactions map[string]models.Transaction
	txSeq        map[string]int64
	nextSeq      int64
	events       map[uuid.UUID]models.WebhookEvent
	payments     map[string]models.GatewayPayment
	bills        map[uuid.UUID]models.BillPayment
}

// unitState buffers the writes of one unit of work until commit.
type unitState struct {
	held         map[string]bool
	heldOrder    []string
	users        map[uuid.UUID]models.User
	newUsers     []uuid.UUID
	wallets      map[uuid.UUID]models.Wallet
	newWallets   []uuid.UUID
	transactions map[string]models.Transaction
	newTxs       []string
	events       map[uuid.UUID]models.WebhookEvent
	payments     map[string]models.GatewayPayment
	bills        map[uuid.UUID]models.BillPayment
}

func newUnitState() *unitState {
	return &unitState{
		held:         make(map[string]bool),
		users:        make(map[uuid.UUID]models.User),
		wallets:      make(map[uuid.UUID]models.Wallet),
		transactions: make(map[string]models.Transaction),
		events:       make(map[uuid.UUID]models.WebhookEvent),
		payments:     make(map[string]models.GatewayPayment),
		bills:        make(map[uuid.UUID]models.BillPayment),
	}
}

// Store implements repositories.LedgerRepository in memory. The value
// returned by New is in autocommit mode; ExecuteInTransaction hands fn a
// Store bound to a unit.
type Store struct {
	st          *state
	locks       *lockTable
	lockTimeout time.Duration
	unit        *unitState
}

type Option func(*Store)

// WithLockTimeout bounds how long a unit waits for a row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

func New(opts ...Option) *Store {
	s := &Store{
		st: &state{
			users:        make(map[uuid.UUID]models.User),
			wallets:      make(map[uuid.UUID]models.Wallet),
			transactions: make(map[string]models.Transaction),
			txSeq:        make(map[string]int64),
			events:       make(map[uuid.UUID]models.WebhookEvent),
			payments:     make(map[string]models.GatewayPayment),
			bills:        make(map[uuid.UUID]models.BillPayment),
		},
		locks:       newLockTable(),
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repositories.LedgerRepository = (*Store)(nil)

func (s *Store) ExecuteInTransaction(ctx context.Context, fn func(repositories.LedgerRepository) error) error {
	if s.unit != nil {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	u := &Store{st: s.st, locks: s.locks, lockTimeout: s.lockTimeout, unit: newUnitState()}
	defer u.releaseAll()
	if err := fn(u); err != nil {
		return err
	}
	return u.commit()
}

// inUnit runs fn inside the current unit, or inside a fresh one when the
// store is in autocommit mode.
func (s *Store) inUnit(ctx context.Context, fn func(u *Store) error) error {
	if s.unit != nil {
		return fn(s)
	}
	return s.ExecuteInTransaction(ctx, func(r repositories.LedgerRepository) error {
		return fn(r.(*Store))
	})
}

func (s *Store) lock(ctx context.Context, key string) error {
	if s.unit == nil {
		return errors.New("memory store: row locks require a unit of work")
	}
	if s.unit.held[key] {
		return nil
	}
	if err := s.locks.acquire(ctx, key, s.lockTimeout); err != nil {
		return err
	}
	s.unit.held[key] = true
	s.unit.heldOrder = append(s.unit.heldOrder, key)
	return nil
}

func (s *Store) releaseAll() {
	for i := len(s.unit.heldOrder) - 1; i >= 0; i-- {
		s.locks.release(s.unit.heldOrder[i])
	}
	s.unit.heldOrder = nil
	s.unit.held = map[string]bool{}
}

func walletKey(id uuid.UUID) string { return "wallet:" + id.String() }
func txKey(ref string) string       { return "txn:" + ref }
func paymentKey(ref string) string  { return "payment:" + ref }

func (s *Store) commit() error {
	st := s.st
	u := s.unit
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, id := range u.newUsers {
		user := u.users[id]
		for _, existing := range st.users {
			if strings.EqualFold(existing.Email, user.Email) {
				return apperrors.Wrap(apperrors.ErrDuplicateReference, "email %s already registered", user.Email)
			}
		}
	}
	for _, id := range u.newWallets {
		w := u.wallets[id]
		for _, existing := range st.wallets {
			if existing.AccountNumber == w.AccountNumber || existing.OwnerID == w.OwnerID {
				return apperrors.Wrap(apperrors.ErrDuplicateReference, "wallet %s already exists", w.AccountNumber)
			}
		}
	}
	for _, ref := range u.newTxs {
		if _, ok := st.transactions[ref]; ok {
			return apperrors.Wrap(apperrors.ErrDuplicateReference, "transaction %s already exists", ref)
		}
		tx := u.transactions[ref]
		if tx.ReversesReference != nil && st.reversalOf(*tx.ReversesReference) != nil {
			return apperrors.Wrap(apperrors.ErrDuplicateReference, "transaction %s already compensated", *tx.ReversesReference)
		}
	}

	for id, user := range u.users {
		st.users[id] = user
	}
	for id, w := range u.wallets {
		st.wallets[id] = w
	}
	for _, ref := range u.newTxs {
		st.nextSeq++
		st.txSeq[ref] = st.nextSeq
	}
	for ref, tx := range u.transactions {
		st.transactions[ref] = tx
	}
	for id, e := range u.events {
		st.events[id] = e
	}
	for ref, p := range u.payments {
		st.payments[ref] = p
	}
	for id, b := range u.bills {
		st.bills[id] = b
	}
	return nil
}

// reversalOf scans committed rows; callers hold st.mu.
func (st *state) reversalOf(ref string) *models.Transaction {
	for _, tx := range st.transactions {
		if tx.ReversesReference != nil && *tx.ReversesReference == ref {
			out := cloneTx(tx)
			return &out
		}
	}
	return nil
}

func cloneTx(tx models.Transaction) models.Transaction {
	if tx.Metadata != nil {
		tx.Metadata = tx.Metadata.Clone()
	}
	return tx
}

// Users

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if _, err := s.GetUserByEmail(ctx, user.Email); err == nil {
		return apperrors.Wrap(apperrors.ErrDuplicateReference, "email %s already registered", user.Email)
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	return s.inUnit(ctx, func(u *Store) error {
		u.unit.users[user.ID] = *user
		u.unit.newUsers = append(u.unit.newUsers, user.ID)
		return nil
	})
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if s.unit != nil {
		if user, ok := s.unit.users[id]; ok {
			return &user, nil
		}
	}
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	if user, ok := s.st.users[id]; ok {
		return &user, nil
	}
	return nil, apperrors.ErrUserNotFound
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.unit != nil {
		for _, user := range s.unit.users {
			if strings.EqualFold(user.Email, email) {
				u := user
				return &u, nil
			}
		}
	}
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	for _, user := range s.st.users {
		if strings.EqualFold(user.Email, email) {
			u := user
			return &u, nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func (s *Store) UpdateUserPin(ctx context.Context, id uuid.UUID, pinHash string) error {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	user.PinHash = pinHash
	user.UpdatedAt = time.Now().UTC()
	return s.inUnit(ctx, func(u *Store) error {
		u.unit.users[id] = *user
		return nil
	})
}

// Wallets

func (s *Store) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	if wallet.ID == uuid.Nil {
		wallet.ID = uuid.New()
	}
	if wallet.Currency == "" {
		wallet.Currency = models.DefaultCurrency
	}
	if _, err := s.FindWalletByAccountNumber(ctx, wallet.AccountNumber); err == nil {
		return apperrors.Wrap(apperrors.ErrDuplicateReference, "account number %s already exists", wallet.AccountNumber)
	}
	if _, err := s.GetWalletByOwner(ctx, wallet.OwnerID); err == nil {
		return apperrors.Wrap(apperrors.ErrDuplicateReference, "owner %s already has a wallet", wallet.OwnerID)
	}
	now := time.Now().UTC()
	wallet.CreatedAt, wallet.UpdatedAt = now, now
	return s.inUnit(ctx, func(u *Store) error {
		u.unit.wallets[wallet.ID] = *wallet
		u.unit.newWallets = append(u.unit.newWallets, wallet.ID)
		return nil
	})
}

func (s *Store) findWallet(match func(models.Wallet) bool) (*models.Wallet, error) {
	if s.unit != nil {
		for _, w := range s.unit.wallets {
			if match(w) {
				out := w
				return &out, nil
			}
		}
	}
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	for id, w := range s.st.wallets {
		if s.unit != nil {
			if _, shadowed := s.unit.wallets[id]; shadowed {
				continue
			}
		}
		if match(w) {
			out := w
			return &out, nil
		}
	}
	return nil, apperrors.ErrWalletNotFound
}

func (s *Store) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return s.findWallet(func(w models.Wallet) bool { return w.ID == id })
}

func (s *Store) GetWalletByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Wallet, error) {
	return s.findWallet(func(w models.Wallet) bool { return w.OwnerID == ownerID })
}

func (s *Store) FindWalletByAccountNumber(ctx context.Context, accountNumber string) (*models.Wallet, error) {
	return s.findWallet(func(w models.Wallet) bool { return w.AccountNumber == accountNumber })
}

func (s *Store) LockWallets(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error) {
	locked := make(map[uuid.UUID]*models.Wallet, len(ids))
	for _, id := range repositories.SortWalletIDs(ids) {
		if _, err := s.GetWallet(ctx, id); err != nil {
			return nil, err
		}
		if err := s.lock(ctx, walletKey(id)); err != nil {
			return nil, err
		}
		// Re-read after acquiring: a unit that held the lock may have
		// committed new balances meanwhile.
		w, err := s.GetWallet(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = w
	}
	return locked, nil
}

func (s *Store) ApplyDelta(ctx context.Context, id uuid.UUID, delta, ledgerDelta decimal.Decimal) (*models.Wallet, error) {
	if s.unit == nil || !s.unit.held[walletKey(id)] {
		return nil, errors.New("memory store: ApplyDelta requires the wallet to be locked in the current unit")
	}
	w, err := s.GetWallet(ctx, id)
	if err != nil {
		return nil, err
	}
	next := w.Balance.Add(delta)
	if next.IsNegative() {
		return nil, apperrors.ErrInsufficientFunds
	}
	w.Balance = next
	w.LedgerBalance = w.LedgerBalance.Add(ledgerDelta)
	w.UpdatedAt = time.Now().UTC()
	s.unit.wallets[id] = *w
	out := *w
	return &out, nil
}

func (s *Store) UpdateWalletStatus(ctx context.Context, wallet *models.Wallet) error {
	current, err := s.GetWallet(ctx, wallet.ID)
	if err != nil {
		return err
	}
	current.IsFrozen = wallet.IsFrozen
	current.FreezeReason = wallet.FreezeReason
	current.IsActive = wallet.IsActive
	current.UpdatedAt = time.Now().UTC()
	return s.inUnit(ctx, func(u *Store) error {
		u.unit.wallets[current.ID] = *current
		return nil
	})
}

// Transactions

func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if _, err := s.FindTransactionByReference(ctx, tx.Reference); err == nil {
		return apperrors.Wrap(apperrors.ErrDuplicateReference, "transaction %s already exists", tx.Reference)
	}
	if tx.ReversesReference != nil {
		existing, err := s.FindReversalOf(ctx, *tx.ReversesReference)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.Wrap(apperrors.ErrDuplicateReference, "transaction %s already compensated", *tx.ReversesReference)
		}
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = tx.CreatedAt
	}
	return s.inUnit(ctx, func(u *Store) error {
		u.unit.transactions[tx.Reference] = cloneTx(*tx)
		u.unit.newTxs = append(u.unit.newTxs, tx.Reference)
		return nil
	})
}

func (s *Store) UpdateTransaction(ctx context.Context, tx *models.Transaction) error {
	current, err := s.FindTransactionByReference(ctx, tx.Reference)
	if err != nil {
		return err
	}
	current.Status = tx.Status
	current.ExternalReference = tx.ExternalReference
	current.ApprovedBy = tx.ApprovedBy
	current.ApprovedAt = tx.ApprovedAt
	current.CompletedAt = tx.CompletedAt
	current.Metadata = tx.Metadata
	current.UpdatedAt = tx.UpdatedAt
	if current.UpdatedAt.IsZero() {
		current.UpdatedAt = time.Now().UTC()
	}
	return s.inUnit(ctx, func(u *Store) error {
		u.unit.transactions[current.Reference] = cloneTx(*current)
		return nil
	})
}

func (s *Store) FindTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	if s.unit != nil {
		if tx, ok := s.unit.transactions[reference]; ok {
			out := cloneTx(tx)
			return &out, nil
		}
	}
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	if tx, ok := s.st.transactions[reference]; ok {
		out := cloneTx(tx)
		return &out, nil
	}
	return nil, apperrors.ErrTransactionNotFound
}

func (s *Store) LockTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	if _, err := s.FindTransactionByReference(ctx, reference); err != nil {
		return nil, err
	}
	if err := s.lock(ctx, txKey(reference)); err != nil {
		return nil, err
	}
	return s.FindTransactionByReference(ctx, reference)
}

func (s *Store) FindReversalOf(ctx context.Context, reference string) (*models.Transaction, error) {
	if s.unit != nil {
		for _, tx := range s.unit.transactions {
			if tx.ReversesReference != nil && *tx.ReversesReference == reference {
				out := cloneTx(tx)
				return &out, nil
			}
		}
	}
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	return s.st.reversalOf(reference), nil
}

func matchesFilter(tx models.Transaction, f repositories.TransactionFilter) bool {
	if f.WalletID != nil && (tx.WalletID == nil || *tx.WalletID != *f.WalletID) {
		return false
	}
	if f.OwnerID != nil && tx.OwnerID != *f.OwnerID {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.ExcludeType != "" && tx.Type == f.ExcludeType {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.RequiresApproval != nil && tx.RequiresApproval != *f.RequiresApproval {
		return false
	}
	if f.HasExternalRef != nil && (tx.ExternalReference != nil) != *f.HasExternalRef {
		return false
	}
	if f.UpdatedBefore != nil && !tx.UpdatedAt.Before(*f.UpdatedBefore) {
		return false
	}
	return true
}

func (s *Store) ListTransactions(ctx context.Context, filter repositories.TransactionFilter) ([]models.Transaction, int64, error) {
	type row struct {
		tx  models.Transaction
		seq int64
	}
	var rows []row

	s.st.mu.RLock()
	for ref, tx := range s.st.transactions {
		if s.unit != nil {
			if _, shadowed := s.unit.transactions[ref]; shadowed {
				continue
			}
		}
		if matchesFilter(tx, filter) {
			rows = append(rows, row{tx: cloneTx(tx), seq: s.st.txSeq[ref]})
		}
	}
	base := s.st.nextSeq
	s.st.mu.RUnlock()

	if s.unit != nil {
		pending := make(map[string]int64, len(s.unit.newTxs))
		for i, ref := range s.unit.newTxs {
			pending[ref] = base + int64(i) + 1
		}
		s.st.mu.RLock()
		for ref, tx := range s.unit.transactions {
			if !matchesFilter(tx, filter) {
				continue
			}
			seq, ok := pending[ref]
			if !ok {
				seq = s.st.txSeq[ref]
			}
			rows = append(rows, row{tx: cloneTx(tx), seq: seq})
		}
		s.st.mu.RUnlock()
	}

	sort.Slice(rows, func(i, j int) bool {
		if filter.OldestFirst {
			return rows[i].seq < rows[j].seq
		}
		return rows[i].seq > rows[j].seq
	})

	total := int64(len(rows))
	start := filter.Offset
	if start < 0 {
		start = 0
	}
	if start > len(rows) {
		start = len(rows)
	}
	end := len(rows)
	if filter.Limit > 0 && filter.Limit < end-start {
		end = start + filter.Limit
	}
	out := make([]models.Transaction, 0, end-start)
	for _, r := range rows[start:end] {
		out = append(out, r.tx)
	}
	return out, total, nil
}

// Settlement records

func (s *Store) CreateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return s.inUnit(ctx, func(u *Store) error {
		u.unit.events[event.ID] = *event
		return nil
	})
}

func (s *Store) UpdateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	return s.inUnit(ctx, func(u *Store) error {
		u.unit.events[event.ID] = *event
		return nil
	})
}

// WebhookEvents returns a snapshot of the committed webhook log.
func (s *Store) WebhookEvents() []models.WebhookEvent {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	out := make([]models.WebhookEvent, 0, len(s.st.events))
	for _, e := range s.st.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out
}

// BillPayments returns a snapshot of the committed bill records.
func (s *Store) BillPayments() []models.BillPayment {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	out := make([]models.BillPayment, 0, len(s.st.bills))
	for _, b := range s.st.bills {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) CreateGatewayPayment(ctx context.Context, payment *models.GatewayPayment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	if _, err := s.FindGatewayPayment(ctx, payment.Reference); err == nil {
		return apperrors.Wrap(apperrors.ErrDuplicateReference, "payment %s already exists", payment.Reference)
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	return s.inUnit(ctx, func(u *Store) error {
		u.unit.payments[payment.Reference] = *payment
		return nil
	})
}

func (s *Store) UpdateGatewayPayment(ctx context.Context, payment *models.GatewayPayment) error {
	if _, err := s.FindGatewayPayment(ctx, payment.Reference); err != nil {
		return err
	}
	payment.UpdatedAt = time.Now().UTC()
	return s.inUnit(ctx, func(u *Store) error {
		u.unit.payments[payment.Reference] = *payment
		return nil
	})
}

func (s *Store) FindGatewayPayment(ctx context.Context, reference string) (*models.GatewayPayment, error) {
	if s.unit != nil {
		if p, ok := s.unit.payments[reference]; ok {
			return &p, nil
		}
	}
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	if p, ok := s.st.payments[reference]; ok {
		return &p, nil
	}
	return nil, apperrors.ErrPaymentNotFound
}

func (s *Store) LockGatewayPayment(ctx context.Context, reference string) (*models.GatewayPayment, error) {
	if _, err := s.FindGatewayPayment(ctx, reference); err != nil {
		return nil, err
	}
	if err := s.lock(ctx, paymentKey(reference)); err != nil {
		return nil, err
	}
	return s.FindGatewayPayment(ctx, reference)
}

func (s *Store) AbandonStalePayments(ctx context.Context, createdBefore time.Time) (int64, error) {
	var n int64
	err := s.inUnit(ctx, func(u *Store) error {
		u.st.mu.RLock()
		var candidates []string
		for ref, p := range u.st.payments {
			if p.Status == models.PaymentStatusPending && p.CreatedAt.Before(createdBefore) {
				candidates = append(candidates, ref)
			}
		}
		u.st.mu.RUnlock()
		sort.Strings(candidates)

		now := time.Now().UTC()
		for _, ref := range candidates {
			p, err := u.LockGatewayPayment(ctx, ref)
			if errors.Is(err, apperrors.ErrBusy) {
				// Being settled right now; the next sweep will see the outcome.
				continue
			}
			if err != nil {
				return err
			}
			if p.Status != models.PaymentStatusPending {
				continue
			}
			p.Status = models.PaymentStatusAbandoned
			p.UpdatedAt = now
			u.unit.payments[p.Reference] = *p
			n++
		}
		return nil
	})
	return n, err
}

func (s *Store) CreateBillPayment(ctx context.Context, bill *models.BillPayment) error {
	if bill.ID == uuid.Nil {
		bill.ID = uuid.New()
	}
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}
	return s.inUnit(ctx, func(u *Store) error {
		u.unit.bills[bill.ID] = *bill
		return nil
	})
}

func (s *Store) UpdateBillPayment(ctx context.Context, bill *models.BillPayment) error {
	return s.inUnit(ctx, func(u *Store) error {
		if _, ok := u.unit.bills[bill.ID]; !ok {
			u.st.mu.RLock()
			_, ok = u.st.bills[bill.ID]
			u.st.mu.RUnlock()
			if !ok {
				return fmt.Errorf("bill payment %s not found", bill.ID)
			}
		}
		u.unit.bills[bill.ID] = *bill
		return nil
	})
}

func (s *Store) ListBillPayments(ctx context.Context, status string, createdBefore time.Time, limit int) ([]models.BillPayment, error) {
	var out []models.BillPayment
	for _, b := range s.BillPayments() {
		if b.Status != status || !b.CreatedAt.Before(createdBefore) {
			continue
		}
		out = append(out, b)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
