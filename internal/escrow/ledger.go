// Package escrow manages the funded balance of an agreement and the
// two-phase payout of approved milestones.
package escrow

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/calimero-network/MeroSign/internal/model"
)

// TransferService moves funds to a recipient. Implementations may block for
// an arbitrary time (a chain call, a payment API), so Execute releases the
// ledger lock while the transfer is in flight.
type TransferService interface {
	Transfer(ctx context.Context, recipient model.Identity, amount uint64) error
}

// TransferFunc adapts a function to the TransferService interface.
type TransferFunc func(ctx context.Context, recipient model.Identity, amount uint64) error

func (f TransferFunc) Transfer(ctx context.Context, recipient model.Identity, amount uint64) error {
	return f(ctx, recipient, amount)
}

// CheckedAdd returns a+b or ErrOverflow if the sum would wrap.
func CheckedAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, fmt.Errorf("%d + %d: %w", a, b, model.ErrOverflow)
	}
	return a + b, nil
}

// Fund adds amount to an agreement's escrow. Only parties to an active
// agreement may fund it, and the amount must be positive.
func Fund(a *model.Agreement, actor model.Identity, amount uint64) error {
	if a.Status != model.AgreementActive {
		return fmt.Errorf("agreement %q is %s: %w", a.ID, a.Status, model.ErrNotReady)
	}
	if !a.IsParty(actor) {
		return fmt.Errorf("%w: %q is not a party to agreement %q", model.ErrUnauthorized, actor, a.ID)
	}
	if amount == 0 {
		return fmt.Errorf("funding amount must be positive: %w", model.ErrInvalidInput)
	}
	total, err := CheckedAdd(a.TotalFunding, amount)
	if err != nil {
		return err
	}
	remaining, err := CheckedAdd(a.RemainingBalance, amount)
	if err != nil {
		return err
	}
	a.TotalFunding = total
	a.RemainingBalance = remaining
	return nil
}

// Ledger executes approved milestones against an agreement's balance.
//
// Execution is two-phase: under mu the milestone is reserved (status set to
// Executing, balance decremented), then the lock is dropped for the transfer
// itself. A failed transfer rolls the reservation back; a successful one
// finalizes the milestone as Executed. Because the balance is already
// debited while the transfer is in flight, a concurrent Execute of the same
// or another milestone can never spend the same funds twice.
type Ledger struct {
	mu       sync.Locker
	transfer TransferService
}

// ResolveFunc looks up the current agreement object. Execute calls it under
// mu, once to reserve and again after the transfer await: a replica merge
// may have swapped the hosted objects while the lock was released, and the
// finalize must land on the live ones, not on stale phase-one pointers.
type ResolveFunc func() (*model.Agreement, error)

// Resolved adapts a fixed agreement to a ResolveFunc, for callers whose
// agreement cannot be swapped out from under them.
func Resolved(a *model.Agreement) ResolveFunc {
	return func() (*model.Agreement, error) { return a, nil }
}

// NewLedger builds a Ledger around transfer. mu must be the same lock that
// guards all other mutations of the agreements handed to Execute.
func NewLedger(mu sync.Locker, transfer TransferService) *Ledger {
	return &Ledger{mu: mu, transfer: transfer}
}

// Execute pays out one approved milestone. It returns the milestone in its
// final state. Only milestones that are exactly Approved are executable; a
// milestone already reserved by a concurrent call reports ErrNotApproved.
func (l *Ledger) Execute(ctx context.Context, resolve ResolveFunc, milestoneID uint64, now int64) (*model.Milestone, error) {
	l.mu.Lock()
	a, err := resolve()
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	if a.Status != model.AgreementActive {
		status := a.Status
		l.mu.Unlock()
		return nil, fmt.Errorf("agreement %q is %s: %w", a.ID, status, model.ErrNotReady)
	}
	m := a.Milestone(milestoneID)
	if m == nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("milestone %d in agreement %q: %w", milestoneID, a.ID, model.ErrNotFound)
	}
	if m.Status != model.MilestoneApproved {
		status := m.Status
		l.mu.Unlock()
		return nil, fmt.Errorf("milestone %d is %s: %w", milestoneID, status, model.ErrNotApproved)
	}
	if a.RemainingBalance < m.Amount {
		balance := a.RemainingBalance
		l.mu.Unlock()
		return nil, fmt.Errorf("milestone %d needs %d, balance is %d: %w", milestoneID, m.Amount, balance, model.ErrInsufficientBalance)
	}

	// Reserve before the await so nothing else can touch these funds.
	m.Status = model.MilestoneExecuting
	a.RemainingBalance -= m.Amount
	agreementID, recipient, amount := a.ID, m.Recipient, m.Amount
	l.mu.Unlock()

	transferErr := l.transfer.Transfer(ctx, recipient, amount)

	l.mu.Lock()
	defer l.mu.Unlock()
	a, err = resolve()
	if err != nil {
		return nil, fmt.Errorf("agreement %q disappeared during transfer of %d to %q: %w", agreementID, amount, recipient, err)
	}
	m = a.Milestone(milestoneID)
	if m == nil {
		return nil, fmt.Errorf("milestone %d in agreement %q disappeared during transfer: %w", milestoneID, agreementID, model.ErrNotFound)
	}
	if transferErr != nil {
		if m.Status == model.MilestoneExecuting {
			m.Status = model.MilestoneApproved
			a.RemainingBalance += amount
		}
		return nil, fmt.Errorf("transfer of %d to %q failed: %w: %w", amount, recipient, model.ErrTemporarilyUnavailable, transferErr)
	}

	if m.Status != model.MilestoneExecuted {
		m.Status = model.MilestoneExecuted
		m.CompletedAt = now
	}
	if allExecuted(a) {
		a.Status = model.AgreementCompleted
	}
	return m, nil
}

func allExecuted(a *model.Agreement) bool {
	for _, m := range a.Milestones {
		if m.Status != model.MilestoneExecuted {
			return false
		}
	}
	return len(a.Milestones) > 0
}
