package service

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	appErrors "github.com/unclebandit/fundraise-backend/internal/errors"
	"github.com/unclebandit/fundraise-backend/internal/model"
)

// CommissionEscrow holds the platform commission and throttles withdrawals:
// at most WithdrawalLimitPercentage of the balance per withdrawal, at most one
// withdrawal per CooldownPeriod.
type CommissionEscrow struct {
	Policy model.CommissionPolicy
	// Admin is the only identity allowed to withdraw.
	Admin common.Address
	Now   func() time.Time
}

func NewCommissionEscrow(policy model.CommissionPolicy, admin common.Address, now func() time.Time) *CommissionEscrow {
	if now == nil {
		now = time.Now
	}
	return &CommissionEscrow{Policy: policy, Admin: admin, Now: now}
}

// Accumulate credits amount received from source.
func (e *CommissionEscrow) Accumulate(tx LedgerTx, source common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return appErrors.NewValidation("commission amount must be greater than zero")
	}
	acct := tx.Escrow()
	balance, overflow := new(uint256.Int).AddOverflow(acct.CurrentBalance, amount)
	if overflow {
		return appErrors.NewValidation("commission balance overflows")
	}
	total, overflow := new(uint256.Int).AddOverflow(acct.TotalAccumulated, amount)
	if overflow {
		return appErrors.NewValidation("accumulated commission overflows")
	}
	acct.CurrentBalance = balance
	acct.TotalAccumulated = total
	tx.SetEscrow(acct)
	tx.Emit(model.CommissionReceived{Source: source, Amount: amount.Clone()})
	return nil
}

// MaxWithdrawal returns floor(balance * limit / 100).
func (e *CommissionEscrow) MaxWithdrawal(acct model.CommissionAccount) *uint256.Int {
	v, _ := new(uint256.Int).MulDivOverflow(acct.CurrentBalance, uint256.NewInt(e.Policy.WithdrawalLimitPercentage), uint256.NewInt(100))
	return v
}

// NextWithdrawalAt is the earliest time the next withdrawal is allowed. It is
// the zero time before the first withdrawal.
func (e *CommissionEscrow) NextWithdrawalAt(acct model.CommissionAccount) time.Time {
	if acct.LastWithdrawalAt.IsZero() {
		return time.Time{}
	}
	return acct.LastWithdrawalAt.Add(e.Policy.CooldownPeriod)
}

// WithdrawAmount sends amount to to. A zero to means the caller.
func (e *CommissionEscrow) WithdrawAmount(tx LedgerTx, caller, to common.Address, amount *uint256.Int) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return appErrors.NewValidation("withdrawal amount must be greater than zero")
	}
	acct := tx.Escrow()
	now := e.Now()
	if err := e.checkCooldown(acct, now); err != nil {
		return err
	}
	if amount.Gt(e.MaxWithdrawal(acct)) {
		return appErrors.NewInsufficientFunds("amount exceeds the maximum allowed withdrawal")
	}
	e.debit(tx, acct, recipient(caller, to), amount, now)
	return nil
}

// WithdrawAll sends the current maximum to to and returns it.
func (e *CommissionEscrow) WithdrawAll(tx LedgerTx, caller, to common.Address) (*uint256.Int, error) {
	if err := e.authorize(caller); err != nil {
		return nil, err
	}
	acct := tx.Escrow()
	now := e.Now()
	if err := e.checkCooldown(acct, now); err != nil {
		return nil, err
	}
	amount := e.MaxWithdrawal(acct)
	if amount.IsZero() {
		return nil, appErrors.NewInsufficientFunds("nothing to withdraw")
	}
	e.debit(tx, acct, recipient(caller, to), amount, now)
	return amount, nil
}

func (e *CommissionEscrow) authorize(caller common.Address) error {
	if caller != e.Admin {
		return appErrors.NewAuthorization("not the escrow admin")
	}
	return nil
}

func (e *CommissionEscrow) checkCooldown(acct model.CommissionAccount, now time.Time) error {
	next := e.NextWithdrawalAt(acct)
	if now.Before(next) {
		return appErrors.NewCooldownActive(int64(next.Sub(now).Round(time.Second) / time.Second))
	}
	return nil
}

// debit assumes amount <= MaxWithdrawal(acct) <= CurrentBalance.
func (e *CommissionEscrow) debit(tx LedgerTx, acct model.CommissionAccount, to common.Address, amount *uint256.Int, now time.Time) {
	acct.CurrentBalance = new(uint256.Int).Sub(acct.CurrentBalance, amount)
	acct.TotalWithdrawn = new(uint256.Int).Add(acct.TotalWithdrawn, amount)
	acct.LastWithdrawalAt = now
	tx.SetEscrow(acct)
	tx.Emit(model.CommissionWithdrawn{To: to, Amount: amount.Clone()})
}

func recipient(caller, to common.Address) common.Address {
	if to == (common.Address{}) {
		return caller
	}
	return to
}
