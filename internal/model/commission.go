package model

import (
	"time"

	"github.com/holiman/uint256"
)

// CommissionPolicy holds the fixed parameters of the commission escrow.
type CommissionPolicy struct {
	CommissionPercentage      uint64        `json:"commission_percentage"`
	WithdrawalLimitPercentage uint64        `json:"withdrawal_limit_percentage"`
	CooldownPeriod            time.Duration `json:"cooldown_period"`
}

// DefaultCommissionPolicy is 1% commission, 50% withdrawal cap, 7 day cooldown.
func DefaultCommissionPolicy() CommissionPolicy {
	return CommissionPolicy{
		CommissionPercentage:      1,
		WithdrawalLimitPercentage: 50,
		CooldownPeriod:            7 * 24 * time.Hour,
	}
}

// CommissionAccount is the singleton escrow balance.
type CommissionAccount struct {
	CurrentBalance   *uint256.Int `json:"current_balance"`
	TotalAccumulated *uint256.Int `json:"total_accumulated"`
	TotalWithdrawn   *uint256.Int `json:"total_withdrawn"`
	// Zero until the first withdrawal.
	LastWithdrawalAt time.Time `json:"last_withdrawal_at"`
}

func NewCommissionAccount() CommissionAccount {
	return CommissionAccount{
		CurrentBalance:   new(uint256.Int),
		TotalAccumulated: new(uint256.Int),
		TotalWithdrawn:   new(uint256.Int),
	}
}

// Clone returns a deep copy.
func (a CommissionAccount) Clone() CommissionAccount {
	return CommissionAccount{
		CurrentBalance:   a.CurrentBalance.Clone(),
		TotalAccumulated: a.TotalAccumulated.Clone(),
		TotalWithdrawn:   a.TotalWithdrawn.Clone(),
		LastWithdrawalAt: a.LastWithdrawalAt,
	}
}
