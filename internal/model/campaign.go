// internal/model/campaign.go
package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// CampaignStatus is derived from a record and the current time, never stored.
type CampaignStatus string

const (
	StatusActive    CampaignStatus = "active"
	StatusFunded    CampaignStatus = "funded"
	StatusExpired   CampaignStatus = "expired"
	StatusWithdrawn CampaignStatus = "withdrawn"
	StatusDeleted   CampaignStatus = "deleted"
)

// Donation is one entry of a campaign's donor history. Amount is the net
// amount credited to the campaign.
type Donation struct {
	Donator   common.Address `json:"donator"`
	Amount    *uint256.Int   `json:"amount"`
	DonatedAt time.Time      `json:"donated_at"`
}

// Campaign is a fundraising record. Amounts are native units (wei).
type Campaign struct {
	ID              int             `json:"id"`
	Owner           common.Address  `json:"owner"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	TargetUSD       decimal.Decimal `json:"target_usd"`
	TargetNative    *uint256.Int    `json:"target"`
	Deadline        time.Time       `json:"deadline"`
	AmountCollected *uint256.Int    `json:"amount_collected"`
	TotalWithdrawn  *uint256.Int    `json:"total_withdrawn"`
	Image           string          `json:"image"`
	Donators        []Donation      `json:"donators"`
	Deleted         bool            `json:"deleted"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       *time.Time      `json:"updated_at,omitempty"`
}

// IsActive reports whether donations are still accepted at now. The deadline
// instant itself is still active.
func (c *Campaign) IsActive(now time.Time) bool {
	return !c.Deleted && !now.After(c.Deadline)
}

// TargetReached reports whether the collected amount meets the target.
func (c *Campaign) TargetReached() bool {
	return c.AmountCollected.Cmp(c.TargetNative) >= 0
}

// RemainingToRaise returns max(target - collected, 0).
func (c *Campaign) RemainingToRaise() *uint256.Int {
	if c.TargetReached() {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(c.TargetNative, c.AmountCollected)
}

// TotalDonated sums the donor history.
func (c *Campaign) TotalDonated() *uint256.Int {
	total := new(uint256.Int)
	for _, d := range c.Donators {
		total.Add(total, d.Amount)
	}
	return total
}

// Status classifies the campaign at now.
func (c *Campaign) Status(now time.Time) CampaignStatus {
	switch {
	case c.Deleted:
		return StatusDeleted
	case c.IsActive(now) && c.TargetReached():
		return StatusFunded
	case c.IsActive(now):
		return StatusActive
	case !c.TotalWithdrawn.IsZero() && c.AmountCollected.IsZero():
		return StatusWithdrawn
	default:
		return StatusExpired
	}
}

// Tombstone clears the record in place. The id stays allocated.
func (c *Campaign) Tombstone() {
	c.Owner = common.Address{}
	c.Title = ""
	c.Description = ""
	c.Image = ""
	c.Deleted = true
}

// DonatorShares returns floor(amount * 100 / total donated) for each entry of
// the donor history. Truncation is kept, so shares may sum to less than 100.
func (c *Campaign) DonatorShares() []uint64 {
	total := c.TotalDonated()
	shares := make([]uint64, len(c.Donators))
	if total.IsZero() {
		return shares
	}
	hundred := uint256.NewInt(100)
	for i, d := range c.Donators {
		v, _ := new(uint256.Int).MulDivOverflow(d.Amount, hundred, total)
		shares[i] = v.Uint64()
	}
	return shares
}
