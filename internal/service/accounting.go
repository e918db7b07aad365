package service

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	appErrors "github.com/unclebandit/fundraise-backend/internal/errors"
	"github.com/unclebandit/fundraise-backend/internal/model"
	"github.com/unclebandit/fundraise-backend/internal/oracle"
	"github.com/unclebandit/fundraise-backend/internal/repository"
)

// LedgerTx is the transaction state the engine works on.
type LedgerTx interface {
	repository.CampaignRepositoryInterface
	SetEscrow(a model.CommissionAccount)
	Emit(e model.Event)
}

var _ LedgerTx = (*repository.UnitOfWork)(nil)

// CreateCampaignRequest describes a new campaign. TargetUSD is converted to
// wei once, at creation.
type CreateCampaignRequest struct {
	// Owner defaults to the caller.
	Owner       common.Address
	Title       string
	Description string
	TargetUSD   decimal.Decimal
	Deadline    time.Time
	Image       string
}

// EditCampaignRequest always replaces Title and Description. Image, Deadline
// and TargetUSD change only when non-nil.
type EditCampaignRequest struct {
	Title       string
	Description string
	Image       *string
	Deadline    *time.Time
	TargetUSD   *decimal.Decimal
}

// DonationResult is what a committed donation split into: commission, net
// amount and the donor's share of the collected funds.
type DonationResult struct {
	CampaignID          int          `json:"campaign_id"`
	Amount              *uint256.Int `json:"amount"`
	Commission          *uint256.Int `json:"commission"`
	Net                 *uint256.Int `json:"net"`
	DonatorSharePercent uint64       `json:"donator_share_percent"`
	Remaining           *uint256.Int `json:"remaining"`
}

// AccountingEngine applies campaign commands to a transaction. All checks,
// the oracle call included, run before the first write.
type AccountingEngine struct {
	Oracle oracle.PriceOracle
	Escrow *CommissionEscrow
	// OracleTimeout bounds each price conversion. Zero means no bound.
	OracleTimeout time.Duration
	Now           func() time.Time
}

func NewAccountingEngine(o oracle.PriceOracle, escrow *CommissionEscrow, oracleTimeout time.Duration, now func() time.Time) *AccountingEngine {
	if now == nil {
		now = time.Now
	}
	return &AccountingEngine{Oracle: o, Escrow: escrow, OracleTimeout: oracleTimeout, Now: now}
}

func (e *AccountingEngine) CreateCampaign(ctx context.Context, tx LedgerTx, caller common.Address, req CreateCampaignRequest) (int, error) {
	now := e.Now()
	deadline := req.Deadline.Truncate(time.Second)
	if !deadline.After(now) {
		return 0, appErrors.NewValidation("the deadline should be a date in the future")
	}
	if !req.TargetUSD.IsPositive() {
		return 0, appErrors.NewValidation("target must be greater than zero")
	}
	target, err := e.convert(ctx, req.TargetUSD)
	if err != nil {
		return 0, err
	}

	owner := req.Owner
	if owner == (common.Address{}) {
		owner = caller
	}
	id, err := tx.Create(&model.Campaign{
		Owner:           owner,
		Title:           req.Title,
		Description:     req.Description,
		TargetUSD:       req.TargetUSD,
		TargetNative:    target,
		Deadline:        deadline,
		AmountCollected: new(uint256.Int),
		TotalWithdrawn:  new(uint256.Int),
		Image:           req.Image,
		CreatedAt:       now,
	})
	if err != nil {
		return 0, err
	}
	tx.Emit(model.CampaignCreated{CampaignID: id, Owner: owner, Title: req.Title})
	return id, nil
}

func (e *AccountingEngine) EditCampaign(ctx context.Context, tx LedgerTx, caller common.Address, id int, req EditCampaignRequest) error {
	c, err := e.ownedCampaign(tx, caller, id)
	if err != nil {
		return err
	}
	now := e.Now()
	if req.Deadline != nil && !req.Deadline.Truncate(time.Second).After(now) {
		return appErrors.NewValidation("the deadline should be a date in the future")
	}
	if req.TargetUSD != nil {
		if !req.TargetUSD.IsPositive() {
			return appErrors.NewValidation("target must be greater than zero")
		}
		target, err := e.convert(ctx, *req.TargetUSD)
		if err != nil {
			return err
		}
		c.TargetUSD = *req.TargetUSD
		c.TargetNative = target
	}

	c.Title = req.Title
	c.Description = req.Description
	if req.Image != nil {
		c.Image = *req.Image
	}
	if req.Deadline != nil {
		c.Deadline = req.Deadline.Truncate(time.Second)
	}
	c.UpdatedAt = &now
	if err := tx.Update(c); err != nil {
		return err
	}
	tx.Emit(model.CampaignEdited{CampaignID: id, Title: c.Title, Description: c.Description})
	return nil
}

func (e *AccountingEngine) DeleteCampaign(ctx context.Context, tx LedgerTx, caller common.Address, id int) error {
	c, err := e.ownedCampaign(tx, caller, id)
	if err != nil {
		return err
	}
	if !c.AmountCollected.IsZero() {
		return appErrors.NewStateConflict("cannot delete a campaign with collected funds")
	}
	if err := tx.Delete(id); err != nil {
		return err
	}
	tx.Emit(model.CampaignDeleted{CampaignID: id, Owner: c.Owner})
	return nil
}

func (e *AccountingEngine) DonateToCampaign(ctx context.Context, tx LedgerTx, donator common.Address, id int, amount *uint256.Int) (DonationResult, error) {
	c, err := liveCampaign(tx, id)
	if err != nil {
		return DonationResult{}, err
	}
	if amount == nil || amount.IsZero() {
		return DonationResult{}, appErrors.NewValidation("donation amount must be greater than zero")
	}
	now := e.Now()
	if !c.IsActive(now) {
		return DonationResult{}, appErrors.NewState("campaign is no longer active")
	}
	if c.TargetReached() {
		return DonationResult{}, appErrors.NewState("campaign target already reached")
	}

	commission, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(e.Escrow.Policy.CommissionPercentage), uint256.NewInt(100))
	net := new(uint256.Int).Sub(amount, commission)
	collected, overflow := new(uint256.Int).AddOverflow(c.AmountCollected, net)
	if overflow {
		return DonationResult{}, appErrors.NewValidation("donation overflows the campaign balance")
	}

	if !commission.IsZero() {
		if err := e.Escrow.Accumulate(tx, donator, commission); err != nil {
			return DonationResult{}, err
		}
	}

	c.AmountCollected = collected
	c.Donators = append(c.Donators, model.Donation{Donator: donator, Amount: net.Clone(), DonatedAt: now})
	if err := tx.Update(c); err != nil {
		return DonationResult{}, err
	}

	// share of the net amount in the post-donation balance, truncated
	share, _ := new(uint256.Int).MulDivOverflow(net, uint256.NewInt(100), collected)
	remaining := c.RemainingToRaise()
	tx.Emit(model.DonationReceived{
		CampaignID:          id,
		Donator:             donator,
		NetAmount:           net.Clone(),
		DonatorSharePercent: share.Uint64(),
	})
	tx.Emit(model.RemainingAmountToRaise{CampaignID: id, Remaining: remaining.Clone()})

	return DonationResult{
		CampaignID:          id,
		Amount:              amount.Clone(),
		Commission:          commission,
		Net:                 net,
		DonatorSharePercent: share.Uint64(),
		Remaining:           remaining,
	}, nil
}

func (e *AccountingEngine) WithdrawFunds(ctx context.Context, tx LedgerTx, caller common.Address, id int) (*uint256.Int, error) {
	c, err := e.ownedCampaign(tx, caller, id)
	if err != nil {
		return nil, err
	}
	if c.IsActive(e.Now()) {
		return nil, appErrors.NewState("funds can only be withdrawn if the campaign deadline has passed")
	}
	if c.AmountCollected.IsZero() {
		return nil, appErrors.NewState("nothing to withdraw")
	}

	amount := c.AmountCollected
	c.TotalWithdrawn = new(uint256.Int).Add(c.TotalWithdrawn, amount)
	c.AmountCollected = new(uint256.Int)
	if err := tx.Update(c); err != nil {
		return nil, err
	}
	tx.Emit(model.Withdrawal{CampaignID: id, Owner: c.Owner, Amount: amount.Clone()})
	return amount, nil
}

// ownedCampaign loads a live campaign and checks caller owns it.
func (e *AccountingEngine) ownedCampaign(tx LedgerTx, caller common.Address, id int) (*model.Campaign, error) {
	c, err := liveCampaign(tx, id)
	if err != nil {
		return nil, err
	}
	if c.Owner != caller {
		return nil, appErrors.NewAuthorization("not the campaign owner")
	}
	return c, nil
}

// liveCampaign treats tombstones as missing.
func liveCampaign(tx repository.CampaignReader, id int) (*model.Campaign, error) {
	c, err := tx.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.Deleted {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, nil
}

// convert runs the oracle with its own deadline. Failures of any kind abort
// as oracle errors.
func (e *AccountingEngine) convert(ctx context.Context, usd decimal.Decimal) (*uint256.Int, error) {
	if e.OracleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.OracleTimeout)
		defer cancel()
	}
	v, err := e.Oracle.ConvertUSDToNative(ctx, usd)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Kind == appErrors.KindOracle {
			return nil, err
		}
		return nil, appErrors.NewOracle("convert target", err)
	}
	if v == nil || v.IsZero() {
		return nil, appErrors.NewValidation("target converts to zero native units")
	}
	return v, nil
}
