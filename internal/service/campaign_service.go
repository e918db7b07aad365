// internal/service/campaign_service.go
package service

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	appErrors "github.com/unclebandit/fundraise-backend/internal/errors"
	"github.com/unclebandit/fundraise-backend/internal/ledger"
	"github.com/unclebandit/fundraise-backend/internal/model"
	"github.com/unclebandit/fundraise-backend/internal/repository"
)

// Command names recorded in the journal and used as metric labels.
const (
	CmdCreateCampaign        = "CreateCampaign"
	CmdEditCampaign          = "EditCampaign"
	CmdDeleteCampaign        = "DeleteCampaign"
	CmdDonateToCampaign      = "DonateToCampaign"
	CmdWithdrawFunds         = "WithdrawFunds"
	CmdWithdrawCommission    = "WithdrawCommission"
	CmdWithdrawAllCommission = "WithdrawAllCommission"
)

// CampaignService is the entry point for callers. Commands run as ledger
// transactions; queries read the last committed snapshot.
type CampaignService struct {
	Executor *ledger.Executor
	Engine   *AccountingEngine
	Escrow   *CommissionEscrow
}

func NewCampaignService(exec *ledger.Executor, engine *AccountingEngine) *CampaignService {
	return &CampaignService{Executor: exec, Engine: engine, Escrow: engine.Escrow}
}

// CampaignDetails is a campaign with its derived figures.
type CampaignDetails struct {
	model.Campaign
	Status           model.CampaignStatus `json:"status"`
	RemainingToRaise *uint256.Int         `json:"remaining_to_raise"`
}

// CommissionSummary gathers every escrow accessor.
type CommissionSummary struct {
	Admin                     common.Address `json:"admin"`
	CommissionPercentage      uint64         `json:"commission_percentage"`
	WithdrawalLimitPercentage uint64         `json:"withdrawal_limit_percentage"`
	CooldownPeriodSeconds     int64          `json:"cooldown_period_seconds"`
	CurrentTotalAccumulated   *uint256.Int   `json:"current_total_accumulated"`
	TotalAccumulatedEver      *uint256.Int   `json:"total_accumulated_ever"`
	TotalAmountWithdrawn      *uint256.Int   `json:"total_amount_withdrawn"`
	MaximumWithdrawalAllowed  *uint256.Int   `json:"maximum_withdrawal_allowed"`
	LastWithdrawalTimestamp   int64          `json:"last_withdrawal_timestamp"`
	NextWithdrawalTimestamp   int64          `json:"next_withdrawal_timestamp"`
}

// ====================== Commands ======================

func (s *CampaignService) CreateCampaign(ctx context.Context, caller common.Address, req CreateCampaignRequest) (int, error) {
	return ledger.Do(ctx, s.Executor, CmdCreateCampaign, caller, func(ctx context.Context, uow *repository.UnitOfWork) (int, error) {
		return s.Engine.CreateCampaign(ctx, uow, caller, req)
	})
}

func (s *CampaignService) EditCampaign(ctx context.Context, caller common.Address, id int, req EditCampaignRequest) error {
	_, err := s.Executor.Submit(ctx, CmdEditCampaign, caller, func(ctx context.Context, uow *repository.UnitOfWork) (any, error) {
		return nil, s.Engine.EditCampaign(ctx, uow, caller, id, req)
	})
	return err
}

func (s *CampaignService) DeleteCampaign(ctx context.Context, caller common.Address, id int) error {
	_, err := s.Executor.Submit(ctx, CmdDeleteCampaign, caller, func(ctx context.Context, uow *repository.UnitOfWork) (any, error) {
		return nil, s.Engine.DeleteCampaign(ctx, uow, caller, id)
	})
	return err
}

func (s *CampaignService) DonateToCampaign(ctx context.Context, donator common.Address, id int, amount *uint256.Int) (DonationResult, error) {
	return ledger.Do(ctx, s.Executor, CmdDonateToCampaign, donator, func(ctx context.Context, uow *repository.UnitOfWork) (DonationResult, error) {
		return s.Engine.DonateToCampaign(ctx, uow, donator, id, amount)
	})
}

func (s *CampaignService) WithdrawFunds(ctx context.Context, caller common.Address, id int) (*uint256.Int, error) {
	return ledger.Do(ctx, s.Executor, CmdWithdrawFunds, caller, func(ctx context.Context, uow *repository.UnitOfWork) (*uint256.Int, error) {
		return s.Engine.WithdrawFunds(ctx, uow, caller, id)
	})
}

// WithdrawCommission withdraws amount from the escrow to to.
func (s *CampaignService) WithdrawCommission(ctx context.Context, caller, to common.Address, amount *uint256.Int) error {
	_, err := s.Executor.Submit(ctx, CmdWithdrawCommission, caller, func(ctx context.Context, uow *repository.UnitOfWork) (any, error) {
		return nil, s.Escrow.WithdrawAmount(uow, caller, to, amount)
	})
	return err
}

// WithdrawAllCommission withdraws the current maximum and returns it.
func (s *CampaignService) WithdrawAllCommission(ctx context.Context, caller, to common.Address) (*uint256.Int, error) {
	return ledger.Do(ctx, s.Executor, CmdWithdrawAllCommission, caller, func(ctx context.Context, uow *repository.UnitOfWork) (*uint256.Int, error) {
		return s.Escrow.WithdrawAll(uow, caller, to)
	})
}

// ====================== Queries ======================

// LastCommittedSeq is the sequence number of the snapshot queries read.
func (s *CampaignService) LastCommittedSeq() uint64 {
	return s.Executor.Snapshot().Seq()
}

// GetCampaigns returns every campaign in id order, tombstones included.
func (s *CampaignService) GetCampaigns() []model.Campaign {
	return s.Executor.Snapshot().ListAll()
}

// GetActiveCampaigns omits tombstones.
func (s *CampaignService) GetActiveCampaigns() []model.Campaign {
	return s.Executor.Snapshot().ListActive()
}

// GetCampaign returns a single record. Tombstones are returned as such.
func (s *CampaignService) GetCampaign(id int) (*model.Campaign, error) {
	return s.Executor.Snapshot().GetByID(id)
}

func (s *CampaignService) GetCampaignDetails(id int) (*CampaignDetails, error) {
	c, err := s.GetCampaign(id)
	if err != nil {
		return nil, err
	}
	return s.details(c), nil
}

func (s *CampaignService) details(c *model.Campaign) *CampaignDetails {
	return &CampaignDetails{
		Campaign:         *c,
		Status:           c.Status(s.Engine.Now()),
		RemainingToRaise: c.RemainingToRaise(),
	}
}

// GetDonatorsOfCampaign returns the donors and their net amounts in
// donation order.
func (s *CampaignService) GetDonatorsOfCampaign(id int) ([]common.Address, []*uint256.Int, error) {
	c, err := s.GetCampaign(id)
	if err != nil {
		return nil, nil, err
	}
	donators := make([]common.Address, len(c.Donators))
	amounts := make([]*uint256.Int, len(c.Donators))
	for i, d := range c.Donators {
		donators[i] = d.Donator
		amounts[i] = d.Amount
	}
	return donators, amounts, nil
}

// DonatorShare is one donation and its share of everything donated.
type DonatorShare struct {
	Donator      common.Address `json:"donator"`
	Amount       *uint256.Int   `json:"amount"`
	SharePercent uint64         `json:"share_percent"`
}

// GetDonatorShares returns each donation with its truncated percentage of the
// campaign's total donations.
func (s *CampaignService) GetDonatorShares(id int) ([]DonatorShare, error) {
	c, err := s.GetCampaign(id)
	if err != nil {
		return nil, err
	}
	shares := c.DonatorShares()
	out := make([]DonatorShare, len(c.Donators))
	for i, d := range c.Donators {
		out[i] = DonatorShare{Donator: d.Donator, Amount: d.Amount, SharePercent: shares[i]}
	}
	return out, nil
}

// RemainingToRaise returns max(target - collected, 0).
func (s *CampaignService) RemainingToRaise(id int) (*uint256.Int, error) {
	c, err := s.GetCampaign(id)
	if err != nil {
		return nil, err
	}
	if c.Deleted {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c.RemainingToRaise(), nil
}

// ListCampaigns fetches campaigns with pagination, newest first. status
// filters on the derived campaign status when not empty.
func (s *CampaignService) ListCampaigns(page, pageSize int, status string) ([]CampaignDetails, map[string]int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	all := s.Executor.Snapshot().ListAll()
	filtered := make([]CampaignDetails, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		d := s.details(&all[i])
		if status != "" && string(d.Status) != status {
			continue
		}
		filtered = append(filtered, *d)
	}

	total := len(filtered)
	campaigns := []CampaignDetails{}
	if offset < total {
		end := offset + pageSize
		if end > total {
			end = total
		}
		campaigns = filtered[offset:end]
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination
}

func (s *CampaignService) GetCommissionPercentage() uint64 {
	return s.Escrow.Policy.CommissionPercentage
}

func (s *CampaignService) GetWithdrawalLimitPercentage() uint64 {
	return s.Escrow.Policy.WithdrawalLimitPercentage
}

func (s *CampaignService) GetCooldownPeriod() time.Duration {
	return s.Escrow.Policy.CooldownPeriod
}

func (s *CampaignService) GetCurrentTotalAccumulated() *uint256.Int {
	return s.Executor.Snapshot().Escrow().CurrentBalance
}

func (s *CampaignService) GetTotalAccumulatedEver() *uint256.Int {
	return s.Executor.Snapshot().Escrow().TotalAccumulated
}

func (s *CampaignService) GetTotalAmountWithdrawn() *uint256.Int {
	return s.Executor.Snapshot().Escrow().TotalWithdrawn
}

func (s *CampaignService) GetMaximumWithdrawalAmountAllowed() *uint256.Int {
	return s.Escrow.MaxWithdrawal(s.Executor.Snapshot().Escrow())
}

// GetLastWithdrawalTimestamp is zero before the first withdrawal.
func (s *CampaignService) GetLastWithdrawalTimestamp() time.Time {
	return s.Executor.Snapshot().Escrow().LastWithdrawalAt
}

// GetCommissionSummary reads every escrow figure from one snapshot.
func (s *CampaignService) GetCommissionSummary() CommissionSummary {
	acct := s.Executor.Snapshot().Escrow()
	sum := CommissionSummary{
		Admin:                     s.Escrow.Admin,
		CommissionPercentage:      s.Escrow.Policy.CommissionPercentage,
		WithdrawalLimitPercentage: s.Escrow.Policy.WithdrawalLimitPercentage,
		CooldownPeriodSeconds:     int64(s.Escrow.Policy.CooldownPeriod / time.Second),
		CurrentTotalAccumulated:   acct.CurrentBalance,
		TotalAccumulatedEver:      acct.TotalAccumulated,
		TotalAmountWithdrawn:      acct.TotalWithdrawn,
		MaximumWithdrawalAllowed:  s.Escrow.MaxWithdrawal(acct),
	}
	if !acct.LastWithdrawalAt.IsZero() {
		sum.LastWithdrawalTimestamp = acct.LastWithdrawalAt.Unix()
		sum.NextWithdrawalTimestamp = s.Escrow.NextWithdrawalAt(acct).Unix()
	}
	return sum
}

// Journal returns committed transactions with Seq > after.
func (s *CampaignService) Journal(after uint64, limit int) []model.JournalRecord {
	return s.Executor.Journal().Records(after, limit)
}

// VerifyJournal walks the hash chain.
func (s *CampaignService) VerifyJournal() error {
	return s.Executor.Journal().Verify()
}
