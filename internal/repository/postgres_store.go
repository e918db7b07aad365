package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/russross/meddler"
	"github.com/shopspring/decimal"

	"github.com/unclebandit/fundraise-backend/internal/model"
)

// PostgresStore writes committed changesets through to Postgres and rebuilds
// the ledger state at startup.
type PostgresStore struct {
	db  *sqlx.DB
	log zerolog.Logger
}

// NewPostgresStore wraps an open connection. Migrations must already be applied.
func NewPostgresStore(db *sqlx.DB, log zerolog.Logger) *PostgresStore {
	meddler.Default = meddler.PostgreSQL
	return &PostgresStore{db: db, log: log.With().Str("component", "postgres_store").Logger()}
}

// DB returns the underlying connection. Used by tests.
func (s *PostgresStore) DB() *sqlx.DB { return s.db }

type campaignRow struct {
	ID              int             `db:"id"`
	Owner           string          `db:"owner"`
	Title           string          `db:"title"`
	Description     string          `db:"description"`
	TargetUSD       decimal.Decimal `db:"target_usd"`
	TargetNative    string          `db:"target_native"`
	Deadline        time.Time       `db:"deadline"`
	AmountCollected string          `db:"amount_collected"`
	TotalWithdrawn  string          `db:"total_withdrawn"`
	Image           string          `db:"image"`
	Deleted         bool            `db:"deleted"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       *time.Time      `db:"updated_at"`
}

type donationRow struct {
	CampaignID int       `meddler:"campaign_id"`
	Position   int       `meddler:"position"`
	Donator    string    `meddler:"donator"`
	Amount     string    `meddler:"amount"`
	DonatedAt  time.Time `meddler:"donated_at,utctime"`
}

type escrowRow struct {
	ID               int        `db:"id"`
	CurrentBalance   string     `db:"current_balance"`
	TotalAccumulated string     `db:"total_accumulated"`
	TotalWithdrawn   string     `db:"total_withdrawn"`
	LastWithdrawalAt *time.Time `db:"last_withdrawal_at"`
}

const upsertCampaign = `
	INSERT INTO campaigns (
		id, owner, title, description, target_usd, target_native, deadline,
		amount_collected, total_withdrawn, image, deleted, created_at, updated_at
	) VALUES (
		:id, :owner, :title, :description, :target_usd, :target_native, :deadline,
		:amount_collected, :total_withdrawn, :image, :deleted, :created_at, :updated_at
	)
	ON CONFLICT (id) DO UPDATE SET
		owner = EXCLUDED.owner,
		title = EXCLUDED.title,
		description = EXCLUDED.description,
		target_usd = EXCLUDED.target_usd,
		target_native = EXCLUDED.target_native,
		deadline = EXCLUDED.deadline,
		amount_collected = EXCLUDED.amount_collected,
		total_withdrawn = EXCLUDED.total_withdrawn,
		image = EXCLUDED.image,
		deleted = EXCLUDED.deleted,
		updated_at = EXCLUDED.updated_at;`

const upsertEscrow = `
	INSERT INTO commission_account (
		id, current_balance, total_accumulated, total_withdrawn, last_withdrawal_at
	) VALUES (
		:id, :current_balance, :total_accumulated, :total_withdrawn, :last_withdrawal_at
	)
	ON CONFLICT (id) DO UPDATE SET
		current_balance = EXCLUDED.current_balance,
		total_accumulated = EXCLUDED.total_accumulated,
		total_withdrawn = EXCLUDED.total_withdrawn,
		last_withdrawal_at = EXCLUDED.last_withdrawal_at;`

// Persist writes one committed transaction in a single SQL transaction.
func (s *PostgresStore) Persist(ctx context.Context, cs Changeset, rec model.JournalRecord) (err error) {
	txn, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			s.rollback(txn)
		}
	}()

	for i := range cs.Campaigns {
		if _, err = txn.NamedExecContext(ctx, upsertCampaign, toCampaignRow(&cs.Campaigns[i])); err != nil {
			return fmt.Errorf("upsert campaign %d: %w", cs.Campaigns[i].ID, err)
		}
	}
	for _, d := range cs.Donations {
		row := &donationRow{
			CampaignID: d.CampaignID,
			Position:   d.Position,
			Donator:    d.Donation.Donator.Hex(),
			Amount:     d.Donation.Amount.Dec(),
			DonatedAt:  d.Donation.DonatedAt,
		}
		if err = meddler.Insert(txn, "donations", row); err != nil {
			return fmt.Errorf("insert donation %d/%d: %w", d.CampaignID, d.Position, err)
		}
	}
	if cs.Escrow != nil {
		if _, err = txn.NamedExecContext(ctx, upsertEscrow, toEscrowRow(cs.Escrow)); err != nil {
			return fmt.Errorf("upsert commission account: %w", err)
		}
	}
	if err = meddler.Insert(txn, "ledger_journal", &rec); err != nil {
		return fmt.Errorf("append journal %d: %w", rec.Seq, err)
	}
	return txn.Commit()
}

// Load rebuilds the last committed snapshot and the journal.
func (s *PostgresStore) Load(ctx context.Context) (*Snapshot, []model.JournalRecord, error) {
	var rows []campaignRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM campaigns ORDER BY id;"); err != nil {
		return nil, nil, fmt.Errorf("load campaigns: %w", err)
	}
	campaigns := make([]*model.Campaign, 0, len(rows))
	for i := range rows {
		if rows[i].ID != i {
			return nil, nil, fmt.Errorf("campaign ids are not contiguous: found %d at position %d", rows[i].ID, i)
		}
		c, err := fromCampaignRow(&rows[i])
		if err != nil {
			return nil, nil, err
		}
		campaigns = append(campaigns, c)
	}

	var donations []*donationRow
	if err := meddler.QueryAll(s.db, &donations, "SELECT * FROM donations ORDER BY campaign_id, position;"); err != nil {
		return nil, nil, fmt.Errorf("load donations: %w", err)
	}
	for _, d := range donations {
		if d.CampaignID < 0 || d.CampaignID >= len(campaigns) {
			return nil, nil, fmt.Errorf("donation references unknown campaign %d", d.CampaignID)
		}
		amount, err := model.ParseAmount(d.Amount)
		if err != nil {
			return nil, nil, err
		}
		c := campaigns[d.CampaignID]
		c.Donators = append(c.Donators, model.Donation{
			Donator:   common.HexToAddress(d.Donator),
			Amount:    amount,
			DonatedAt: d.DonatedAt,
		})
	}

	escrow := model.NewCommissionAccount()
	var er escrowRow
	err := s.db.GetContext(ctx, &er, "SELECT * FROM commission_account WHERE id = 1;")
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, nil, fmt.Errorf("load commission account: %w", err)
	default:
		if escrow, err = fromEscrowRow(&er); err != nil {
			return nil, nil, err
		}
	}

	journal, err := s.Journal(ctx)
	if err != nil {
		return nil, nil, err
	}
	var seq uint64
	if len(journal) > 0 {
		seq = journal[len(journal)-1].Seq
	}
	return NewSnapshot(seq, campaigns, escrow), journal, nil
}

// Journal returns every persisted journal record in sequence order.
func (s *PostgresStore) Journal(ctx context.Context) ([]model.JournalRecord, error) {
	var recs []*model.JournalRecord
	if err := meddler.QueryAll(s.db, &recs, "SELECT * FROM ledger_journal ORDER BY seq;"); err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	out := make([]model.JournalRecord, len(recs))
	for i, r := range recs {
		out[i] = *r
	}
	return out, nil
}

func (s *PostgresStore) rollback(txn *sqlx.Tx) {
	if err := txn.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.log.Error().Err(err).Msg("rollback")
	}
}

func toCampaignRow(c *model.Campaign) *campaignRow {
	return &campaignRow{
		ID:              c.ID,
		Owner:           c.Owner.Hex(),
		Title:           c.Title,
		Description:     c.Description,
		TargetUSD:       c.TargetUSD,
		TargetNative:    c.TargetNative.Dec(),
		Deadline:        c.Deadline.UTC(),
		AmountCollected: c.AmountCollected.Dec(),
		TotalWithdrawn:  c.TotalWithdrawn.Dec(),
		Image:           c.Image,
		Deleted:         c.Deleted,
		CreatedAt:       c.CreatedAt.UTC(),
		UpdatedAt:       c.UpdatedAt,
	}
}

func fromCampaignRow(r *campaignRow) (*model.Campaign, error) {
	amounts := make([]*uint256.Int, 3)
	for i, s := range []string{r.TargetNative, r.AmountCollected, r.TotalWithdrawn} {
		v, err := model.ParseAmount(s)
		if err != nil {
			return nil, fmt.Errorf("campaign %d: %w", r.ID, err)
		}
		amounts[i] = v
	}
	return &model.Campaign{
		ID:              r.ID,
		Owner:           common.HexToAddress(r.Owner),
		Title:           r.Title,
		Description:     r.Description,
		TargetUSD:       r.TargetUSD,
		TargetNative:    amounts[0],
		Deadline:        r.Deadline,
		AmountCollected: amounts[1],
		TotalWithdrawn:  amounts[2],
		Image:           r.Image,
		Deleted:         r.Deleted,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}, nil
}

func toEscrowRow(a *model.CommissionAccount) *escrowRow {
	row := &escrowRow{
		ID:               1,
		CurrentBalance:   a.CurrentBalance.Dec(),
		TotalAccumulated: a.TotalAccumulated.Dec(),
		TotalWithdrawn:   a.TotalWithdrawn.Dec(),
	}
	if !a.LastWithdrawalAt.IsZero() {
		t := a.LastWithdrawalAt.UTC()
		row.LastWithdrawalAt = &t
	}
	return row
}

func fromEscrowRow(r *escrowRow) (model.CommissionAccount, error) {
	a := model.NewCommissionAccount()
	var err error
	if a.CurrentBalance, err = model.ParseAmount(r.CurrentBalance); err != nil {
		return a, fmt.Errorf("commission account: %w", err)
	}
	if a.TotalAccumulated, err = model.ParseAmount(r.TotalAccumulated); err != nil {
		return a, fmt.Errorf("commission account: %w", err)
	}
	if a.TotalWithdrawn, err = model.ParseAmount(r.TotalWithdrawn); err != nil {
		return a, fmt.Errorf("commission account: %w", err)
	}
	if r.LastWithdrawalAt != nil {
		a.LastWithdrawalAt = *r.LastWithdrawalAt
	}
	return a, nil
}
