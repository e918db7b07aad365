package repository

import (
	"reflect"

	"github.com/mitchellh/copystructure"
	"github.com/shopspring/decimal"

	appErrors "github.com/unclebandit/fundraise-backend/internal/errors"
	"github.com/unclebandit/fundraise-backend/internal/model"
)

func init() {
	// decimal.Decimal keeps its state in unexported fields, which copystructure
	// skips. Values are immutable so sharing them is safe.
	copystructure.Copiers[reflect.TypeOf(decimal.Decimal{})] = func(v interface{}) (interface{}, error) {
		return v, nil
	}
}

func cloneCampaign(c *model.Campaign) *model.Campaign {
	return copystructure.Must(copystructure.Copy(c)).(*model.Campaign)
}

// CampaignReader is the read-only view shared by snapshots and units of work.
type CampaignReader interface {
	GetByID(id int) (*model.Campaign, error)
	ListAll() []model.Campaign
	ListActive() []model.Campaign
	Escrow() model.CommissionAccount
}

// Snapshot is an immutable committed state of the ledger. Records held here
// are never mutated; readers receive copies.
type Snapshot struct {
	seq       uint64
	campaigns []*model.Campaign
	escrow    model.CommissionAccount
}

var _ CampaignReader = (*Snapshot)(nil)

// NewSnapshot builds a committed state. The campaign at index i must have ID i.
func NewSnapshot(seq uint64, campaigns []*model.Campaign, escrow model.CommissionAccount) *Snapshot {
	return &Snapshot{seq: seq, campaigns: campaigns, escrow: escrow}
}

// EmptySnapshot is the state of a fresh ledger.
func EmptySnapshot() *Snapshot {
	return NewSnapshot(0, nil, model.NewCommissionAccount())
}

// Seq is the sequence number of the last transaction folded into the snapshot.
func (s *Snapshot) Seq() uint64 { return s.seq }

// Len is the number of allocated ids, tombstones included.
func (s *Snapshot) Len() int { return len(s.campaigns) }

// GetByID returns a copy of the record, tombstones included.
func (s *Snapshot) GetByID(id int) (*model.Campaign, error) {
	if id < 0 || id >= len(s.campaigns) {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return cloneCampaign(s.campaigns[id]), nil
}

func (s *Snapshot) ListAll() []model.Campaign {
	return listCampaigns(s.campaigns, false)
}

func (s *Snapshot) ListActive() []model.Campaign {
	return listCampaigns(s.campaigns, true)
}

func (s *Snapshot) Escrow() model.CommissionAccount {
	return s.escrow.Clone()
}

func listCampaigns(campaigns []*model.Campaign, skipDeleted bool) []model.Campaign {
	out := make([]model.Campaign, 0, len(campaigns))
	for _, c := range campaigns {
		if skipDeleted && c.Deleted {
			continue
		}
		out = append(out, *cloneCampaign(c))
	}
	return out
}
