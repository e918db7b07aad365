package repository

import (
	"fmt"

	appErrors "github.com/unclebandit/fundraise-backend/internal/errors"
	"github.com/unclebandit/fundraise-backend/internal/model"
)

// CampaignRepositoryInterface is the campaign store as seen by a running
// transaction. It performs no validation beyond id existence.
type CampaignRepositoryInterface interface {
	CampaignReader

	// Create allocates the next id, stores a copy of c and returns the id.
	Create(c *model.Campaign) (int, error)
	// Update replaces the record with the same ID.
	Update(c *model.Campaign) error
	// Delete tombstones the record. The id is never reused.
	Delete(id int) error
	AppendDonation(id int, d model.Donation) error
}

// UnitOfWork is the working copy of one ledger transaction. It is created
// from a committed Snapshot, clones records on first write, and either
// becomes the next Snapshot through Commit or is dropped.
// A UnitOfWork is used by a single goroutine.
type UnitOfWork struct {
	base      *Snapshot
	campaigns []*model.Campaign
	touched   map[int]struct{}
	escrow    model.CommissionAccount
	escrowMod bool
	events    []model.Event
}

var _ CampaignRepositoryInterface = (*UnitOfWork)(nil)

// Begin opens a unit of work over base.
func Begin(base *Snapshot) *UnitOfWork {
	campaigns := make([]*model.Campaign, len(base.campaigns))
	copy(campaigns, base.campaigns)
	return &UnitOfWork{
		base:      base,
		campaigns: campaigns,
		touched:   make(map[int]struct{}),
		escrow:    base.escrow.Clone(),
	}
}

// Base returns the snapshot this unit of work started from.
func (u *UnitOfWork) Base() *Snapshot { return u.base }

func (u *UnitOfWork) Create(c *model.Campaign) (int, error) {
	id := len(u.campaigns)
	rec := cloneCampaign(c)
	rec.ID = id
	u.campaigns = append(u.campaigns, rec)
	u.touched[id] = struct{}{}
	return id, nil
}

func (u *UnitOfWork) GetByID(id int) (*model.Campaign, error) {
	if id < 0 || id >= len(u.campaigns) {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return cloneCampaign(u.campaigns[id]), nil
}

func (u *UnitOfWork) Update(c *model.Campaign) error {
	if c.ID < 0 || c.ID >= len(u.campaigns) {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	u.campaigns[c.ID] = cloneCampaign(c)
	u.touched[c.ID] = struct{}{}
	return nil
}

func (u *UnitOfWork) Delete(id int) error {
	c, err := u.mutable(id)
	if err != nil {
		return err
	}
	c.Tombstone()
	return nil
}

func (u *UnitOfWork) AppendDonation(id int, d model.Donation) error {
	c, err := u.mutable(id)
	if err != nil {
		return err
	}
	d.Amount = d.Amount.Clone()
	c.Donators = append(c.Donators, d)
	return nil
}

func (u *UnitOfWork) ListAll() []model.Campaign {
	return listCampaigns(u.campaigns, false)
}

func (u *UnitOfWork) ListActive() []model.Campaign {
	return listCampaigns(u.campaigns, true)
}

// Escrow returns a copy of the working commission account.
func (u *UnitOfWork) Escrow() model.CommissionAccount {
	return u.escrow.Clone()
}

// SetEscrow replaces the working commission account.
func (u *UnitOfWork) SetEscrow(a model.CommissionAccount) {
	u.escrow = a.Clone()
	u.escrowMod = true
}

// Emit buffers an event. Buffered events are delivered only if the unit of
// work commits.
func (u *UnitOfWork) Emit(e model.Event) {
	u.events = append(u.events, e)
}

func (u *UnitOfWork) Events() []model.Event {
	out := make([]model.Event, len(u.events))
	copy(out, u.events)
	return out
}

// mutable returns the working record for id, cloning it on first write.
func (u *UnitOfWork) mutable(id int) (*model.Campaign, error) {
	if id < 0 || id >= len(u.campaigns) {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	if _, ok := u.touched[id]; !ok {
		u.campaigns[id] = cloneCampaign(u.campaigns[id])
		u.touched[id] = struct{}{}
	}
	return u.campaigns[id], nil
}

// Changeset is the persisted difference between a unit of work and its base.
type Changeset struct {
	Campaigns []model.Campaign
	Donations []DonationChange
	// Nil when the commission account was not modified.
	Escrow *model.CommissionAccount
}

// DonationChange is a donation appended at Position of a campaign's history.
type DonationChange struct {
	CampaignID int
	Position   int
	Donation   model.Donation
}

// Empty reports whether the changeset carries no state.
func (cs Changeset) Empty() bool {
	return len(cs.Campaigns) == 0 && len(cs.Donations) == 0 && cs.Escrow == nil
}

// Changes computes the changeset against the base snapshot.
func (u *UnitOfWork) Changes() Changeset {
	var cs Changeset
	for id := 0; id < len(u.campaigns); id++ {
		if _, ok := u.touched[id]; !ok {
			continue
		}
		c := u.campaigns[id]
		cs.Campaigns = append(cs.Campaigns, *cloneCampaign(c))
		from := 0
		if id < len(u.base.campaigns) {
			from = len(u.base.campaigns[id].Donators)
		}
		for pos := from; pos < len(c.Donators); pos++ {
			d := c.Donators[pos]
			d.Amount = d.Amount.Clone()
			cs.Donations = append(cs.Donations, DonationChange{CampaignID: id, Position: pos, Donation: d})
		}
	}
	if u.escrowMod {
		a := u.escrow.Clone()
		cs.Escrow = &a
	}
	return cs
}

// Commit freezes the working copy into the snapshot with sequence seq. The
// unit of work must not be used afterwards.
func (u *UnitOfWork) Commit(seq uint64) (*Snapshot, error) {
	if seq <= u.base.seq {
		return nil, fmt.Errorf("commit sequence %d does not follow %d", seq, u.base.seq)
	}
	s := &Snapshot{seq: seq, campaigns: u.campaigns, escrow: u.escrow}
	u.campaigns = nil
	return s, nil
}
