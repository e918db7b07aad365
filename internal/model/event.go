package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Event names, also used as routing keys on the message bus.
const (
	EventCampaignCreated        = "CampaignCreated"
	EventCampaignEdited         = "CampaignEdited"
	EventCampaignDeleted        = "CampaignDeleted"
	EventDonationReceived       = "DonationReceived"
	EventRemainingAmountToRaise = "RemainingAmountToRaise"
	EventWithdrawal             = "Withdrawal"
	EventCommissionReceived     = "CommissionReceived"
	EventCommissionWithdrawn    = "CommissionWithdrawn"
)

// Event is a notification produced by a committed transaction.
type Event interface {
	EventName() string
}

type CampaignCreated struct {
	CampaignID int            `json:"campaign_id"`
	Owner      common.Address `json:"owner"`
	Title      string         `json:"title"`
}

type CampaignEdited struct {
	CampaignID  int    `json:"campaign_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type CampaignDeleted struct {
	CampaignID int            `json:"campaign_id"`
	Owner      common.Address `json:"owner"`
}

type DonationReceived struct {
	CampaignID          int            `json:"campaign_id"`
	Donator             common.Address `json:"donator"`
	NetAmount           *uint256.Int   `json:"net_amount"`
	DonatorSharePercent uint64         `json:"donator_share_percent"`
}

type RemainingAmountToRaise struct {
	CampaignID int          `json:"campaign_id"`
	Remaining  *uint256.Int `json:"remaining"`
}

type Withdrawal struct {
	CampaignID int            `json:"campaign_id"`
	Owner      common.Address `json:"owner"`
	Amount     *uint256.Int   `json:"amount"`
}

type CommissionReceived struct {
	Source common.Address `json:"source"`
	Amount *uint256.Int   `json:"amount"`
}

type CommissionWithdrawn struct {
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

func (CampaignCreated) EventName() string        { return EventCampaignCreated }
func (CampaignEdited) EventName() string         { return EventCampaignEdited }
func (CampaignDeleted) EventName() string        { return EventCampaignDeleted }
func (DonationReceived) EventName() string       { return EventDonationReceived }
func (RemainingAmountToRaise) EventName() string { return EventRemainingAmountToRaise }
func (Withdrawal) EventName() string             { return EventWithdrawal }
func (CommissionReceived) EventName() string     { return EventCommissionReceived }
func (CommissionWithdrawn) EventName() string    { return EventCommissionWithdrawn }

// EventEnvelope is what subscribers receive. Seq numbers deliveries of one
// process without gaps, TxSeq identifies the committing transaction.
type EventEnvelope struct {
	Seq         uint64    `json:"seq"`
	TxSeq       uint64    `json:"tx_seq"`
	TxID        string    `json:"tx_id"`
	Name        string    `json:"name"`
	CommittedAt time.Time `json:"committed_at"`
	Payload     Event     `json:"payload"`
}

// RawEnvelope is an EventEnvelope read off the wire, payload still encoded.
type RawEnvelope struct {
	Seq         uint64          `json:"seq"`
	TxSeq       uint64          `json:"tx_seq"`
	TxID        string          `json:"tx_id"`
	Name        string          `json:"name"`
	CommittedAt time.Time       `json:"committed_at"`
	Payload     json.RawMessage `json:"payload"`
}

// Decode resolves the payload by event name.
func (r RawEnvelope) Decode() (EventEnvelope, error) {
	ev, err := DecodeEvent(r.Name, r.Payload)
	if err != nil {
		return EventEnvelope{}, err
	}
	return EventEnvelope{
		Seq:         r.Seq,
		TxSeq:       r.TxSeq,
		TxID:        r.TxID,
		Name:        r.Name,
		CommittedAt: r.CommittedAt,
		Payload:     ev,
	}, nil
}

// DecodeEvent unmarshals an event payload of the given name.
func DecodeEvent(name string, data []byte) (Event, error) {
	var ev Event
	switch name {
	case EventCampaignCreated:
		ev = &CampaignCreated{}
	case EventCampaignEdited:
		ev = &CampaignEdited{}
	case EventCampaignDeleted:
		ev = &CampaignDeleted{}
	case EventDonationReceived:
		ev = &DonationReceived{}
	case EventRemainingAmountToRaise:
		ev = &RemainingAmountToRaise{}
	case EventWithdrawal:
		ev = &Withdrawal{}
	case EventCommissionReceived:
		ev = &CommissionReceived{}
	case EventCommissionWithdrawn:
		ev = &CommissionWithdrawn{}
	default:
		return nil, fmt.Errorf("unknown event %q", name)
	}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return deref(ev), nil
}

func deref(ev Event) Event {
	switch e := ev.(type) {
	case *CampaignCreated:
		return *e
	case *CampaignEdited:
		return *e
	case *CampaignDeleted:
		return *e
	case *DonationReceived:
		return *e
	case *RemainingAmountToRaise:
		return *e
	case *Withdrawal:
		return *e
	case *CommissionReceived:
		return *e
	case *CommissionWithdrawn:
		return *e
	}
	return ev
}
