package main

import (
	"github.com/pterm/pterm"

	"github.com/unclebandit/fundraise-backend/internal/model"
)

// eventColor picks the title color of an event box.
func eventColor(name string) func(a ...interface{}) string {
	switch name {
	case model.EventDonationReceived, model.EventCommissionReceived:
		return pterm.LightGreen
	case model.EventWithdrawal, model.EventCommissionWithdrawn:
		return pterm.LightYellow
	case model.EventCampaignDeleted:
		return pterm.LightRed
	default:
		return pterm.LightCyan
	}
}

// renderEvent returns the box printed for one notification.
func renderEvent(env model.EventEnvelope, msg string) string {
	pbox := pterm.DefaultBox.WithHorizontalPadding(2)
	title := pterm.Sprintf("|%s #%d|", env.Name, env.Seq)
	body := pterm.Sprintfln("%s", msg) + pterm.Sprintf("tx %d (%s) at %s", env.TxSeq, env.TxID, env.CommittedAt.Format("2006-01-02 15:04:05"))
	return pbox.WithTitle(eventColor(env.Name)(title)).WithTitleTopLeft().Sprint(body)
}
