// internal/service/template_service.go
package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/unclebandit/fundraise-backend/internal/model"
)

// NotificationTemplates maps event names to message templates. Placeholders
// are written {name}.
var NotificationTemplates = map[string]string{
	model.EventCampaignCreated:        "Campaign #{campaign_id} \"{title}\" created by {owner}",
	model.EventCampaignEdited:         "Campaign #{campaign_id} updated: \"{title}\"",
	model.EventCampaignDeleted:        "Campaign #{campaign_id} deleted by {owner}",
	model.EventDonationReceived:       "{donator} donated {amount} ETH to campaign #{campaign_id} ({share}% of the balance)",
	model.EventRemainingAmountToRaise: "Campaign #{campaign_id} needs {amount} ETH more",
	model.EventWithdrawal:             "{owner} withdrew {amount} ETH from campaign #{campaign_id}",
	model.EventCommissionReceived:     "Commission of {amount} ETH received from {source}",
	model.EventCommissionWithdrawn:    "Commission of {amount} ETH withdrawn to {to}",
}

func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// EventData flattens an event into template placeholders. Amounts are in
// ether.
func EventData(ev model.Event) map[string]string {
	switch e := ev.(type) {
	case model.CampaignCreated:
		return map[string]string{"campaign_id": strconv.Itoa(e.CampaignID), "title": e.Title, "owner": e.Owner.Hex()}
	case model.CampaignEdited:
		return map[string]string{"campaign_id": strconv.Itoa(e.CampaignID), "title": e.Title, "description": e.Description}
	case model.CampaignDeleted:
		return map[string]string{"campaign_id": strconv.Itoa(e.CampaignID), "owner": e.Owner.Hex()}
	case model.DonationReceived:
		return map[string]string{
			"campaign_id": strconv.Itoa(e.CampaignID),
			"donator":     e.Donator.Hex(),
			"amount":      model.FormatEther(e.NetAmount),
			"share":       strconv.FormatUint(e.DonatorSharePercent, 10),
		}
	case model.RemainingAmountToRaise:
		return map[string]string{"campaign_id": strconv.Itoa(e.CampaignID), "amount": model.FormatEther(e.Remaining)}
	case model.Withdrawal:
		return map[string]string{"campaign_id": strconv.Itoa(e.CampaignID), "owner": e.Owner.Hex(), "amount": model.FormatEther(e.Amount)}
	case model.CommissionReceived:
		return map[string]string{"source": e.Source.Hex(), "amount": model.FormatEther(e.Amount)}
	case model.CommissionWithdrawn:
		return map[string]string{"to": e.To.Hex(), "amount": model.FormatEther(e.Amount)}
	}
	return map[string]string{}
}

// RenderNotification renders the message for an envelope.
func RenderNotification(env model.EventEnvelope) (string, error) {
	tmpl, ok := NotificationTemplates[env.Name]
	if !ok {
		return "", fmt.Errorf("no template for event %s", env.Name)
	}
	return RenderTemplate(tmpl, EventData(env.Payload)), nil
}
