package service

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/fundraise-backend/internal/model"
)

func TestRenderTemplate(t *testing.T) {
	msg := RenderTemplate("Hi {name}, campaign #{id}", map[string]string{"name": "Alice", "id": "3"})
	assert.Equal(t, "Hi Alice, campaign #3", msg)
}

func TestRenderNotification(t *testing.T) {
	env := model.EventEnvelope{
		Seq:  1,
		Name: model.EventDonationReceived,
		Payload: model.DonationReceived{
			CampaignID:          2,
			Donator:             donorA,
			NetAmount:           milliEther(990),
			DonatorSharePercent: 33,
		},
	}
	msg, err := RenderNotification(env)
	require.NoError(t, err)
	assert.Equal(t, donorA.Hex()+" donated 0.99 ETH to campaign #2 (33% of the balance)", msg)

	_, err = RenderNotification(model.EventEnvelope{Name: "Unknown"})
	assert.Error(t, err)
}

func TestEveryEventHasATemplate(t *testing.T) {
	events := []model.Event{
		model.CampaignCreated{},
		model.CampaignEdited{},
		model.CampaignDeleted{},
		model.DonationReceived{NetAmount: milliEther(1)},
		model.RemainingAmountToRaise{Remaining: milliEther(1)},
		model.Withdrawal{Amount: milliEther(1)},
		model.CommissionReceived{Amount: milliEther(1)},
		model.CommissionWithdrawn{Amount: milliEther(1)},
	}
	for _, ev := range events {
		msg, err := RenderNotification(model.EventEnvelope{Name: ev.EventName(), Payload: ev})
		require.NoError(t, err, ev.EventName())
		assert.NotContains(t, msg, "{", ev.EventName())
	}
}

func TestWorker_CountsOutcomes(t *testing.T) {
	jobs := make(chan model.EventEnvelope, 3)
	var sent []string
	w := NewWorker(jobs, func(env model.EventEnvelope, msg string) bool {
		if env.Seq == 2 {
			return false
		}
		sent = append(sent, msg)
		return true
	}, zerolog.Nop())

	jobs <- model.EventEnvelope{Seq: 1, Name: model.EventCommissionReceived, Payload: model.CommissionReceived{Source: donorA, Amount: milliEther(10)}}
	jobs <- model.EventEnvelope{Seq: 2, Name: model.EventWithdrawal, Payload: model.Withdrawal{CampaignID: 1, Owner: owner, Amount: milliEther(990)}}
	jobs <- model.EventEnvelope{Seq: 3, Name: "Unknown"}
	close(jobs)

	w.Start()

	assert.Equal(t, 1, w.Sent)
	assert.Equal(t, 2, w.Failed)
	assert.Equal(t, []string{"Commission of 0.01 ETH received from " + donorA.Hex()}, sent)
}
